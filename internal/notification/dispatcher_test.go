package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	topic string
	title string
	body  string
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (r *recorder) Send(_ context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{title: title, body: body})
	return r.err
}

func (r *recorder) Publish(_ context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{topic: topic, body: string(payload)})
	return r.err
}

func (r *recorder) messages() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

type deliveryMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *deliveryMetrics) RecordDelivery(channel string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	key := channel + ":ok"
	if err != nil {
		key = channel + ":error"
	}
	m.counts[key]++
}

var melanoma = datastore.Prediction{
	ID:          42,
	UserID:      1,
	PatientName: "Jane Doe",
	ScanType:    "Skin Lesion",
	Result:      "Melanoma (mel)",
	Confidence:  91.25,
	RiskLevel:   "Very High Risk (life-threatening malignant tumor)",
	Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
}

func profileStore(profile *datastore.UserProfile) *testutil.MockDataStore {
	store := &testutil.MockDataStore{}
	store.On("GetOrCreateProfile", mock.Anything, uint(1)).Return(profile, nil)
	return store
}

func TestHighRiskAlertRespectsProfile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		notify     bool
		prediction datastore.Prediction
		wantAlerts int
	}{
		{"opted in high risk", true, melanoma, 1},
		{"opted out", false, melanoma, 0},
		{"low risk", true, datastore.Prediction{ID: 1, UserID: 1, RiskLevel: "Low Risk (benign)"}, 0},
		{"moderate risk", true, datastore.Prediction{ID: 2, UserID: 1, RiskLevel: "Moderate Risk (pre-cancerous lesion)"}, 0},
		{"high risk", true, datastore.Prediction{ID: 3, UserID: 1, RiskLevel: "High Risk (malignant but slow growing)"}, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			alerts := &recorder{}
			d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1, EmailNotifications: tc.notify}),
				Options{Alerter: alerts})
			d.PredictionSaved(tc.prediction)
			d.Close()

			assert.Len(t, alerts.messages(), tc.wantAlerts)
		})
	}
}

func TestAlertOmitsPatientName(t *testing.T) {
	t.Parallel()

	alerts := &recorder{}
	d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1, EmailNotifications: true}),
		Options{Alerter: alerts})
	d.PredictionSaved(melanoma)
	d.Close()

	msgs := alerts.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, alertTitle, msgs[0].title)
	assert.Contains(t, msgs[0].body, "Scan #42")
	assert.Contains(t, msgs[0].body, "91.25%")
	assert.NotContains(t, msgs[0].body, "Jane Doe")
}

func TestResearchEventIsAnonymous(t *testing.T) {
	t.Parallel()

	feed := &recorder{}
	metrics := &deliveryMetrics{}
	d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1, ResearchParticipation: true}),
		Options{Publisher: feed, Topic: "oncoderma/research", Instance: "clinic-a"})
	d.SetMetrics(metrics)
	d.PredictionSaved(melanoma)
	d.Close()

	msgs := feed.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "oncoderma/research", msgs[0].topic)
	assert.NotContains(t, msgs[0].body, "Jane Doe")

	var event ResearchEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].body), &event))
	assert.Equal(t, "prediction", event.Event)
	assert.Equal(t, "clinic-a", event.Instance)
	assert.Equal(t, "Melanoma (mel)", event.Result)
	assert.InDelta(t, 91.25, event.Confidence, 0.001)
	assert.Equal(t, 1, metrics.counts["mqtt:ok"])
}

func TestDeliveryErrorsAreRecorded(t *testing.T) {
	t.Parallel()

	failing := &recorder{err: errors.NewStd("broker unavailable")}
	metrics := &deliveryMetrics{}
	d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1, ResearchParticipation: true, EmailNotifications: true}),
		Options{Alerter: failing, Publisher: failing})
	d.SetMetrics(metrics)
	d.PredictionSaved(melanoma)
	d.Close()

	assert.Equal(t, 1, metrics.counts["alert:error"])
	assert.Equal(t, 1, metrics.counts["mqtt:error"])
}

func TestProfileErrorSkipsDelivery(t *testing.T) {
	t.Parallel()

	store := &testutil.MockDataStore{}
	store.On("GetOrCreateProfile", mock.Anything, uint(1)).Return(nil, errors.NewStd("db down"))

	alerts := &recorder{}
	d := NewDispatcher(store, Options{Alerter: alerts})
	d.PredictionSaved(melanoma)
	d.Close()

	assert.Empty(t, alerts.messages())
}

func TestDisabledAndClosedDispatcher(t *testing.T) {
	t.Parallel()

	store := &testutil.MockDataStore{}
	d := NewDispatcher(store, Options{})
	assert.False(t, d.Enabled())
	d.PredictionSaved(melanoma)
	d.Close()
	store.AssertNotCalled(t, "GetOrCreateProfile", mock.Anything, mock.Anything)

	alerts := &recorder{}
	d = NewDispatcher(store, Options{Alerter: alerts})
	d.Close()
	d.PredictionSaved(melanoma)
	assert.Empty(t, alerts.messages())

	var nilDispatcher *Dispatcher
	assert.False(t, nilDispatcher.Enabled())
	assert.NotPanics(t, nilDispatcher.Close)
}

func TestShoutrrrAlerter(t *testing.T) {
	t.Parallel()

	_, err := NewShoutrrrAlerter(nil, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewShoutrrrAlerter([]string{"nosuchservice://token@host"}, time.Second)
	require.Error(t, err)

	alerter, err := NewShoutrrrAlerter([]string{"logger://"}, time.Second)
	require.NoError(t, err)
	assert.NoError(t, alerter.Send(t.Context(), "title", "body"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, alerter.Send(ctx, "title", "body"), context.Canceled)
}

// blockingAlerter holds every send until its context ends.
type blockingAlerter struct {
	started chan struct{}
	done    chan error
}

func newBlockingAlerter() *blockingAlerter {
	return &blockingAlerter{started: make(chan struct{}, 1), done: make(chan error, 1)}
}

func (b *blockingAlerter) Send(ctx context.Context, _, _ string) error {
	b.started <- struct{}{}
	<-ctx.Done()
	b.done <- ctx.Err()
	return ctx.Err()
}

func TestDeliveryIsAsyncAndBounded(t *testing.T) {
	t.Parallel()

	alerter := newBlockingAlerter()
	d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1, EmailNotifications: true}),
		Options{Alerter: alerter, Timeout: 20 * time.Millisecond})

	// Returns while the send is still blocked
	d.PredictionSaved(melanoma)
	testutil.WaitForChannel(t, alerter.started, testutil.DefaultTestTimeout, "alert was never sent")

	err := testutil.ReceiveWithin(t, alerter.done, testutil.DefaultTestTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	d.Close()
}

func TestOptedOutUserNeverReachesAlerter(t *testing.T) {
	t.Parallel()

	alerter := newBlockingAlerter()
	d := NewDispatcher(profileStore(&datastore.UserProfile{UserID: 1}),
		Options{Alerter: alerter, Timeout: testutil.ShortTestTimeout})
	d.PredictionSaved(melanoma)
	d.Close()

	testutil.AssertNoReceive(t, alerter.started, 50*time.Millisecond)
}
