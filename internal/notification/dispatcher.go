// Package notification delivers side effects of saved predictions: alerts for
// high-risk results and anonymized events for the research feed.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Delivery channels, used as metric labels.
const (
	ChannelAlert = "alert"
	ChannelMQTT  = "mqtt"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Alerter delivers a human-readable alert.
type Alerter interface {
	Send(ctx context.Context, title, body string) error
}

// Publisher delivers a machine-readable event. mqtt.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ProfileLookup is the part of the datastore the dispatcher needs.
type ProfileLookup interface {
	GetOrCreateProfile(ctx context.Context, userID uint) (*datastore.UserProfile, error)
}

// MetricsRecorder receives delivery outcomes.
type MetricsRecorder interface {
	RecordDelivery(channel string, err error)
}

// Options configures a Dispatcher. Nil Alerter or Publisher disables that channel.
type Options struct {
	Alerter   Alerter
	Publisher Publisher
	Topic     string
	Instance  string
	Timeout   time.Duration
}

// ResearchEvent is published for users who opted into research participation.
// It carries no patient or user identifiers.
type ResearchEvent struct {
	Event      string    `json:"event"`
	Instance   string    `json:"instance,omitempty"`
	ScanType   string    `json:"scan_type"`
	Result     string    `json:"result"`
	RiskLevel  string    `json:"risk_level"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher runs deliveries in the background so request handlers never wait on them.
type Dispatcher struct {
	profiles ProfileLookup
	opts     Options
	metrics  MetricsRecorder

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(profiles ProfileLookup, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{profiles: profiles, opts: opts}
}

// SetMetrics attaches a metrics recorder.
func (d *Dispatcher) SetMetrics(m MetricsRecorder) {
	d.metrics = m
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && (d.opts.Alerter != nil || d.opts.Publisher != nil)
}

// PredictionSaved schedules deliveries for a stored prediction according to
// the owner's profile flags. It returns immediately.
func (d *Dispatcher) PredictionSaved(p datastore.Prediction) {
	if !d.Enabled() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		defer cancel()
		d.deliver(ctx, &p)
	})
}

func (d *Dispatcher) deliver(ctx context.Context, p *datastore.Prediction) {
	log := GetLogger()

	profile, err := d.profiles.GetOrCreateProfile(ctx, p.UserID)
	if err != nil {
		log.Warn("skipping notifications, profile unavailable",
			logger.Uint("scan_id", p.ID),
			logger.Error(err))
		return
	}

	if d.opts.Alerter != nil && profile.EmailNotifications && p.IsHighRisk() {
		err := d.opts.Alerter.Send(ctx, alertTitle, alertBody(p))
		d.record(ChannelAlert, err)
		if err != nil {
			log.Warn("high-risk alert failed", logger.Uint("scan_id", p.ID), logger.Error(err))
		} else {
			log.Info("high-risk alert sent", logger.Uint("scan_id", p.ID))
		}
	}

	if d.opts.Publisher != nil && profile.ResearchParticipation {
		payload, err := json.Marshal(d.researchEvent(p))
		if err == nil {
			err = d.opts.Publisher.Publish(ctx, d.opts.Topic, payload)
		}
		d.record(ChannelMQTT, err)
		if err != nil {
			log.Warn("research event not published", logger.Uint("scan_id", p.ID), logger.Error(err))
		}
	}
}

func (d *Dispatcher) researchEvent(p *datastore.Prediction) ResearchEvent {
	return ResearchEvent{
		Event:      "prediction",
		Instance:   d.opts.Instance,
		ScanType:   p.ScanType,
		Result:     p.Result,
		RiskLevel:  p.RiskLevel,
		Confidence: p.Confidence,
		Timestamp:  p.Timestamp.UTC(),
	}
}

const alertTitle = "OncoDerma: high-risk result"

// alertBody omits the patient name; alert channels are not access controlled.
func alertBody(p *datastore.Prediction) string {
	return fmt.Sprintf("A high-risk result was recorded.\nScan #%d\nResult: %s\nRisk: %s\nConfidence: %.2f%%",
		p.ID, p.Result, p.RiskLevel, p.Confidence)
}

func (d *Dispatcher) record(channel string, err error) {
	if d.metrics != nil {
		d.metrics.RecordDelivery(channel, err)
	}
}

// Close stops accepting work and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
