package classifier

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
)

// fakePredictor returns a fixed output vector.
type fakePredictor struct {
	output   []float32
	inputLen int
	err      error
	calls    int
	mu       sync.Mutex
	closed   bool
}

func newFakePredictor(size int, output ...float32) *fakePredictor {
	return &fakePredictor{output: output, inputLen: size * size * 3}
}

func (f *fakePredictor) Predict(input []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

func (f *fakePredictor) InputLen() int  { return f.inputLen }
func (f *fakePredictor) OutputLen() int { return len(f.output) }
func (f *fakePredictor) Close()         { f.closed = true }

type recordedInference struct {
	label string
	err   error
}

type fakeMetrics struct {
	records []recordedInference
}

func (m *fakeMetrics) RecordInference(label string, _ time.Duration, err error) {
	m.records = append(m.records, recordedInference{label: label, err: err})
}

func batchOf(size int) *preprocess.Batch {
	return &preprocess.Batch{Data: make([]float32, size*size*3), Size: size, Format: "png"}
}

func TestClassifyArgMax(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		output    []float32
		wantLabel string
		wantRisk  string
		wantConf  float64
	}{
		{"melanoma", []float32{0.05, 0.8, 0.05, 0.05, 0.02, 0.02, 0.01}, "Melanoma (mel)", "Very High Risk (life-threatening malignant tumor)", 80},
		{"nevus", []float32{0.9, 0.02, 0.02, 0.02, 0.02, 0.01, 0.01}, "Melanocytic nevi (nv)", "Low Risk (benign)", 90},
		{"basal cell", []float32{0.1, 0.1, 0.1, 0.55, 0.05, 0.05, 0.05}, "Basal cell carcinoma (bcc)", "High Risk (malignant but slow growing)", 55},
		{"actinic", []float32{0, 0, 0, 0, 1, 0, 0}, "Actinic keratoses (akiec)", "Moderate Risk (pre-cancerous lesion)", 100},
		{"first of ties", []float32{0.3, 0.3, 0.1, 0.1, 0.1, 0.05, 0.05}, "Melanocytic nevi (nv)", "Low Risk (benign)", 30},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := New(newFakePredictor(28, tc.output...), nil, preprocess.Options{Size: 28})

			result, err := c.Classify(t.Context(), batchOf(28))
			require.NoError(t, err)
			assert.Equal(t, tc.wantLabel, result.Label)
			assert.Equal(t, tc.wantRisk, result.RiskLevel)
			assert.InDelta(t, tc.wantConf, result.Confidence, 0.001)
			assert.Equal(t, RiskFor(result.Label), result.RiskLevel)
		})
	}
}

func TestConfidenceIsClamped(t *testing.T) {
	t.Parallel()

	// Logits rather than probabilities must not produce confidences above 100.
	c := New(newFakePredictor(28, 3.5, 0, 0, 0, 0, 0, 0), nil, preprocess.Options{Size: 28})
	result, err := c.Classify(t.Context(), batchOf(28))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.Confidence, 0)

	c = New(newFakePredictor(28, -1, -2, -3, -4, -5, -6, -7), nil, preprocess.Options{Size: 28})
	result, err = c.Classify(t.Context(), batchOf(28))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, result.Confidence, 0)
}

func TestDisplayConfidence(t *testing.T) {
	t.Parallel()

	r := Result{Confidence: 87.456789}
	assert.InDelta(t, 87.46, r.DisplayConfidence(), 1e-9)
}

func TestClassifyLabelMismatch(t *testing.T) {
	t.Parallel()

	c := New(newFakePredictor(28, 0.5, 0.5), nil, preprocess.Options{Size: 28})
	_, err := c.Classify(t.Context(), batchOf(28))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestClassifyInputMismatch(t *testing.T) {
	t.Parallel()

	c := New(newFakePredictor(28, 1, 0, 0, 0, 0, 0, 0), nil, preprocess.Options{Size: 28})
	_, err := c.Classify(t.Context(), batchOf(32))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDisabledClassifier(t *testing.T) {
	t.Parallel()

	c := New(nil, nil, preprocess.Options{})
	assert.False(t, c.Ready())
	assert.False(t, c.Info().Ready)

	_, err := c.Classify(t.Context(), batchOf(28))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, "Model not loaded properly.", err.Error())

	_, err = c.ClassifyImage(t.Context(), []byte("not an image"))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestLoadModelMissingFileIsDisabled(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Classifier.ModelPath = filepath.Join(t.TempDir(), "missing.tflite")
	settings.Classifier.InputSize = 28

	c := LoadModel(settings)
	require.NotNil(t, c)
	assert.False(t, c.Ready())
	assert.Equal(t, "model unavailable", c.Info().Error)

	_, err := c.Classify(t.Context(), batchOf(28))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestPredictorErrorIsProcessing(t *testing.T) {
	t.Parallel()

	p := newFakePredictor(28, 1, 0, 0, 0, 0, 0, 0)
	p.err = errors.NewStd("invoke failed")
	metrics := &fakeMetrics{}

	c := New(p, nil, preprocess.Options{Size: 28})
	c.SetMetrics(metrics)

	_, err := c.Classify(t.Context(), batchOf(28))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProcessing))
	require.Len(t, metrics.records, 1)
	assert.Error(t, metrics.records[0].err)
}

func TestClassifyCancelledContext(t *testing.T) {
	t.Parallel()

	p := newFakePredictor(28, 1, 0, 0, 0, 0, 0, 0)
	c := New(p, nil, preprocess.Options{Size: 28})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := c.Classify(ctx, batchOf(28))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, p.calls)
}

func TestClassifyConcurrent(t *testing.T) {
	t.Parallel()

	p := newFakePredictor(28, 0, 0, 0, 0, 0, 0.9, 0.1)
	c := New(p, nil, preprocess.Options{Size: 28})

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			result, err := c.Classify(t.Context(), batchOf(28))
			assert.NoError(t, err)
			assert.Equal(t, "Vascular lesions (vasc)", result.Label)
		})
	}
	wg.Wait()
	assert.Equal(t, 16, p.calls)
}

func TestCustomLabelsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "labels.txt")
	content := "# codes only\nnv\nmel\n\nbkl\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"nv", "mel", "bkl"}, labels)

	c := New(newFakePredictor(28, 0.1, 0.7, 0.2), labels, preprocess.Options{Size: 28})
	result, err := c.Classify(t.Context(), batchOf(28))
	require.NoError(t, err)
	assert.Equal(t, "mel", result.Label)
	assert.Equal(t, "Very High Risk (life-threatening malignant tumor)", result.RiskLevel)
	assert.Equal(t, labels, c.Categories())
}

func TestLoadLabelsErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n\n"), 0o600))
	_, err = LoadLabels(empty)
	require.Error(t, err)
}

func TestRiskFor(t *testing.T) {
	t.Parallel()

	for _, label := range DefaultLabels {
		assert.NotEqual(t, UnknownRisk, RiskFor(label), label)
	}
	assert.Equal(t, "Low Risk", RiskFor("Benign keratosis-like lesions (bkl)"))
	assert.Equal(t, "Low Risk (benign)", RiskFor("DF"))
	assert.Equal(t, UnknownRisk, RiskFor("Psoriasis"))
	assert.Equal(t, "mel", LabelCode("Melanoma (mel)"))
}

func TestDetermineThreadCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, determineThreadCount(1))
	assert.Positive(t, determineThreadCount(0))
	assert.LessOrEqual(t, determineThreadCount(100000), runtime.NumCPU())
}

func TestClose(t *testing.T) {
	t.Parallel()

	p := newFakePredictor(28, 1, 0, 0, 0, 0, 0, 0)
	c := New(p, nil, preprocess.Options{Size: 28})
	c.Close()
	assert.True(t, p.closed)
}
