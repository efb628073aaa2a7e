// Package classifier loads the skin lesion model and maps its output to a
// diagnosis label and risk tier.
package classifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
)

// ErrModelUnavailable is returned by Classify when the model failed to load.
// The message is shown to users as is.
var ErrModelUnavailable = errors.NewStd("Model not loaded properly.")

// Result is the outcome of classifying one image.
type Result struct {
	Label       string
	RiskLevel   string
	Probability float64 // arg-max probability, 0..1
	Confidence  float64 // Probability * 100, clamped to 0..100
}

// DisplayConfidence returns the confidence rounded to two decimals.
func (r Result) DisplayConfidence() float64 {
	return math.Round(r.Confidence*100) / 100
}

// Info describes the loaded model for health reporting.
type Info struct {
	Ready        bool          `json:"ready"`
	ModelFile    string        `json:"model_file"`
	InputSize    int           `json:"input_size"`
	OutputWidth  int           `json:"output_width"`
	Labels       int           `json:"labels"`
	Threads      int           `json:"threads"`
	LoadedAt     time.Time     `json:"loaded_at,omitzero"`
	LoadDuration time.Duration `json:"load_duration"`
	Error        string        `json:"error,omitempty"`
}

// MetricsRecorder receives inference timings. observability.ClassifierMetrics implements it.
type MetricsRecorder interface {
	RecordInference(label string, duration time.Duration, err error)
}

// Classifier holds the process-wide model handle. A Classifier whose model
// failed to load stays usable but every Classify call returns ErrModelUnavailable.
type Classifier struct {
	predictor Predictor
	labels    []string
	opts      preprocess.Options
	info      Info
	metrics   MetricsRecorder
}

// LoadModel loads the model configured in settings. It never fails: load
// errors are logged and leave the classifier disabled.
func LoadModel(settings *conf.Settings) *Classifier {
	cfg := settings.Classifier
	log := GetLogger()
	start := time.Now()

	c := &Classifier{
		labels: DefaultLabels,
		opts:   preprocess.Options{Size: cfg.InputSize, Normalize: cfg.Normalize},
	}
	c.info.ModelFile = cfg.ModelPath
	c.info.InputSize = cfg.InputSize
	c.info.Threads = determineThreadCount(cfg.Threads)

	if cfg.LabelPath != "" {
		labels, err := LoadLabels(cfg.LabelPath)
		if err != nil {
			enhancedErr := errors.New(fmt.Errorf("classifier: failed to load labels: %w", err)).
				Category(errors.CategoryLabelLoad).
				FileContext(cfg.LabelPath, 0).
				Build()
			log.Error("label file could not be loaded, model disabled", logger.Error(enhancedErr))
			c.info.Error = "labels unavailable"
			return c
		}
		c.labels = labels
	}

	model, err := newTFLiteModel(cfg.ModelPath, c.info.Threads)
	if err != nil {
		enhancedErr := errors.New(fmt.Errorf("classifier: failed to initialize model: %w", err)).
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, cfg.InputSize).
			Timing("model-load", time.Since(start)).
			Build()
		log.Error("model could not be loaded, classification disabled", logger.Error(enhancedErr))
		c.info.Error = "model unavailable"
		return c
	}

	c.attach(model)
	c.info.LoadDuration = time.Since(start)

	log.Info("classifier model initialized",
		logger.String("model", c.info.ModelFile),
		logger.Int("input_size", cfg.InputSize),
		logger.Int("output_width", model.OutputLen()),
		logger.Int("labels", len(c.labels)),
		logger.Int("threads", c.info.Threads),
		logger.Bool("normalize", cfg.Normalize),
		logger.Duration("load_time", c.info.LoadDuration))

	if want := cfg.InputSize * cfg.InputSize * preprocess.Channels; model.InputLen() != want {
		log.Warn("configured input size does not match model input tensor, classification will fail",
			logger.Int("input_size", cfg.InputSize),
			logger.Int("model_input_len", model.InputLen()))
	}
	if model.OutputLen() != len(c.labels) {
		log.Warn("label count does not match model output width, classification will fail",
			logger.Int("labels", len(c.labels)),
			logger.Int("output_width", model.OutputLen()))
	}

	return c
}

// New returns a classifier backed by predictor. A nil predictor gives a
// disabled classifier. labels defaults to DefaultLabels when empty.
func New(predictor Predictor, labels []string, opts preprocess.Options) *Classifier {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if opts.Size <= 0 {
		opts.Size = preprocess.DefaultSize
	}
	c := &Classifier{labels: labels, opts: opts}
	c.info.InputSize = opts.Size
	if predictor != nil {
		c.attach(predictor)
	}
	return c
}

func (c *Classifier) attach(p Predictor) {
	c.predictor = p
	c.info.Ready = true
	c.info.OutputWidth = p.OutputLen()
	c.info.Labels = len(c.labels)
	c.info.LoadedAt = time.Now()
}

// SetMetrics attaches an inference metrics recorder.
func (c *Classifier) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Ready reports whether the model loaded.
func (c *Classifier) Ready() bool {
	return c != nil && c.predictor != nil
}

// Info returns model details for the health endpoint.
func (c *Classifier) Info() Info {
	info := c.info
	info.Labels = len(c.labels)
	return info
}

// Options returns the preprocessing options paired with the model.
func (c *Classifier) Options() preprocess.Options {
	return c.opts
}

// Preprocess converts image bytes into this model's input tensor.
func (c *Classifier) Preprocess(data []byte) (*preprocess.Batch, error) {
	return preprocess.Tensor(data, c.opts)
}

// Classify runs the model on batch and returns the arg-max label and its risk tier.
func (c *Classifier) Classify(ctx context.Context, batch *preprocess.Batch) (Result, error) {
	if !c.Ready() {
		return Result{}, errors.New(ErrModelUnavailable).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if batch == nil {
		return Result{}, errors.NewValidationError("no image data")
	}

	if want := c.predictor.InputLen(); batch.Len() != want || len(batch.Data) != want {
		return Result{}, errors.Newf("input tensor has %d elements, model expects %d", len(batch.Data), want).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Context("input_size", batch.Size).
			Build()
	}

	start := time.Now()
	probs, err := c.predictor.Predict(batch.Data)
	if err != nil {
		c.record("", time.Since(start), err)
		return Result{}, errors.New(fmt.Errorf("inference failed: %w", err)).
			Component("classifier").
			Category(errors.CategoryProcessing).
			Build()
	}

	result, err := c.interpret(probs)
	c.record(result.Label, time.Since(start), err)
	if err != nil {
		return Result{}, err
	}

	GetLogger().Debug("image classified",
		logger.String("label", result.Label),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("duration", time.Since(start)))

	return result, nil
}

// ClassifyImage preprocesses data and classifies it.
func (c *Classifier) ClassifyImage(ctx context.Context, data []byte) (Result, error) {
	if !c.Ready() {
		return c.Classify(ctx, nil)
	}
	batch, err := c.Preprocess(data)
	if err != nil {
		return Result{}, err
	}
	return c.Classify(ctx, batch)
}

// interpret picks the arg-max of probs and looks up its label and risk.
func (c *Classifier) interpret(probs []float32) (Result, error) {
	if len(probs) != len(c.labels) {
		return Result{}, errors.Newf("model output width %d does not match %d labels", len(probs), len(c.labels)).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Context("output_width", len(probs)).
			Context("labels", len(c.labels)).
			Build()
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	label := c.labels[best]
	probability := float64(probs[best])
	if math.IsNaN(probability) {
		probability = 0
	}

	return Result{
		Label:       label,
		RiskLevel:   RiskFor(label),
		Probability: probability,
		Confidence:  min(max(probability*100, 0), 100),
	}, nil
}

func (c *Classifier) record(label string, d time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.RecordInference(label, d, err)
	}
}

// Close releases the model.
func (c *Classifier) Close() {
	if c.predictor != nil {
		c.predictor.Close()
	}
}
