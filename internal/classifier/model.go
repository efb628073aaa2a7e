package classifier

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	tflite "github.com/tphakala/go-tflite"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Predictor runs a single forward pass of an image model.
type Predictor interface {
	// Predict returns the output vector for one flattened input tensor.
	Predict(input []float32) ([]float32, error)
	// InputLen is the number of float32 elements the model expects.
	InputLen() int
	// OutputLen is the width of the output vector.
	OutputLen() int
	Close()
}

// tfliteModel wraps a TensorFlow Lite interpreter. The interpreter is not
// safe for concurrent Invoke calls, so Predict is serialized.
type tfliteModel struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputLen    int
	outputLen   int
}

// newTFLiteModel loads the model file and allocates its tensors.
func newTFLiteModel(path string, threads int) (*tfliteModel, error) {
	modelData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model file: %w", err)
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model")
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}

	m := &tfliteModel{model: model, options: options, interpreter: interpreter}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		m.Close()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	input := interpreter.GetInputTensor(0)
	output := interpreter.GetOutputTensor(0)
	if input == nil || output == nil {
		m.Close()
		return nil, fmt.Errorf("model has no input or output tensor")
	}

	// Float32s returns nil for quantized tensors.
	m.inputLen = len(input.Float32s())
	m.outputLen = output.Dim(output.NumDims() - 1)
	if m.inputLen == 0 || output.Float32s() == nil {
		m.Close()
		return nil, fmt.Errorf("model input and output tensors must be float32")
	}

	// The interpreter keeps its own copy of the model.
	runtime.GC()

	return m, nil
}

func (m *tfliteModel) InputLen() int  { return m.inputLen }
func (m *tfliteModel) OutputLen() int { return m.outputLen }

// Predict copies input into the model, invokes it and returns a copy of the output.
func (m *tfliteModel) Predict(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inputTensor := m.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(inputTensor.Float32s(), input)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := m.interpreter.GetOutputTensor(0)
	predictions := make([]float32, m.outputLen)
	copy(predictions, outputTensor.Float32s())
	return predictions, nil
}

// Close releases the interpreter resources.
func (m *tfliteModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}

// determineThreadCount returns the interpreter thread count. Zero means one
// thread per physical core.
func determineThreadCount(configuredThreads int) int {
	systemCPUCount := runtime.NumCPU()

	if configuredThreads <= 0 {
		if cores := cpuid.CPU.PhysicalCores; cores > 0 {
			return min(cores, systemCPUCount)
		}
		return systemCPUCount
	}

	return min(configuredThreads, systemCPUCount)
}
