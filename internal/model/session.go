package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Brownie44l1/effnet-api/internal/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

type SessionConfig struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	// Threads sets the intra-op thread count; zero keeps the runtime default.
	Threads int
}

// Session is the ONNX Runtime Engine. Tensors are allocated per call, so Run
// may be called from many goroutines at once.
type Session struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	outputShape ort.Shape
	logger      *slog.Logger
}

func NewSession(cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %w", ErrModelLoad, err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to read model %s: %w", ErrModelLoad, cfg.ModelPath, err)
	}
	if err := checkInput(inputs); err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, cfg.ModelPath, err)
	}
	if err := checkOutput(outputs); err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, cfg.ModelPath, err)
	}
	output := outputs[0]

	var options *ort.SessionOptions
	if cfg.Threads > 0 {
		options, err = ort.NewSessionOptions()
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("%w: failed to create session options: %w", ErrModelLoad, err)
		}
		defer options.Destroy()
		if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("%w: failed to set thread count: %w", ErrModelLoad, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{output.Name}, options)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrModelLoad, err)
	}

	logger.Info("model loaded",
		"path", cfg.ModelPath,
		"input", inputs[0].Name,
		"input_shape", inputs[0].Dimensions.String(),
		"output", output.Name,
		"output_shape", output.Dimensions.String(),
	)

	return &Session{
		session:     session,
		inputName:   inputs[0].Name,
		outputName:  output.Name,
		outputShape: concreteShape(output.Dimensions),
		logger:      logger,
	}, nil
}

// checkInput requires a single float32 input whose fixed dimensions agree
// with the preprocessor's NHWC shape.
func checkInput(inputs []ort.InputOutputInfo) error {
	if len(inputs) != 1 {
		return fmt.Errorf("expected exactly one input, model declares %d", len(inputs))
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return fmt.Errorf("input %q must be a float32 tensor", in.Name)
	}
	want := preprocess.InputShape()
	if len(in.Dimensions) != len(want) {
		return fmt.Errorf("input %q has shape %s, expected %v", in.Name, in.Dimensions, want)
	}
	for i, d := range in.Dimensions {
		if d > 0 && d != want[i] {
			return fmt.Errorf("input %q has shape %s, expected %v", in.Name, in.Dimensions, want)
		}
	}
	return nil
}

// checkOutput requires the first output, the class scores, to be float32.
func checkOutput(outputs []ort.InputOutputInfo) error {
	if len(outputs) == 0 {
		return errors.New("model declares no outputs")
	}
	if outputs[0].DataType != ort.TensorElementDataTypeFloat {
		return fmt.Errorf("first output %q must be a float32 tensor", outputs[0].Name)
	}
	return nil
}

// concreteShape replaces symbolic dimensions with 1; the batch is always 1.
func concreteShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

func (s *Session) Run(ctx context.Context, input preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !slices.Equal(input.Shape, preprocess.InputShape()) || input.Len() != len(input.Data) {
		return nil, fmt.Errorf("%w: input shape %v with %d values", ErrInference, input.Shape, len(input.Data))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", ErrInference, err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](s.outputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", ErrInference, err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	return slices.Clone(outputTensor.GetData()), nil
}

func (s *Session) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
