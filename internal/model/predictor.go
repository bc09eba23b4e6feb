package model

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/Brownie44l1/effnet-api/internal/labels"
	"github.com/Brownie44l1/effnet-api/internal/preprocess"
)

// Engine runs the model forward pass and returns the scores of its first
// output. Implementations must be safe for concurrent use.
type Engine interface {
	Run(ctx context.Context, input preprocess.Tensor) ([]float32, error)
}

type Predictor struct {
	engine Engine
	labels *labels.Table
	filter preprocess.Filter
	logger *slog.Logger
}

func NewPredictor(engine Engine, table *labels.Table, filter preprocess.Filter, logger *slog.Logger) *Predictor {
	if filter == "" {
		filter = preprocess.DefaultFilter
	}
	return &Predictor{
		engine: engine,
		labels: table,
		filter: filter,
		logger: logger,
	}
}

// Predict classifies img. An index without a label entry is not an error:
// the prediction carries labels.Unknown and Known is false.
func (p *Predictor) Predict(ctx context.Context, img image.Image) (Prediction, error) {
	input := preprocess.ImageWith(img, p.filter)

	scores, err := p.engine.Run(ctx, input)
	if err != nil {
		return Prediction{}, err
	}
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("%w: empty output tensor", ErrInference)
	}

	index, confidence := argmax(scores)
	pred := Prediction{
		Index:      index,
		Confidence: confidence,
	}

	label, ok := p.labels.Lookup(index)
	if !ok {
		p.logger.Warn("no label for predicted class", "index", index, "labels", p.labels.Len())
		label = labels.Unknown
	}
	pred.Label = label
	pred.Known = ok
	return pred, nil
}

// argmax returns the first index holding the maximum value.
func argmax(f []float32) (int, float32) {
	r, m := 0, f[0]
	for i, v := range f {
		if v > m {
			m = v
			r = i
		}
	}
	return r, m
}
