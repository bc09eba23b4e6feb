package model

// Prediction is the arg-max class of one inference call.
type Prediction struct {
	Index      int
	Label      string
	Confidence float32
	// Known is false when the label table had no entry for Index.
	Known bool
}

type PredictionRequest struct {
	ImageURL string `json:"image_url"`
}

type PredictionResponse struct {
	PredictedLabel string  `json:"predicted_label"`
	Confidence     float64 `json:"confidence"`
}

func (p Prediction) Response() PredictionResponse {
	return PredictionResponse{
		PredictedLabel: p.Label,
		Confidence:     float64(p.Confidence),
	}
}
