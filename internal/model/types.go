package model

// Metadata mirrors the optional model_metadata.json shipped next to a model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Classification is the single best label for an image. Confidence is the raw
// model output at the winning index; no softmax is applied.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string           `json:"class"`
	Confidence  float32          `json:"confidence"`
	Predictions []Classification `json:"predictions,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
