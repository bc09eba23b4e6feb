package model

import "errors"

var (
	// ErrModelLoad is fatal at startup: the model file is missing, unreadable
	// or declares an input the preprocessor cannot produce.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference means the engine rejected the tensor or produced no usable
	// scores. It is a defect or misconfiguration, not a client error.
	ErrInference = errors.New("inference failed")
)
