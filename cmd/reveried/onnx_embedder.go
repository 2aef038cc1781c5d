//go:build onnx

package main

import (
	"os"

	"github.com/becomeliminal/reverie/memory"
	"github.com/becomeliminal/reverie/memory/embedder/onnx"
)

// newEmbedder returns the ONNX embedder. Model and tokenizer paths
// come from the environment.
func newEmbedder(dimensions int) (memory.Embedder, error) {
	modelPath := os.Getenv("EMBEDDING_MODEL_PATH")
	if modelPath == "" {
		modelPath = "models/all-MiniLM-L6-v2.onnx"
	}
	tokenizerPath := os.Getenv("EMBEDDING_TOKENIZER_PATH")
	if tokenizerPath == "" {
		tokenizerPath = "models/tokenizer.json"
	}
	return onnx.New(onnx.Config{
		ModelPath:     modelPath,
		TokenizerPath: tokenizerPath,
		Dimensions:    dimensions,
	})
}
