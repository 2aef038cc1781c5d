//go:build !onnx

package main

import (
	"github.com/becomeliminal/reverie/memory"
	"github.com/becomeliminal/reverie/memory/embedder/mock"
)

// newEmbedder returns the deterministic embedder. Build with the onnx
// tag for real model embeddings.
func newEmbedder(dimensions int) (memory.Embedder, error) {
	return mock.New(dimensions), nil
}
