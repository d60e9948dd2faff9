// Package mocks provides in-memory implementations of the worker's
// collaborators for tests: a message broker that honours prefetch and
// redelivers unacknowledged messages, the metadata stores, a blob store,
// and deterministic embedder, synthesizer, extractor and progress fakes.
//
// Each fake works without configuration; exported error fields and Fn hooks
// let a test inject failures:
//
//	embedder := &mocks.Embedder{
//	    Dims: 8,
//	    EmbedFn: func(ctx context.Context, text string) ([]float32, error) {
//	        return nil, errors.New("model unavailable")
//	    },
//	}
package mocks
