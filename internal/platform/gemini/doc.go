// Package gemini provides a task.Embedder backed by Google's Gemini
// embedding models.
//
// This package is an infrastructure adapter: it translates between the
// worker's embedding interface and the Gemini API without exposing the
// client library to the rest of the application. Requests ask the API for
// vectors of the configured dimensionality, and responses of any other size
// are rejected so that they never reach the vector store.
package gemini
