// Package postgres provides PostgreSQL implementations of the store
// interfaces: documents, their pgvector chunk embeddings, task records and
// artifacts. The schema is managed with embedded goose migrations.
package postgres
