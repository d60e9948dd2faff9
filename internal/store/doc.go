// Package store defines interfaces for data persistence operations.
// These interfaces abstract the metadata store (documents, chunks, task
// records and artifacts) from the pipeline, so that the consumer and the
// status resolver stay independent of a specific database.
package store
