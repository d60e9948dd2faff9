// Package domain contains the core entities of the document pipeline:
// documents and their chunks, queued tasks and the artifacts that mark a
// task as completed. It is independent of any specific infrastructure.
package domain
