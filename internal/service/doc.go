// Package service contains the intake use cases of the pipeline: accepting
// document uploads and speech requests, listing a document's chunks and
// fetching synthesized audio.
//
// Services validate input synchronously and hand long-running work to the
// task producer. They never wait for processing; callers receive a task id
// and poll the status resolver.
//
// Error Handling:
//   - Invalid input is returned wrapped in domain.ErrValidation
//   - Missing or foreign resources are returned wrapped in store.ErrNotFound
//   - A failed enqueue is returned wrapped in domain.ErrQueueUnavailable
//   - Anything else is wrapped in a *ServiceError carrying the operation name
package service
