// Package task implements the asynchronous processing pipeline: producers
// publish task envelopes to durable queues, consumers run the handler for
// each envelope's kind and record the outcome, and the Resolver reports task
// status to polling clients.
//
// The task id carried by every envelope is the idempotency key. Consumers
// acknowledge a message only after its outcome is stored, so a lost broker
// connection leads to redelivery rather than lost work, and handlers are
// written to tolerate running twice for the same task.
package task
