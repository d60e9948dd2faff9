// Package queue defines the broker-neutral contracts used by task producers
// and consumers: dialing a connection, opening channels, declaring durable
// queues, consuming with manual acknowledgement and publishing persistent
// messages. The RabbitMQ implementation lives in internal/platform/rabbitmq;
// an in-memory broker for tests lives in internal/mocks.
package queue
