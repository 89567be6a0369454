// Package queue adapts the worker's Fetch/Ack/Fail capability to two
// interchangeable backends: a Kafka consumer-group stream and an SQS
// visibility-timeout queue.
package queue

import (
	"context"
)

// Task is the decoded unit of work pulled from the queue.
type Task struct {
	TaskID     string
	VideoID    string
	SourcePath string
	Attempt    int
	Metadata   map[string]string
}

// Envelope wraps a decoded Task with the broker-assigned id and the raw
// untyped payload, retained so that Fail can round-trip unknown fields when
// it re-enqueues a copy. native carries whatever handle the owning backend
// needs to ack/fail the message (a kafka.Message, an SQS receipt handle);
// it is opaque outside this package.
type Envelope struct {
	BrokerID   string
	Task       Task
	RawPayload map[string]interface{}

	native interface{}
}

// Queue is the capability the process-task use case is written against.
type Queue interface {
	// Fetch blocks up to an adapter-specific bound and returns the next
	// message, taskerr.ErrNoMessages, or a taskerr.QueueTransport error.
	Fetch(ctx context.Context) (Envelope, error)
	// Ack permanently removes the message. Idempotent on duplicate delivery.
	Ack(ctx context.Context, env Envelope) error
	// Fail re-enqueues a copy with attempt+1, or dead-letters (drops) the
	// message if attempt+1 has reached the configured maximum.
	Fail(ctx context.Context, env Envelope, reason error) error
}

const errorFieldKey = "error"

// rawPayloadFromTask builds the flat string-keyed map a message carries on
// the wire, preserving any metadata keys the caller doesn't know about.
func rawPayloadFromTask(t Task, extra map[string]interface{}) map[string]interface{} {
	payload := make(map[string]interface{}, len(extra)+4)
	for k, v := range extra {
		payload[k] = v
	}
	payload["task_id"] = t.TaskID
	payload["video_id"] = t.VideoID
	payload["source_path"] = t.SourcePath
	payload["attempt"] = t.Attempt
	for k, v := range t.Metadata {
		payload[k] = v
	}
	return payload
}
