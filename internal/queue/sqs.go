package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/taskerr"
)

// SQSQueue implements Queue against an SQS-style visibility-timeout queue.
// The broker's native receive-count attribute seeds the attempt counter
// (receive-count - 1), overridden by an explicit "attempt" field in the
// payload when present.
type SQSQueue struct {
	client        *sqs.SQS
	queueURL      string
	workerID      string
	longPollWait  int64
	maxDeliveries int
	metrics       *metrics.Recorder
}

func NewSQSQueue(cfg config.VisibilityTimeoutConfig, workerID string, rec *metrics.Recorder) (*SQSQueue, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("sqs queue: create session: %w", err)
	}
	return &SQSQueue{
		client:        sqs.New(sess),
		queueURL:      cfg.QueueURL,
		workerID:      workerID,
		longPollWait:  int64(cfg.LongPollWaitSeconds),
		maxDeliveries: cfg.MaxDeliveries,
		metrics:       rec,
	}, nil
}

func (q *SQSQueue) Fetch(ctx context.Context) (Envelope, error) {
	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: aws.Int64(1),
		WaitTimeSeconds:     aws.Int64(q.longPollWait),
		AttributeNames:      []*string{aws.String("ApproximateReceiveCount")},
	})
	if err != nil {
		if q.metrics != nil {
			q.metrics.QueueErrors.WithLabelValues(q.workerID).Inc()
		}
		return Envelope{}, taskerr.QueueTransport(err)
	}

	if q.metrics != nil {
		if depth, derr := q.approximateDepth(ctx); derr == nil {
			q.metrics.QueueDepth.WithLabelValues(q.workerID).Set(depth)
		}
	}

	if len(out.Messages) == 0 {
		return Envelope{}, taskerr.ErrNoMessages
	}
	msg := out.Messages[0]

	raw, err := unmarshalPayload([]byte(aws.StringValue(msg.Body)))
	if err != nil {
		q.deleteMessage(ctx, msg.ReceiptHandle)
		return Envelope{}, taskerr.MessageMalformed(err)
	}

	task, err := decodeTask(raw)
	if err != nil {
		q.deleteMessage(ctx, msg.ReceiptHandle)
		return Envelope{}, taskerr.MessageMalformed(err)
	}

	if _, explicit := raw["attempt"]; !explicit {
		if rc := msg.Attributes["ApproximateReceiveCount"]; rc != nil {
			if n, err := strconv.Atoi(*rc); err == nil && n > 0 {
				task.Attempt = n - 1
			}
		}
	}

	return Envelope{
		BrokerID:   aws.StringValue(msg.MessageId),
		Task:       task,
		RawPayload: raw,
		native:     msg,
	}, nil
}

func (q *SQSQueue) Ack(ctx context.Context, env Envelope) error {
	msg, ok := env.native.(*sqs.Message)
	if !ok {
		return fmt.Errorf("sqs queue: ack: envelope missing native message")
	}
	return q.deleteMessage(ctx, msg.ReceiptHandle)
}

func (q *SQSQueue) Fail(ctx context.Context, env Envelope, reason error) error {
	msg, ok := env.native.(*sqs.Message)
	if !ok {
		return fmt.Errorf("sqs queue: fail: envelope missing native message")
	}

	nextAttempt := env.Task.Attempt + 1
	if nextAttempt >= q.maxDeliveries {
		// Dead-letter: discard by deleting without re-sending.
		return q.deleteMessage(ctx, msg.ReceiptHandle)
	}

	retryPayload := make(map[string]interface{}, len(env.RawPayload)+1)
	for k, v := range env.RawPayload {
		retryPayload[k] = v
	}
	retryPayload["attempt"] = nextAttempt
	retryPayload["error"] = reason.Error()

	body, err := marshalPayload(retryPayload)
	if err != nil {
		return fmt.Errorf("sqs queue: marshal retry payload: %w", err)
	}

	if _, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("sqs queue: send retry message: %w", err)
	}

	return q.deleteMessage(ctx, msg.ReceiptHandle)
}

func (q *SQSQueue) deleteMessage(ctx context.Context, receiptHandle *string) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receiptHandle,
	})
	return err
}

func (q *SQSQueue) approximateDepth(ctx context.Context) (float64, error) {
	out, err := q.client.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.queueURL),
		AttributeNames: []*string{aws.String("ApproximateNumberOfMessages")},
	})
	if err != nil {
		return 0, err
	}
	if v, ok := out.Attributes["ApproximateNumberOfMessages"]; ok && v != nil {
		n, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("attribute not present")
}
