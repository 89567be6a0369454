package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/onnwee/vidwrk/internal/config"
	"github.com/onnwee/vidwrk/internal/metrics"
	"github.com/onnwee/vidwrk/internal/taskerr"
)

// KafkaQueue implements Queue against a Kafka topic using consumer-group
// semantics: Fetch is a blocking group read, Ack commits the offset, and
// Fail either produces a retry message with attempt+1 or drops the message
// by committing without producing (dead-letter).
type KafkaQueue struct {
	reader        *kafka.Reader
	writer        *kafka.Writer
	workerID      string
	blockTimeout  time.Duration
	maxDeliveries int
	metrics       *metrics.Recorder
}

func NewKafkaQueue(cfg config.StreamConfig, workerID string, rec *metrics.Recorder) (*KafkaQueue, error) {
	if err := ensureTopic(cfg.BrokerAddress, cfg.StreamName); err != nil {
		return nil, fmt.Errorf("kafka queue: ensure topic: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.BrokerAddress},
		Topic:       cfg.StreamName,
		GroupID:     cfg.ConsumerGroup,
		GroupTopics: nil,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.BrokerAddress),
		Topic:    cfg.StreamName,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaQueue{
		reader:        reader,
		writer:        writer,
		workerID:      cfg.ConsumerNamePrefix + "-" + workerID,
		blockTimeout:  cfg.BlockTimeout,
		maxDeliveries: cfg.MaxDeliveries,
		metrics:       rec,
	}, nil
}

// ensureTopic idempotently creates the stream's backing topic, tolerating
// "already exists" so repeated restarts don't fail construction.
func ensureTopic(broker, topic string) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return err
	}
	return nil
}

func (q *KafkaQueue) Fetch(ctx context.Context) (Envelope, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, q.blockTimeout)
	defer cancel()

	msg, err := q.reader.FetchMessage(fetchCtx)
	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(q.workerID).Set(float64(q.reader.Stats().Lag))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Envelope{}, taskerr.ErrNoMessages
		}
		if q.metrics != nil {
			q.metrics.QueueErrors.WithLabelValues(q.workerID).Inc()
		}
		return Envelope{}, taskerr.QueueTransport(err)
	}

	raw, err := unmarshalPayload(msg.Value)
	if err != nil {
		// Undecodable: permanently remove, it cannot be redriven by retry.
		_ = q.reader.CommitMessages(ctx, msg)
		return Envelope{}, taskerr.MessageMalformed(err)
	}

	task, err := decodeTask(raw)
	if err != nil {
		_ = q.reader.CommitMessages(ctx, msg)
		return Envelope{}, taskerr.MessageMalformed(err)
	}

	return Envelope{
		BrokerID:   strconv.FormatInt(msg.Offset, 10),
		Task:       task,
		RawPayload: raw,
		native:     msg,
	}, nil
}

func (q *KafkaQueue) Ack(ctx context.Context, env Envelope) error {
	msg, ok := env.native.(kafka.Message)
	if !ok {
		return fmt.Errorf("kafka queue: ack: envelope missing native message")
	}
	return q.reader.CommitMessages(ctx, msg)
}

func (q *KafkaQueue) Fail(ctx context.Context, env Envelope, reason error) error {
	msg, ok := env.native.(kafka.Message)
	if !ok {
		return fmt.Errorf("kafka queue: fail: envelope missing native message")
	}

	nextAttempt := env.Task.Attempt + 1
	if nextAttempt >= q.maxDeliveries {
		// Dead-letter: discard by committing without producing a retry.
		return q.reader.CommitMessages(ctx, msg)
	}

	retryPayload := make(map[string]interface{}, len(env.RawPayload)+1)
	for k, v := range env.RawPayload {
		retryPayload[k] = v
	}
	retryPayload["attempt"] = nextAttempt
	retryPayload["error"] = reason.Error()

	body, err := marshalPayload(retryPayload)
	if err != nil {
		return fmt.Errorf("kafka queue: marshal retry payload: %w", err)
	}

	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Task.VideoID),
		Value: body,
	}); err != nil {
		return fmt.Errorf("kafka queue: produce retry message: %w", err)
	}

	return q.reader.CommitMessages(ctx, msg)
}

func (q *KafkaQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
