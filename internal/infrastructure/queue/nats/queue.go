package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

const (
	defaultQueueGroup = "outcome-workers"
	handlerTimeout    = 10 * time.Second
)

// OutcomeQueue carries outcome feedback from API replicas to the worker,
// which is the single writer of the retrieval memory.
type OutcomeQueue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*OutcomeQueue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*OutcomeQueue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("intellisense-ai"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &OutcomeQueue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *OutcomeQueue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *OutcomeQueue) PublishOutcome(ctx context.Context, feedback domain.OutcomeFeedback) error {
	payload, err := encodeOutcome(feedback)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish_outcome", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeOutcomes consumes the subject in a queue group until ctx is done,
// then drains the subscription.
func (q *OutcomeQueue) SubscribeOutcomes(ctx context.Context, handler func(context.Context, domain.OutcomeFeedback) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		handleMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleMessage(ctx context.Context, data []byte, handler func(context.Context, domain.OutcomeFeedback) error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	feedback, err := decodeOutcome(data)
	if err != nil {
		slog.Warn("outcome_message_dropped", "error", err, "size", len(data))
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	if err := handler(handlerCtx, feedback); err != nil {
		slog.Error("outcome_handler_failed", "query_type", string(feedback.QueryType), "error", err)
	}
}

func encodeOutcome(feedback domain.OutcomeFeedback) ([]byte, error) {
	payload, err := json.Marshal(feedback)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode outcome", err)
	}
	return payload, nil
}

func decodeOutcome(data []byte) (domain.OutcomeFeedback, error) {
	var feedback domain.OutcomeFeedback
	if err := json.Unmarshal(data, &feedback); err != nil {
		return domain.OutcomeFeedback{}, domain.WrapError(domain.ErrInvalidInput, "decode outcome", err)
	}
	if strings.TrimSpace(feedback.Query) == "" {
		return domain.OutcomeFeedback{}, domain.WrapError(domain.ErrInvalidInput, "decode outcome", errors.New("query is required"))
	}
	return feedback, nil
}
