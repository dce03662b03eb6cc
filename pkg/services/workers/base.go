package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	fetchBatch = 10
	fetchWait  = 2 * time.Second
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// MessageHandler processes one message. A non-nil error naks it for
// redelivery, bounded by the consumer's MaxDeliver.
type MessageHandler func(*nats.Msg) error

type BaseWorker struct {
	name     string
	js       nats.JetStreamContext
	mu       sync.Mutex
	sub      *nats.Subscription
	consumer string
	stream   string
	subject  string
	logger   *zap.Logger
}

func NewBaseWorker(name string, js nats.JetStreamContext, stream, consumer, subject string, logger *zap.Logger) *BaseWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseWorker{
		name:     name,
		js:       js,
		consumer: consumer,
		stream:   stream,
		subject:  subject,
		logger:   logger.With(zap.String("worker", name)),
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()

	if sub != nil && sub.IsValid() {
		return sub.Drain()
	}
	return nil
}

func (w *BaseWorker) processMessages(ctx context.Context, handler MessageHandler) error {
	sub, err := w.js.PullSubscribe(w.subject, w.consumer,
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
		nats.Bind(w.stream, w.consumer),
	)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	w.logger.Info("Starting worker",
		zap.String("stream", w.stream),
		zap.String("consumer", w.consumer))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping")
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
			if err != nil && !isFetchTimeout(err) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
					return err
				}
				w.logger.Warn("Error fetching messages", zap.Error(err))
				continue
			}

			for _, msg := range msgs {
				if err := handler(msg); err != nil {
					w.logger.Warn("Message handling failed",
						zap.String("subject", msg.Subject),
						zap.Error(err))
					if err := msg.Nak(); err != nil {
						w.logger.Error("Error nacking message", zap.Error(err))
					}
					continue
				}
				if err := msg.Ack(); err != nil {
					w.logger.Error("Error acknowledging message", zap.Error(err))
				}
			}
		}
	}
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
