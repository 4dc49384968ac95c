package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type JobHandler func(ctx context.Context, job service.Job) error

// JobConsumer feeds queued jobs to a handler one at a time. A message is
// committed only once its job succeeded or failed permanently; transient
// failures retry the same message with backoff, so later offsets are never
// committed over an unfinished job.
type JobConsumer struct {
	reader         messageReader
	handle         JobHandler
	logger         logger.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewJobConsumer(reader messageReader, handle JobHandler, log logger.Logger) *JobConsumer {
	return &JobConsumer{
		reader:         reader,
		handle:         handle,
		logger:         log,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err(). A job still
// retrying at that point stays uncommitted and is redelivered to the group.
func (c *JobConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Failed to read message from Kafka", err)
			if err := sleep(ctx, c.initialBackoff); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			c.logger.Error("Failed to commit message", err, zap.Int64("offset", msg.Offset))
		}
	}
}

// process returns nil when msg may be committed and ctx.Err() when the
// consumer is stopping.
func (c *JobConsumer) process(ctx context.Context, msg kafka.Message) error {
	var job service.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		c.logger.Error("Failed to unmarshal job. Skipping.", err, zap.Int64("offset", msg.Offset))
		return nil
	}
	log := c.logger.With(zap.String("job_id", job.ID.String()), zap.String("type", string(job.Type)))

	backoff := c.initialBackoff
	for attempt := 1; ; attempt++ {
		log.Info("Processing job", zap.Int("attempt", attempt))
		err := c.handle(ctx, job)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			log.Error("Job failed permanently. Skipping.", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn("Job failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// isPermanent reports errors that a retry of the same job cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, apperror.ErrInvalidInput) || errors.Is(err, apperror.ErrNotFound)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
