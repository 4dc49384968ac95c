package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/pkg/logger"
)

const (
	TopicJobs    = "taxonomy.jobs"
	TopicReports = "taxonomy.reports"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducerClient struct {
	JobsWriter    messageWriter
	ReportsWriter messageWriter
	logger        logger.Logger
}

var (
	_ service.JobQueue       = (*KafkaProducerClient)(nil)
	_ service.EventPublisher = (*KafkaProducerClient)(nil)
)

func NewKafkaProducerClient(cfg config.Config, log logger.Logger) (*KafkaProducerClient, error) {
	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config Kafka brokers not found")
	}

	// writer 'taxonomy.jobs'
	jobsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  TopicJobs,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	// writer 'taxonomy.reports'
	reportsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  TopicReports,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	log.Info("Initialize Kafka Producers successfully.", zap.Strings("brokers", brokers))

	return &KafkaProducerClient{
		JobsWriter:    jobsWriter,
		ReportsWriter: reportsWriter,
		logger:        log,
	}, nil
}

// EnqueueJob keys messages by target server so jobs for one vCenter stay
// ordered within a partition.
func (c *KafkaProducerClient) EnqueueJob(ctx context.Context, job service.Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(jobServer(job)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "job_type", Value: []byte(job.Type)},
		},
	}
	if err := c.JobsWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	c.logger.Info("Job enqueued", zap.String("job_id", job.ID.String()), zap.String("type", string(job.Type)))
	return nil
}

func (c *KafkaProducerClient) PublishExportCompleted(ctx context.Context, e service.ExportCompleted) error {
	return c.publishReport(ctx, ReportEventPayload{
		EventType:     ReportEventExportCompleted,
		JobID:         e.JobID,
		SnapshotID:    e.SnapshotID,
		Server:        e.SourceServer,
		CategoryCount: e.CategoryCount,
		TagCount:      e.TagCount,
		Location:      e.Location,
		OccurredAt:    time.Now().UTC(),
	})
}

func (c *KafkaProducerClient) PublishRestoreCompleted(ctx context.Context, e service.RestoreCompleted) error {
	payload := ReportEventPayload{
		EventType:  ReportEventRestoreCompleted,
		JobID:      e.JobID,
		RunID:      e.RunID,
		Server:     e.TargetServer,
		Report:     e.Report,
		OccurredAt: time.Now().UTC(),
	}
	if e.Report != nil {
		payload.ExitCode = e.Report.ExitCode()
	}
	return c.publishReport(ctx, payload)
}

func (c *KafkaProducerClient) publishReport(ctx context.Context, payload ReportEventPayload) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal report event: %w", err)
	}
	err = c.ReportsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.Server),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", payload.EventType, err)
	}
	return nil
}

func (c *KafkaProducerClient) Close() error {
	var errs []error
	if c.JobsWriter != nil {
		errs = append(errs, c.JobsWriter.Close())
	}
	if c.ReportsWriter != nil {
		errs = append(errs, c.ReportsWriter.Close())
	}
	c.logger.Info("Closed Kafka Producers")
	return errors.Join(errs...)
}

func jobServer(job service.Job) string {
	switch {
	case job.Export != nil:
		return job.Export.Server
	case job.Restore != nil:
		return job.Restore.Server
	}
	return ""
}
