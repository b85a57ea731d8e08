package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue audit events are enqueued on.
	QueueDefault = "default"
	// TaskTypeRecord is the task type for persisting an audit event.
	TaskTypeRecord = "audit:record"
)

// NewRecordTask constructs an Asynq task carrying an event.
func NewRecordTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data, asynq.Queue(QueueDefault)), nil
}

// Dispatcher records events by enqueueing them onto the background queue.
// Enqueue failures are logged and dropped.
type Dispatcher struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(client *asynq.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

var _ Recorder = (*Dispatcher)(nil)

// Record implements Recorder.
func (d *Dispatcher) Record(ctx context.Context, event Event) {
	if d == nil || d.client == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	task, err := NewRecordTask(event)
	if err != nil {
		d.warn("marshal audit event", err)
		return
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		d.warn("enqueue audit event", err)
	}
}

func (d *Dispatcher) warn(msg string, err error) {
	if d.logger != nil {
		d.logger.Warn(msg, slog.Any("error", err))
	}
}

// HandleRecordTask processes TaskTypeRecord tasks using the given writer.
func HandleRecordTask(writer *Writer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event Event
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return asynq.SkipRetry
		}
		return writer.Write(ctx, event)
	}
}
