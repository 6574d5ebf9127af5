// Package delivery forwards new notifications to an outbound webhook through
// the SQLite job queue.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/storage"
)

// JobType is the queue type for webhook deliveries.
const JobType = "notification_deliver"

const maxAttempts = 3

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Worker processes notification_deliver jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	url    string
	client *http.Client
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker posting to webhookURL.
// If pollInterval is <= 0, it defaults to 500ms. A nil client uses a
// client with a 10s timeout.
func NewWorker(store JobStore, webhookURL string, client *http.Client, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Worker{
		store:  store,
		url:    webhookURL,
		client: client,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// WithLogger replaces the worker's logger.
func (w *Worker) WithLogger(l *slog.Logger) *Worker {
	if l != nil {
		w.logger = l
	}
	return w
}

// Attach subscribes the worker to notification_added on bus. Every
// notification published afterwards is queued for delivery.
func (w *Worker) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.NotificationAdded, func(ev events.Event) error {
		_, err := w.Enqueue(ev.Payload)
		return err
	})
}

// Enqueue queues payload for delivery and returns the job id.
func (w *Worker) Enqueue(payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding delivery payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(body),
		MaxAttempts: maxAttempts,
	}
	if err := w.store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing delivery: %w", err)
	}
	return job.ID, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("delivery iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and delivers a single notification.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.post(ctx, job); err != nil {
		w.logger.Warn("delivery failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("notification delivered", "job_id", job.ID)
	return true, nil
}

func (w *Worker) post(ctx context.Context, job *storage.Job) error {
	if !json.Valid([]byte(job.PayloadJSON)) {
		return fmt.Errorf("payload is not valid JSON")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader([]byte(job.PayloadJSON)))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", job.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
