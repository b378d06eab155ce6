// Package notify posts batch progress to an optional webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// Notifier sends JSON events over a retrying HTTP client. A nil Notifier or
// an empty webhook URL disables delivery; every method is then a no-op, so
// callers never need to branch.
type Notifier struct {
	url    string
	runID  string
	client *http.Client
	log    *slog.Logger
}

// New creates a Notifier. Returns nil when url is empty.
func New(url, runID string, timeout time.Duration, log *slog.Logger) *Notifier {
	if url == "" {
		return nil
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = timeout

	return &Notifier{
		url:    url,
		runID:  runID,
		client: retryClient.StandardClient(),
		log:    log,
	}
}

type event struct {
	RunID string `json:"run_id"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// BatchStarted announces the beginning of a batch run.
func (n *Notifier) BatchStarted(ctx context.Context, directory, category string) {
	n.post(ctx, event{Event: "batch_started", Data: map[string]string{
		"directory": directory,
		"category":  category,
	}})
}

// FileFailed reports one file whose transcode failed; the batch continues.
func (n *Notifier) FileFailed(ctx context.Context, outcome models.FileOutcome) {
	n.post(ctx, event{Event: "file_failed", Data: outcome})
}

// BatchCompleted delivers the final report.
func (n *Notifier) BatchCompleted(ctx context.Context, report models.BatchReport) {
	n.post(ctx, event{Event: "batch_completed", Data: report})
}

// post delivers one event; failures are logged, never surfaced, because
// notification delivery must not affect the batch.
func (n *Notifier) post(ctx context.Context, ev event) {
	if n == nil {
		return
	}
	ev.RunID = n.runID

	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("notify: marshal event", slog.Any("error", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.log.Warn("notify: build request", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("notify: delivery failed", slog.String("event", ev.Event), slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.log.Warn("notify: webhook rejected event",
			slog.String("event", ev.Event),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)))
	}
}
