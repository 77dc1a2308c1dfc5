package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"ffexec/internal/config"
	"ffexec/internal/logging"
	"ffexec/internal/transcode"
)

const userAgent = "ffexec/0.1"

var _ transcode.Recorder = (*Notifier)(nil)

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// Notifier publishes to a single ntfy topic.
type Notifier struct {
	endpoint      string
	client        *http.Client
	timeout       time.Duration
	notifySuccess bool
	logger        *slog.Logger
	pending       sync.WaitGroup
}

// New returns a notifier for the configured topic, or nil when no topic is
// set.
func New(cfg *config.Config, logger *slog.Logger) *Notifier {
	if cfg == nil {
		return nil
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return nil
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		timeout:       timeout,
		notifySuccess: cfg.Notifications.NotifySuccess,
		logger:        logging.NewComponentLogger(logger, "notify"),
	}
}

// Queued is a no-op.
func (n *Notifier) Queued(context.Context, transcode.Job) error { return nil }

// Started is a no-op.
func (n *Notifier) Started(context.Context, string) error { return nil }

// Finished alerts on failed jobs, and on successful ones when configured.
// Cancelled jobs are not reported.
func (n *Notifier) Finished(ctx context.Context, id string, outcome transcode.Outcome) error {
	if n == nil {
		return nil
	}
	kind := transcode.Kind(outcome.Err)
	switch kind {
	case transcode.KindCanceled:
		return nil
	case transcode.KindNone:
		if !n.notifySuccess {
			return nil
		}
		n.sendAsync(ctx, payload{
			title: "ffexec - Transcode Complete",
			message: fmt.Sprintf("✅ Job %s produced %s in %s",
				id, humanize.IBytes(uint64(outcome.OutputBytes)), outcome.Duration.Round(time.Millisecond)),
			tags: []string{"ffexec", "transcode", "completed"},
		})
	default:
		n.sendAsync(ctx, payload{
			title:    "ffexec - Transcode Failed",
			message:  fmt.Sprintf("❌ Job %s failed (%s): %s", id, kind, strings.TrimSpace(outcome.Err.Error())),
			tags:     []string{"ffexec", "transcode", kind},
			priority: "high",
		})
	}
	return nil
}

// EngineFailed alerts that the engine could not be initialized.
func (n *Notifier) EngineFailed(ctx context.Context, err error) {
	if n == nil || err == nil {
		return
	}
	n.sendAsync(ctx, payload{
		title:    "ffexec - Engine Unavailable",
		message:  fmt.Sprintf("⚠️ Engine initialization failed: %s", strings.TrimSpace(err.Error())),
		tags:     []string{"ffexec", "engine", "error"},
		priority: "high",
	})
}

// Test sends a test notification and waits for the server's answer.
func (n *Notifier) Test(ctx context.Context) error {
	if n == nil {
		return nil
	}
	return n.send(ctx, payload{
		title:    "ffexec - Test",
		message:  "🧪 Notification test",
		tags:     []string{"ffexec", "test"},
		priority: "low",
	})
}

// Wait blocks until background sends finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.pending.Wait()
}

func (n *Notifier) sendAsync(ctx context.Context, data payload) {
	ctx = context.WithoutCancel(ctx)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.send(sendCtx, data); err != nil {
			logging.WithContext(ctx, n.logger).Warn("ntfy notification failed",
				logging.String("title", data.title),
				logging.Error(err),
			)
		}
	}()
}

func (n *Notifier) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
