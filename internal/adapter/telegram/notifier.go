// Package telegram отправляет уведомления о неудачных фоновых задачах в чат Telegram.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/httpclient"
	"log-inspection/internal/shared"
	"log-inspection/internal/worker"
)

// maxMessageLen is Telegram's limit for a text message.
const maxMessageLen = 4096

// Config configures a Notifier.
type Config struct {
	Token     string
	ChatID    int64
	ServerURL string        // empty means api.telegram.org
	Timeout   time.Duration // per message, default 10s
	QueueSize int           // default 100
	Workers   int           // default 2
	// Throttle suppresses repeated notifications for the same job within
	// the window. Zero disables throttling.
	Throttle time.Duration
}

type notification struct {
	rec inspection.JobRecord
}

// Notifier sends a message for every Failed job record. Hooks only enqueue;
// Run delivers the queue until its context is canceled.
type Notifier struct {
	bot      *bot.Bot
	chatID   int64
	timeout  time.Duration
	workers  int
	log      *slog.Logger
	queue    chan notification
	throttle *throttle

	mu      sync.Mutex
	dropped int64
}

// New builds a Notifier. It does not contact Telegram.
func New(cfg Config, log *slog.Logger) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, shared.MarkKind(fmt.Errorf("telegram: token and chat id are required"), shared.KindConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	hc := httpclient.New(
		httpclient.WithLogger(log),
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithRetries(2, 500*time.Millisecond),
		httpclient.WithRetryNonIdempotent(true),
		httpclient.WithURLRedactor(RedactTokenURL),
	)

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(cfg.Timeout, hc),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("telegram: %w", err), shared.KindConfig)
	}

	return &Notifier{
		bot:      b,
		chatID:   cfg.ChatID,
		timeout:  cfg.Timeout,
		workers:  cfg.Workers,
		log:      log,
		queue:    make(chan notification, cfg.QueueSize),
		throttle: newThrottle(cfg.Throttle),
	}, nil
}

// Name identifies the notifier as a host service.
func (n *Notifier) Name() string { return "telegram-notifier" }

// Hooks returns executor hooks enqueueing Failed records.
func (n *Notifier) Hooks() worker.Hooks {
	return worker.Hooks{OnFailure: func(_ context.Context, rec inspection.JobRecord) {
		n.Enqueue(rec)
	}}
}

// Enqueue schedules a notification without blocking. It reports false when
// the record was throttled or the queue is full.
func (n *Notifier) Enqueue(rec inspection.JobRecord) bool {
	if !n.throttle.Allow(rec.ApplicationName + "/" + rec.JobName) {
		n.log.Debug("failure notification throttled", "job", rec.JobName, "trace_id", rec.TraceID)
		return false
	}
	select {
	case n.queue <- notification{rec: rec}:
		return true
	default:
		n.mu.Lock()
		n.dropped++
		n.mu.Unlock()
		n.log.Warn("failure notification dropped, queue full", "job", rec.JobName, "trace_id", rec.TraceID)
		return false
	}
}

// Dropped returns the number of notifications lost to a full queue.
func (n *Notifier) Dropped() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Run delivers queued notifications until ctx is canceled, then flushes what
// is already queued, each message bounded by the notifier timeout.
func (n *Notifier) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range n.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.deliver(ctx)
		}()
	}
	wg.Wait()

	flushCtx := context.WithoutCancel(ctx)
	for {
		select {
		case item := <-n.queue:
			n.send(flushCtx, item.rec)
		default:
			return nil
		}
	}
}

func (n *Notifier) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-n.queue:
			n.send(ctx, item.rec)
		}
	}
}

func (n *Notifier) send(ctx context.Context, rec inspection.JobRecord) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.Notify(ctx, rec); err != nil {
		n.log.Error("send failure notification", "job", rec.JobName, "trace_id", rec.TraceID, "error", err)
	}
}

// Notify sends one message synchronously.
func (n *Notifier) Notify(ctx context.Context, rec inspection.JobRecord) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             n.chatID,
		Text:               FormatFailure(rec),
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return shared.MarkKind(fmt.Errorf("telegram: send message: %w", err), shared.KindDependencyFailure)
	}
	return nil
}

// FormatFailure renders a Failed record as plain text.
func FormatFailure(rec inspection.JobRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job failed: %s\n", rec.JobName)
	fmt.Fprintf(&sb, "Application: %s\n", rec.ApplicationName)
	fmt.Fprintf(&sb, "Trace: %s\n", rec.TraceID)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "At: %s\n", rec.CreatedAt.Format(clock.DateLayout+" 15:04:05 MST"))
	}
	if rec.Duration != nil {
		fmt.Fprintf(&sb, "Duration: %s\n", rec.Duration.Round(time.Millisecond))
	}
	if rec.Exception != "" {
		fmt.Fprintf(&sb, "\n%s\n", rec.Exception)
	}
	if rec.InnerException != "" && rec.InnerException != rec.Exception {
		fmt.Fprintf(&sb, "Inner: %s\n", rec.InnerException)
	}

	text := sb.String()
	if len(text) > maxMessageLen {
		text = truncate(text, maxMessageLen-1) + "…"
	}
	return text
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var botTokenPath = regexp.MustCompile(`/bot[^/]+`)

// RedactTokenURL hides the bot token embedded in API paths.
func RedactTokenURL(u *url.URL) string {
	c := *u
	c.Path = botTokenPath.ReplaceAllString(c.Path, "/bot***")
	c.RawPath = ""
	return c.Redacted()
}
