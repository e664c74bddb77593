package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Notifier posts run alerts to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotifier(webhookURL string, timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type message struct {
	Text string `json:"text"`
}

// Alert posts a one-line summary of a failed run.
func (n *Notifier) Alert(ctx context.Context, a domain.Alert) error {
	body, err := json.Marshal(message{Text: FormatAlert(a)})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook error: status %d: %s", resp.StatusCode, msg)
	}
	n.logger.Debug("slack alert sent", "partition", a.Partition.String(), "result", a.Result)
	return nil
}

// FormatAlert renders the text both notifiers emit.
func FormatAlert(a domain.Alert) string {
	icon := ":x:"
	if a.Severity == domain.SeverityWarning {
		icon = ":warning:"
	}
	text := fmt.Sprintf("%s aqi-etl %s for %s (run %s): %s", icon, a.Result, a.Partition, a.RunID, a.Message)
	if a.ErrorKind != "" {
		text += fmt.Sprintf(" [%s]", a.ErrorKind)
	}
	return text
}

// LogNotifier stands in when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Alert(_ context.Context, a domain.Alert) error {
	level := slog.LevelError
	if a.Severity == domain.SeverityWarning {
		level = slog.LevelWarn
	}
	n.logger.Log(context.Background(), level, "run alert",
		"partition", a.Partition.String(),
		"run_id", a.RunID,
		"result", a.Result,
		"error_kind", a.ErrorKind,
		"message", a.Message,
	)
	return nil
}
