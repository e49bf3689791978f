package notify

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// Log writes alerts to the structured log. It is the fallback channel when
// nothing else is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: log.Component(logger, "notify.log")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, ev alert.Event) error {
	l.logger.Warn(Subject(ev),
		"alert_id", ev.ID,
		"camera", ev.Camera,
		"severity", ev.Severity,
		"lat", ev.Lat,
		"lon", ev.Lon)
	return nil
}
