// Package notification provides alert delivery to external channels
// (Telegram, webhooks) for fusion engine events: protection guard blocks,
// external source outages and stale ML models.
package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends; delivery failures are
// logged, never propagated, so a dead webhook cannot stall the runner.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T failed: %v", b, err)
		}
	}
	return nil
}

// GuardBlocked builds the alert for a protection guard veto.
func GuardBlocked(pair string, reasons []string, expiresAtBar int) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("Entries blocked: %s", pair),
		Message: fmt.Sprintf("reasons=%s, open again at bar %d", strings.Join(reasons, ","), expiresAtBar),
	}
}

// GuardReleased builds the alert for a pair returning to OPEN.
func GuardReleased(pair string) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("Entries unblocked: %s", pair),
		Message: "all protection blocks expired",
	}
}

// SourceDown builds the alert for a failing external source.
func SourceDown(sourceID string, err error) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("Signal source degraded: %s", sourceID),
		Message: fmt.Sprintf("fetch failed, scoring neutral: %v", err),
	}
}

// ModelStale builds the alert for a predictor past its retrain interval.
func ModelStale(version string) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   "ML model stale",
		Message: fmt.Sprintf("version %s past retrain interval, predictions neutral", version),
	}
}
