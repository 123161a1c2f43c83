// Package alerting delivers operator notifications for execution events.
package alerting

import (
	"context"
	"fmt"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for conditions that need operator attention.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for alerts requiring immediate attention,
	// typically unconfirmed real-money exposure.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter defines the interface for sending alerts.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// FormatFields converts variadic key-value fields to a bulleted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventNakedLeg is sent when the long leg filled but the short leg
	// could not be placed, leaving an unhedged long option.
	EventNakedLeg AlertEvent = "naked_leg"
	// EventRolloverReentryFailed is sent when a rollover exited the old
	// contract but could not enter the new one.
	EventRolloverReentryFailed AlertEvent = "rollover_reentry_failed"
	// EventRolloverExitFailed is sent when a rollover could not close an
	// expiring position.
	EventRolloverExitFailed AlertEvent = "rollover_exit_failed"
	// EventPositionOpened is sent when both legs of a position are live.
	EventPositionOpened AlertEvent = "position_opened"
	// EventPositionClosed is sent when a position is fully closed.
	EventPositionClosed AlertEvent = "position_closed"
	// EventOrderRejected is sent when the broker rejects an order.
	EventOrderRejected AlertEvent = "order_rejected"
	// EventStatePersistFailed is sent when position state could not be
	// committed to stable storage.
	EventStatePersistFailed AlertEvent = "state_persist_failed"
	// EventEngineStarted is sent when the engine starts.
	EventEngineStarted AlertEvent = "engine_started"
	// EventEngineStopped is sent when the engine stops.
	EventEngineStopped AlertEvent = "engine_stopped"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventNakedLeg, EventRolloverReentryFailed:
		return SeverityCritical
	case EventRolloverExitFailed, EventStatePersistFailed:
		return SeverityHigh
	case EventOrderRejected:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
