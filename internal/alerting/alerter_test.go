package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityHigh, "HIGH"},
		{SeverityCritical, "CRITICAL"},
		{Severity(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestEventSeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  Severity
	}{
		{EventNakedLeg, SeverityCritical},
		{EventRolloverReentryFailed, SeverityCritical},
		{EventRolloverExitFailed, SeverityHigh},
		{EventStatePersistFailed, SeverityHigh},
		{EventOrderRejected, SeverityWarning},
		{EventPositionOpened, SeverityInfo},
		{EventPositionClosed, SeverityInfo},
		{AlertEvent("unknown"), SeverityInfo},
	}

	for _, tt := range tests {
		if got := EventSeverity(tt.event); got != tt.want {
			t.Errorf("EventSeverity(%s) = %s, want %s", tt.event, got, tt.want)
		}
	}
}

func TestFormatFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []any
		want   string
	}{
		{"empty", nil, ""},
		{"single pair", []any{"system_id", "sys-1"}, "• system_id: sys-1"},
		{"two pairs", []any{"qty", 75, "strike", 24800}, "• qty: 75\n• strike: 24800"},
		{"non-string key skipped", []any{42, "x", "qty", 75}, "• qty: 75"},
		{"odd trailing value ignored", []any{"qty"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFields(tt.fields...); got != tt.want {
				t.Errorf("FormatFields() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsoleAlerter(t *testing.T) {
	a := NewConsoleAlerter(nil)
	if a.Name() != "console" {
		t.Errorf("Name() = %s", a.Name())
	}
	if err := a.Alert(context.Background(), SeverityCritical, "naked leg", "system_id", "sys-1"); err != nil {
		t.Errorf("Alert() error = %v", err)
	}
}

func TestMultiAlerter_FanOut(t *testing.T) {
	first := NewMockAlerter()
	second := NewMockAlerter()
	m := NewMultiAlerter(nil, first, second)

	if err := m.Alert(context.Background(), SeverityWarning, "test", "k", "v"); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}

	if first.Count() != 1 || second.Count() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", first.Count(), second.Count())
	}
}

func TestMultiAlerter_JoinsFailures(t *testing.T) {
	failing := NewMockAlerter()
	failing.FailWith(errors.New("channel down"))
	ok := NewMockAlerter()
	m := NewMultiAlerter(nil, failing, ok)

	err := m.Alert(context.Background(), SeverityInfo, "test")
	if err == nil {
		t.Fatal("expected joined error from failing channel")
	}
	if ok.Count() != 1 {
		t.Error("healthy channel must still receive the alert")
	}
}

func TestMultiAlerter_NoChannels(t *testing.T) {
	m := NewMultiAlerter(nil)
	if err := m.Alert(context.Background(), SeverityInfo, "test"); err != nil {
		t.Errorf("Alert() with no channels error = %v", err)
	}
}

func TestMultiAlerter_AlertEvent(t *testing.T) {
	mock := NewMockAlerter()
	m := NewMultiAlerter(nil, mock)

	if err := m.AlertEvent(context.Background(), EventNakedLeg, "short leg failed"); err != nil {
		t.Fatalf("AlertEvent() error = %v", err)
	}
	last := mock.LastAlert()
	if last == nil || last.Severity != SeverityCritical {
		t.Errorf("naked leg event must be critical, got %+v", last)
	}
}

func TestTelegramAlerter(t *testing.T) {
	var received telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken-123/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(telegramResponse{OK: true})
	}))
	defer srv.Close()

	a := NewTelegramAlerter(TelegramConfig{
		BotToken: "token-123",
		ChatID:   "chat-9",
		BaseURL:  srv.URL,
	})

	err := a.Alert(context.Background(), SeverityCritical, "naked long leg", "system_id", "sys-1")
	if err != nil {
		t.Fatalf("Alert() error = %v", err)
	}
	if received.ChatID != "chat-9" {
		t.Errorf("chat_id = %s", received.ChatID)
	}
	if received.ParseMode != "HTML" {
		t.Errorf("parse_mode = %s", received.ParseMode)
	}
}

func TestTelegramAlerter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(telegramResponse{OK: false, Description: "chat not found"})
	}))
	defer srv.Close()

	a := NewTelegramAlerter(TelegramConfig{BotToken: "t", ChatID: "c", BaseURL: srv.URL})
	if err := a.Alert(context.Background(), SeverityInfo, "hello"); err == nil {
		t.Fatal("expected error for API failure response")
	}
}

func TestRolloverReport(t *testing.T) {
	date := time.Date(2025, 6, 26, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		report RolloverReport
		clean  bool
		want   Severity
	}{
		{
			name:   "all rolled",
			report: NewRolloverReport(date, 3, 3, 0, 0, nil),
			clean:  true,
			want:   SeverityInfo,
		},
		{
			name:   "exit failure",
			report: NewRolloverReport(date, 2, 1, 1, 0, nil),
			clean:  false,
			want:   SeverityHigh,
		},
		{
			name:   "reentry failure",
			report: NewRolloverReport(date, 2, 1, 0, 1, []string{"sys-1"}),
			clean:  false,
			want:   SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Clean(); got != tt.clean {
				t.Errorf("Clean() = %v, want %v", got, tt.clean)
			}
			if got := tt.report.Severity(); got != tt.want {
				t.Errorf("Severity() = %s, want %s", got, tt.want)
			}
		})
	}
}
