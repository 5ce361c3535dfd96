package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"sponsorchain.org/internal/auth"
	"sponsorchain.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithCaller(ctx, "0xsponsor", []string{"sponsor"})

	if err := LogEvent(ctx, "contract.created", map[string]any{"contract_id": 7}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "contract.created" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["caller"] != "0xsponsor" {
		t.Fatalf("unexpected caller: %v", entry["caller"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["contract_id"] != float64(7) {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}

	if err := LogEvent(ctx, "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
