package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-123")
	ctx = logg.WithAddress(ctx, "0xabc")
	logg.Info(ctx, "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("request_id missing from entry: %v", entry)
	}
	if entry["address"] != "0xabc" {
		t.Fatalf("address missing from entry: %v", entry)
	}
	if entry["service"] != "test" {
		t.Fatalf("service missing from entry: %v", entry)
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	logg.Error(context.Background(), "boom", context.DeadlineExceeded)

	out := buf.String()
	if !strings.Contains(out, "stack") {
		t.Fatalf("expected stack trace in error log: %s", out)
	}
	if !strings.Contains(out, "deadline") {
		t.Fatalf("expected error in log entry: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("empty level should default to info")
	}
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug should parse")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Fatal("unknown level should default to info")
	}
}
