package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesRenamedKeysToStdoutAndFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "saled.log")
	logger := setup(&stdout, "saled", "test", FileOptions{Path: path})
	logger.Info("hello", "height", 7)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, stdout.String())
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "saled" {
		t.Fatalf("unexpected line %v", line)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("log file missing line: %s", data)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("authorization", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("method", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("bearer values must be redacted under any key, got %q", got)
	}
	if got := MaskField("method", "sale_buyTokens").Value.String(); got != "sale_buyTokens" {
		t.Fatalf("allowlisted key should pass through, got %q", got)
	}
	if got := MaskField("secret", "").Value.String(); got != "" {
		t.Fatalf("empty value should pass through, got %q", got)
	}
}
