package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	Named("registry").Info("match_create", zap.String("match_id", "ABCDEF"))
	restore()
	L().Info("after_restore")

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "match_create" {
		t.Fatalf("entries = %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "registry" || fields["match_id"] != "ABCDEF" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestInitFromEnvWritesFile(t *testing.T) {
	defer Replace(L())()
	path := filepath.Join(t.TempDir(), "nested", "arena.log")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")
	if err := InitFromEnv(); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	L().Debug("stream_open", zap.String("transport", "sse"))
	Sync()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"stream_open"`) || !strings.Contains(string(b), `"transport":"sse"`) {
		t.Fatalf("log file = %s", b)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel, "WARNING": zapcore.WarnLevel, " error ": zapcore.ErrorLevel, "bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
