package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range testCases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), time.Second)

	statement := func() (string, int64) { return "SELECT 1", 0 }
	gormLog.Trace(context.Background(), time.Now(), statement, gorm.ErrRecordNotFound)
	if recorded.Len() != 0 {
		t.Fatalf("expected record-not-found to be ignored, got %d entries", recorded.Len())
	}

	gormLog.Trace(context.Background(), time.Now(), statement, errors.New("disk I/O error"))
	entries := recorded.FilterMessage("sql statement failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["sql"] != "SELECT 1" {
		t.Fatalf("expected sql field, got %v", entries[0].ContextMap())
	}
}

func TestGormLoggerReportsSlowStatements(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), time.Millisecond)

	begin := time.Now().Add(-time.Second)
	gormLog.Trace(context.Background(), begin, func() (string, int64) { return "SELECT 2", 1 }, nil)
	if recorded.FilterMessage("slow sql statement").Len() != 1 {
		t.Fatalf("expected slow statement warning")
	}
}
