package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger(t *testing.T) {
	t.Helper()
	log = nil
	once = sync.Once{}
	t.Cleanup(func() {
		log = nil
		once = sync.Once{}
	})
}

func TestGetLogger_BeforeInitIsNop(t *testing.T) {
	resetLogger(t)
	if GetLogger() == nil {
		t.Fatal("expected nop logger before Init")
	}
	Info(context.Background(), "dropped")
}

func TestInitAndContextLogging(t *testing.T) {
	resetLogger(t)
	Init("development")
	if GetLogger() == nil {
		t.Fatal("expected logger initialized")
	}

	ctx := context.WithValue(context.Background(), "request_id", "req-1")
	ctx = WithCorrelationID(ctx, "corr-1")
	if WithContext(ctx) == nil {
		t.Fatal("expected contextual logger")
	}

	Info(ctx, "info")
	Debug(ctx, "debug")
	Warn(ctx, "warn")
	Error(ctx, "error")
	LogRequest(ctx, "GET", "/health", 200, 10*time.Millisecond, "127.0.0.1")
	Named(ctx, "routing").Info("named")
	SetLevel(zapcore.WarnLevel)
}

func TestNamedCarriesCorrelationID(t *testing.T) {
	resetLogger(t)
	core, logs := observer.New(zapcore.DebugLevel)
	log = zap.New(core)

	ctx := WithCorrelationID(context.Background(), "tx-42")
	Named(ctx, "jobs").Info("tick")
	Warn(ctx, "plain")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].LoggerName != "jobs" {
		t.Fatalf("expected logger name jobs, got %q", entries[0].LoggerName)
	}
	for _, e := range entries {
		if got := e.ContextMap()["correlation_id"]; got != "tx-42" {
			t.Fatalf("expected correlation_id tx-42, got %v", got)
		}
	}
}

func TestWithContextNilAndTypedKey(t *testing.T) {
	resetLogger(t)
	Init("development")
	//nolint:staticcheck
	if WithContext(nil) == nil {
		t.Fatal("expected base logger for nil context")
	}
	ctx := context.WithValue(context.Background(), RequestIDKey, "typed-req-id")
	if WithContext(ctx) == nil {
		t.Fatal("expected logger with typed request id context")
	}
}

func TestInit_Production(t *testing.T) {
	resetLogger(t)
	Init("production")
	if GetLogger() == nil {
		t.Fatal("expected production logger initialized")
	}
}

func TestInit_PanicWhenLoggerBuildFails(t *testing.T) {
	resetLogger(t)
	origBuild := buildLogger
	t.Cleanup(func() { buildLogger = origBuild })

	buildLogger = func(zap.Config) (*zap.Logger, error) {
		return nil, errors.New("build failed")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when logger builder fails")
		}
	}()
	Init("production")
}
