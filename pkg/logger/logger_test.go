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

func TestInitAndContextLogging(t *testing.T) {
	Init("development")
	if GetLogger() == nil {
		t.Fatal("expected logger initialized")
	}

	ctx := context.WithValue(context.Background(), "request_id", "req-1")
	l := WithContext(ctx)
	if l == nil {
		t.Fatal("expected contextual logger")
	}

	Info(ctx, "info")
	Debug(ctx, "debug")
	Warn(ctx, "warn")
	Error(ctx, "error")
	LogRequest(ctx, 200, zap.String("path", "/health"), zap.Duration("latency", 10*time.Millisecond))
}

func TestWithContextNil(t *testing.T) {
	Init("development")
	//nolint:staticcheck // nil context is handled explicitly
	if WithContext(nil) == nil {
		t.Fatal("expected base logger for nil context")
	}
}

func TestWithJobID(t *testing.T) {
	Init("development")
	ctx := WithJobID(context.Background(), "job-1")
	if got, _ := ctx.Value(JobIDKey).(string); got != "job-1" {
		t.Fatalf("expected job id on context, got %q", got)
	}
	if WithContext(ctx) == nil {
		t.Fatal("expected logger with job id context")
	}
}

func TestGetLogger_NopBeforeInit(t *testing.T) {
	orig := log
	t.Cleanup(func() { log = orig })
	log = nil

	if GetLogger() == nil {
		t.Fatal("expected nop logger before init")
	}
	if err := Sync(); err != nil {
		t.Fatalf("expected nil sync error without logger, got %v", err)
	}
}

func TestInit_ProductionAndWithContextWithoutFields(t *testing.T) {
	log = nil
	once = sync.Once{}

	Init("production")
	if GetLogger() == nil {
		t.Fatal("expected production logger initialized")
	}

	if WithContext(context.Background()) == nil {
		t.Fatal("expected logger without contextual fields")
	}
}

func TestInit_PanicWhenLoggerBuildFails(t *testing.T) {
	log = nil
	once = sync.Once{}
	origBuild := buildLogger
	t.Cleanup(func() {
		buildLogger = origBuild
		log = nil
		once = sync.Once{}
	})

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

func TestLogRequest_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	LogRequest(ctx, 201)
	LogRequest(ctx, 404)
	LogRequest(ctx, 503)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], e.Level)
		}
		if e.ContextMap()["request_id"] != "req-9" {
			t.Fatalf("entry %d: missing request id: %v", i, e.ContextMap())
		}
	}
}
