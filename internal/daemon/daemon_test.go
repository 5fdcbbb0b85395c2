package daemon

import (
	"context"
	"strings"
	"testing"
	"time"

	"chronod/internal/config"
)

func TestValidateConfigChecksSchedules(t *testing.T) {
	t.Parallel()

	good := &config.Config{Tasks: []config.TaskConfig{
		{Name: "a", Schedule: "EVERYDAY @ 18:00", Command: "x"},
		{Name: "b", Schedule: "CRON */5 * * * *", Command: "y"},
	}}
	if err := validateConfig(good); err != nil {
		t.Fatalf("validateConfig: %v", err)
	}

	bad := &config.Config{Tasks: []config.TaskConfig{
		{Name: "a", Schedule: "WHENEVER", Command: "x"},
	}}
	err := validateConfig(bad)
	if err == nil {
		t.Fatalf("expected error for unrecognized schedule")
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "WHENEVER") {
		t.Fatalf("error should name the task and schedule, got: %v", err)
	}

	badCron := &config.Config{Tasks: []config.TaskConfig{
		{Name: "c", Schedule: "CRON not a cron", Command: "x"},
	}}
	if err := validateConfig(badCron); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestCommandActionReportsFailure(t *testing.T) {
	t.Parallel()

	action, err := commandAction(config.TaskConfig{
		Name:    "fail",
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("commandAction: %v", err)
	}
	runErr := action(context.Background())
	if runErr == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(runErr.Error(), "exit status 3") {
		t.Fatalf("error should carry the exit status, got: %v", runErr)
	}
	if !strings.Contains(runErr.Error(), "boom") {
		t.Fatalf("error should carry the command output, got: %v", runErr)
	}
}

func TestCommandActionSuccess(t *testing.T) {
	t.Parallel()

	action, err := commandAction(config.TaskConfig{
		Name:    "ok",
		Command: "sh",
		Args:    []string{"-c", "exit 0"},
	})
	if err != nil {
		t.Fatalf("commandAction: %v", err)
	}
	if err := action(context.Background()); err != nil {
		t.Fatalf("action: %v", err)
	}
}

func TestCommandActionTimeout(t *testing.T) {
	t.Parallel()

	action, err := commandAction(config.TaskConfig{
		Name:    "slow",
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: "50ms",
	})
	if err != nil {
		t.Fatalf("commandAction: %v", err)
	}
	start := time.Now()
	runErr := action(context.Background())
	if runErr == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(runErr.Error(), "timed out") {
		t.Fatalf("expected timeout message, got: %v", runErr)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long: %v", time.Since(start))
	}
}

func TestOutputTailTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxReportedOutput*2)
	tail := outputTail([]byte(long))
	if len(tail) > maxReportedOutput+len(" (output: )") {
		t.Fatalf("tail not truncated: %d bytes", len(tail))
	}
	if outputTail([]byte("  \n")) != "" {
		t.Fatalf("whitespace-only output should yield empty tail")
	}
}
