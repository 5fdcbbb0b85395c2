package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"chronod/internal/config"
	"chronod/internal/scheduler"
)

const maxReportedOutput = 512

// commandAction turns a task-table entry into an executable action. The
// command runs without a shell; the context carries the engine's lifetime
// plus the entry's own timeout when one is set.
func commandAction(tc config.TaskConfig) (scheduler.Action, error) {
	timeout, err := config.ParseDurationField("timeout", tc.Timeout)
	if err != nil {
		return nil, err
	}
	command := tc.Command
	args := append([]string(nil), tc.Args...)

	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		cmd := exec.CommandContext(ctx, command, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%s timed out after %s", command, timeout)
			}
			return fmt.Errorf("%s: %w%s", command, err, outputTail(out))
		}
		return nil
	}, nil
}

// outputTail formats the last chunk of command output for an error message.
func outputTail(out []byte) string {
	s := bytes.TrimSpace(out)
	if len(s) == 0 {
		return ""
	}
	if len(s) > maxReportedOutput {
		s = s[len(s)-maxReportedOutput:]
	}
	return fmt.Sprintf(" (output: %s)", s)
}
