//go:build !windows

// Package runtime runs shell commands on behalf of the command loader.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunShell runs cmdline with /bin/sh and returns its stdout. Stderr is kept apart
// so it cannot corrupt a JSON document on stdout; it is attached to the error when
// the command fails. env entries are appended to the current environment.
func RunShell(ctx context.Context, cmdline string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	return run(cmd, env)
}

func run(cmd *exec.Cmd, env []string) ([]byte, error) {
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
