//go:build windows

// Package runtime runs shell commands on behalf of the command loader.
//
// cmd.exe is used rather than PowerShell, whose redirects default to UTF-16 LE.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunShell runs cmdline with cmd.exe /C and returns its stdout.
func RunShell(ctx context.Context, cmdline string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "cmd", "/C", cmdline)
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
