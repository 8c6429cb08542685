package cliexec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
)

func init() {
	log.SetOutput(io.Discard)
}

// fakeCLI writes an executable shell script standing in for the moltbot binary
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "moltbot")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake CLI: %v", err)
	}
	return path
}

func TestRunExtractsJSONFromNoisyStdout(t *testing.T) {
	cli := fakeCLI(t, `echo "[gateway] loading plugins"
echo '{"ok":true,"args":"'"$*"'"}'
echo "[gateway] done"`)

	r := NewCLIRunner(Options{CLIPath: cli, Timeout: 5 * time.Second})
	data, err := r.Run(context.Background(), "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		OK   bool   `json:"ok"`
		Args string `json:"args"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if !got.OK {
		t.Error("expected ok=true")
	}
	if got.Args != "status --json" {
		t.Errorf("expected args 'status --json', got %q", got.Args)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"nonzero exit", `echo '{"ok":false}'; echo "boom" >&2; exit 3`, KindFailed},
		{"stderr mentions error", `echo '{"ok":true}'; echo "Error: gateway unreachable" >&2`, KindFailed},
		{"empty stdout with not found", `echo "moltbot: command not found" >&2; exit 127`, KindNotInstalled},
		{"empty stdout", `exit 0`, KindNoOutput},
		{"no json", `echo "gateway is running"`, KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCLIRunner(Options{CLIPath: fakeCLI(t, tt.body), Timeout: 5 * time.Second})
			_, err := r.Run(context.Background(), "health")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("expected kind %s, got %s (%v)", tt.kind, got, err)
			}
		})
	}
}

func TestRunCarriesTruncatedStderr(t *testing.T) {
	cli := fakeCLI(t, `i=0; while [ $i -lt 200 ]; do printf 'error!' >&2; i=$((i+1)); done; exit 1`)

	r := NewCLIRunner(Options{CLIPath: cli, Timeout: 5 * time.Second})
	_, err := r.Run(context.Background(), "status")

	var cliErr *Error
	if !errors.As(err, &cliErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if cliErr.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", cliErr.ExitCode)
	}
	if len(cliErr.Stderr) > MaxStderrBytes+3 {
		t.Errorf("stderr not truncated: %d bytes", len(cliErr.Stderr))
	}
	if !strings.HasSuffix(cliErr.Stderr, "...") {
		t.Errorf("expected truncation marker, got %q", cliErr.Stderr[len(cliErr.Stderr)-10:])
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := NewCLIRunner(Options{CLIPath: filepath.Join(t.TempDir(), "does-not-exist")})
	_, err := r.Run(context.Background(), "status")
	if KindOf(err) != KindNotInstalled {
		t.Errorf("expected %s, got %v", KindNotInstalled, err)
	}

	r = NewCLIRunner(Options{CLIPath: "moltbot-binary-that-is-not-on-path"})
	_, err = r.Run(context.Background(), "status")
	if KindOf(err) != KindNotInstalled {
		t.Errorf("expected %s for PATH lookup, got %v", KindNotInstalled, err)
	}
}

func TestRunTimeout(t *testing.T) {
	cli := fakeCLI(t, `exec sleep 5`)

	r := NewCLIRunner(Options{CLIPath: cli}).WithTimeout(100 * time.Millisecond)
	start := time.Now()
	_, err := r.Run(context.Background(), "status")

	if KindOf(err) != KindTimeout {
		t.Errorf("expected %s, got %v", KindTimeout, err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout did not stop the process promptly: %v", time.Since(start))
	}
}

func TestRunCanceledByCaller(t *testing.T) {
	cli := fakeCLI(t, `exec sleep 5`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := NewCLIRunner(Options{CLIPath: cli, Timeout: 10 * time.Second})
	_, err := r.Run(ctx, "agent", "--message", "hi")
	if KindOf(err) != KindCanceled {
		t.Errorf("expected %s, got %v", KindCanceled, err)
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"status", "--json"}, "status"},
		{[]string{"models", "list", "--json"}, "models list"},
		{[]string{"agent", "--message", "hello", "--json"}, "agent"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := commandName(tt.args); got != tt.want {
			t.Errorf("commandName(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
