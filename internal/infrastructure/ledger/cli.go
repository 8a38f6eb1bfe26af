package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	domain "github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
)

// CLIConfig configures the Convex CLI transport
type CLIConfig struct {
	Command string
	Args    []string
	EnvFile string
	Prod    bool
	Dir     string
	Timeout time.Duration
}

// runFunc executes a command and returns its stdout and stderr
type runFunc func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

// CLITransport runs ledger functions through `npx convex run`
type CLITransport struct {
	cfg CLIConfig
	run runFunc
}

var _ Transport = (*CLITransport)(nil)

// NewCLITransport creates a CLITransport
func NewCLITransport(cfg CLIConfig) *CLITransport {
	if cfg.Command == "" {
		cfg.Command = "npx"
		if len(cfg.Args) == 0 {
			cfg.Args = []string{"convex", "run"}
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CLITransport{cfg: cfg, run: execRun}
}

func execRun(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// command returns the executable and arguments for one call
func (t *CLITransport) command(function string, argsJSON []byte) (string, []string) {
	args := append([]string(nil), t.cfg.Args...)
	args = append(args, "--typecheck", "disable", "--codegen", "disable")
	if t.cfg.EnvFile != "" {
		args = append(args, "--env-file", t.cfg.EnvFile)
	}
	if t.cfg.Prod {
		args = append(args, "--prod")
	}
	args = append(args, function, string(argsJSON))

	if runtime.GOOS == "windows" {
		return "cmd", append([]string{"/c", t.cfg.Command}, args...)
	}
	return t.cfg.Command, args
}

// Call implements Transport
func (t *CLITransport) Call(ctx context.Context, function string, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s args: %w", function, err)
	}
	name, argv := t.command(function, argsJSON)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	stdout, stderr, runErr := t.run(ctx, t.cfg.Dir, name, argv...)
	if raw, ok := extractJSON(stdout); ok {
		return raw, nil
	}

	detail := fmt.Sprintf("%s: stdout=%q stderr=%q", function, truncate(stdout), truncate(stderr))
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s timed out after %s", domain.ErrTransient, function, t.cfg.Timeout)
	case errors.Is(runErr, exec.ErrNotFound):
		return nil, fmt.Errorf("ledger: run %s: %w", function, runErr)
	case runErr != nil:
		return nil, fmt.Errorf("%w: %s: %v: %s", domain.ErrTransient, function, runErr, detail)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedOutput, detail)
	}
}

// extractJSON returns the JSON object spanning the first '{' and the last '}'
func extractJSON(out []byte) (json.RawMessage, bool) {
	first := bytes.IndexByte(out, '{')
	last := bytes.LastIndexByte(out, '}')
	if first < 0 || last <= first {
		return nil, false
	}
	candidate := out[first : last+1]
	if !json.Valid(candidate) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
