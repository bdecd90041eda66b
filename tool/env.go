package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a shell command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Env abstracts where tool operations run, so tools are testable against
// an in-memory fake and the dispatcher never touches the filesystem
// directly.
type Env interface {
	WorkingDirectory() string
	ReadFile(path string, offset, limit int) (string, error)
	WriteFile(path, content string) error
	FileExists(path string) bool
	ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables excluded from subprocess environments.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalEnv runs tools on the local machine rooted at a working directory.
type LocalEnv struct {
	workingDir string
}

// NewLocalEnv creates a local environment. An empty workingDir defaults
// to the process working directory.
func NewLocalEnv(workingDir string) *LocalEnv {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalEnv{workingDir: workingDir}
}

func (e *LocalEnv) WorkingDirectory() string { return e.workingDir }

func (e *LocalEnv) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// ReadFile reads a file, optionally windowed by a 1-based line offset and
// a line count, formatting each line with its number.
func (e *LocalEnv) ReadFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

func (e *LocalEnv) WriteFile(path, content string) error {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return err
	}
	return os.WriteFile(resolved, []byte(content), 0644)
}

func (e *LocalEnv) FileExists(path string) bool {
	_, err := os.Stat(e.resolvePath(path))
	return err == nil
}

// ExecCommand runs a shell command in the working directory with a
// filtered environment. The process group is killed on timeout.
func (e *LocalEnv) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir
	cmd.Env = filterEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}
	return result, nil
}
