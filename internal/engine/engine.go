// Package engine runs the external proxy engine against a generated runtime
// config file.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

const DefaultConfigFileName = "current_config.json"

type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code, message string, cause error) error {
	return &Error{
		AppError: model.AppError{Code: code, Message: message, Stage: "engine"},
		Cause:    cause,
	}
}

type Options struct {
	// Binary is looked up in PATH when it has no directory part.
	Binary string
	// Args precede the config path. Empty picks ["run", "-c"] for v5+
	// engines and ["-config"] otherwise.
	Args           []string
	Dir            string
	ConfigFileName string

	// LogFile receives engine stdout/stderr. Empty discards it.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func DefaultBinary() string {
	if runtime.GOOS == "windows" {
		return "v2ray.exe"
	}
	return "v2ray"
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary()
	}
	if o.ConfigFileName == "" {
		o.ConfigFileName = DefaultConfigFileName
	}
	if o.LogMaxSizeMB <= 0 {
		o.LogMaxSizeMB = 10
	}
	if o.LogMaxBackups <= 0 {
		o.LogMaxBackups = 3
	}
	if o.LogMaxAgeDays <= 0 {
		o.LogMaxAgeDays = 14
	}
	return o
}

// Launcher is the OS boundary: spawning, killing and probing the binary.
type Launcher interface {
	Start(binary string, args []string, out io.Writer) (pid int32, err error)
	KillAll(ctx context.Context, binary string) (killed int, err error)
	Version(ctx context.Context, binary string) (string, error)
}

// Manager serializes engine restarts. At most one engine it started is
// expected to run at a time; Stop also kills strays left by earlier runs.
type Manager struct {
	mu       sync.Mutex
	opts     Options
	launcher Launcher
	out      io.WriteCloser
	args     []string
}

func NewManager(opts Options, launcher Launcher) *Manager {
	opts = opts.withDefaults()
	if launcher == nil {
		launcher = OSLauncher{}
	}
	m := &Manager{opts: opts, launcher: launcher}
	if opts.LogFile != "" {
		m.out = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    opts.LogMaxSizeMB,
			MaxBackups: opts.LogMaxBackups,
			MaxAge:     opts.LogMaxAgeDays,
		}
	}
	return m
}

func (m *Manager) ConfigPath() string {
	return filepath.Join(m.opts.Dir, m.opts.ConfigFileName)
}

// Start stops any running engine, writes configJSON to the config file and
// launches the binary on it.
func (m *Manager) Start(ctx context.Context, configJSON string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.killAll(ctx)

	path := m.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, newError("ENGINE_CONFIG_WRITE_FAILED", "写入引擎配置失败", err)
	}
	if err := os.WriteFile(path, []byte(configJSON), 0o600); err != nil {
		return 0, newError("ENGINE_CONFIG_WRITE_FAILED", "写入引擎配置失败", err)
	}

	var out io.Writer = io.Discard
	if m.out != nil {
		out = m.out
	}
	args := append(m.engineArgs(ctx), path)
	pid, err := m.launcher.Start(m.opts.Binary, args, out)
	if err != nil {
		return 0, newError("ENGINE_START_FAILED", fmt.Sprintf("Failed to start %s", filepath.Base(m.opts.Binary)), err)
	}
	slog.Info("引擎已启动", "binary", m.opts.Binary, "pid", pid, "config", path)
	return pid, nil
}

// Stop kills every process running the engine binary. Finding nothing to
// kill is not an error.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.killAll(ctx)
	if m.out != nil {
		return m.out.Close()
	}
	return nil
}

func (m *Manager) killAll(ctx context.Context) {
	n, err := m.launcher.KillAll(ctx, m.opts.Binary)
	if err != nil {
		slog.Warn("停止引擎进程失败", "binary", m.opts.Binary, "err", err)
		return
	}
	if n > 0 {
		slog.Info("已停止引擎进程", "binary", m.opts.Binary, "count", n)
	}
}

// engineArgs resolves the flag layout once. Caller holds m.mu.
func (m *Manager) engineArgs(ctx context.Context) []string {
	if m.args == nil {
		m.args = m.opts.Args
		if len(m.args) == 0 {
			m.args = []string{"-config"}
			if v, err := m.detectVersion(ctx); err == nil && UsesRunSubcommand(v) {
				m.args = []string{"run", "-c"}
			} else if err != nil {
				slog.Debug("无法识别引擎版本，使用 -config", "err", err)
			}
		}
	}
	return append([]string{}, m.args...)
}

var ErrNoVersion = errors.New("no version number in output")

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?`)

// ParseVersion picks the first version number out of "<binary> version"
// output, e.g. "V2Ray 5.16.1 (V2Fly, a community-driven edition of V2Ray.)".
func ParseVersion(output string) (*semver.Version, error) {
	raw := versionPattern.FindString(output)
	if raw == "" {
		return nil, ErrNoVersion
	}
	return semver.NewVersion(raw)
}

func (m *Manager) DetectVersion(ctx context.Context) (*semver.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectVersion(ctx)
}

func (m *Manager) detectVersion(ctx context.Context) (*semver.Version, error) {
	out, err := m.launcher.Version(ctx, m.opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("run %s version: %w", m.opts.Binary, err)
	}
	return ParseVersion(out)
}

// UsesRunSubcommand reports whether v expects "run -c <file>" instead of
// "-config <file>".
func UsesRunSubcommand(v *semver.Version) bool {
	c, _ := semver.NewConstraint(">= 5.0.0-0")
	return c.Check(v)
}
