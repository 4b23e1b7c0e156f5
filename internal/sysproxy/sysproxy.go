// Package sysproxy points the desktop's system proxy at the local SOCKS
// inbound and back.
package sysproxy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

const internetSettingsKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Internet Settings`

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

// Command is one external invocation. Best-effort commands never fail the
// toggle.
type Command struct {
	Name       string
	Args       []string
	BestEffort bool
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Options struct {
	Host string
	Port int
	// NetworkService is the macOS service name passed to networksetup.
	NetworkService string
	// GOOS defaults to runtime.GOOS.
	GOOS     string
	Disabled bool
}

type Controller struct {
	opts   Options
	runner Runner
}

func New(opts Options, runner Runner) *Controller {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 1080
	}
	if opts.NetworkService == "" {
		opts.NetworkService = "Wi-Fi"
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Controller{opts: opts, runner: runner}
}

func (c *Controller) Enable(ctx context.Context) error  { return c.set(ctx, true) }
func (c *Controller) Disable(ctx context.Context) error { return c.set(ctx, false) }

func (c *Controller) set(ctx context.Context, enable bool) error {
	if c.opts.Disabled {
		return nil
	}
	for _, cmd := range Commands(c.opts.GOOS, enable, c.opts.Host, c.opts.Port, c.opts.NetworkService) {
		out, err := c.runner.Run(ctx, cmd.Name, cmd.Args...)
		if err == nil {
			continue
		}
		if cmd.BestEffort {
			slog.Debug("系统代理命令失败，已忽略", "cmd", cmd.String(), "err", err)
			continue
		}
		return &Error{
			AppError: model.AppError{
				Code:    "SYSTEM_PROXY_FAILED",
				Message: "设置系统代理失败",
				Stage:   "sysproxy",
				Snippet: truncate(strings.TrimSpace(string(out)), 200),
				Hint:    cmd.Name,
			},
			Cause: err,
		}
	}
	slog.Info("系统代理已更新", "enabled", enable, "goos", c.opts.GOOS)
	return nil
}

// Commands lists what toggling the proxy runs on goos. Unknown platforms
// get no commands. Linux targets GNOME via gsettings; other desktops are
// not configured, so failures there are ignored.
func Commands(goos string, enable bool, host string, port int, networkService string) []Command {
	addr := host + ":" + strconv.Itoa(port)
	switch goos {
	case "windows":
		if !enable {
			return []Command{regAdd("ProxyEnable", "REG_DWORD", "0")}
		}
		return []Command{
			regAdd("ProxyEnable", "REG_DWORD", "1"),
			regAdd("ProxyServer", "REG_SZ", addr),
		}
	case "darwin":
		if !enable {
			return []Command{{Name: "networksetup", Args: []string{"-setsocksfirewallproxystate", networkService, "off"}}}
		}
		return []Command{{Name: "networksetup", Args: []string{"-setsocksfirewallproxy", networkService, host, strconv.Itoa(port)}}}
	case "linux":
		if !enable {
			return []Command{gsettings("org.gnome.system.proxy", "mode", "none")}
		}
		return []Command{
			gsettings("org.gnome.system.proxy.socks", "host", host),
			gsettings("org.gnome.system.proxy.socks", "port", strconv.Itoa(port)),
			gsettings("org.gnome.system.proxy", "mode", "manual"),
		}
	default:
		return nil
	}
}

func regAdd(name, typ, data string) Command {
	return Command{Name: "reg", Args: []string{"add", internetSettingsKey, "/v", name, "/t", typ, "/d", data, "/f"}}
}

func gsettings(schema, key, value string) Command {
	return Command{Name: "gsettings", Args: []string{"set", schema, key, value}, BestEffort: true}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
