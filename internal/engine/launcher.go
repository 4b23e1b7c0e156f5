package engine

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// OSLauncher runs the engine as a detached child process.
type OSLauncher struct{}

func (OSLauncher) Start(binary string, args []string, out io.Writer) (int32, error) {
	// Not tied to a request context: the engine outlives the call that
	// started it.
	cmd := exec.Command(binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := int32(cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		slog.Debug("引擎进程已退出", "pid", pid, "err", err)
	}()
	return pid, nil
}

// KillAll kills every process whose executable name matches binary.
func (OSLauncher) KillAll(ctx context.Context, binary string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	want := processName(binary)
	killed := 0
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || processName(name) != want {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			slog.Debug("结束进程失败", "pid", p.Pid, "err", err)
			continue
		}
		killed++
	}
	return killed, nil
}

func (OSLauncher) Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "version").CombinedOutput()
	return string(out), err
}

func processName(s string) string {
	return strings.TrimSuffix(strings.ToLower(filepath.Base(s)), ".exe")
}
