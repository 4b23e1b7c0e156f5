package sysproxy

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRunner struct {
	ran  []string
	fail map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := name + " " + strings.Join(args, " ")
	f.ran = append(f.ran, line)
	if err := f.fail[name]; err != nil {
		return []byte("boom"), err
	}
	return nil, nil
}

func TestCommands(t *testing.T) {
	tests := []struct {
		goos   string
		enable bool
		want   []string
	}{
		{goos: "windows", enable: true, want: []string{
			`reg add ` + internetSettingsKey + ` /v ProxyEnable /t REG_DWORD /d 1 /f`,
			`reg add ` + internetSettingsKey + ` /v ProxyServer /t REG_SZ /d 127.0.0.1:1080 /f`,
		}},
		{goos: "windows", enable: false, want: []string{
			`reg add ` + internetSettingsKey + ` /v ProxyEnable /t REG_DWORD /d 0 /f`,
		}},
		{goos: "darwin", enable: true, want: []string{"networksetup -setsocksfirewallproxy Wi-Fi 127.0.0.1 1080"}},
		{goos: "darwin", enable: false, want: []string{"networksetup -setsocksfirewallproxystate Wi-Fi off"}},
		{goos: "linux", enable: true, want: []string{
			"gsettings set org.gnome.system.proxy.socks host 127.0.0.1",
			"gsettings set org.gnome.system.proxy.socks port 1080",
			"gsettings set org.gnome.system.proxy mode manual",
		}},
		{goos: "linux", enable: false, want: []string{"gsettings set org.gnome.system.proxy mode none"}},
		{goos: "plan9", enable: true, want: nil},
	}
	for _, tt := range tests {
		cmds := Commands(tt.goos, tt.enable, "127.0.0.1", 1080, "Wi-Fi")
		if len(cmds) != len(tt.want) {
			t.Fatalf("%s/%v: len=%d, want=%d", tt.goos, tt.enable, len(cmds), len(tt.want))
		}
		for i, c := range cmds {
			if c.String() != tt.want[i] {
				t.Fatalf("%s/%v cmd[%d]=%q, want=%q", tt.goos, tt.enable, i, c.String(), tt.want[i])
			}
		}
	}
}

func TestController_LinuxIgnoresFailures(t *testing.T) {
	fr := &fakeRunner{fail: map[string]error{"gsettings": errors.New("no gnome")}}
	c := New(Options{GOOS: "linux"}, fr)
	if err := c.Enable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fr.ran) != 3 {
		t.Fatalf("ran=%v, want 3 commands", fr.ran)
	}
}

func TestController_WindowsFailureStops(t *testing.T) {
	fr := &fakeRunner{fail: map[string]error{"reg": errors.New("access denied")}}
	c := New(Options{GOOS: "windows"}, fr)
	err := c.Enable(context.Background())
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("err=%v, want *Error", err)
	}
	if se.AppError.Code != "SYSTEM_PROXY_FAILED" {
		t.Fatalf("code=%q", se.AppError.Code)
	}
	if len(fr.ran) != 1 {
		t.Fatalf("ran=%v, want to stop after first failure", fr.ran)
	}
}

func TestController_CustomEndpoint(t *testing.T) {
	fr := &fakeRunner{}
	c := New(Options{GOOS: "darwin", Port: 10808, NetworkService: "Ethernet"}, fr)
	if err := c.Enable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "networksetup -setsocksfirewallproxy Ethernet 127.0.0.1 10808"
	if len(fr.ran) != 1 || fr.ran[0] != want {
		t.Fatalf("ran=%v, want=%q", fr.ran, want)
	}
}

func TestController_Disabled(t *testing.T) {
	fr := &fakeRunner{}
	c := New(Options{GOOS: "windows", Disabled: true}, fr)
	if err := c.Disable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fr.ran) != 0 {
		t.Fatalf("ran=%v, want none", fr.ran)
	}
}
