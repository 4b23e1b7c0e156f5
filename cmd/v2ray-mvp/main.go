package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/config"
	"github.com/John-Robertt/v2ray-mvp/internal/convert"
	"github.com/John-Robertt/v2ray-mvp/internal/display"
	"github.com/John-Robertt/v2ray-mvp/internal/engine"
	"github.com/John-Robertt/v2ray-mvp/internal/httpapi"
	"github.com/John-Robertt/v2ray-mvp/internal/logging"
	"github.com/John-Robertt/v2ray-mvp/internal/probe"
	"github.com/John-Robertt/v2ray-mvp/internal/service"
	"github.com/John-Robertt/v2ray-mvp/internal/store"
	"github.com/John-Robertt/v2ray-mvp/internal/sysproxy"
)

const usage = `用法:
  v2ray-mvp [serve] [-config config.yaml] [-listen 127.0.0.1:25500]
  v2ray-mvp convert [-config config.yaml] [link]   (未给出 link 时从 stdin 读取)
  v2ray-mvp healthcheck [-url http://127.0.0.1:25500/healthz] [-timeout 2s]
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "convert":
		err = runConvert(args, os.Stdin, os.Stdout)
	case "healthcheck":
		err = runHealthcheckCmd(args)
	case "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "YAML 配置文件路径（不存在时使用默认值）")
	listen := fs.String("listen", "", "HTTP 监听地址（覆盖配置文件中的 listen）")
	readHeaderTimeout := fs.Duration("read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logs, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	st, err := store.Open(store.ResolveDir(cfg.DataDir))
	if err != nil {
		return err
	}
	eng := engine.NewManager(engineOptions(cfg, st.Dir()), nil)
	proxy := sysproxy.New(sysproxy.Options{
		Host:           cfg.Proxy.Host,
		Port:           cfg.Proxy.Port,
		NetworkService: cfg.Proxy.NetworkService,
		Disabled:       cfg.Proxy.Disabled,
	}, nil)
	svc := service.New(st, eng, proxy, service.Options{
		Defaults: cfg.Conversion,
		Ping:     pingOptions(cfg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, *configPath, func(next config.Config) {
		svc.Reload(next.Conversion, pingOptions(next))
		if err := logs.SetLevel(next.Log.Level); err != nil {
			slog.Warn("日志级别未更新", "err", err)
		}
		if next.Listen != cfg.Listen || next.DataDir != cfg.DataDir {
			slog.Warn("listen/data-dir 的修改需要重启后生效")
		}
	}); err != nil {
		slog.Warn("配置热加载不可用", "err", err)
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: httpapi.NewHandler(httpapi.Options{
			Service:          svc,
			ImportsPerMinute: cfg.RateLimit.ImportsPerMinute,
			ImportBurst:      cfg.RateLimit.Burst,
		}),
		ReadHeaderTimeout: *readHeaderTimeout,
	}

	slog.Info("listening", "url", "http://"+cfg.Listen, "data", st.Path())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func engineOptions(cfg config.Config, dataDir string) engine.Options {
	logFile := cfg.Engine.LogFile
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(dataDir, logFile)
	}
	return engine.Options{
		Binary:         cfg.Engine.Binary,
		Args:           cfg.Engine.Args,
		Dir:            dataDir,
		ConfigFileName: cfg.Engine.ConfigFileName,
		LogFile:        logFile,
	}
}

func pingOptions(cfg config.Config) probe.Options {
	return probe.Options{URL: cfg.Ping.URL, Timeout: cfg.Ping.Timeout}
}

// runConvert prints the display pair and runtime config for one link. It
// exits non-zero when the link does not convert, after still printing the
// display pair.
func runConvert(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML 配置文件路径（仅使用其中的 conversion 段）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(input) == "" {
		b, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			return fmt.Errorf("读取 stdin 失败: %w", err)
		}
		input = string(b)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("缺少 link")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	d := display.Extract(input)
	fmt.Fprintf(stdout, "name:   %s\nserver: %s\n", d.Name, d.Server)

	out, err := convert.New(cfg.Conversion).Convert(input)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

func runHealthcheckCmd(args []string) error {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	target := fs.String("url", "", "healthz 地址（默认由 -listen 推导）")
	listen := fs.String("listen", "127.0.0.1:25500", "服务监听地址")
	timeout := fs.Duration("timeout", 2*time.Second, "请求超时")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u := *target
	if u == "" {
		var err error
		if u, err = deriveHealthzURL(*listen); err != nil {
			return err
		}
	}
	return runHealthcheck(u, *timeout)
}

// deriveHealthzURL turns a listen address into a loopback healthz URL.
// Wildcard hosts are replaced by 127.0.0.1.
func deriveHealthzURL(listen string) (string, error) {
	s := strings.TrimSpace(listen)
	if s == "" {
		return "", errors.New("listen 为空")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("无效的地址: %q", listen)
		}
		u.Path = "/healthz"
		u.RawQuery = ""
		return u.String(), nil
	}
	if !strings.Contains(s, ":") {
		s = ":" + s
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("无效的地址 %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(target string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("healthcheck 请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
