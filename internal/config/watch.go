package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch calls onChange with the reloaded config each time path is written.
// The directory is watched rather than the file so editors that replace
// the file are still seen. Events are debounced; a file that fails to load
// is logged and skipped. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("解析配置路径失败: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("监听配置目录失败: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			slog.Error("重新加载配置文件失败", "path", abs, "err", err)
			return
		}
		slog.Info("配置文件已重新加载", "path", abs)
		onChange(cfg)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("配置文件监听出错", "err", err)
			}
		}
	}()
	return nil
}
