// Package service implements the command surface shared by the HTTP API and
// the CLI: importing links, listing them and driving the connection.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/convert"
	"github.com/John-Robertt/v2ray-mvp/internal/display"
	"github.com/John-Robertt/v2ray-mvp/internal/link"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
	"github.com/John-Robertt/v2ray-mvp/internal/probe"
	"github.com/John-Robertt/v2ray-mvp/internal/store"
)

type Engine interface {
	Start(ctx context.Context, configJSON string) (pid int32, err error)
	Stop(ctx context.Context) error
}

type SystemProxy interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Prober measures latency; probe.Latency in production.
type Prober func(ctx context.Context, opt probe.Options) (time.Duration, error)

type Options struct {
	Defaults convert.Defaults
	Ping     probe.Options
	Prober   Prober
}

type Service struct {
	store  *store.Store
	engine Engine
	proxy  SystemProxy
	prober Prober

	conv atomic.Pointer[convert.Converter]
	ping atomic.Pointer[probe.Options]

	// connMu serializes connect/disconnect so engine, proxy and stored state
	// move together.
	connMu sync.Mutex
}

func New(st *store.Store, eng Engine, proxy SystemProxy, opts Options) *Service {
	s := &Service{store: st, engine: eng, proxy: proxy, prober: opts.Prober}
	if s.prober == nil {
		s.prober = probe.Latency
	}
	s.Reload(opts.Defaults, opts.Ping)
	return s
}

// Reload swaps conversion defaults and ping settings. Records imported
// earlier keep the config they were imported with.
func (s *Service) Reload(d convert.Defaults, ping probe.Options) {
	s.conv.Store(convert.New(d))
	s.ping.Store(&ping)
}

func (s *Service) Defaults() convert.Defaults {
	return s.conv.Load().Defaults()
}

func (s *Service) List() []model.Record {
	return s.store.List()
}

func (s *Service) Get(id string) (model.Record, error) {
	return s.store.Get(id)
}

// Inspection is the result of looking at a link without importing it. The
// display pair is always set; ConfigJSON is empty when Err is set.
type Inspection struct {
	Kind       string
	Display    model.Display
	ConfigJSON string
	Err        error
}

func (s *Service) Inspect(input string) Inspection {
	l, err := link.Parse(input)
	if err != nil {
		return Inspection{Display: display.Fallback(), Err: convert.Unparsed(input, err)}
	}
	out := Inspection{Kind: string(l.Kind()), Display: display.FromLink(l)}
	out.ConfigJSON, out.Err = s.conv.Load().ConvertLink(l)
	return out
}

// Add imports input. A link that does not convert is rejected whole:
// nothing is stored.
func (s *Service) Add(input string) (model.Record, error) {
	in := s.Inspect(input)
	if in.Err != nil {
		slog.Info("导入失败", "kind", in.Kind, "err", in.Err)
		return model.Record{}, in.Err
	}
	rec, err := s.store.Add(model.Record{
		Name:       in.Display.Name,
		Server:     in.Display.Server,
		ConfigJSON: in.ConfigJSON,
	})
	if err != nil {
		return model.Record{}, err
	}
	slog.Info("导入成功", "id", rec.ID, "kind", in.Kind, "name", rec.Name, "server", rec.Server)
	return rec, nil
}

func (s *Service) Remove(id string) error {
	return s.store.Remove(id)
}

// Connect replaces any running engine with one for record id and points the
// system proxy at it.
func (s *Service) Connect(ctx context.Context, id string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	rec, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if _, _, active := s.store.Active(); active {
		if err := s.engine.Stop(ctx); err != nil {
			slog.Warn("停止旧连接失败", "err", err)
		}
	}

	pid, err := s.engine.Start(ctx, rec.ConfigJSON)
	if err != nil {
		return err
	}
	if err := s.store.SetActive(id, pid); err != nil {
		return err
	}
	if err := s.proxy.Enable(ctx); err != nil {
		return err
	}
	slog.Info("已连接", "id", id, "name", rec.Name, "pid", pid)
	return nil
}

func (s *Service) Disconnect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	var errs []error
	if err := s.engine.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.ClearActive(); err != nil {
		errs = append(errs, err)
	}
	if err := s.proxy.Disable(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("已断开连接")
	return nil
}

func (s *Service) IsConnected() bool {
	_, _, ok := s.store.Active()
	return ok
}

type Status struct {
	Connected bool   `json:"connected"`
	ActiveID  string `json:"active_id,omitempty"`
	PID       int32  `json:"pid,omitempty"`
}

func (s *Service) Status() Status {
	id, pid, ok := s.store.Active()
	return Status{Connected: ok, ActiveID: id, PID: pid}
}

// Ping checks that id exists and then measures generic internet latency in
// milliseconds. The record's own server is not contacted.
func (s *Service) Ping(ctx context.Context, id string) (uint64, error) {
	if _, err := s.store.Get(id); err != nil {
		return 0, err
	}
	d, err := s.prober(ctx, *s.ping.Load())
	if err != nil {
		return 0, fmt.Errorf("ping %s: %w", id, err)
	}
	return uint64(d.Milliseconds()), nil
}
