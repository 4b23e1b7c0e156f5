package httpapi

import (
	"context"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
	"github.com/John-Robertt/v2ray-mvp/internal/service"
)

// Commands is the part of *service.Service the API exposes.
type Commands interface {
	List() []model.Record
	Get(id string) (model.Record, error)
	Add(input string) (model.Record, error)
	Remove(id string) error
	Connect(ctx context.Context, id string) error
	Disconnect(ctx context.Context) error
	Status() service.Status
	Ping(ctx context.Context, id string) (uint64, error)
	Inspect(input string) service.Inspection
}

// Options controls HTTP API runtime behavior.
type Options struct {
	Service Commands

	// RequestTimeout bounds connect/disconnect/ping, which shell out or hit
	// the network.
	RequestTimeout time.Duration

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	// ImportsPerMinute <= 0 disables the limiter on POST /api/configs.
	ImportsPerMinute float64
	ImportBurst      int64
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.ImportsPerMinute > 0 && o.ImportBurst <= 0 {
		o.ImportBurst = 1
	}
	return o
}
