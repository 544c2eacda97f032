// Package supervisor runs the long-lived services of the process under a
// suture tree: a failing service is restarted with backoff instead of
// taking the process down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree has two layers: data (hub, health prober) and api (HTTP, gRPC).
type Tree struct {
	root *suture.Supervisor
	data *suture.Supervisor
	api  *suture.Supervisor
}

func New(name string, cfg Config, log *slog.Logger) *Tree {
	hook := (&sutureslog.Handler{Logger: log}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        hook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := rootSpec
	childSpec.EventHook = nil

	t := &Tree{
		root: suture.New(name, rootSpec),
		data: suture.New("data-layer", childSpec),
		api:  suture.New("api-layer", childSpec),
	}
	t.root.Add(t.data)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddData(s suture.Service) suture.ServiceToken { return t.data.Add(s) }
func (t *Tree) AddAPI(s suture.Service) suture.ServiceToken  { return t.api.Add(s) }

// Serve blocks until ctx is canceled or the root supervisor gives up.
func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }

// ServeBackground starts the tree and returns its exit channel.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
