package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/cache"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type probe struct {
	name     string
	check    Check
	critical bool
}

// DependencyStatus is the last observed state of one dependency.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Critical  bool      `json:"critical"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Prober re-checks dependencies on an interval and publishes the result to
// the gRPC health service and to /healthz. The process is serving while all
// critical dependencies are healthy.
type Prober struct {
	health   *HealthRegistrar
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	probes []probe
	last   map[string]DependencyStatus
}

func NewProber(health *HealthRegistrar, interval time.Duration, log *slog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		health:   health,
		interval: interval,
		timeout:  2 * time.Second,
		log:      log.With("component", "health"),
		last:     make(map[string]DependencyStatus),
	}
}

// Add registers a named check. A failing non-critical check is reported but
// leaves the process serving.
func (p *Prober) Add(name string, critical bool, check Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = append(p.probes, probe{name: name, check: check, critical: critical})
}

// DBCheck pings the database behind gdb.
func DBCheck(gdb *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// RedisCheck pings redis directly, bypassing the breaker.
func RedisCheck(c *cache.RedisCache) Check {
	return func(ctx context.Context) error { return c.Ping(ctx) }
}

// Run executes every check once and reports whether the process is serving.
func (p *Prober) Run(ctx context.Context) bool {
	p.mu.RLock()
	probes := append([]probe(nil), p.probes...)
	p.mu.RUnlock()

	serving := true
	results := make(map[string]DependencyStatus, len(probes))
	for _, pr := range probes {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := pr.check(cctx)
		cancel()

		st := DependencyStatus{Name: pr.name, Healthy: err == nil, Critical: pr.critical, CheckedAt: time.Now().UTC()}
		if err != nil {
			st.Error = err.Error()
			if pr.critical {
				serving = false
			}
		}
		results[pr.name] = st
		if p.health != nil {
			p.health.SetServing(pr.name, err == nil)
		}
	}

	p.mu.Lock()
	for name, st := range results {
		if prev, ok := p.last[name]; ok && prev.Healthy != st.Healthy {
			p.log.Warn("dependency health changed", "dependency", name, "healthy", st.Healthy, "err", st.Error)
		}
		p.last[name] = st
	}
	p.mu.Unlock()

	if p.health != nil {
		p.health.SetServing("", serving)
	}
	return serving
}

// Snapshot returns the last results sorted by name and the overall status.
func (p *Prober) Snapshot() ([]DependencyStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]DependencyStatus, 0, len(p.last))
	serving := true
	for _, st := range p.last {
		out = append(out, st)
		if st.Critical && !st.Healthy {
			serving = false
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, serving
}

// Serve probes immediately and then on every tick until ctx is done.
func (p *Prober) Serve(ctx context.Context) error {
	p.Run(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.health != nil {
				p.health.Shutdown()
			}
			return ctx.Err()
		case <-ticker.C:
			p.Run(ctx)
		}
	}
}

func (p *Prober) String() string { return "health-prober" }
