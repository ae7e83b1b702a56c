package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/calder-io/asyncrun/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// SnapshotPoller periodically exports pool/queue Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolDelayed *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	queuePending  *prom.GaugeVec
	queueInFlight *prom.GaugeVec
	queueComplete *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "pool_active",
		Help:      "Active tasks per pool.",
	}, []string{"pool"})
	poolDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "pool_delayed",
		Help:      "Tasks waiting on the pool run loop.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=closed).",
	}, []string{"pool"})

	queuePending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "queue_pending",
		Help:      "Pending tasks per queue.",
	}, []string{"queue"})
	queueInFlight := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "queue_in_flight",
		Help:      "In-flight tasks per queue.",
	}, []string{"queue"})
	queueComplete := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncrun",
		Name:      "queue_complete",
		Help:      "Queue completion state (1=closed, 0=open).",
	}, []string{"queue"})

	var err error
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolDelayed, err = registerCollector(reg, poolDelayed); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if queuePending, err = registerCollector(reg, queuePending); err != nil {
		return nil, err
	}
	if queueInFlight, err = registerCollector(reg, queueInFlight); err != nil {
		return nil, err
	}
	if queueComplete, err = registerCollector(reg, queueComplete); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		pools:         make(map[string]PoolSnapshotProvider),
		queues:        make(map[string]QueueSnapshotProvider),
		poolQueued:    poolQueued,
		poolActive:    poolActive,
		poolDelayed:   poolDelayed,
		poolWorkers:   poolWorkers,
		poolRunning:   poolRunning,
		queuePending:  queuePending,
		queueInFlight: queueInFlight,
		queueComplete: queueComplete,
	}, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()

	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		if stats.Complete {
			p.queueComplete.WithLabelValues(name).Set(1)
		} else {
			p.queueComplete.WithLabelValues(name).Set(0)
		}
	}
	p.queuesMu.RUnlock()
}
