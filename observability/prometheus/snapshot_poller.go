package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-task-scheduler/core"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports scheduler/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	schedulerTasks    *prom.GaugeVec // by state: queued, pending, running
	schedulerThreads  *prom.GaugeVec
	schedulerSlots    *prom.GaugeVec // by tier threshold
	schedulerBlockers *prom.GaugeVec
	schedulerClosed   *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

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

	schedulerTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "scheduler_tasks",
		Help:      "Tasks held by a scheduler, by state.",
	}, []string{"scheduler", "state"})
	schedulerThreads := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "scheduler_threads",
		Help:      "Total slots across all allocation tiers.",
	}, []string{"scheduler"})
	schedulerSlots := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "scheduler_tier_slots",
		Help:      "Configured slots per allocation tier threshold.",
	}, []string{"scheduler", "threshold"})
	schedulerBlockers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "scheduler_blockers",
		Help:      "Registered external blockers.",
	}, []string{"scheduler"})
	schedulerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "scheduler_closed",
		Help:      "Scheduler closed state (1=closed, 0=open).",
	}, []string{"scheduler"})

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "pool_queued",
		Help:      "Queued work per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "pool_active",
		Help:      "Active work per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	var err error
	if schedulerTasks, err = registerCollector(reg, schedulerTasks); err != nil {
		return nil, err
	}
	if schedulerThreads, err = registerCollector(reg, schedulerThreads); err != nil {
		return nil, err
	}
	if schedulerSlots, err = registerCollector(reg, schedulerSlots); err != nil {
		return nil, err
	}
	if schedulerBlockers, err = registerCollector(reg, schedulerBlockers); err != nil {
		return nil, err
	}
	if schedulerClosed, err = registerCollector(reg, schedulerClosed); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:          interval,
		schedulers:        make(map[string]SchedulerSnapshotProvider),
		pools:             make(map[string]PoolSnapshotProvider),
		schedulerTasks:    schedulerTasks,
		schedulerThreads:  schedulerThreads,
		schedulerSlots:    schedulerSlots,
		schedulerBlockers: schedulerBlockers,
		schedulerClosed:   schedulerClosed,
		poolQueued:        poolQueued,
		poolActive:        poolActive,
		poolWorkers:       poolWorkers,
		poolRunning:       poolRunning,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
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

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerTasks.WithLabelValues(name, core.CanceledWhileQueued).Set(float64(stats.Queued))
		p.schedulerTasks.WithLabelValues(name, core.CanceledWhilePending).Set(float64(stats.Pending))
		p.schedulerTasks.WithLabelValues(name, core.CanceledWhileRunning).Set(float64(stats.Running))
		p.schedulerThreads.WithLabelValues(name).Set(float64(stats.ThreadsCount))
		p.schedulerSlots.DeletePartialMatch(prom.Labels{"scheduler": name})
		for _, tier := range stats.Allocations {
			p.schedulerSlots.WithLabelValues(name, priorityLabel(tier.Threshold)).Set(float64(tier.Slots))
		}
		p.schedulerBlockers.WithLabelValues(name).Set(float64(stats.Blockers))
		p.schedulerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.schedulersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}
