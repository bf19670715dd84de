package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-seqworker/core"
)

// WorkerSnapshotProvider provides current worker stats snapshots.
type WorkerSnapshotProvider interface {
	Stats() core.WorkerStats
}

// SnapshotPoller periodically exports worker Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	workersMu sync.RWMutex
	workers   map[string]WorkerSnapshotProvider

	workerStaged    *prom.GaugeVec
	workerPending   *prom.GaugeVec
	workerRunning   *prom.GaugeVec
	workerDelivered *prom.GaugeVec
	workerFailed    *prom.GaugeVec
	workerDiscarded *prom.GaugeVec
	workerState     *prom.GaugeVec

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

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "seqworker",
			Name:      name,
			Help:      help,
		}, []string{"worker"})
	}

	p := &SnapshotPoller{
		interval:        interval,
		workers:         make(map[string]WorkerSnapshotProvider),
		workerStaged:    gauge("worker_staged", "Tasks waiting in the startup staging buffer."),
		workerPending:   gauge("worker_pending", "Tasks waiting in the live queue."),
		workerRunning:   gauge("worker_running", "Tasks currently executing (0 or 1)."),
		workerDelivered: gauge("worker_delivered_total", "Worker delivered result count snapshot."),
		workerFailed:    gauge("worker_failed_total", "Worker failed result count snapshot."),
		workerDiscarded: gauge("worker_discarded_total", "Worker discarded task count snapshot."),
		workerState:     gauge("worker_state", "Worker lifecycle state (0=created, 1=starting, 2=ready, 3=stopping, 4=stopped)."),
	}

	var err error
	for _, vec := range []**prom.GaugeVec{
		&p.workerStaged, &p.workerPending, &p.workerRunning,
		&p.workerDelivered, &p.workerFailed, &p.workerDiscarded, &p.workerState,
	} {
		if *vec, err = registerCollector(reg, *vec); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// AddWorker adds or replaces a worker snapshot provider by name.
func (p *SnapshotPoller) AddWorker(name string, provider WorkerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "worker")
	p.workersMu.Lock()
	p.workers[name] = provider
	p.workersMu.Unlock()
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

	go p.loop(pollCtx, p.done)
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

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

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
	p.workersMu.RLock()
	defer p.workersMu.RUnlock()

	for name, provider := range p.workers {
		stats := provider.Stats()
		p.workerStaged.WithLabelValues(name).Set(float64(stats.Staged))
		p.workerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.workerRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.workerDelivered.WithLabelValues(name).Set(float64(stats.Delivered))
		p.workerFailed.WithLabelValues(name).Set(float64(stats.Failed))
		p.workerDiscarded.WithLabelValues(name).Set(float64(stats.Discarded))
		p.workerState.WithLabelValues(name).Set(float64(stats.State))
	}
}
