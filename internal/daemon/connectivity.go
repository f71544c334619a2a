package daemon

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/habitloop/habitloop/internal/cloud"
)

// Provider reports cloud reachability. Changes delivers transition
// edges (true on regain, false on loss) so the orchestrator can sync
// immediately when the network comes back instead of waiting out the
// interval.
type Provider interface {
	Online() bool
	Changes() <-chan bool
}

// Monitor probes the cloud store on a fixed cadence and tracks
// reachability. It starts offline and flips online after the first
// successful probe.
type Monitor struct {
	client   cloud.Client
	logger   *log.Logger
	interval time.Duration
	online   atomic.Bool
	changes  chan bool
}

func NewMonitor(client cloud.Client, logger *log.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		client:   client,
		logger:   logger,
		interval: interval,
		changes:  make(chan bool, 4),
	}
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

func (m *Monitor) Changes() <-chan bool {
	return m.changes
}

// Run probes until ctx is cancelled. The first probe fires immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.client.Ping(ctx)
	now := err == nil
	was := m.online.Swap(now)
	if was == now {
		return
	}
	if now {
		m.logger.Printf("cloud reachable")
	} else {
		m.logger.Printf("cloud unreachable: %v", err)
	}
	select {
	case m.changes <- now:
	default:
	}
}
