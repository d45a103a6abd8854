package swap

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"swapd/pkg/bridge"
	"swapd/pkg/types"
)

// monitorSet tracks the active monitoring goroutines, at most one per
// swap id. Each monitor carries its own stop channel so cancelling one
// never affects the others.
type monitorSet struct {
	mu    sync.Mutex
	stops map[string]chan struct{}
	wg    sync.WaitGroup
}

func newMonitorSet() *monitorSet {
	return &monitorSet{stops: make(map[string]chan struct{})}
}

// add registers a stop channel for a swap id. Returns false if a
// monitor is already live for the id.
func (m *monitorSet) add(id string) (chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stops[id]; exists {
		return nil, false
	}
	stop := make(chan struct{})
	m.stops[id] = stop
	return stop, true
}

func (m *monitorSet) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stops, id)
}

// stop cancels the monitor for id. Calling it for a swap with no active
// monitor is a no-op.
func (m *monitorSet) stop(id string) {
	m.mu.Lock()
	stop, exists := m.stops[id]
	if exists {
		delete(m.stops, id)
	}
	m.mu.Unlock()
	if exists {
		close(stop)
	}
}

func (m *monitorSet) stopAll() {
	m.mu.Lock()
	for id, stop := range m.stops {
		close(stop)
		delete(m.stops, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// active reports whether a monitor is live for id.
func (m *monitorSet) active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.stops[id]
	return exists
}

// runMonitor polls the provider's status endpoint at a fixed interval
// with a bounded attempt budget, advancing the durable record until a
// terminal status, exhaustion, or cancellation.
func (o *Orchestrator) runMonitor(swap *types.Swap, provider bridge.Provider, stop chan struct{}) {
	defer o.monitors.wg.Done()
	defer o.monitors.remove(swap.ID)

	log := o.log.With(zap.String("swap_id", swap.ID), zap.String("provider", provider.Name()))
	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.monitorMaxAttempts; attempt++ {
		select {
		case <-stop:
			log.Info("monitor cancelled")
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), o.monitorInterval)
		status, err := provider.GetStatus(ctx, swap)
		cancel()
		if err != nil {
			log.Warn("status poll failed", zap.Error(err))
			continue
		}

		updated, err := o.applyExecutionStatus(swap, status)
		if err != nil {
			log.Warn("status update failed", zap.Error(err))
			continue
		}
		swap = updated

		if status.Status.Terminal() {
			log.Info("monitor finished", zap.String("status", string(swap.Status)))
			return
		}
	}

	log.Warn("monitor exhausted its attempt budget",
		zap.Int("attempts", o.monitorMaxAttempts),
		zap.String("status", string(swap.Status)))
}

// applyExecutionStatus maps a provider report onto the durable record.
func (o *Orchestrator) applyExecutionStatus(swap *types.Swap, status *types.ExecutionStatus) (*types.Swap, error) {
	mapped := mapBridgeStatus(status.Status)
	if mapped == swap.Status && status.DestTx == "" {
		return swap, nil
	}

	return o.repo.UpdateStatus(context.Background(), swap.ID, mapped, UpdateExtra{
		SourceTx: status.SourceTx,
		DestTx:   status.DestTx,
		Error:    status.Error,
	})
}

func mapBridgeStatus(status types.BridgeStatus) types.SwapStatus {
	switch status {
	case types.BridgePending, types.BridgeProcessing:
		return types.StatusSubmitted
	case types.BridgeBridging:
		return types.StatusBridging
	case types.BridgeCompleted:
		return types.StatusCompleted
	case types.BridgeFailed, types.BridgeRefunded:
		return types.StatusFailed
	default:
		return types.StatusSubmitted
	}
}
