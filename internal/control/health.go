package control

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	healthInterval = 5 * time.Second

	memWarnBytes     = 128 << 20
	memCriticalBytes = 256 << 20
)

// HealthMonitor watches the slow-moving system signals: process heap,
// sensor transport, valid sensor population. It raises sub-severe
// failsafe levels as signals degrade and clears the level back to Normal
// when every signal has been good again; the severe band is never
// touched from here.
type HealthMonitor struct {
	log    *logger.Logger
	store  SnapshotSource
	relays RelayBank
	params *config.SafetyParams
	coord  *Coordinator

	clock func() time.Time
}

func NewHealthMonitor(
	store SnapshotSource,
	relays RelayBank,
	params *config.SafetyParams,
	coord *Coordinator,
	log *logger.Logger,
) *HealthMonitor {
	return &HealthMonitor{
		log:    log,
		store:  store,
		relays: relays,
		params: params,
		coord:  coord,
		clock:  time.Now,
	}
}

// Run drives the health cadence until the context ends.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	h.log.Infof("health: monitor started")
	for {
		select {
		case <-ctx.Done():
			h.log.Infof("health: monitor stopping")
			return
		case <-ticker.C:
			h.check(h.clock())
		}
	}
}

func (h *HealthMonitor) check(now time.Time) {
	healthy := true

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	switch {
	case ms.HeapAlloc > memCriticalBytes:
		healthy = false
		h.coord.Trigger(models.LevelCritical, models.ReasonLowMemory,
			fmt.Sprintf("heap at %d MiB", ms.HeapAlloc>>20))
	case ms.HeapAlloc > memWarnBytes:
		healthy = false
		h.coord.Trigger(models.LevelWarning, models.ReasonLowMemory,
			fmt.Sprintf("heap at %d MiB", ms.HeapAlloc>>20))
	}

	snap, ok := h.store.Snapshot()
	if !ok || !snap.CommOK {
		healthy = false
		h.coord.Trigger(models.LevelWarning, models.ReasonCommLoss, "no recent sensor readings")
	} else {
		view := h.params.Snapshot()
		if n := snap.ValidSensorCount(now, view.SensorStale); n < view.MinSensors {
			healthy = false
			h.coord.Trigger(models.LevelDegraded, models.ReasonSensorFailure,
				fmt.Sprintf("%d valid sensors, %d required", n, view.MinSensors))
		}
	}

	// These have their own escalation owners; here they only hold back
	// the all-clear.
	if h.store.ConsecutiveReadTimeouts() > 0 {
		healthy = false
	}
	if h.relays.Desired() != h.relays.Mask() {
		healthy = false
	}

	if healthy {
		lvl := h.coord.Level()
		if lvl > models.LevelNormal && !lvl.Severe() {
			if h.coord.ResetToNormal() {
				h.log.Infof("health: all checks passing, %v cleared", lvl)
			}
		}
	}
}
