package powerstate

import (
	"context"
	"time"

	"supervisor-fw/types"
)

// handleEvent is the single dispatch point for every input the machine
// consumes. Guard evaluation follows spec.md §4.7's tie-break order: hard
// protective (VIN loss, folded into EvTelemetryChanged handling below) >
// bus commands > button events > timers — enforced by Run's priority
// polling rather than here, since by the time an event reaches this
// function its class is already fixed.
func (m *Machine) handleEvent(ev types.Event, ctx context.Context) {
	cfg := m.cfg()

	// The PoweredOn super-state's !cm_on handler takes precedence over
	// every child's own handling (spec.md §4.7: "Any PoweredOn child ->
	// !cm_on -> PoweredDownManual" and "super-state handlers... take
	// precedence over child handlers").
	if ev.Kind == types.EvTelemetryChanged && m.state.IsPoweredOnChild() && !ev.Snapshot.CMOn {
		m.enter(types.PoweredDownManual, time.Now())
		return
	}

	switch m.state {
	case types.PowerOff:
		m.handlePowerOff(ev)
	case types.OffCharging:
		m.handleOffCharging(ev)
	case types.SystemStartup:
		m.handleSystemStartup(ev)
	case types.OperationalSolo:
		m.handleOperational(ev, cfg, false)
	case types.OperationalCoOp:
		m.handleOperational(ev, cfg, true)
	case types.BlackoutSolo:
		m.handleBlackout(ev, cfg, false)
	case types.BlackoutCoOp:
		m.handleBlackout(ev, cfg, true)
	case types.HostUnresponsive:
		m.handleHostUnresponsive(ev)
	case types.EnteringStandby:
		m.handleEnteringStandby(ev)
	case types.Standby:
		m.handleStandby(ev)
	case types.BlackoutShutdown:
		m.handleBlackoutShutdown(ev)
	case types.PoweredDownBlackout:
		m.handlePoweredDownBlackout(ev)
	case types.PoweredDownManual:
		m.handlePoweredDownManual(ev, cfg)
	}
}

func (m *Machine) handlePowerOff(ev types.Event) {
	if ev.Kind == types.EvTelemetryChanged && ev.Snapshot.VinMV > int32(vinThresholdMV(m.cfg())) {
		m.enter(types.OffCharging, time.Now())
	}
}

func (m *Machine) handleOffCharging(ev types.Event) {
	if ev.Kind != types.EvTelemetryChanged {
		return
	}
	cfg := m.cfg()
	if ev.Snapshot.VinMV <= int32(vinThresholdMV(cfg)) {
		m.enter(types.PowerOff, time.Now())
		return
	}
	if ev.Snapshot.VscapMV >= int32(cfg.PowerOnVscapCV)*10 {
		m.enter(types.SystemStartup, time.Now())
	}
}

func (m *Machine) handleSystemStartup(ev types.Event) {
	switch ev.Kind {
	case types.EvTelemetryChanged:
		if ev.Snapshot.VinMV <= int32(vinThresholdMV(m.cfg())) {
			m.enter(types.PowerOff, time.Now())
			return
		}
		if ev.Snapshot.CMOn {
			m.enter(types.OperationalSolo, time.Now())
		}
	case types.EvTimerExpired:
		if ev.Timer == types.TimerSBCStrobe {
			m.hw.SBCStrobe.Set(false)
		}
	}
}

func (m *Machine) handleOperational(ev types.Event, cfg types.ConfigRecord, coop bool) {
	switch ev.Kind {
	case types.EvTelemetryChanged:
		if ev.Snapshot.VinMV <= int32(vinThresholdMV(cfg)) {
			if coop {
				m.enter(types.BlackoutCoOp, time.Now())
			} else {
				m.enter(types.BlackoutSolo, time.Now())
			}
		}
	case types.EvSetWatchdogTimeout:
		if coop && ev.WatchdogTimeoutMS == 0 {
			m.enter(types.OperationalSolo, time.Now())
		} else if !coop && ev.WatchdogTimeoutMS > 0 {
			m.enter(types.OperationalCoOp, time.Now())
		}
	case types.EvStandbyShutdown:
		m.enter(types.EnteringStandby, time.Now())
	case types.EvShutdown, types.EvOff:
		m.enter(types.PoweredDownManual, time.Now())
	case types.EvWatchdogPing:
		if coop {
			m.lastPingAt = time.Now()
			m.armTimer(types.TimerWatchdogExpiry, time.Duration(cfg.WatchdogTimeoutMS)*time.Millisecond)
		}
	case types.EvTimerExpired:
		if coop && ev.Timer == types.TimerWatchdogExpiry {
			m.enter(types.HostUnresponsive, time.Now())
		}
	}
}

func (m *Machine) handleBlackout(ev types.Event, cfg types.ConfigRecord, coop bool) {
	switch ev.Kind {
	case types.EvTelemetryChanged:
		if ev.Snapshot.VinMV > int32(vinThresholdMV(cfg)) {
			if coop {
				m.enter(types.OperationalCoOp, time.Now())
			} else {
				m.enter(types.OperationalSolo, time.Now())
			}
		}
	case types.EvShutdown:
		if coop {
			m.enter(types.BlackoutShutdown, time.Now())
		}
	case types.EvTimerExpired:
		if !coop && ev.Timer == types.TimerSoloDepleting {
			m.enter(types.BlackoutShutdown, time.Now())
		}
	}
}

func (m *Machine) handleHostUnresponsive(ev types.Event) {
	switch ev.Kind {
	case types.EvWatchdogPing:
		m.lastPingAt = time.Now()
		m.enter(types.OperationalCoOp, time.Now())
	case types.EvTimerExpired:
		if ev.Timer == types.TimerHostGrace {
			m.enter(types.PoweredDownBlackout, time.Now())
		}
	}
}

func (m *Machine) handleEnteringStandby(ev types.Event) {
	if ev.Kind == types.EvTelemetryChanged && !ev.Snapshot.CMOn {
		m.enter(types.Standby, time.Now())
		return
	}
	if ev.Kind == types.EvTimerExpired && ev.Timer == types.TimerStandbyEntry {
		m.enter(types.Standby, time.Now())
	}
}

func (m *Machine) handleStandby(ev types.Event) {
	if ev.Kind == types.EvTelemetryChanged && ev.Snapshot.CMOn {
		m.enter(types.OperationalSolo, time.Now())
	}
}

func (m *Machine) handleBlackoutShutdown(ev types.Event) {
	if ev.Kind == types.EvTelemetryChanged && !ev.Snapshot.CMOn {
		m.enter(types.PoweredDownBlackout, time.Now())
		return
	}
	if ev.Kind == types.EvTimerExpired && ev.Timer == types.TimerShutdownCMOff {
		m.enter(types.PoweredDownBlackout, time.Now())
	}
}

func (m *Machine) handlePoweredDownBlackout(ev types.Event) {
	switch ev.Kind {
	case types.EvTimerExpired:
		if ev.Timer == types.TimerPoweredDownBlackout {
			m.requestSystemReset()
		}
	case types.EvShortPress, types.EvLongPress, types.EvHeldForReset:
		m.requestSystemReset()
	}
}

func (m *Machine) handlePoweredDownManual(ev types.Event, cfg types.ConfigRecord) {
	switch ev.Kind {
	case types.EvShortPress, types.EvLongPress, types.EvHeldForReset:
		m.requestSystemReset()
	case types.EvTimerExpired:
		if ev.Timer == types.TimerPoweredDownAutoRestart && cfg.AutoRestart && m.snap.VinMV > int32(vinThresholdMV(cfg)) {
			m.requestSystemReset()
		}
	case types.EvTelemetryChanged:
		if ev.Snapshot.VinMV <= int32(vinThresholdMV(cfg)) {
			m.requestSystemReset()
		}
	}
}

func vinThresholdMV(cfg types.ConfigRecord) uint16 {
	return cfg.VinThresholdCV * 10
}

// enter performs the transition's exit/enter actions: cancels the prior
// state's timers, applies the new state's 5V-rail/strobe/reset actions,
// arms whatever named timer the new state owns, and publishes the new
// state retained (spec.md §4.7 per-state enter-actions; spec.md §5
// timer-ownership cancellation).
func (m *Machine) enter(next types.State, now time.Time) {
	m.cancelTimer()
	prev := m.state
	m.state = next
	m.stateEnteredAt = now

	m.hw.FiveVEnable.Set(next.Is5VEnabled())

	switch next {
	case types.SystemStartup:
		m.hw.SBCStrobe.Set(true)
		m.armTimer(types.TimerSBCStrobe, sbcStrobeDuration)
	case types.OperationalCoOp:
		m.lastPingAt = now
		cfg := m.cfg()
		if cfg.WatchdogTimeoutMS > 0 {
			m.armTimer(types.TimerWatchdogExpiry, time.Duration(cfg.WatchdogTimeoutMS)*time.Millisecond)
		}
	case types.BlackoutSolo:
		cfg := m.cfg()
		m.armTimer(types.TimerSoloDepleting, time.Duration(cfg.SoloDepletingTimeoutMS)*time.Millisecond)
	case types.HostUnresponsive:
		m.armTimer(types.TimerHostGrace, hostGraceTimeout)
	case types.EnteringStandby:
		m.armTimer(types.TimerStandbyEntry, standbyEntryTimeout)
	case types.BlackoutShutdown:
		m.hw.SBCStrobe.Set(true)
		m.armTimer(types.TimerShutdownCMOff, blackoutShutdownTimeout)
	case types.PoweredDownBlackout:
		m.hw.SBCStrobe.Set(false)
		m.armTimer(types.TimerPoweredDownBlackout, poweredDownBlackoutTimeout)
	case types.PoweredDownManual:
		m.hw.SBCStrobe.Set(false)
		cfg := m.cfg()
		if cfg.AutoRestart {
			m.armTimer(types.TimerPoweredDownAutoRestart, poweredDownAutoRestartTimeout)
		}
	case types.PowerOff, types.OffCharging:
		m.hw.SBCStrobe.Set(false)
	}

	m.publishState()
	if prev != next {
		m.logTransition(prev, next)
	}
}
