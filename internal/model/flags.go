// SPDX-License-Identifier: MIT

package model

import "sync/atomic"

// MonitoringFlags holds the process-wide operator controls read by every
// detector and the trigger pipeline. These are lock-free atomics, not state
// behind a mutex, since they are read far more often than written and never
// need to be observed together with any other field.
//
// The zero value is usable: both flags start false.
type MonitoringFlags struct {
	paused    atomic.Bool
	forceQuit atomic.Bool
}

// SetPaused sets or clears MONITORING_PAUSED. While set, the trigger
// pipeline drops every live event silently (gate 1 of the admission pipeline).
func (f *MonitoringFlags) SetPaused(v bool) { f.paused.Store(v) }

// Paused reports the current value of MONITORING_PAUSED.
func (f *MonitoringFlags) Paused() bool { return f.paused.Load() }

// SetForceQuit sets or clears FORCE_QUIT, permitting orderly termination
// that ignores any host minimise-to-tray policy.
func (f *MonitoringFlags) SetForceQuit(v bool) { f.forceQuit.Store(v) }

// ForceQuit reports the current value of FORCE_QUIT.
func (f *MonitoringFlags) ForceQuit() bool { return f.forceQuit.Load() }
