package analysis

import (
	"sync"
	"time"

	"github.com/itohio/pvstab/pkg/link"
)

// Snapshot is the state handed to Monitor callbacks.
type Snapshot struct {
	Rows []link.Row  // rows inside the window, oldest first
	PCE  [][]float64 // PCE[ch][k] of Rows[k]
}

// Latest returns the most recent PCE of channel ch, or zero without rows.
func (s Snapshot) Latest(ch int) float64 {
	if ch >= len(s.PCE) || len(s.PCE[ch]) == 0 {
		return 0
	}
	return s.PCE[ch][len(s.PCE[ch])-1]
}

// Monitor keeps a sliding window of live rows and notifies listeners on each
// new row.
// Removal is based on the row's elapsed time, not the number of rows.
type Monitor struct {
	cell   Cell
	window float64 // seconds, 0 keeps every row

	mu       sync.RWMutex
	rows     []link.Row
	pce      [][]float64
	shutdown bool // set when the input channel closes, suppresses callbacks

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// NewMonitor creates a Monitor evaluating efficiency for cell.
func NewMonitor(cell Cell, window time.Duration) *Monitor {
	return &Monitor{
		cell:   cell,
		window: window.Seconds(),
	}
}

// ProcessRows consumes rows until input closes, then stops notifying.
func (m *Monitor) ProcessRows(input <-chan link.Row) {
	for r := range input {
		m.Add(r)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// Add appends a row, drops rows that fell out of the window and notifies
// listeners.
func (m *Monitor) Add(r link.Row) {
	m.mu.Lock()
	if r.Channels() != len(m.pce) {
		// channel count changed: start over
		m.rows = m.rows[:0]
		m.pce = make([][]float64, r.Channels())
	}
	m.rows = append(m.rows, r)
	for ch := range m.pce {
		m.pce[ch] = append(m.pce[ch], m.cell.PCE(r.PowerMW(ch)))
	}

	if m.window > 0 {
		cutoff := r.Elapsed - m.window
		drop := 0
		for drop < len(m.rows) && m.rows[drop].Elapsed < cutoff {
			drop++
		}
		if drop > 0 {
			m.rows = m.rows[drop:]
			for ch := range m.pce {
				m.pce[ch] = m.pce[ch][drop:]
			}
		}
	}
	notify := !m.shutdown
	m.mu.Unlock()

	if notify {
		m.notifyCallbacks()
	}
}

// Snapshot returns a copy of the current window.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Rows: make([]link.Row, len(m.rows)),
		PCE:  make([][]float64, len(m.pce)),
	}
	copy(s.Rows, m.rows)
	for ch := range m.pce {
		s.PCE[ch] = append([]float64(nil), m.pce[ch]...)
	}
	return s
}

// OnUpdate registers a callback invoked after every row.
// The callback should return quickly.
func (m *Monitor) OnUpdate(callback func(Snapshot)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown re-enables callbacks before a new run.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Monitor) notifyCallbacks() {
	snap := m.Snapshot()

	m.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
