package j1939

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager is the multi-CA fan-out described in spec.md §4.4: when a host
// application hosts more than one local NAME simultaneously, Manager owns
// one Claimer per NAME, routes incoming frames to the right claimer(s),
// and de-duplicates the directory's per-claim new-name callback into a
// fires-once-per-NAME "new controller" notification, grounded on
// original_source/include/jay/address_manager.hpp's on_new_controller.
type Manager struct {
	dir      *Directory
	observer Observer
	logger   *log.Logger

	mu       sync.RWMutex
	claimers map[NAME]*Claimer
	seen     map[NAME]bool
}

// NewManager creates a Manager over dir. observer receives every claimer's
// frame/address/error callbacks, plus the de-duplicated OnNewName.
func NewManager(dir *Directory, observer Observer, logger *log.Logger) *Manager {
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &Manager{
		dir:      dir,
		observer: observer,
		logger:   logger,
		claimers: make(map[NAME]*Claimer),
		seen:     make(map[NAME]bool),
	}
	dir.SetNewNameCallback(m.onDirectoryNewName)
	return m
}

func (m *Manager) onDirectoryNewName(name NAME, addr uint8) {
	m.mu.Lock()
	first := !m.seen[name]
	m.seen[name] = true
	m.mu.Unlock()
	if first {
		m.observer.OnNewName(name, addr)
	}
}

// Acquire starts (or returns the existing) Claimer for name and kicks off
// address claim with the given preferred address.
func (m *Manager) Acquire(name NAME, preferred uint8) *Claimer {
	m.mu.Lock()
	c, ok := m.claimers[name]
	if !ok {
		c = NewClaimer(name, m.dir, m.observer, m.logger)
		m.claimers[name] = c
	}
	m.mu.Unlock()
	c.StartAddressClaim(preferred)
	return c
}

// Claimer returns the claimer owning name, if any.
func (m *Manager) Claimer(name NAME) (*Claimer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claimers[name]
	return c, ok
}

// Process routes an incoming claim/request frame to the claimer(s) it
// concerns: a frame addressed to a specific address (PS < AddressIdle)
// goes only to the local claimer whose NAME owns that address in the
// directory, and is dropped when there is none; a frame with PS >=
// AddressIdle (global requests, address claims, which always carry PS =
// AddressGlobal) goes to every claimer so each can run its own
// conflict/defense logic.
func (m *Manager) Process(f Frame) {
	h := f.Header
	if !h.IsClaim() && !h.IsRequest() {
		return
	}
	if h.PS < AddressIdle {
		if name, ok := m.dir.GetName(h.PS); ok {
			if c, ok := m.Claimer(name); ok {
				c.Process(f)
			}
		}
		return
	}
	m.mu.RLock()
	targets := make([]*Claimer, 0, len(m.claimers))
	for _, c := range m.claimers {
		targets = append(targets, c)
	}
	m.mu.RUnlock()
	for _, c := range targets {
		c.Process(f)
	}
}

// Close stops every owned claimer's strand.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.claimers {
		c.Close()
	}
}
