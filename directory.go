package j1939

import "sync"

// InsertResult reports the outcome of Directory.Insert.
type InsertResult int

const (
	// Claimed means the caller now owns the requested address.
	Claimed InsertResult = iota
	// Idled means the requested address was out of range (> 253) and the
	// caller's entry now has the Idle address.
	Idled
	// Rejected means a higher priority name already owns the address; the
	// caller's entry is set to Idle instead.
	Rejected
)

// NewNameFunc is invoked each time Insert assigns an address to a NAME
// (not for an Insert that finds the NAME already holding that address),
// while the directory's write lock is held. It must not re-enter the
// directory (spec.md §4.1 "Concurrency").
type NewNameFunc func(name NAME, address uint8)

// Directory is the concurrent, bidirectional NAME <-> address map shared
// by every component that needs to resolve or assign J1939 addresses.
// Safe for concurrent use; readers take a shared lock, writers exclusive.
type Directory struct {
	mu            sync.RWMutex
	nameToAddr    map[NAME]uint8
	addrToName    map[uint8]NAME
	interfaceName string
	onNewName     NewNameFunc
}

// NewDirectory creates an empty directory for the named interface.
func NewDirectory(interfaceName string) *Directory {
	return &Directory{
		nameToAddr:    make(map[NAME]uint8),
		addrToName:    make(map[uint8]NAME),
		interfaceName: interfaceName,
	}
}

// SetNewNameCallback installs the callback fired whenever Insert assigns an
// address to a NAME. It takes the directory's write lock.
func (d *Directory) SetNewNameCallback(fn NewNameFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onNewName = fn
}

func (d *Directory) InterfaceName() string {
	return d.interfaceName
}

// Insert records that name claims addr. See spec.md §4.1 for the exact
// tri-state semantics.
func (d *Directory) Insert(name NAME, addr uint8) InsertResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr > 253 {
		d.setIdleLocked(name)
		return Idled
	}

	other, occupied := d.addrToName[addr]
	switch {
	case !occupied:
		d.claimLocked(name, addr)
		return Claimed
	case other == name:
		return Claimed
	case name < other:
		d.setIdleLocked(other)
		d.claimLocked(name, addr)
		return Claimed
	default:
		d.setIdleLocked(name)
		return Rejected
	}
}

func (d *Directory) claimLocked(name NAME, addr uint8) {
	d.nameToAddr[name] = addr
	d.addrToName[addr] = name
	if d.onNewName != nil {
		d.onNewName(name, addr)
	}
}

// setIdleLocked records name as known with no address. Per spec.md §4.1
// this does not fire the new-name callback — only a successful address
// claim does.
func (d *Directory) setIdleLocked(name NAME) {
	if old, ok := d.nameToAddr[name]; ok && old < 254 {
		delete(d.addrToName, old)
	}
	d.nameToAddr[name] = AddressIdle
}

// Release sets name's address to Idle without removing the entry.
func (d *Directory) Release(name NAME) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setIdleLocked(name)
}

// Remove deletes name's entry entirely.
func (d *Directory) Remove(name NAME) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if addr, ok := d.nameToAddr[name]; ok {
		if addr < 254 {
			delete(d.addrToName, addr)
		}
		delete(d.nameToAddr, name)
	}
}

// Available reports whether addr has no owner.
func (d *Directory) Available(addr uint8) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, occupied := d.addrToName[addr]
	return !occupied
}

// Claimable reports whether name could take over addr: either addr is
// free, or addr is held by a lower-or-equal priority NAME (a larger NAME
// value).
func (d *Directory) Claimable(addr uint8, name NAME) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	other, occupied := d.addrToName[addr]
	return !occupied || other >= name
}

// GetAddress returns the address currently associated with name, or
// AddressIdle if name is unknown or idle.
func (d *Directory) GetAddress(name NAME) uint8 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.nameToAddr[name]
	if !ok {
		return AddressIdle
	}
	return addr
}

// GetName returns the NAME owning addr and true, or false if addr is free.
func (d *Directory) GetName(addr uint8) (NAME, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.addrToName[addr]
	return name, ok
}

// Full reports whether every unicast address (0..253) is occupied.
func (d *Directory) Full() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.addrToName) >= int(AddressIdle)
}

// FindAddress searches for an address name may claim, starting at
// preferred and wrapping through [0, 254). Non-self-configurable NAMEs
// (SelfConfigurable() == false) only ever accept preferred itself; they
// never receive a substitute (spec.md §4.1, §9 "Self-configurable NAMEs").
func (d *Directory) FindAddress(name NAME, preferred uint8) (uint8, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if preferred < 254 && d.claimableLocked(preferred, name) {
		return preferred, true
	}
	if !name.SelfConfigurable() {
		return 0, false
	}
	for _, addr := range d.searchOrder(preferred) {
		if d.claimableLocked(addr, name) {
			return addr, true
		}
	}
	return 0, false
}

func (d *Directory) claimableLocked(addr uint8, name NAME) bool {
	other, occupied := d.addrToName[addr]
	return !occupied || other >= name
}

// searchOrder yields 0..253 starting at preferred and wrapping, excluding
// preferred itself (already checked by the caller).
func (d *Directory) searchOrder(preferred uint8) []uint8 {
	order := make([]uint8, 0, 253)
	for a := int(preferred) + 1; a < 254; a++ {
		order = append(order, uint8(a))
	}
	for a := 0; a < int(preferred); a++ {
		order = append(order, uint8(a))
	}
	return order
}

// Snapshot returns a copy of every known NAME and its current address.
func (d *Directory) Snapshot() map[NAME]uint8 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[NAME]uint8, len(d.nameToAddr))
	for n, a := range d.nameToAddr {
		out[n] = a
	}
	return out
}
