package mem

import "sync"

// MMU holds the translation context active on one core. User-mode memory
// accesses made by the CPU go through the active address space only.
type MMU struct {
	mu     sync.Mutex
	active *VmSpace
}

// Activate makes vs the active translation context.
func (m *MMU) Activate(vs *VmSpace) {
	m.mu.Lock()
	m.active = vs
	m.mu.Unlock()
}

// Deactivate drops the active translation context.
func (m *MMU) Deactivate() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}

// Active returns the active address space, or nil.
func (m *MMU) Active() *VmSpace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Fetch reads instruction bytes at addr.
func (m *MMU) Fetch(addr uint64, p []byte) error {
	return m.access(addr, p, PermX|PermU, false)
}

// Load reads data bytes at addr.
func (m *MMU) Load(addr uint64, p []byte) error {
	return m.access(addr, p, PermR|PermU, false)
}

// Store writes data bytes at addr.
func (m *MMU) Store(addr uint64, p []byte) error {
	return m.access(addr, p, PermW|PermU, true)
}

func (m *MMU) access(addr uint64, p []byte, need Perm, write bool) error {
	vs := m.Active()
	if vs == nil {
		return &FaultError{Addr: addr, Access: accessFor(need), Err: ErrUnmapped}
	}
	return vs.Access(addr, p, need, write)
}
