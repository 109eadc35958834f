package sensor

import "sync"

// Mailbox is a single-slot, latest-wins hand-over for skeleton frames.
// Put never blocks; a frame that is overwritten before Take counts as a drop.
type Mailbox struct {
	mu    sync.Mutex
	frame SkeletonFrame
	full  bool
	drops uint64
}

// Put stores f, replacing any unconsumed frame. It reports whether a frame
// was dropped.
func (m *Mailbox) Put(f SkeletonFrame) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		m.drops++
		dropped = true
	}
	m.frame = f
	m.full = true
	return dropped
}

// Take removes and returns the stored frame, if any.
func (m *Mailbox) Take() (SkeletonFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return SkeletonFrame{}, false
	}
	m.full = false
	return m.frame, true
}

// Drops returns the number of frames overwritten before being taken.
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Reset empties the mailbox and clears the drop counter.
func (m *Mailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = SkeletonFrame{}
	m.full = false
	m.drops = 0
}
