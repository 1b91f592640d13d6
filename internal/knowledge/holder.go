package knowledge

import "sync/atomic"

// Holder publishes the current snapshot. Loads are lock-free; a swap is a
// single atomic pointer store.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

// NewHolder returns a holder publishing s, which may be nil.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s != nil {
		h.cur.Store(s)
	}
	return h
}

// Load returns the current snapshot or nil if none was published yet.
func (h *Holder) Load() *Snapshot { return h.cur.Load() }

// Swap publishes s and returns the previous snapshot.
func (h *Holder) Swap(s *Snapshot) *Snapshot { return h.cur.Swap(s) }

// Version returns the current version, or "" when empty.
func (h *Holder) Version() string {
	if s := h.cur.Load(); s != nil {
		return s.Version()
	}
	return ""
}
