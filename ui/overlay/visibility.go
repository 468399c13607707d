package overlay

import "sync/atomic"

// visibility tracks show/hide requests that the window thread applies
// asynchronously. Each request gets a sequence number which the window
// thread acknowledges once it has run ShowWindow. Until the latest request
// is acknowledged the requested state is reported, so a freshly shown
// window is not mistaken for a dismissed one.
type visibility struct {
	shown   atomic.Bool
	seq     atomic.Uint64
	applied atomic.Uint64
}

// request records a show or hide and returns its sequence number.
func (v *visibility) request(show bool) uint64 {
	v.shown.Store(show)
	return v.seq.Add(1)
}

// ack marks every request up to seq as applied by the window thread.
func (v *visibility) ack(seq uint64) {
	for {
		cur := v.applied.Load()
		if seq <= cur || v.applied.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (v *visibility) pending() bool { return v.applied.Load() < v.seq.Load() }

// visible combines the requested state with what the OS reports once the
// request has been applied.
func (v *visibility) visible(osVisible func() bool) bool {
	if !v.shown.Load() {
		return false
	}
	if v.pending() {
		return true
	}
	return osVisible()
}
