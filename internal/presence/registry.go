// Package presence holds the process-wide mapping from a logged-in uid to
// its live connection, the single piece of shared mutable state every
// cross-connection fanout (buddy status, room broadcast, multi-login kick)
// reads or writes.
package presence

import (
	"sync"

	"github.com/palserver/paltalk-server/wire"
)

// Session is the subset of a live connection the presence/broadcast layer
// needs. The server package's connection type implements it; tests can
// supply a fake.
type Session interface {
	UID() uint32
	ProtocolVersion() uint16
	Status() (status uint32, message string)
	Send(f wire.Frame) error
	// Kick asynchronously disconnects this session, e.g. on multi-login.
	Kick(reason string)
}

// Registry is the process-wide uid -> connection map.
type Registry struct {
	mu   sync.RWMutex
	byID map[uint32]Session
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]Session)}
}

// Register adds sess under uid, returning the incumbent session if one was
// already registered (the caller is expected to kick it, per the
// multi-login eviction rule).
func (r *Registry) Register(uid uint32, sess Session) (incumbent Session, hadIncumbent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	incumbent, hadIncumbent = r.byID[uid]
	r.byID[uid] = sess
	return incumbent, hadIncumbent
}

// Unregister removes uid's entry, but only if it still points at sess —
// guards against a just-registered replacement session being clobbered by
// the outgoing session's deferred cleanup.
func (r *Registry) Unregister(uid uint32, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[uid]; ok && cur == sess {
		delete(r.byID, uid)
	}
}

// Lookup returns the live session for uid, if any.
func (r *Registry) Lookup(uid uint32) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[uid]
	return sess, ok
}

// IsOnline reports whether uid currently has a live connection.
func (r *Registry) IsOnline(uid uint32) bool {
	_, ok := r.Lookup(uid)
	return ok
}

// Send delivers f to uid's live connection, if any. It reports whether a
// live connection was found, not whether the write succeeded silently in
// the background.
func (r *Registry) Send(uid uint32, f wire.Frame) (delivered bool, err error) {
	sess, ok := r.Lookup(uid)
	if !ok {
		return false, nil
	}
	return true, sess.Send(f)
}

// Broadcast delivers f to every uid in targets that currently has a live
// connection, skipping the rest silently.
func (r *Registry) Broadcast(targets []uint32, f wire.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, uid := range targets {
		if sess, ok := r.byID[uid]; ok {
			_ = sess.Send(f)
		}
	}
}

// Count returns the number of logged-in sessions currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
