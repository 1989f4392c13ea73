// Package websocket provides the real-time avaria chat: the registry of
// connections subscribed to each avaria conversation and the per-connection
// protocol handler.
package websocket

import (
	"log/slog"
	"sync"
)

// Registry maps avaria ids to the connections subscribed to them, keyed by
// participant. A participant holds at most one connection per avaria; a new
// subscription replaces the previous one.
//
// Each avaria has its own bucket and lock so broadcasts to unrelated
// avarias never contend. The registry lock only guards the bucket map.
//
// Registry is safe for concurrent use.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	// removed is set when Sweep drops the bucket from the registry. A
	// subscriber that raced with the sweep must fetch a fresh bucket.
	removed bool
}

// RegistryStats is a point-in-time view of the registry.
type RegistryStats struct {
	Conversations int `json:"conversations"`
	Connections   int `json:"connections"`
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:     log,
		buckets: make(map[string]*bucket),
	}
}

func (r *Registry) lookup(avariaID string) *bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buckets[avariaID]
}

func (r *Registry) getOrCreate(avariaID string) *bucket {
	if b := r.lookup(avariaID); b != nil {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[avariaID]
	if !ok {
		b = &bucket{conns: make(map[string]*Connection)}
		r.buckets[avariaID] = b
	}
	return b
}

// Subscribe registers conn as participantID's connection for avariaID,
// replacing any previous one. A subscription held by the same participant
// under another avaria is left untouched.
func (r *Registry) Subscribe(avariaID, participantID string, conn *Connection) {
	for {
		b := r.getOrCreate(avariaID)
		b.mu.Lock()
		if b.removed {
			b.mu.Unlock()
			continue
		}
		b.conns[participantID] = conn
		b.mu.Unlock()
		break
	}

	r.log.Info("Participant joined avaria chat", "avaria_id", avariaID, "participant_id", participantID)
}

// Unsubscribe removes participantID from avariaID. It is a no-op when the
// participant is not subscribed. The connection is not closed.
func (r *Registry) Unsubscribe(avariaID, participantID string) {
	b := r.lookup(avariaID)
	if b == nil {
		return
	}

	b.mu.Lock()
	_, ok := b.conns[participantID]
	delete(b.conns, participantID)
	b.mu.Unlock()

	if ok {
		r.log.Info("Participant left avaria chat", "avaria_id", avariaID, "participant_id", participantID)
	}
}

// Detach removes conn from avariaID only if it is still the connection
// registered for its participant, so a superseded connection shutting down
// cannot evict its replacement.
func (r *Registry) Detach(avariaID string, conn *Connection) {
	b := r.lookup(avariaID)
	if b == nil {
		return
	}

	pid := conn.ParticipantID()
	b.mu.Lock()
	current, ok := b.conns[pid]
	if ok && current == conn {
		delete(b.conns, pid)
	}
	b.mu.Unlock()

	if ok && current == conn {
		r.log.Info("Participant left avaria chat", "avaria_id", avariaID, "participant_id", pid)
	}
}

// IsSubscribed reports whether participantID is subscribed to avariaID.
func (r *Registry) IsSubscribed(avariaID, participantID string) bool {
	b := r.lookup(avariaID)
	if b == nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.conns[participantID]
	return ok
}

// Broadcast sends payload to every open connection subscribed to avariaID
// and returns once every send has completed or failed. Failures are logged
// per recipient and never affect the other recipients.
func (r *Registry) Broadcast(avariaID string, payload []byte) {
	b := r.lookup(avariaID)
	if b == nil {
		return
	}

	b.mu.RLock()
	recipients := make(map[string]*Connection, len(b.conns))
	for pid, conn := range b.conns {
		recipients[pid] = conn
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for pid, conn := range recipients {
		if !conn.IsOpen() {
			continue
		}

		wg.Add(1)
		go func(pid string, conn *Connection) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("Broadcast delivery panicked", "avaria_id", avariaID, "participant_id", pid, "panic", rec)
				}
			}()

			if err := conn.Send(payload); err != nil {
				r.log.Warn("Broadcast delivery failed", "avaria_id", avariaID, "participant_id", pid, "error", err)
			}
		}(pid, conn)
	}
	wg.Wait()
}

// Sweep drops avarias that have no subscribers left and returns how many
// were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, b := range r.buckets {
		b.mu.Lock()
		if len(b.conns) == 0 {
			b.removed = true
			delete(r.buckets, id)
			dropped++
		}
		b.mu.Unlock()
	}
	return dropped
}

// Stats returns the number of tracked avarias and subscribed connections.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{Conversations: len(r.buckets)}
	for _, b := range r.buckets {
		b.mu.RLock()
		stats.Connections += len(b.conns)
		b.mu.RUnlock()
	}
	return stats
}
