// Package registry owns the sessions of peers registered with the server,
// keyed by the ip:port identity their datagrams arrive from.
package registry

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarnet/bazaar/types"
)

var (
	// ErrDuplicatePeer is returned by Register when the identity already has
	// a session.
	ErrDuplicatePeer = errors.New("peer already registered")
	// ErrRegistryFull is returned by Register once the peer limit is reached.
	ErrRegistryFull = errors.New("registry is full")
)

// Endpoint is the contact information a peer advertises when registering.
type Endpoint struct {
	IP      string
	UDPPort int
	TCPPort int
}

// Session is the server side record of a registered peer. Sessions are owned
// by the Registry and must only be touched inside WithSession.
type Session struct {
	ID           uuid.UUID
	Identity     string
	Name         string
	Addr         net.Addr
	Endpoint     Endpoint
	RegisteredAt time.Time

	Machine *PeerMachine
}

// SessionInfo is a point in time copy of a Session that is safe to keep.
type SessionInfo struct {
	ID           uuid.UUID       `json:"id"`
	Identity     string          `json:"identity"`
	Name         string          `json:"name"`
	Addr         net.Addr        `json:"-"`
	Endpoint     Endpoint        `json:"endpoint"`
	RegisteredAt time.Time       `json:"registered_at"`
	State        types.PeerState `json:"state"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		Identity:     s.Identity,
		Name:         s.Name,
		Addr:         s.Addr,
		Endpoint:     s.Endpoint,
		RegisteredAt: s.RegisteredAt,
		State:        s.Machine.Current(),
	}
}

// Identity returns the registry key for a datagram source address.
func Identity(addr net.Addr) string {
	return addr.String()
}

// Registry is safe for concurrent use. The lock is held only for the map
// operation itself.
type Registry struct {
	maxPeers int
	metrics  *Metrics
	now      func() time.Time

	mtx      sync.Mutex
	sessions map[string]*Session
}

// Option sets an optional parameter on the Registry.
type Option func(*Registry)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Registry) { r.metrics = metrics }
}

// WithMaxPeers limits the number of sessions. Zero means unlimited.
func WithMaxPeers(n int) Option {
	return func(r *Registry) { r.maxPeers = n }
}

func New(options ...Option) *Registry {
	r := &Registry{
		metrics:  NopMetrics(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Register creates a session for identity. An existing session is left
// untouched and ErrDuplicatePeer is returned.
func (r *Registry) Register(identity string, addr net.Addr, name string, endpoint Endpoint) (SessionInfo, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.sessions[identity]; ok {
		r.metrics.Registrations.With("result", "duplicate").Add(1)
		return SessionInfo{}, ErrDuplicatePeer
	}
	if r.maxPeers > 0 && len(r.sessions) >= r.maxPeers {
		r.metrics.Registrations.With("result", "full").Add(1)
		return SessionInfo{}, ErrRegistryFull
	}

	s := &Session{
		ID:           uuid.New(),
		Identity:     identity,
		Name:         name,
		Addr:         addr,
		Endpoint:     endpoint,
		RegisteredAt: r.now(),
		Machine:      NewPeerMachine(),
	}
	r.sessions[identity] = s

	r.metrics.Registrations.With("result", "ok").Add(1)
	r.metrics.Peers.Set(float64(len(r.sessions)))
	return s.info(), nil
}

// Deregister removes the session for identity and reports whether one
// existed. Removing an absent identity is a no-op.
func (r *Registry) Deregister(identity string) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.sessions[identity]; !ok {
		return false
	}
	delete(r.sessions, identity)

	r.metrics.Deregistrations.Add(1)
	r.metrics.Peers.Set(float64(len(r.sessions)))
	return true
}

// Lookup returns a copy of the session for identity.
func (r *Registry) Lookup(identity string) (SessionInfo, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	s, ok := r.sessions[identity]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// WithSession calls fn with the session for identity while holding the
// registry lock, and reports whether the session existed. fn must not call
// back into the Registry or retain s.
func (r *Registry) WithSession(identity string, fn func(s *Session)) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	s, ok := r.sessions[identity]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Peers returns copies of every session except the one for exclude, sorted
// by identity.
func (r *Registry) Peers(exclude string) []SessionInfo {
	r.mtx.Lock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == exclude {
			continue
		}
		out = append(out, s.info())
	}
	r.mtx.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Size returns the number of registered peers.
func (r *Registry) Size() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return len(r.sessions)
}
