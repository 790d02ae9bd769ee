package hive

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/database"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// ErrPolicyViolation is returned by Register when the peer's IP fails the
// allow/deny policy. The connection is already closed when it is returned.
var ErrPolicyViolation = errors.New("ip policy violation")

// CloseCodePolicy is the close code sent to kicked connections.
const CloseCodePolicy = 3078

// Connection is the transport handle the registry and router write to.
// Implementations must be safe for concurrent writers.
type Connection interface {
	Peer() string
	Send(payload []byte) error
	SendBinary(data []byte) error
	Close(code int, reason string) error
}

// AudioListener is the per-session audio segmenter handle. Stop must be
// idempotent and safe to call concurrently.
type AudioListener interface {
	Start()
	Stop()
}

// ListenerFactory builds the audio segmenter for a freshly registered
// session. The segmenter reads frames from queue and must exit once the
// peer leaves the registry.
type ListenerFactory func(peer string, queue chan []byte, useHotword bool) AudioListener

// SessionOptions carries the per-client settings resolved during auth.
type SessionOptions struct {
	Platform   string
	Names      []string
	CryptoKey  []byte
	Blacklist  database.Blacklist
	UseHotword bool
}

// Session is the registry's record of one connected client.
type Session struct {
	Peer       string
	Conn       Connection
	Platform   string
	Status     string
	AudioQueue chan []byte
	Listener   AudioListener
	Names      []string
	Blacklist  database.Blacklist
	UseHotword bool
}

// User returns the first known user identity for disconnect events.
func (s *Session) User() string {
	if len(s.Names) > 0 {
		return s.Names[0]
	}
	return "unknown_user"
}

// IPPolicy is the connection-time IP filter. Mode "deny" blocks listed
// IPs; mode "allow" blocks everything not listed.
type IPPolicy struct {
	Mode string
	IPs  []string
}

func (p IPPolicy) Allows(ip string) bool {
	listed := false
	for _, candidate := range p.IPs {
		if candidate == ip {
			listed = true
			break
		}
	}
	if p.Mode == "allow" {
		return listed
	}
	return !listed
}

// audioQueueSize bounds the per-client inbound audio queue. At 20 ms per
// frame this is several seconds of backlog before frames get dropped.
const audioQueueSize = 256

// Registry tracks connected clients. All mutation of the session table
// goes through Register/Unregister so the stop-before-remove ordering the
// segmenter liveness check depends on cannot be bypassed.
type Registry struct {
	policy      IPPolicy
	bus         *bus.MessageBus
	newListener ListenerFactory

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(policy IPPolicy, b *bus.MessageBus, factory ListenerFactory) *Registry {
	return &Registry{
		policy:      policy,
		bus:         b,
		newListener: factory,
		sessions:    make(map[string]*Session),
	}
}

// Register creates the session for a connection that already passed
// authentication. A policy violation closes the connection with a
// diagnostic reason and creates no session.
func (r *Registry) Register(conn Connection, opts SessionOptions) (*Session, error) {
	peer := conn.Peer()
	ip := PeerIP(peer)
	if !r.policy.Allows(ip) {
		reason := "Blacklisted ip"
		if r.policy.Mode == "allow" {
			reason = "Unknown ip"
		}
		logger.WarnCF("hive", "Rejected by ip policy", map[string]any{"ip": ip, "peer": peer})
		_ = conn.Close(CloseCodePolicy, reason)
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, ip)
	}

	platform := opts.Platform
	if platform == "" {
		platform = "unknown"
	}

	session := &Session{
		Peer:       peer,
		Conn:       conn,
		Platform:   platform,
		Status:     "connected",
		AudioQueue: make(chan []byte, audioQueueSize),
		Names:      opts.Names,
		Blacklist:  opts.Blacklist,
		UseHotword: opts.UseHotword,
	}
	if r.newListener != nil {
		session.Listener = r.newListener(peer, session.AudioQueue, opts.UseHotword)
	}

	r.mu.Lock()
	r.sessions[peer] = session
	r.mu.Unlock()

	if session.Listener != nil {
		session.Listener.Start()
	}
	logger.InfoCF("hive", "Registered client", map[string]any{"peer": peer, "platform": platform})
	return session, nil
}

// Unregister tears down the session for peer. It is idempotent: a second
// call for the same peer is a no-op and emits no event. The segmenter is
// asked to stop before the session record is removed, so a segmenter
// draining its final frames still resolves the peer through Lookup/Has.
func (r *Registry) Unregister(peer string, code int, reason string) bool {
	r.mu.Lock()
	session, ok := r.sessions[peer]
	if !ok || session.Status == "disconnected" {
		r.mu.Unlock()
		return false
	}
	// claim the teardown so a concurrent Unregister for the same peer
	// returns false instead of stopping the listener twice
	session.Status = "disconnected"
	r.mu.Unlock()

	if session.Listener != nil {
		logger.InfoC("hive", "stopping audio listener")
		session.Listener.Stop()
	}

	r.mu.Lock()
	delete(r.sessions, peer)
	r.mu.Unlock()

	_, ip, sock := PeerParts(peer)
	wasClean := code != 1006 // abnormal closure means the socket just died
	r.bus.Emit(bus.NewMessage("hive.client.disconnect",
		map[string]any{"reason": reason, "ip": ip, "sock": sock, "code": code, "wasClean": wasClean},
		map[string]any{"user": session.User(), "source": peer}))

	_ = session.Conn.Close(code, reason)
	logger.InfoCF("hive", "Deregistered client", map[string]any{"peer": peer, "reason": reason})
	return true
}

// Lookup returns the session for peer, if registered.
func (r *Registry) Lookup(peer string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[peer]
	return s, ok
}

// Has is the segmenter's liveness check.
func (r *Registry) Has(peer string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[peer]
	return ok
}

// Peers returns the identities of all registered clients.
func (r *Registry) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for p := range r.sessions {
		out = append(out, p)
	}
	return out
}

// PeerParts splits a peer identity "<protocol>:<ip>:<port>" into its
// components. Malformed identities yield empty strings rather than errors;
// they only feed diagnostics.
func PeerParts(peer string) (proto, ip, port string) {
	idx := strings.Index(peer, ":")
	if idx < 0 {
		return peer, "", ""
	}
	proto = peer[:idx]
	host, p, err := net.SplitHostPort(peer[idx+1:])
	if err != nil {
		return proto, peer[idx+1:], ""
	}
	return proto, host, p
}

// PeerIP extracts the IP from a peer identity.
func PeerIP(peer string) string {
	_, ip, _ := PeerParts(peer)
	return ip
}
