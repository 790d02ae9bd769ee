package hive

import (
	"encoding/json"
	"fmt"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Interface is the relay surface toward other hive nodes: this hub's own
// connected clients (downstream) and, when this hub is not the root of
// the tree, one upstream connection.
type Interface struct {
	registry *Registry
	upstream Connection // nil when this hub is the root
}

func NewInterface(registry *Registry) *Interface {
	return &Interface{registry: registry}
}

// SetUpstream attaches the connection toward the parent hub.
func (i *Interface) SetUpstream(conn Connection) {
	i.upstream = conn
}

// Send delivers a payload on a single connection. Structured payloads are
// JSON-serialized; the connection applies the cipher channel.
func (i *Interface) Send(conn Connection, payload any) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// SendToPeer delivers a payload to a registered peer.
func (i *Interface) SendToPeer(peer string, payload any) error {
	session, ok := i.registry.Lookup(peer)
	if !ok {
		return fmt.Errorf("peer %s not connected", peer)
	}
	return i.Send(session.Conn, payload)
}

// Broadcast fans the envelope out to every connected client that is not
// already in its route trail.
func (i *Interface) Broadcast(env *Envelope) {
	data, err := env.Encode()
	if err != nil {
		logger.ErrorCF("hive", "Broadcast encode failed", map[string]any{"error": err.Error()})
		return
	}
	for _, peer := range i.registry.Peers() {
		if env.RouteContains(peer) {
			continue
		}
		session, ok := i.registry.Lookup(peer)
		if !ok {
			continue
		}
		if err := session.Conn.Send(data); err != nil {
			logger.WarnCF("hive", "Broadcast send failed",
				map[string]any{"peer": peer, "error": err.Error()})
		}
	}
}

// Propagate relays the envelope through this hub's own fan-out: all
// connected clients plus the upstream hub when one exists.
func (i *Interface) Propagate(env *Envelope) {
	i.Broadcast(env)
	if i.upstream != nil {
		i.sendUpstream(env)
	}
}

// Escalate relays an unresolved request toward the root. On the root
// there is nowhere left to go and the envelope stops here.
func (i *Interface) Escalate(env *Envelope) {
	if i.upstream == nil {
		logger.DebugC("hive", "escalate reached the root, dropping")
		return
	}
	i.sendUpstream(env)
}

func (i *Interface) sendUpstream(env *Envelope) {
	data, err := env.Encode()
	if err != nil {
		logger.ErrorCF("hive", "Upstream encode failed", map[string]any{"error": err.Error()})
		return
	}
	if err := i.upstream.Send(data); err != nil {
		logger.WarnCF("hive", "Upstream send failed", map[string]any{"error": err.Error()})
	}
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}
