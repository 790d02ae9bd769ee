package hive

import (
	"encoding/json"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Platform identifies this hub implementation in handshakes and bus
// context.
const Platform = "HiveMindSpeechMasterV0.1"

// Router is the routing protocol engine: it interprets inbound envelopes,
// stamps the route trail, and bridges the internal bus to connected
// peers. It only ever reads the registry; all session mutation stays in
// the registry itself.
type Router struct {
	registry *Registry
	bus      *bus.MessageBus
	iface    *Interface
	selfPeer string

	// OnSpeak, when set, diverts outbound "speak" messages to the speech
	// synthesis dispatcher instead of a plain envelope send.
	OnSpeak func(peer string, msg bus.Message)
}

func NewRouter(registry *Registry, b *bus.MessageBus, iface *Interface, selfPeer string) *Router {
	return &Router{
		registry: registry,
		bus:      b,
		iface:    iface,
		selfPeer: selfPeer,
	}
}

// NodeID names this hub in route diagnostics.
func (r *Router) NodeID() string {
	return r.selfPeer + ":MASTER"
}

// RegisterBusHandlers subscribes the router to the internal bus: the
// wildcard stream for peer-destined fan-out and hive.send for explicit
// relay requests.
func (r *Router) RegisterBusHandlers() {
	r.bus.On(bus.Wildcard, r.handleOutgoing)
	r.bus.On("hive.send", r.handleSend)
}

// HandleMessage processes one inbound frame from a registered client.
func (r *Router) HandleMessage(session *Session, payload []byte, isBinary bool) {
	if isBinary {
		r.handleBinary(session, payload)
		return
	}
	env, err := ParseEnvelope(payload)
	if err != nil {
		logger.WarnCF("hive", "Dropping malformed envelope",
			map[string]any{"peer": session.Peer, "error": err.Error()})
		return
	}
	r.HandleEnvelope(session, env)
}

// handleBinary appends an audio frame to the session's queue. A full
// queue drops the frame; audio loss is preferable to stalling the
// connection's read loop.
func (r *Router) handleBinary(session *Session, data []byte) {
	select {
	case session.AudioQueue <- data:
	default:
		logger.WarnCF("hive", "Audio queue full, dropping frame",
			map[string]any{"peer": session.Peer, "bytes": len(data)})
	}
}

// HandleEnvelope stamps the route trail and dispatches on the envelope
// kind. The switch is exhaustive over the closed Kind set.
func (r *Router) HandleEnvelope(session *Session, env *Envelope) {
	env.StampRoute(session.Peer, r.selfPeer)

	switch env.Kind {
	case KindBus:
		r.handleBusEnvelope(session, env)
	case KindPropagate:
		logger.InfoCF("hive", "Received propagate message",
			map[string]any{"node": r.NodeID(), "hops": len(env.Route)})
		r.iface.Propagate(env)
	case KindBroadcast:
		// Broadcast travels downstream only. A client sending one upstream
		// is an illegal direction; never forward it.
		logger.WarnCF("hive", "Ignoring broadcast from downstream, illegal direction",
			map[string]any{"peer": session.Peer})
	case KindEscalate:
		logger.InfoCF("hive", "Received escalate message",
			map[string]any{"node": r.NodeID(), "hops": len(env.Route)})
		r.iface.Escalate(env)
	}
}

// handleBusEnvelope authorizes a client's bus message and injects it into
// the internal bus.
func (r *Router) handleBusEnvelope(session *Session, env *Envelope) {
	msg, err := parseBusPayload(env.Payload)
	if err != nil {
		logger.WarnCF("hive", "Dropping malformed bus payload",
			map[string]any{"peer": session.Peer, "error": err.Error()})
		return
	}
	r.injectBusMessage(session, msg)
}

func (r *Router) injectBusMessage(session *Session, msg bus.Message) {
	msg.Context["source"] = session.Peer
	msg.Context["destination"] = "skills"

	if session.Blacklist.BlocksMessage(msg.Type) {
		logger.WarnCF("hive", "Client sent a blacklisted message type",
			map[string]any{"peer": session.Peer, "type": msg.Type})
		return
	}

	logger.InfoCF("hive", "Forwarding message to bus from client",
		map[string]any{"peer": session.Peer, "type": msg.Type})
	r.busSend(msg.Type, msg.Data, msg.Context)
}

// EmitUtterance forwards recognized speech from a client's audio stream
// to the bus, through the same authorization path as any bus envelope.
func (r *Router) EmitUtterance(peer, utterance string) {
	session, ok := r.registry.Lookup(peer)
	if !ok {
		return
	}
	msg := bus.NewMessage("recognizer_loop:utterance",
		map[string]any{"utterances": []any{utterance}},
		nil)
	r.injectBusMessage(session, msg)
}

// handleOutgoing bridges internal bus traffic back to clients named in
// context.destination.
func (r *Router) handleOutgoing(msg bus.Message) {
	if msg.Type == "complete_intent_failure" {
		msg.Type = "hive.complete_intent_failure"
	}

	peers := msg.Destinations()
	if len(peers) == 0 {
		return
	}
	for _, peer := range peers {
		session, ok := r.registry.Lookup(peer)
		if !ok {
			// "skills" and friends are internal destinations, not peers
			if looksLikePeer(peer) {
				r.deliveryError(peer, msg.Context)
			}
			continue
		}
		if msg.Type == "speak" && r.OnSpeak != nil {
			r.OnSpeak(peer, msg)
			continue
		}
		env := &Envelope{Kind: KindBus, Payload: json.RawMessage(mustMarshalString(msg.Serialize()))}
		if err := r.iface.Send(session.Conn, env); err != nil {
			logger.WarnCF("hive", "Send to peer failed",
				map[string]any{"peer": peer, "error": err.Error()})
		}
	}
}

// handleSend serves hive.send requests: {msg_type, payload, peer?}.
func (r *Router) handleSend(msg bus.Message) {
	kind, _ := msg.Data["msg_type"].(string)
	payload := msg.Data["payload"]
	peer, _ := msg.Data["peer"].(string)

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.WarnCF("hive", "Unencodable hive.send payload", map[string]any{"error": err.Error()})
		return
	}

	switch Kind(kind) {
	case KindPropagate:
		r.iface.Propagate(&Envelope{Kind: KindPropagate, Payload: raw})
	case KindBroadcast:
		// broadcast originates here and travels to this hub's own clients
		r.iface.Broadcast(&Envelope{Kind: KindBroadcast, Payload: raw})
	case KindEscalate:
		// only downstream nodes escalate; silently ignore
	default:
		if peer == "" {
			return
		}
		session, ok := r.registry.Lookup(peer)
		if !ok {
			r.deliveryError(peer, msg.Context)
			return
		}
		if err := r.iface.Send(session.Conn, json.RawMessage(raw)); err != nil {
			logger.WarnCF("hive", "Directed send failed",
				map[string]any{"peer": peer, "error": err.Error()})
		}
	}
}

func (r *Router) deliveryError(peer string, _ map[string]any) {
	logger.ErrorCF("hive", "That client is not connected", map[string]any{"peer": peer})
	// destination is deliberately not copied over: a dead peer in the error
	// context would bounce straight back here.
	r.busSend("hive.client.send.error",
		map[string]any{"error": "That client is not connected", "peer": peer},
		map[string]any{})
}

// busSend emits on the internal bus with the hub's client_name attached.
func (r *Router) busSend(msgType string, data, context map[string]any) {
	msg := bus.NewMessage(msgType, data, context)
	if _, ok := msg.Context["client_name"]; !ok {
		msg.Context["client_name"] = Platform
	}
	r.bus.Emit(msg)
}

// parseBusPayload accepts both a JSON object and a JSON-encoded string
// holding a serialized bus message.
func parseBusPayload(raw json.RawMessage) (bus.Message, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return bus.Deserialize(s)
	}
	return bus.Deserialize(string(raw))
}

// looksLikePeer distinguishes peer identities ("ws:10.0.0.2:4242") from
// symbolic bus destinations ("skills", "audio").
func looksLikePeer(destination string) bool {
	_, ip, port := PeerParts(destination)
	return ip != "" && port != ""
}

func mustMarshalString(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return b
}
