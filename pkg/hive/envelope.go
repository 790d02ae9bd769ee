// Package hive implements the hub side of the HiveMind routing protocol:
// session registry, envelope routing, the cipher channel and the websocket
// connection lifecycle.
package hive

import (
	"encoding/json"
	"fmt"
)

// Kind is the routing kind of an envelope. The four kinds are exhaustive;
// anything else fails to parse.
type Kind string

const (
	// KindBus injects the payload into the hub's internal bus.
	KindBus Kind = "bus"
	// KindPropagate relays the payload through this hub's own fan-out.
	KindPropagate Kind = "propagate"
	// KindBroadcast distributes downstream only. Clients may not send it.
	KindBroadcast Kind = "broadcast"
	// KindEscalate asks the hub to resolve locally, then relay upstream.
	KindEscalate Kind = "escalate"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBus, KindPropagate, KindBroadcast, KindEscalate:
		return true
	}
	return false
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed := Kind(s)
	if !parsed.Valid() {
		return fmt.Errorf("unknown msg_type %q", s)
	}
	*k = parsed
	return nil
}

// Hop is one entry in an envelope's route trail: the node that forwarded
// the envelope and the set of nodes that received it.
type Hop struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// Envelope is the routed message unit exchanged between hive nodes.
type Envelope struct {
	Kind    Kind            `json:"msg_type"`
	Payload json.RawMessage `json:"payload"`
	Route   []Hop           `json:"route,omitempty"`
}

// ParseEnvelope decodes a text frame into an Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("missing msg_type")
	}
	return &env, nil
}

// Encode renders the envelope as its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// StampRoute records this hub in the envelope's route trail. An envelope
// with no route gets a first hop naming the sending peer as source and
// this hub as sole target. An envelope with a route gets its last hop's
// source rewritten to the sending peer (the sender does not know its own
// address as seen by this hub) and this hub appended to the last hop's
// targets, without duplication. The trail is append-only; earlier hops
// are never touched.
func (e *Envelope) StampRoute(sender, self string) {
	if len(e.Route) == 0 {
		e.Route = []Hop{{Source: sender, Targets: []string{self}}}
		return
	}
	last := &e.Route[len(e.Route)-1]
	last.Source = sender
	for _, t := range last.Targets {
		if t == self {
			return
		}
	}
	last.Targets = append(last.Targets, self)
}

// RouteContains reports whether peer appears anywhere in the route trail,
// as a source or a target. Used for fan-out loop prevention.
func (e *Envelope) RouteContains(peer string) bool {
	for _, hop := range e.Route {
		if hop.Source == peer {
			return true
		}
		for _, t := range hop.Targets {
			if t == peer {
				return true
			}
		}
	}
	return false
}

// PayloadString returns the payload as a string if it is a JSON string,
// otherwise the raw JSON text.
func (e *Envelope) PayloadString() string {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err == nil {
		return s
	}
	return string(e.Payload)
}
