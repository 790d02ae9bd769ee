package bus

import "encoding/json"

// Message is the unit carried on the internal device bus. Type is a
// dotted event name ("hive.client.connect", "recognizer_loop:utterance",
// "speak", ...), Data the payload, Context routing metadata such as
// "source", "destination" and "user".
type Message struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Context map[string]any `json:"context"`
}

// NewMessage builds a Message with non-nil Data and Context maps.
func NewMessage(msgType string, data, context map[string]any) Message {
	if data == nil {
		data = map[string]any{}
	}
	if context == nil {
		context = map[string]any{}
	}
	return Message{Type: msgType, Data: data, Context: context}
}

// Serialize renders the message as its JSON wire form.
func (m Message) Serialize() string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Deserialize parses a JSON wire form back into a Message.
func Deserialize(payload string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Message{}, err
	}
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	return m, nil
}

// Destinations returns context.destination normalized to a string slice.
// The field may arrive as a single string or a list.
func (m Message) Destinations() []string {
	switch v := m.Context["destination"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
