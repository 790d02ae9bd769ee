package console

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/hive"
)

// consoleCmd speaks the hive protocol as an ordinary satellite: typed
// lines go up as recognized utterances, everything the hub sends down is
// printed.
func consoleCmd(host string, port int, name, key, cryptoKey string) error {
	url := fmt.Sprintf("ws://%s:%d/", host, port)
	token := base64.StdEncoding.EncodeToString([]byte(name + ":" + key))

	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("Platform", "HiveMindConsole")

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("hub rejected the access key")
		}
		return fmt.Errorf("error connecting to %s: %w", url, err)
	}
	defer conn.Close()

	var normalizedKey []byte
	if cryptoKey != "" {
		normalizedKey = hive.NormalizeKey(cryptoKey)
	}

	fmt.Printf("✓ Connected to %s as %s\n", url, name)
	fmt.Println("Type an utterance and press enter; \"exit\" leaves.")

	go printIncoming(conn, normalizedKey)

	rl, err := readline.New("hive> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := sendUtterance(conn, normalizedKey, line); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
	}
}

func sendUtterance(conn *websocket.Conn, cryptoKey []byte, utterance string) error {
	msg := bus.NewMessage("recognizer_loop:utterance",
		map[string]any{"utterances": []any{utterance}},
		map[string]any{"client_name": "HiveMindConsole"})

	raw, err := json.Marshal(msg.Serialize())
	if err != nil {
		return err
	}
	env := &hive.Envelope{Kind: hive.KindBus, Payload: raw}
	payload, err := env.Encode()
	if err != nil {
		return err
	}

	if cryptoKey != nil {
		payload, err = hive.EncryptAsJSON(cryptoKey, payload)
		if err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func printIncoming(conn *websocket.Conn, cryptoKey []byte) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			fmt.Println("\nconnection closed")
			return
		}
		if messageType == websocket.BinaryMessage {
			fmt.Printf("\n< audio (%d bytes)\n", len(payload))
			continue
		}
		if cryptoKey != nil && hive.IsCiphertext(payload) {
			plain, err := hive.DecryptFromJSON(cryptoKey, payload)
			if err != nil {
				fmt.Println("\n< undecodable message")
				continue
			}
			payload = plain
		}
		fmt.Printf("\n< %s\n", summarize(payload))
	}
}

// summarize renders an inbound envelope compactly: the utterance for
// speak messages, type and data otherwise.
func summarize(payload []byte) string {
	env, err := hive.ParseEnvelope(payload)
	if err != nil {
		return string(payload)
	}
	msg, err := bus.Deserialize(env.PayloadString())
	if err != nil {
		return string(payload)
	}
	if msg.Type == "speak" {
		if utterance, ok := msg.Data["utterance"].(string); ok {
			return fmt.Sprintf("speak: %q", utterance)
		}
	}
	data, _ := json.Marshal(msg.Data)
	return fmt.Sprintf("%s %s", msg.Type, data)
}
