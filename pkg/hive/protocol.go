package hive

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/database"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

var (
	// ErrMissingAuth means the handshake carried no usable credentials.
	ErrMissingAuth = errors.New("no authorization header or cookie")
	// ErrUnauthorizedKey means the presented API key is not in the store.
	ErrUnauthorizedKey = errors.New("invalid api key")
)

const writeTimeout = 10 * time.Second

// wsConnection wraps one client websocket. Writes are serialized behind a
// mutex (gorilla connections do not allow concurrent writers) and text
// frames are sealed by the cipher channel when the session has a crypto
// key. Binary audio frames are never encrypted.
type wsConnection struct {
	conn      *websocket.Conn
	peer      string
	cryptoKey []byte

	writeMu sync.Mutex
	closed  bool
}

func newWSConnection(conn *websocket.Conn, peer string, cryptoKey []byte) *wsConnection {
	return &wsConnection{conn: conn, peer: peer, cryptoKey: cryptoKey}
}

func (c *wsConnection) Peer() string { return c.peer }

func (c *wsConnection) Send(payload []byte) error {
	if c.cryptoKey != nil {
		sealed, err := EncryptAsJSON(c.cryptoKey, payload)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		payload = sealed
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *wsConnection) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConnection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a close frame with the given code and reason, then tears
// the socket down. Safe to call more than once.
func (c *wsConnection) Close(code int, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	frame := websocket.FormatCloseMessage(code, reason)
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, frame)
	return c.conn.Close()
}

// decode opens the cipher channel on an inbound text frame. Plaintext
// from an expected-encrypted peer passes through with a warning.
func (c *wsConnection) decode(payload []byte) ([]byte, error) {
	if c.cryptoKey == nil {
		return payload, nil
	}
	if !IsCiphertext(payload) {
		logger.WarnCF("hive", "Message was unencrypted", map[string]any{"peer": c.peer})
		return payload, nil
	}
	return DecryptFromJSON(c.cryptoKey, payload)
}

// decodeAuth extracts the client's name and API key from the handshake:
// an Authorization header ("Basic <b64>" or a bare base64 token) or an
// X-Authorization cookie, each wrapping base64("name:key").
func decodeAuth(r *http.Request) (name, key string, err error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if cookie, cerr := r.Cookie("X-Authorization"); cerr == nil {
			auth = cookie.Value
		}
	}
	if auth == "" {
		return "", "", ErrMissingAuth
	}
	auth = strings.TrimPrefix(auth, "Basic ")

	decoded, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		// some clients send unpadded tokens
		decoded, err = base64.RawStdEncoding.DecodeString(auth)
		if err != nil {
			return "", "", fmt.Errorf("%w: bad base64", ErrMissingAuth)
		}
	}
	name, key, found := strings.Cut(string(decoded), ":")
	if !found || key == "" {
		return "", "", fmt.Errorf("%w: token is not name:key", ErrMissingAuth)
	}
	return name, key, nil
}

// Controller drives the connection lifecycle: authentication before the
// handshake completes, registration once it does, and teardown when the
// socket dies.
type Controller struct {
	db       database.ClientDB
	registry *Registry
	router   *Router
	bus      *bus.MessageBus
	upgrader websocket.Upgrader
}

func NewController(db database.ClientDB, registry *Registry, router *Router, b *bus.MessageBus) *Controller {
	return &Controller{
		db:       db,
		registry: registry,
		router:   router,
		bus:      b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// clients are devices, not browsers; origin checks don't apply
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peer := derivePeer(r)
	ip := PeerIP(peer)
	platform := r.Header.Get("Platform")
	if platform == "" {
		platform = "unknown"
	}
	logger.InfoCF("hive", "Client connecting", map[string]any{"peer": peer})

	name, key, err := decodeAuth(r)
	var cred *database.Credential
	if err == nil {
		var ok bool
		cred, ok = c.db.Lookup(key)
		if !ok {
			err = ErrUnauthorizedKey
		}
	}
	if err != nil {
		logger.ErrorCF("hive", "Client provided an invalid api key",
			map[string]any{"ip": ip, "error": err.Error()})
		c.bus.Emit(bus.NewMessage("hive.client.connection.error",
			map[string]any{"error": "invalid api key", "ip": ip, "api_key": key, "platform": platform},
			map[string]any{"source": peer, "client_name": Platform}))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var cryptoKey []byte
	if cred.CryptoKey != "" {
		cryptoKey = NormalizeKey(cred.CryptoKey)
	}

	c.bus.Emit(bus.NewMessage("hive.client.connect",
		map[string]any{"ip": ip, "platform": platform, "name": name},
		map[string]any{"source": peer, "client_name": Platform}))

	ws, err := c.upgrader.Upgrade(w, r, http.Header{"Server": []string{Platform}})
	if err != nil {
		logger.ErrorCF("hive", "Handshake failed", map[string]any{"peer": peer, "error": err.Error()})
		return
	}

	conn := newWSConnection(ws, peer, cryptoKey)
	session, err := c.registry.Register(conn, SessionOptions{
		Platform:   platform,
		Names:      []string{cred.Name},
		CryptoKey:  cryptoKey,
		Blacklist:  cred.Blacklist,
		UseHotword: r.Header.Get("Hotword") == "true",
	})
	if err != nil {
		// policy violation: connection already closed with a reason
		return
	}
	logger.InfoC("hive", "WebSocket connection open")

	c.readLoop(session, conn)
}

// readLoop pumps frames from one client until the socket dies. Every
// per-message failure is contained here; only transport errors end the
// session.
func (c *Controller) readLoop(session *Session, conn *wsConnection) {
	for {
		messageType, payload, err := conn.conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			logger.InfoCF("hive", "WebSocket connection closed",
				map[string]any{"peer": session.Peer, "reason": reason})
			c.registry.Unregister(session.Peer, code, reason)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			logger.DebugCF("hive", "Binary message received", map[string]any{"bytes": len(payload)})
			c.router.HandleMessage(session, payload, true)
		case websocket.TextMessage:
			plaintext, err := conn.decode(payload)
			if err != nil {
				logger.WarnCF("hive", "Dropping undecodable message",
					map[string]any{"peer": session.Peer, "error": err.Error()})
				continue
			}
			c.router.HandleMessage(session, plaintext, false)
		}
	}
}

func closeDetails(err error) (code int, reason string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, "connection closed"
	}
	return websocket.CloseAbnormalClosure, "connection lost"
}

// derivePeer builds the peer identity from the transport remote address.
func derivePeer(r *http.Request) string {
	proto := "ws"
	if r.TLS != nil {
		proto = "wss"
	}
	return proto + ":" + r.RemoteAddr
}
