package hive

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/health"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Server binds the websocket endpoint and the health endpoints on one
// listener.
type Server struct {
	host string
	port int

	httpServer *http.Server
	ready      atomic.Bool
}

func NewServer(host string, port int, controller *Controller) *Server {
	s := &Server{host: host, port: port}

	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler(s.ready.Load))
	mux.Handle("/ready", health.Handler(s.ready.Load))
	mux.Handle("/", controller)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SelfPeer is this hub's own address in peer identity form. It names the
// hub in route trails.
func SelfPeer(host string, port int) string {
	return fmt.Sprintf("ws:%s:%d", host, port)
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	logger.InfoCF("hive", "Listening", map[string]any{"addr": s.httpServer.Addr})
	s.ready.Store(true)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.ready.Store(false)
	return s.httpServer.Shutdown(ctx)
}
