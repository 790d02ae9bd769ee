// Package discovery announces the hub on the local network over mDNS so
// satellite devices can find it without manual addressing.
package discovery

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

const (
	service = "_hivemind-websocket._tcp"
	domain  = "local."
)

// Announcer holds a live mDNS registration.
type Announcer struct {
	server *zeroconf.Server
}

// Announce registers the hub's websocket service. The TXT record carries a
// per-process uuid and the advertised port.
func Announce(name string, port int) (*Announcer, error) {
	deviceID := uuid.NewString()
	txt := []string{
		fmt.Sprintf("uuid=%s", deviceID),
		fmt.Sprintf("port=%d", port),
	}

	server, err := zeroconf.Register(name, service, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register failed: %w", err)
	}

	logger.InfoCF("discovery", "Announced hub on mDNS",
		map[string]any{"service": service, "port": port, "uuid": deviceID})
	return &Announcer{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Announcer) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
