package meshmqtt

import (
	"fmt"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

// New builds the transport for the configured mode. Credentials only
// apply in broker mode; client mode authenticates outward with the
// configured MQTT user.
func New(cfg config.MeshSettings, handlers transport.Handlers, creds Credentials) (transport.Transport, error) {
	switch cfg.Mode {
	case "", "client":
		return NewClient(cfg, handlers), nil
	case "broker":
		return NewBroker(cfg, handlers, creds), nil
	default:
		return nil, fmt.Errorf("unknown mesh transport mode %q", cfg.Mode)
	}
}
