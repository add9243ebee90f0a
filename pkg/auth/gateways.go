package auth

import (
	"log/slog"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/store"
)

// GatewayVerifier authenticates broker-mode MQTT connections against
// the gateway account table.
type GatewayVerifier struct {
	gateways store.GatewayStore
}

func NewGatewayVerifier(gateways store.GatewayStore) *GatewayVerifier {
	return &GatewayVerifier{gateways: gateways}
}

// Authenticate checks a username/password pair. Unknown accounts and
// lookup failures both deny.
func (v *GatewayVerifier) Authenticate(username, password string) bool {
	gateway, err := v.gateways.GetByName(username)
	if err != nil {
		slog.Error("gateway account lookup failed", "gateway", username, "error", err)
		return false
	}
	if gateway == nil {
		slog.Warn("unknown gateway account", "gateway", username)
		return false
	}
	if !VerifyPassword(password, gateway.Salt, gateway.PasswordHash) {
		slog.Warn("gateway password rejected", "gateway", username)
		return false
	}

	if err := v.gateways.TouchLastSeen(gateway.ID, time.Now().UTC()); err != nil {
		slog.Warn("updating gateway last-seen failed", "gateway", username, "error", err)
	}
	return true
}
