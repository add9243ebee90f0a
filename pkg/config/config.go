package config

import (
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
)

type Configuration struct {
	Discord      DiscordSettings
	MeshSettings MeshSettings
	Database     struct {
		User     string
		Password string
		Host     string
		DB       string
	}
}

type DiscordSettings struct {
	Token string
	// ChannelID is the channel mesh traffic is relayed into and commands
	// are answered in.
	ChannelID string
	GuildID   string
}

type MeshSettings struct {
	// Mode selects the transport: "client" connects out to an MQTT
	// broker, "broker" embeds one and accepts gateway connections.
	Mode       string
	MqttRoot   string
	BrokerAddr string
	MqttUser   string
	MqttPass   string
	ListenAddr string
	Channels   []MeshChannelDef
	// RelayChannel is the mesh channel broadcasts are sent on when the
	// user does not name one.
	RelayChannel string
	SelfNode     struct {
		NodeID    meshtastic.NodeID
		LongName  string
		ShortName string
		// PrivateKey is the node's base64 Curve25519 private key. When
		// set, PKI-encrypted direct messages from nodes whose public key
		// has been heard are decrypted instead of relayed opaque.
		PrivateKey string
	}
	// HopLimit applies to packets this bridge originates.
	HopLimit int
	// BatteryAlertLevel is the percentage below which the local node
	// triggers a low-battery alert. Zero disables the watchdog.
	BatteryAlertLevel   float64
	BatteryResetLevel   float64
	MonitorConnection   bool
	MaxReconnectRetries int
}

type MeshChannelDef struct {
	Name string
	Key  string
}
