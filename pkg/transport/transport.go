package transport

import "github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"

// SendResult reports the radio-assigned identity of an outbound packet.
// The ID is what later routing responses carry as their request id.
type SendResult struct {
	ID       uint32
	To       meshtastic.NodeID
	Channel  int32
	HopLimit int32
}

// SelfInfo describes the local gateway node.
type SelfInfo struct {
	Num         meshtastic.NodeID
	ShortName   string
	LongName    string
	HwModel     string
	ModemPreset string
	MacAddress  string
}

// NodeSnapshot is one entry of the device node database, delivered on
// connect and whenever the device reports an update.
type NodeSnapshot struct {
	Num                uint32
	ID                 string
	ShortName          string
	LongName           string
	MacAddress         string
	HwModel            string
	PublicKey          string
	Latitude           *float64
	Longitude          *float64
	Altitude           *int32
	Battery            *float64
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	Snr                *float64
	LastHeard          *int64
	HopsAway           *int32
}

// Handlers are the event callbacks a transport delivers on its own
// goroutines. Any handler may be nil.
type Handlers struct {
	// OnReceive is called with the semi-structured packet dictionary for
	// every packet heard on the mesh.
	OnReceive func(raw map[string]any)
	// OnConnect fires once the link is established, with the session
	// epoch identifying this connection.
	OnConnect func(epoch string)
	// OnNodeUpdated fires when the device node database changes.
	OnNodeUpdated func(node NodeSnapshot)
	OnDisconnect  func(err error)
}

// Transport is the radio link. Implementations deliver events through
// Handlers registered before Connect.
type Transport interface {
	Connect() error
	Close() error

	// SendText transmits a text message. A broadcast goes to the named
	// channel; a direct message requests an acknowledgment when wantAck
	// is set. A nil error with a zero-ID result means the radio refused
	// the send.
	SendText(text string, dest meshtastic.NodeID, channel string, wantAck bool) (*SendResult, error)
	SendTelemetryRequest(dest meshtastic.NodeID) (*SendResult, error)
	SendTraceroute(dest meshtastic.NodeID) (*SendResult, error)
	// SendHeartbeat probes the link. An error means the link is down.
	SendHeartbeat() error

	// Epoch returns the session epoch of the current connection.
	Epoch() string
	SelfInfo() (*SelfInfo, error)
	Nodes() ([]NodeSnapshot, error)
}
