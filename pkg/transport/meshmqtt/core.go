package meshmqtt

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kabili207/meshtastic-go/core/crypto"
	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

// core holds the state both transport modes share: the packet decode
// path, packet construction, the session epoch and the node snapshot
// cache built from overheard NODEINFO traffic.
type core struct {
	cfg      config.MeshSettings
	keys     *keyRing
	ids      idGenerator
	handlers transport.Handlers

	// pkiKey is the local Curve25519 private key, when configured.
	pkiKey []byte

	// publish is supplied by the owning transport mode.
	publish func(topic string, payload []byte) error

	epoch     string
	epochLock sync.RWMutex

	nodes    map[uint32]transport.NodeSnapshot
	nodeLock sync.RWMutex
}

func newCore(cfg config.MeshSettings, handlers transport.Handlers) *core {
	c := &core{
		cfg:      cfg,
		keys:     newKeyRing(cfg.Channels),
		handlers: handlers,
		nodes:    make(map[uint32]transport.NodeSnapshot),
	}
	if cfg.SelfNode.PrivateKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.SelfNode.PrivateKey)
		if err != nil {
			slog.Warn("invalid node private key, pki decryption disabled", "error", err)
		} else {
			c.pkiKey = key
		}
	}
	return c
}

// peerPublicKey returns a node's Curve25519 public key, if one has been
// overheard in its NODEINFO traffic.
func (c *core) peerPublicKey(num uint32) []byte {
	c.nodeLock.RLock()
	snap, ok := c.nodes[num]
	c.nodeLock.RUnlock()
	if !ok || snap.PublicKey == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(snap.PublicKey)
	if err != nil {
		return nil
	}
	return key
}

func (c *core) Epoch() string {
	c.epochLock.RLock()
	defer c.epochLock.RUnlock()
	return c.epoch
}

// bumpEpoch assigns a fresh session epoch for a new connection.
func (c *core) bumpEpoch() string {
	c.epochLock.Lock()
	defer c.epochLock.Unlock()
	c.epoch = uuid.NewString()
	return c.epoch
}

func (c *core) SelfInfo() (*transport.SelfInfo, error) {
	info := &transport.SelfInfo{
		Num:       c.cfg.SelfNode.NodeID,
		ShortName: c.cfg.SelfNode.ShortName,
		LongName:  c.cfg.SelfNode.LongName,
	}
	c.nodeLock.RLock()
	if snap, ok := c.nodes[uint32(c.cfg.SelfNode.NodeID)]; ok {
		info.HwModel = snap.HwModel
		info.MacAddress = snap.MacAddress
	}
	c.nodeLock.RUnlock()
	return info, nil
}

func (c *core) Nodes() ([]transport.NodeSnapshot, error) {
	c.nodeLock.RLock()
	defer c.nodeLock.RUnlock()
	out := make([]transport.NodeSnapshot, 0, len(c.nodes))
	for _, snap := range c.nodes {
		out = append(out, snap)
	}
	return out, nil
}

// handlePayload decodes one ServiceEnvelope payload and delivers the
// resulting packet dictionary to OnReceive. Decode failures are logged
// and dropped; the mesh carries plenty of traffic we cannot read.
func (c *core) handlePayload(payload []byte) {
	var env pb.ServiceEnvelope
	if err := proto.Unmarshal(payload, &env); err != nil {
		slog.Debug("dropping non-mesh payload", "error", err)
		return
	}

	raw, err := c.envelopeToRaw(&env)
	if err != nil {
		slog.Debug("dropping undecodable packet", "error", err)
		return
	}

	c.updateSnapshot(raw)

	if c.handlers.OnReceive != nil {
		c.handlers.OnReceive(raw)
	}
}

// updateSnapshot maintains the node snapshot cache from overheard
// traffic, standing in for a directly attached device's node database.
func (c *core) updateSnapshot(raw map[string]any) {
	pkt, err := meshtastic.Classify(raw)
	if err != nil {
		return
	}

	c.nodeLock.Lock()
	snap := c.nodes[uint32(pkt.From)]
	snap.Num = uint32(pkt.From)
	snap.ID = pkt.FromID
	heard := pkt.RxTime.Unix()
	snap.LastHeard = &heard
	if pkt.RxSnr != nil {
		snap.Snr = pkt.RxSnr
	}
	if pkt.HopStart != nil && pkt.HopLimit != nil {
		hops := *pkt.HopStart - *pkt.HopLimit
		snap.HopsAway = &hops
	}

	changed := false
	switch {
	case pkt.NodeInfo != nil:
		snap.ShortName = pkt.NodeInfo.ShortName
		snap.LongName = pkt.NodeInfo.LongName
		snap.MacAddress = pkt.NodeInfo.MacAddress
		snap.HwModel = pkt.NodeInfo.HwModel
		snap.PublicKey = pkt.NodeInfo.PublicKey
		changed = true
	case pkt.Position != nil:
		lat, lon := pkt.Position.Latitude, pkt.Position.Longitude
		if lat != 0 || lon != 0 {
			snap.Latitude, snap.Longitude = &lat, &lon
		}
		alt := pkt.Position.Altitude
		snap.Altitude = &alt
	case pkt.Telemetry != nil && pkt.Telemetry.HasDeviceMetrics():
		dm := pkt.Telemetry.DeviceMetrics
		if v, ok := floatMetric(dm, "batteryLevel"); ok {
			snap.Battery = &v
		}
		if v, ok := floatMetric(dm, "voltage"); ok {
			snap.Voltage = &v
		}
		if v, ok := floatMetric(dm, "channelUtilization"); ok {
			snap.ChannelUtilization = &v
		}
		if v, ok := floatMetric(dm, "airUtilTx"); ok {
			snap.AirUtilTx = &v
		}
	}
	c.nodes[uint32(pkt.From)] = snap
	c.nodeLock.Unlock()

	if changed && c.handlers.OnNodeUpdated != nil {
		c.handlers.OnNodeUpdated(snap)
	}
}

func floatMetric(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// hopValues returns HopStart and HopLimit for packets this bridge
// originates. The configured limit is clamped to the firmware's range.
func (c *core) hopValues() (hopStart, hopLimit uint32) {
	configured := c.cfg.HopLimit
	if configured <= 0 {
		configured = 3
	}
	if configured > 7 {
		configured = 7
	}
	return uint32(configured), uint32(configured)
}

// sendData encrypts and publishes one Data payload to the mesh, and
// reports the packet identity a routing response will refer back to.
func (c *core) sendData(data *pb.Data, dest meshtastic.NodeID, channelName string, wantAck bool) (*transport.SendResult, error) {
	if c.publish == nil {
		return nil, fmt.Errorf("transport not connected")
	}
	if channelName == "" {
		channelName = c.cfg.RelayChannel
	}

	key := c.keys.Key(channelName)
	if key == nil {
		return nil, fmt.Errorf("no key for channel %q", channelName)
	}
	channelHash, err := c.keys.Hash(channelName)
	if err != nil {
		return nil, err
	}

	rawData, err := proto.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshalling payload: %w", err)
	}

	packetID := c.ids.Next()
	fromNode := uint32(c.cfg.SelfNode.NodeID)

	encrypted, err := crypto.XOR(rawData, key, packetID, fromNode)
	if err != nil {
		return nil, fmt.Errorf("encrypting packet: %w", err)
	}

	hopStart, hopLimit := c.hopValues()
	pkt := pb.MeshPacket{
		Id:       packetID,
		To:       uint32(dest),
		From:     fromNode,
		HopLimit: hopLimit,
		HopStart: hopStart,
		WantAck:  wantAck,
		ViaMqtt:  true,
		RxTime:   uint32(time.Now().Unix()),
		Channel:  channelHash,
		Priority: pb.MeshPacket_DEFAULT,
		Delayed:  pb.MeshPacket_NO_DELAY,
		PayloadVariant: &pb.MeshPacket_Encrypted{
			Encrypted: encrypted,
		},
	}

	env := pb.ServiceEnvelope{
		ChannelId: channelName,
		GatewayId: c.cfg.SelfNode.NodeID.String(),
		Packet:    &pkt,
	}

	rawEnv, err := proto.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("marshalling service envelope: %w", err)
	}

	topic := c.cfg.MqttRoot + "/2/e/" + channelName + "/" + c.cfg.SelfNode.NodeID.String()
	if err := c.publish(topic, rawEnv); err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", topic, err)
	}

	return &transport.SendResult{
		ID:       packetID,
		To:       dest,
		Channel:  int32(channelHash),
		HopLimit: int32(hopLimit),
	}, nil
}

// SendText transmits a text message on the mesh.
func (c *core) SendText(text string, dest meshtastic.NodeID, channel string, wantAck bool) (*transport.SendResult, error) {
	bitfield := uint32(1)
	data := pb.Data{
		Portnum:  pb.PortNum_TEXT_MESSAGE_APP,
		Payload:  []byte(text),
		Bitfield: &bitfield,
	}
	return c.sendData(&data, dest, channel, wantAck)
}

// SendTelemetryRequest asks a node for its device metrics.
func (c *core) SendTelemetryRequest(dest meshtastic.NodeID) (*transport.SendResult, error) {
	data := pb.Data{
		Portnum:      pb.PortNum_TELEMETRY_APP,
		WantResponse: true,
	}
	return c.sendData(&data, dest, "", true)
}

// SendTraceroute starts a route discovery towards a node.
func (c *core) SendTraceroute(dest meshtastic.NodeID) (*transport.SendResult, error) {
	payload, err := proto.Marshal(&pb.RouteDiscovery{})
	if err != nil {
		return nil, err
	}
	data := pb.Data{
		Portnum:      pb.PortNum_TRACEROUTE_APP,
		Payload:      payload,
		WantResponse: true,
	}
	return c.sendData(&data, dest, "", true)
}
