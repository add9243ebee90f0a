package bridge

import (
	"log/slog"
	"sync"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
	"github.com/wpamesh/mesh-discord-bridge/pkg/store"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

// Bridge relays traffic between the mesh and the chat channel. All mesh
// and chat side effects flow through its bounded queues and are drained
// by the scheduler loop.
type Bridge struct {
	cfg     config.Configuration
	stores  *store.Stores
	session chat.Session

	tr           transport.Transport
	trLock       sync.RWMutex
	newTransport TransportFactory

	directory  *Directory
	correlator *Correlator

	sendQueue  *queue[*sendIntent]
	adminQueue *queue[*adminIntent]

	messages *queue[chat.Message]
	edits    *queue[chat.Edit]
	dumps    *queue[chat.ThreadDump]

	self     *transport.SelfInfo
	selfLock sync.RWMutex

	// batteryAlerted tracks the low-battery excursion so the alert fires
	// once until the level recovers past the reset threshold.
	batteryAlerted bool

	reconnectRequested chan struct{}
	stop               chan struct{}
}

func New(cfg config.Configuration, stores *store.Stores, session chat.Session) *Bridge {
	b := &Bridge{
		cfg:                cfg,
		stores:             stores,
		session:            session,
		directory:          NewDirectory(stores.Nodes),
		sendQueue:          newQueue[*sendIntent](),
		adminQueue:         newQueue[*adminIntent](),
		messages:           newQueue[chat.Message](),
		edits:              newQueue[chat.Edit](),
		dumps:              newQueue[chat.ThreadDump](),
		reconnectRequested: make(chan struct{}, 1),
		stop:               make(chan struct{}),
	}
	b.correlator = NewCorrelator(b)
	return b
}

// SetTransport installs the radio link. The supervisor replaces it on
// forced reconnects.
func (b *Bridge) SetTransport(tr transport.Transport) {
	b.trLock.Lock()
	b.tr = tr
	b.trLock.Unlock()
}

func (b *Bridge) transport() transport.Transport {
	b.trLock.RLock()
	defer b.trLock.RUnlock()
	return b.tr
}

// Handlers returns the callbacks to register with the transport.
func (b *Bridge) Handlers() transport.Handlers {
	return transport.Handlers{
		OnReceive:     b.onReceive,
		OnConnect:     b.onConnect,
		OnNodeUpdated: b.onNodeUpdated,
		OnDisconnect:  b.onDisconnect,
	}
}

// onReceive is the mesh receive path. Every failure is logged and
// swallowed; a bad packet must never take the callback down.
func (b *Bridge) onReceive(raw map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in receive path", "panic", r)
		}
	}()

	pkt, err := meshtastic.Classify(raw)
	if err != nil {
		slog.Warn("unclassifiable packet", "error", err)
		return
	}

	rx := buildRxPacket(pkt)
	if err := b.stores.RxPackets.Insert(rx); err != nil {
		slog.Error("persisting received packet failed",
			"packet_id", pkt.ID, "port", pkt.Port, "error", err)
	}

	if err := b.directory.RecordHeard(pkt); err != nil {
		slog.Warn("updating last-heard failed", "node", pkt.FromID, "error", err)
	}

	switch pkt.Port {
	case meshtastic.PortTextMessage:
		b.relayText(pkt)
	case meshtastic.PortNodeInfo:
		if err := b.directory.RecordNodeInfo(pkt); err != nil {
			slog.Warn("recording node info failed", "node", pkt.FromID, "error", err)
		}
	case meshtastic.PortPosition:
		if err := b.directory.RecordPosition(pkt); err != nil {
			slog.Warn("recording position failed", "node", pkt.FromID, "error", err)
		}
	case meshtastic.PortTelemetry:
		if err := b.directory.RecordDeviceMetrics(pkt); err != nil {
			slog.Warn("recording telemetry failed", "node", pkt.FromID, "error", err)
		}
		b.maybeRelayTelemetryResponse(pkt)
	case meshtastic.PortRouting:
		b.correlator.OnRouting(pkt, rx)
	case meshtastic.PortTraceroute:
		b.relayTraceroute(pkt)
	default:
		slog.Debug("packet heard", "port", pkt.Port, "from", pkt.FromID, "to", pkt.ToID)
	}
}

// relayText forwards a mesh text message into the chat channel. The
// bridge's own outbound messages echo back through the mesh and are
// skipped here.
func (b *Bridge) relayText(pkt *meshtastic.Packet) {
	if pkt.From == b.cfg.MeshSettings.SelfNode.NodeID {
		return
	}
	if pkt.Text == nil || pkt.Text.Text == "" {
		return
	}
	b.messages.Enqueue(b.formatInboundText(pkt))
}

// maybeRelayTelemetryResponse posts telemetry that answers one of our
// own requests. Unsolicited telemetry only feeds the directory.
func (b *Bridge) maybeRelayTelemetryResponse(pkt *meshtastic.Packet) {
	if pkt.To != b.cfg.MeshSettings.SelfNode.NodeID {
		return
	}
	if pkt.Telemetry == nil {
		return
	}
	b.messages.Enqueue(b.formatTelemetry(pkt))
}

// relayTraceroute posts a traceroute response addressed to us.
func (b *Bridge) relayTraceroute(pkt *meshtastic.Packet) {
	if pkt.To != b.cfg.MeshSettings.SelfNode.NodeID || pkt.Traceroute == nil {
		return
	}
	b.messages.Enqueue(b.formatTraceroute(pkt))
}

// onConnect announces the link, refreshes self details and imports the
// transport's node database.
func (b *Bridge) onConnect(epoch string) {
	slog.Info("mesh transport connected", "epoch", epoch)
	b.refreshSelfInfo()
	b.seedDirectory()

	self := b.SelfDetail()
	body := "Connected to the mesh."
	if self != nil {
		body = "Connected to the mesh as " + selfDescriptor(self) + "."
		if self.ModemPreset != "" {
			body += " Modem preset: " + self.ModemPreset + "."
		}
	}
	b.messages.Enqueue(chat.Message{
		ChannelID: b.cfg.Discord.ChannelID,
		Title:     "Mesh ready",
		Body:      body,
		Color:     chat.ColorAcked,
	})
}

func (b *Bridge) onDisconnect(err error) {
	slog.Warn("mesh transport disconnected", "error", err)
	select {
	case b.reconnectRequested <- struct{}{}:
	default:
	}
}

// onNodeUpdated feeds device node-database updates into the directory.
func (b *Bridge) onNodeUpdated(snap transport.NodeSnapshot) {
	if err := b.directory.RecordSnapshot(snap); err != nil {
		slog.Warn("recording node snapshot failed", "node", snap.ID, "error", err)
	}
}

// seedDirectory imports the transport's node database so nodes heard
// before this connection resolve immediately.
func (b *Bridge) seedDirectory() {
	tr := b.transport()
	if tr == nil {
		return
	}
	snaps, err := tr.Nodes()
	if err != nil {
		slog.Warn("reading transport node database failed", "error", err)
		return
	}
	for _, snap := range snaps {
		if err := b.directory.RecordSnapshot(snap); err != nil {
			slog.Warn("recording node snapshot failed", "node", snap.ID, "error", err)
		}
	}
}

// refreshSelfInfo caches the local node's details from the transport.
func (b *Bridge) refreshSelfInfo() {
	tr := b.transport()
	if tr == nil {
		return
	}
	self, err := tr.SelfInfo()
	if err != nil {
		slog.Warn("reading self info failed", "error", err)
		return
	}
	b.selfLock.Lock()
	b.self = self
	b.selfLock.Unlock()
}

// SelfDetail returns the cached local node details.
func (b *Bridge) SelfDetail() *transport.SelfInfo {
	b.selfLock.RLock()
	defer b.selfLock.RUnlock()
	return b.self
}

func selfDescriptor(self *transport.SelfInfo) string {
	short, long := self.ShortName, self.LongName
	if short == "" {
		short = "?"
	}
	if long == "" {
		long = "?"
	}
	return self.Num.String() + " | " + short + " | " + long
}

// buildRxPacket maps a classified packet onto its database row.
func buildRxPacket(pkt *meshtastic.Packet) *models.RxPacket {
	rx := &models.RxPacket{
		PacketID: pkt.ID,
		PortNum:  pkt.Port,
		FromNum:  uint32(pkt.From),
		ToNum:    uint32(pkt.To),
		FromID:   pkt.FromID,
		ToID:     pkt.ToID,
		Channel:  pkt.Channel,
		HopLimit: pkt.HopLimit,
		HopStart: pkt.HopStart,
		RxTime:   pkt.RxTime,
		RxSnr:    pkt.RxSnr,
		RxRssi:   pkt.RxRssi,
		WantAck:  pkt.WantAck,
		PKI:      pkt.PKI,
	}
	if pkt.Priority != "" {
		rx.Priority = &pkt.Priority
	}

	switch {
	case pkt.Text != nil:
		rx.Text = &pkt.Text.Text
		if pkt.Text.ReplyID != 0 {
			replyID := int64(pkt.Text.ReplyID)
			rx.ReplyID = &replyID
		}
		if pkt.Text.Emoji != 0 {
			emoji := int64(pkt.Text.Emoji)
			rx.Emoji = &emoji
		}

	case pkt.Position != nil:
		pos := pkt.Position
		if pos.Latitude != 0 || pos.Longitude != 0 {
			rx.Latitude, rx.Longitude = &pos.Latitude, &pos.Longitude
		}
		if pos.Altitude != 0 {
			rx.Altitude = &pos.Altitude
		}
		setInt64(&rx.PDOP, pos.PDOP)
		setInt64(&rx.GroundSpeed, pos.GroundSpeed)
		setInt64(&rx.GroundTrack, pos.GroundTrack)
		setInt64(&rx.SatsInView, pos.SatsInView)
		setInt64(&rx.PrecisionBits, pos.PrecisionBits)
		if pos.LocationSource != "" {
			rx.LocationSource = &pos.LocationSource
		}

	case pkt.Telemetry != nil:
		tel := pkt.Telemetry
		rx.HasDeviceMetrics = tel.HasDeviceMetrics()
		rx.HasEnvironmentMetrics = tel.HasEnvironmentMetrics()
		rx.HasPowerMetrics = tel.HasPowerMetrics()
		rx.HasAirQualityMetrics = tel.HasAirQualityMetrics()
		rx.DeviceMetrics = models.MetricMap(tel.DeviceMetrics)
		rx.EnvironmentMetrics = models.MetricMap(tel.EnvironmentMetrics)
		rx.PowerMetrics = models.MetricMap(tel.PowerMetrics)
		rx.AirQualityMetrics = models.MetricMap(tel.AirQualityMetrics)

	case pkt.NodeInfo != nil:
		ni := pkt.NodeInfo
		rx.UserID = strPtr(ni.ID)
		rx.ShortName = strPtr(ni.ShortName)
		rx.LongName = strPtr(ni.LongName)
		rx.MacAddress = strPtr(ni.MacAddress)
		rx.HwModel = strPtr(ni.HwModel)
		rx.PublicKey = strPtr(ni.PublicKey)

	case pkt.Routing != nil:
		requestID := int64(pkt.Routing.RequestID)
		rx.RequestID = &requestID
		if pkt.Routing.ErrorReason != "" {
			rx.ErrorReason = &pkt.Routing.ErrorReason
		}

	case pkt.Traceroute != nil:
		tr := pkt.Traceroute
		rx.Route = models.UintList(tr.Route)
		rx.RouteBack = models.UintList(tr.RouteBack)
		rx.SnrTowards = models.IntList(tr.SnrTowards)
		rx.SnrBack = models.IntList(tr.SnrBack)
	}

	return rx
}

func setInt64(dst **int64, v uint32) {
	if v != 0 {
		val := int64(v)
		*dst = &val
	}
}
