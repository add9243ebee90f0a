package bridge

import (
	"strings"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
	"github.com/wpamesh/mesh-discord-bridge/pkg/store"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

const (
	testSelfNum uint32 = 0x16fad3dc
	testEpoch          = "epoch-1"
)

type fakeNodeStore struct {
	nodes map[uint32]*models.Node
}

func newFakeNodeStore() *fakeNodeStore {
	return &fakeNodeStore{nodes: map[uint32]*models.Node{}}
}

func (s *fakeNodeStore) add(node *models.Node) {
	s.nodes[node.NodeNum] = node
}

func (s *fakeNodeStore) GetByNum(num uint32) (*models.Node, error) {
	return s.nodes[num], nil
}

func (s *fakeNodeStore) GetByID(nodeID string) (*models.Node, error) {
	for _, n := range s.nodes {
		if n.NodeID == nodeID {
			return n, nil
		}
	}
	return nil, nil
}

func (s *fakeNodeStore) GetByShortName(shortName string) ([]*models.Node, error) {
	matches := []*models.Node{}
	for _, n := range s.nodes {
		if strings.EqualFold(n.ShortName(), shortName) {
			matches = append(matches, n)
		}
	}
	return matches, nil
}

func (s *fakeNodeStore) GetAll() ([]*models.Node, error) {
	nodes := []*models.Node{}
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (s *fakeNodeStore) GetActive(since time.Time) ([]*models.Node, error) {
	nodes := []*models.Node{}
	for _, n := range s.nodes {
		if n.LastHeard != nil && !n.LastHeard.Before(since) {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func (s *fakeNodeStore) UpsertFromNodeDB(node *models.Node) error   { s.add(node); return nil }
func (s *fakeNodeStore) UpsertFromNodeInfo(node *models.Node) error { s.add(node); return nil }

func (s *fakeNodeStore) TouchLastHeard(num uint32, heard time.Time, snr *float64, hopsAway *int32) error {
	if n, ok := s.nodes[num]; ok {
		n.LastHeard = &heard
	}
	return nil
}

func (s *fakeNodeStore) UpdatePosition(node *models.Node) error      { return nil }
func (s *fakeNodeStore) UpdateDeviceMetrics(node *models.Node) error { return nil }

type fakeRxPacketStore struct {
	inserted []*models.RxPacket
}

func (s *fakeRxPacketStore) Insert(packet *models.RxPacket) error {
	packet.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, packet)
	return nil
}

func (s *fakeRxPacketStore) GetByID(id int64) (*models.RxPacket, error) { return nil, nil }

func (s *fakeRxPacketStore) GetPortActivity(fromNum uint32) ([]*store.PortActivity, error) {
	return nil, nil
}

func (s *fakeRxPacketStore) LatestByPort(fromNum uint32, portNum string) (*models.RxPacket, error) {
	return nil, nil
}

type fakeTxPacketStore struct {
	packets []*models.TxPacket
	acked   []*models.TxPacket
}

func (s *fakeTxPacketStore) Insert(packet *models.TxPacket) error {
	packet.ID = int64(len(s.packets) + 1)
	s.packets = append(s.packets, packet)
	return nil
}

func (s *fakeTxPacketStore) GetByID(id int64) (*models.TxPacket, error) {
	for _, p := range s.packets {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeTxPacketStore) GetByRequestID(packetID uint32, sessionEpoch string) (*models.TxPacket, error) {
	for _, p := range s.packets {
		if p.PacketID == packetID && p.SessionEpoch == sessionEpoch {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeTxPacketStore) MarkAcked(packet *models.TxPacket) error {
	s.acked = append(s.acked, packet)
	return nil
}

func (s *fakeTxPacketStore) GetUnacked(sessionEpoch string) ([]*models.TxPacket, error) {
	unacked := []*models.TxPacket{}
	for _, p := range s.packets {
		if p.SessionEpoch == sessionEpoch && p.AckRequested && !p.AckReceived {
			unacked = append(unacked, p)
		}
	}
	return unacked, nil
}

type fakeAckStore struct {
	acks []*models.Ack
}

func (s *fakeAckStore) Insert(ack *models.Ack) error {
	ack.ID = int64(len(s.acks) + 1)
	s.acks = append(s.acks, ack)
	return nil
}

func (s *fakeAckStore) GetByTxPacketID(txPacketID int64) ([]*models.Ack, error) {
	acks := []*models.Ack{}
	for _, a := range s.acks {
		if a.TxPacketID == txPacketID {
			acks = append(acks, a)
		}
	}
	return acks, nil
}

type sentCall struct {
	text    string
	dest    meshtastic.NodeID
	channel string
	wantAck bool
}

type fakeTransport struct {
	epoch     string
	nextID    uint32
	sendErr   error
	sent      []sentCall
	snapshots []transport.NodeSnapshot

	heartbeatErr error
	connectErr   error
	closed       bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{epoch: testEpoch, nextID: 42}
}

func (t *fakeTransport) Connect() error { return t.connectErr }

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

func (t *fakeTransport) send(text string, dest meshtastic.NodeID, channel string, wantAck bool) (*transport.SendResult, error) {
	if t.sendErr != nil {
		return nil, t.sendErr
	}
	t.sent = append(t.sent, sentCall{text: text, dest: dest, channel: channel, wantAck: wantAck})
	id := t.nextID
	t.nextID++
	return &transport.SendResult{ID: id, To: dest, Channel: 8, HopLimit: 3}, nil
}

func (t *fakeTransport) SendText(text string, dest meshtastic.NodeID, channel string, wantAck bool) (*transport.SendResult, error) {
	return t.send(text, dest, channel, wantAck)
}

func (t *fakeTransport) SendTelemetryRequest(dest meshtastic.NodeID) (*transport.SendResult, error) {
	return t.send("telemetry request", dest, "", true)
}

func (t *fakeTransport) SendTraceroute(dest meshtastic.NodeID) (*transport.SendResult, error) {
	return t.send("traceroute", dest, "", true)
}

func (t *fakeTransport) SendHeartbeat() error { return t.heartbeatErr }

func (t *fakeTransport) Epoch() string { return t.epoch }

func (t *fakeTransport) SelfInfo() (*transport.SelfInfo, error) {
	return &transport.SelfInfo{
		Num:       meshtastic.NodeID(testSelfNum),
		ShortName: "GATE",
		LongName:  "Bridge Gateway",
	}, nil
}

func (t *fakeTransport) Nodes() ([]transport.NodeSnapshot, error) { return t.snapshots, nil }

type testFixture struct {
	bridge    *Bridge
	nodes     *fakeNodeStore
	rxPackets *fakeRxPacketStore
	txPackets *fakeTxPacketStore
	acks      *fakeAckStore
	transport *fakeTransport
}

func newTestBridge() *testFixture {
	cfg := config.Configuration{}
	cfg.Discord.ChannelID = "chat-channel"
	cfg.MeshSettings.RelayChannel = "MediumSlow"
	cfg.MeshSettings.SelfNode.NodeID = meshtastic.NodeID(testSelfNum)

	f := &testFixture{
		nodes:     newFakeNodeStore(),
		rxPackets: &fakeRxPacketStore{},
		txPackets: &fakeTxPacketStore{},
		acks:      &fakeAckStore{},
		transport: newFakeTransport(),
	}
	stores := &store.Stores{
		Nodes:     f.nodes,
		RxPackets: f.rxPackets,
		TxPackets: f.txPackets,
		Acks:      f.acks,
	}
	f.bridge = New(cfg, stores, chat.NewLogSession())
	f.bridge.SetTransport(f.transport)
	return f
}

func (f *testFixture) addNode(num uint32, shortName, longName string) *models.Node {
	node := &models.Node{
		NodeNum:           num,
		NodeID:            meshtastic.NodeID(num).String(),
		ShortNameNodeInfo: strp(shortName),
		LongNameNodeInfo:  strp(longName),
	}
	f.nodes.add(node)
	return node
}

func strp(s string) *string { return &s }

func (f *testFixture) nextEdit() (chat.Edit, bool) {
	return f.bridge.edits.TryDequeue()
}

func (f *testFixture) nextMessage() (chat.Message, bool) {
	return f.bridge.messages.TryDequeue()
}

func (f *testFixture) nextDump() (chat.ThreadDump, bool) {
	return f.bridge.dumps.TryDequeue()
}

func testHandle() models.ReplyHandle {
	return models.ReplyHandle{
		GuildID:   "guild",
		ChannelID: "chat-channel",
		MessageID: "msg-1",
		UserID:    "user-1",
		UserName:  "operator",
	}
}
