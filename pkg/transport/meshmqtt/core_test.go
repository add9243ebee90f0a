package meshmqtt

import (
	"strings"
	"testing"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

func testMeshSettings() config.MeshSettings {
	cfg := config.MeshSettings{
		MqttRoot:     "msh/US",
		RelayChannel: "LongFast",
		HopLimit:     3,
	}
	cfg.SelfNode.NodeID = meshtastic.NodeID(0x16fad3dc)
	cfg.SelfNode.ShortName = "GATE"
	cfg.SelfNode.LongName = "Bridge Gateway"
	return cfg
}

func TestSendTextPublishesToChannelTopic(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})

	var gotTopic string
	var gotPayload []byte
	c.publish = func(topic string, payload []byte) error {
		gotTopic = topic
		gotPayload = payload
		return nil
	}

	result, err := c.SendText("hello mesh", meshtastic.BROADCAST_ID, "", false)
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if result.ID == 0 {
		t.Error("send result must carry the packet ID")
	}
	if result.To != meshtastic.BROADCAST_ID {
		t.Errorf("To = %s", result.To)
	}
	if result.HopLimit != 3 {
		t.Errorf("HopLimit = %d, want configured limit", result.HopLimit)
	}
	wantHash, err := c.keys.Hash("LongFast")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if result.Channel != int32(wantHash) {
		t.Errorf("Channel = %d, want the wire channel hash %d", result.Channel, wantHash)
	}

	if gotTopic != "msh/US/2/e/LongFast/!16fad3dc" {
		t.Errorf("topic = %q", gotTopic)
	}
	if len(gotPayload) == 0 {
		t.Error("published payload is empty")
	}
}

func TestSendTextWithoutPublisher(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})

	if _, err := c.SendText("hi", meshtastic.BROADCAST_ID, "", false); err == nil {
		t.Error("sending without a connected publisher must fail")
	}
}

func TestSendTextUnknownChannel(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})
	c.publish = func(string, []byte) error { return nil }

	if _, err := c.SendText("hi", meshtastic.BROADCAST_ID, "NoSuchChannel", false); err == nil {
		t.Error("sending on a channel with no key must fail")
	}
}

// TestSendReceiveLoopback runs a sent packet back through the receive
// path, as happens when the broker echoes our own publishes.
func TestSendReceiveLoopback(t *testing.T) {
	var received map[string]any
	receiver := newCore(testMeshSettings(), transport.Handlers{
		OnReceive: func(raw map[string]any) { received = raw },
	})

	sender := newCore(testMeshSettings(), transport.Handlers{})
	sender.publish = func(topic string, payload []byte) error {
		receiver.handlePayload(payload)
		return nil
	}

	result, err := sender.SendText("loopback test", meshtastic.BROADCAST_ID, "LongFast", false)
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if received == nil {
		t.Fatal("the receive handler never fired")
	}

	pkt, err := meshtastic.Classify(received)
	if err != nil {
		t.Fatalf("classifying the echoed packet failed: %v", err)
	}
	if pkt.Port != meshtastic.PortTextMessage {
		t.Fatalf("Port = %q, want text", pkt.Port)
	}
	if pkt.Text.Text != "loopback test" {
		t.Errorf("Text = %q", pkt.Text.Text)
	}
	if pkt.ID != result.ID {
		t.Errorf("packet ID = %d, want %d", pkt.ID, result.ID)
	}
	if uint32(pkt.From) != 0x16fad3dc {
		t.Errorf("From = %s", pkt.From)
	}
	if pkt.ChannelName != "LongFast" {
		t.Errorf("ChannelName = %q", pkt.ChannelName)
	}
}

func TestHopValuesClamped(t *testing.T) {
	tests := []struct {
		configured int
		want       uint32
	}{
		{0, 3},
		{-1, 3},
		{1, 1},
		{7, 7},
		{12, 7},
	}

	for _, tt := range tests {
		cfg := testMeshSettings()
		cfg.HopLimit = tt.configured
		c := newCore(cfg, transport.Handlers{})

		hopStart, hopLimit := c.hopValues()
		if hopStart != tt.want || hopLimit != tt.want {
			t.Errorf("hopValues() with %d = %d/%d, want %d", tt.configured, hopStart, hopLimit, tt.want)
		}
	}
}

func TestSnapshotCacheFromNodeInfo(t *testing.T) {
	var updated *transport.NodeSnapshot
	c := newCore(testMeshSettings(), transport.Handlers{
		OnNodeUpdated: func(snap transport.NodeSnapshot) { updated = &snap },
	})

	c.updateSnapshot(map[string]any{
		"from": uint32(0x433b57b8),
		"decoded": map[string]any{
			"portnum": "NODEINFO_APP",
			"user": map[string]any{
				"id":        "!433b57b8",
				"shortName": "RPTR",
				"longName":  "Ridge Repeater",
				"hwModel":   "RAK4631",
			},
		},
	})

	if updated == nil {
		t.Fatal("node info should fire OnNodeUpdated")
	}
	if updated.ShortName != "RPTR" || updated.HwModel != "RAK4631" {
		t.Errorf("snapshot = %+v", updated)
	}

	nodes, err := c.Nodes()
	if err != nil {
		t.Fatalf("Nodes failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Num != 0x433b57b8 {
		t.Errorf("nodes = %+v", nodes)
	}
	if nodes[0].LastHeard == nil {
		t.Error("hearing a node should set its freshness")
	}
}

func TestSnapshotCacheTelemetryNoCallback(t *testing.T) {
	fired := false
	c := newCore(testMeshSettings(), transport.Handlers{
		OnNodeUpdated: func(transport.NodeSnapshot) { fired = true },
	})

	c.updateSnapshot(map[string]any{
		"from": uint32(0x433b57b8),
		"decoded": map[string]any{
			"portnum": "TELEMETRY_APP",
			"telemetry": map[string]any{
				"deviceMetrics": map[string]any{"batteryLevel": 83.0},
			},
		},
	})

	if fired {
		t.Error("telemetry updates the cache without firing OnNodeUpdated")
	}

	nodes, _ := c.Nodes()
	if len(nodes) != 1 || nodes[0].Battery == nil || *nodes[0].Battery != 83 {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestSelfInfoEnrichedFromSnapshot(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})

	self, err := c.SelfInfo()
	if err != nil {
		t.Fatalf("SelfInfo failed: %v", err)
	}
	if self.ShortName != "GATE" || self.HwModel != "" {
		t.Errorf("self = %+v", self)
	}

	c.updateSnapshot(map[string]any{
		"from": uint32(0x16fad3dc),
		"decoded": map[string]any{
			"portnum": "NODEINFO_APP",
			"user": map[string]any{
				"id":      "!16fad3dc",
				"hwModel": "HELTEC_V3",
			},
		},
	})

	self, err = c.SelfInfo()
	if err != nil {
		t.Fatalf("SelfInfo failed: %v", err)
	}
	if self.HwModel != "HELTEC_V3" {
		t.Errorf("HwModel = %q, want the overheard hardware model", self.HwModel)
	}
	if !strings.HasPrefix(self.Num.String(), "!") {
		t.Errorf("Num = %q", self.Num)
	}
}

func TestEpochChangesPerConnection(t *testing.T) {
	c := newCore(testMeshSettings(), transport.Handlers{})

	if c.Epoch() != "" {
		t.Error("no epoch before the first connection")
	}
	first := c.bumpEpoch()
	if first == "" || c.Epoch() != first {
		t.Errorf("epoch = %q", c.Epoch())
	}
	second := c.bumpEpoch()
	if second == first {
		t.Error("each connection gets a fresh epoch")
	}
}
