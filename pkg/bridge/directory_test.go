package bridge

import (
	"testing"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

func TestDirectoryDescriptor(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	d := f.bridge.directory

	tests := []struct {
		name string
		id   meshtastic.NodeID
		want string
	}{
		{"known node", 0x433b57b8, "!433b57b8 | RPTR | Ridge Repeater"},
		{"unknown node", 0x00000042, "!00000042 | ? | ?"},
		{"broadcast", meshtastic.BROADCAST_ID, "!ffffffff | ^all | All Nodes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Descriptor(tt.id); got != tt.want {
				t.Errorf("Descriptor(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestDirectoryLookupCaches(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	d := f.bridge.directory

	first, err := d.Lookup(0x433b57b8)
	if err != nil || first == nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	// Remove the backing row; the cached entry still answers.
	delete(f.nodes.nodes, 0x433b57b8)
	second, err := d.Lookup(0x433b57b8)
	if err != nil || second == nil {
		t.Fatal("cached entry should survive a store miss")
	}
	if second != first {
		t.Error("Lookup should return the cached entry")
	}
}

func TestDirectoryRecordSnapshot(t *testing.T) {
	f := newTestBridge()
	d := f.bridge.directory

	battery := 74.0
	heard := time.Now().UTC().Add(-time.Minute).Unix()
	snap := transport.NodeSnapshot{
		Num:       0x433b57b8,
		ID:        "!433b57b8",
		ShortName: "RPTR",
		LongName:  "Ridge Repeater",
		Battery:   &battery,
		LastHeard: &heard,
	}
	if err := d.RecordSnapshot(snap); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	node, _ := f.nodes.GetByNum(0x433b57b8)
	if node == nil {
		t.Fatal("snapshot should create the directory entry")
	}
	if node.ShortNameNodeDB == nil || *node.ShortNameNodeDB != "RPTR" {
		t.Errorf("ShortNameNodeDB = %v, snapshot data belongs to the nodedb channel", node.ShortNameNodeDB)
	}
	if node.ShortNameNodeInfo != nil {
		t.Error("snapshot must not touch the nodeinfo channel")
	}
	if node.UpdatedNodeDB == nil {
		t.Error("nodedb provenance timestamp should be set")
	}
	if node.BatteryLevel == nil || *node.BatteryLevel != 74 {
		t.Errorf("BatteryLevel = %v", node.BatteryLevel)
	}
	if node.LastHeard == nil || node.LastHeard.Unix() != heard {
		t.Errorf("LastHeard = %v", node.LastHeard)
	}
}

func TestDirectoryRecordHeardHops(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	d := f.bridge.directory

	hopLimit, hopStart := int32(1), int32(3)
	pkt := &meshtastic.Packet{
		From:     0x433b57b8,
		FromID:   "!433b57b8",
		HopLimit: &hopLimit,
		HopStart: &hopStart,
		RxTime:   time.Now().UTC(),
	}
	if err := d.RecordHeard(pkt); err != nil {
		t.Fatalf("RecordHeard failed: %v", err)
	}

	node, _ := f.nodes.GetByNum(0x433b57b8)
	if node.LastHeard == nil {
		t.Error("RecordHeard should touch last_heard")
	}
}

func TestDirectoryShortNames(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.addNode(0x11111111, "", "")
	d := f.bridge.directory

	names, err := d.ShortNames()
	if err != nil {
		t.Fatalf("ShortNames failed: %v", err)
	}
	if len(names) != 1 || names[0] != "RPTR" {
		t.Errorf("names = %v, nameless nodes must be skipped", names)
	}
}
