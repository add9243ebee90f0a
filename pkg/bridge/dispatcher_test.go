package bridge

import (
	"strings"
	"testing"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
)

func TestResolveSelector(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.addNode(0x11111111, "TWIN", "Twin A")
	f.addNode(0x22222222, "TWIN", "Twin B")

	tests := []struct {
		name     string
		selector string
		wantID   meshtastic.NodeID
		wantErr  string
	}{
		{name: "bang hex", selector: "!433b57b8", wantID: 0x433b57b8},
		{name: "0x hex", selector: "0x433b57b8", wantID: 0x433b57b8},
		{name: "decimal", selector: "1127962552", wantID: 0x433b57b8},
		{name: "decimal unknown node", selector: "12345", wantID: 12345},
		{name: "short name", selector: "RPTR", wantID: 0x433b57b8},
		{name: "short name case insensitive", selector: "rptr", wantID: 0x433b57b8},
		{name: "no matching form", selector: "notashortname", wantErr: "ambiguous destination"},
		{name: "empty", selector: "", wantErr: "empty destination"},
		{name: "unknown short name", selector: "ZZZZ", wantErr: "no node with short name"},
		{name: "duplicate short name", selector: "TWIN", wantErr: "use a node ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := f.bridge.resolveSelector(tt.selector)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got dest %+v", tt.wantErr, dest)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSelector(%q) failed: %v", tt.selector, err)
			}
			if dest.id != tt.wantID {
				t.Errorf("id = %s, want %s", dest.id, tt.wantID)
			}
		})
	}
}

func TestResolveSelectorSuggestions(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.addNode(0x11111111, "WPA1", "Node One")

	_, err := f.bridge.resolveSelector("WPA2")
	if err == nil {
		t.Fatal("expected an error for an unknown short name")
	}
	if !strings.Contains(err.Error(), "closest:") {
		t.Errorf("error = %q, want fuzzy suggestions", err.Error())
	}
	if !strings.Contains(err.Error(), "WPA1") {
		t.Errorf("error = %q, want WPA1 suggested", err.Error())
	}
}

func TestDispatchChannelBroadcast(t *testing.T) {
	f := newTestBridge()
	f.bridge.SendToChannel("hello mesh", "", testHandle())

	f.bridge.dispatchNext()

	if len(f.transport.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(f.transport.sent))
	}
	call := f.transport.sent[0]
	if call.channel != "MediumSlow" {
		t.Errorf("channel = %q, want relay channel default", call.channel)
	}
	if call.dest != meshtastic.BROADCAST_ID {
		t.Errorf("dest = %s, want broadcast", call.dest)
	}
	if call.wantAck {
		t.Error("broadcasts must not request an ack")
	}

	if len(f.txPackets.packets) != 1 {
		t.Fatalf("recorded %d sends, want 1", len(f.txPackets.packets))
	}
	tx := f.txPackets.packets[0]
	if tx.PacketID != 42 {
		t.Errorf("PacketID = %d, want 42", tx.PacketID)
	}
	if tx.SessionEpoch != testEpoch {
		t.Errorf("SessionEpoch = %q, want %q", tx.SessionEpoch, testEpoch)
	}
	if tx.AckRequested {
		t.Error("broadcast must not be recorded as ack-requested")
	}
	if tx.DestID != "!ffffffff" {
		t.Errorf("DestID = %q, want !ffffffff", tx.DestID)
	}

	edit, ok := f.nextEdit()
	if !ok {
		t.Fatal("expected a confirmation edit")
	}
	if edit.Title != "Sent" || edit.Color != chat.ColorSent {
		t.Errorf("edit = %q / %#x, want Sent / sent color", edit.Title, edit.Color)
	}
}

func TestDispatchDirect(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.bridge.SendDM("hi there", "RPTR", testHandle())

	f.bridge.dispatchNext()

	if len(f.transport.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(f.transport.sent))
	}
	call := f.transport.sent[0]
	if call.dest != 0x433b57b8 {
		t.Errorf("dest = %s, want !433b57b8", call.dest)
	}
	if !call.wantAck {
		t.Error("direct messages must request an ack")
	}

	if len(f.txPackets.packets) != 1 {
		t.Fatalf("recorded %d sends, want 1", len(f.txPackets.packets))
	}
	tx := f.txPackets.packets[0]
	if !tx.AckRequested {
		t.Error("direct send must be recorded as ack-requested")
	}
	if tx.DestShortName == nil || *tx.DestShortName != "RPTR" {
		t.Errorf("DestShortName = %v, want RPTR", tx.DestShortName)
	}

	edit, ok := f.nextEdit()
	if !ok {
		t.Fatal("expected a confirmation edit")
	}
	if edit.Title != "Sent" {
		t.Errorf("edit title = %q, want Sent", edit.Title)
	}
	if !strings.Contains(edit.Body, "awaiting acknowledgment") {
		t.Errorf("edit body = %q, want pending-ack note", edit.Body)
	}
}

func TestDispatchDirectUnknownShortName(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.bridge.SendDM("hi", "ZZZZ", testHandle())

	f.bridge.dispatchNext()

	if len(f.transport.sent) != 0 {
		t.Fatalf("nothing should be sent, got %d", len(f.transport.sent))
	}
	edit, ok := f.nextEdit()
	if !ok {
		t.Fatal("expected an error edit")
	}
	if edit.Title != "Error" || edit.Color != chat.ColorError {
		t.Errorf("edit = %q / %#x, want Error / error color", edit.Title, edit.Color)
	}
}

func TestDispatchWithoutTransport(t *testing.T) {
	f := newTestBridge()
	f.bridge.SetTransport(nil)
	f.bridge.SendToChannel("hello", "", testHandle())

	f.bridge.dispatchNext()

	edit, ok := f.nextEdit()
	if !ok {
		t.Fatal("expected an error edit")
	}
	if edit.Color != chat.ColorError {
		t.Errorf("edit color = %#x, want error color", edit.Color)
	}
	if len(f.txPackets.packets) != 0 {
		t.Error("no send should be recorded")
	}
}

func TestDispatchTelemetryRequest(t *testing.T) {
	f := newTestBridge()
	f.addNode(0x433b57b8, "RPTR", "Ridge Repeater")
	f.bridge.RequestTelemetry("!433b57b8", testHandle())

	f.bridge.dispatchNext()

	if len(f.transport.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(f.transport.sent))
	}
	if len(f.txPackets.packets) != 1 {
		t.Fatalf("recorded %d sends, want 1", len(f.txPackets.packets))
	}
	if f.txPackets.packets[0].Text != "telemetry request" {
		t.Errorf("recorded text = %q", f.txPackets.packets[0].Text)
	}

	edit, ok := f.nextEdit()
	if !ok {
		t.Fatal("expected a confirmation edit")
	}
	if edit.Title != "Telemetry requested" {
		t.Errorf("edit title = %q", edit.Title)
	}
}

func TestDispatchNextEmptyQueue(t *testing.T) {
	f := newTestBridge()
	f.bridge.dispatchNext()

	if _, ok := f.nextEdit(); ok {
		t.Error("empty queue must produce no edits")
	}
	if len(f.transport.sent) != 0 {
		t.Error("empty queue must send nothing")
	}
}
