package meshtastic

import "testing"

func TestClassifyTextMessage(t *testing.T) {
	raw := map[string]any{
		"id":       uint32(123456),
		"from":     uint32(0x16fad3dc),
		"to":       uint32(0xFFFFFFFF),
		"toId":     "^all",
		"channel":  8,
		"hopLimit": 2,
		"hopStart": 3,
		"rxSnr":    6.25,
		"rxRssi":   -80.0,
		"rxTime":   int64(1756700000),
		"decoded": map[string]any{
			"portnum": "TEXT_MESSAGE_APP",
			"text":    "hello mesh",
		},
	}

	pkt, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if pkt.Port != PortTextMessage {
		t.Errorf("Port = %q, want %q", pkt.Port, PortTextMessage)
	}
	if !pkt.IsTextMessage() {
		t.Error("IsTextMessage() should be true")
	}
	if pkt.Text == nil || pkt.Text.Text != "hello mesh" {
		t.Errorf("Text = %+v", pkt.Text)
	}
	if pkt.FromID != "!16fad3dc" {
		t.Errorf("FromID = %q, want !16fad3dc", pkt.FromID)
	}
	if pkt.ToID != "!ffffffff" {
		t.Errorf("ToID = %q, want !ffffffff (bang form, not ^all)", pkt.ToID)
	}
	if !pkt.ToAll() {
		t.Error("ToAll() should be true")
	}
	if got := pkt.HopsString(); got != "1/3" {
		t.Errorf("HopsString() = %q, want 1/3", got)
	}
	if got := pkt.SnrString(); got != "6.25 dB" {
		t.Errorf("SnrString() = %q, want 6.25 dB", got)
	}
}

func TestClassifyStringIdentitiesOnly(t *testing.T) {
	// Some gateways omit the numeric from/to entirely and only carry the
	// string identities; the broadcast alias must still classify as a
	// broadcast, not a direct message to node 0.
	raw := map[string]any{
		"fromId":  "!aaaa1111",
		"toId":    "^all",
		"channel": 0,
		"decoded": map[string]any{
			"portnum": "TEXT_MESSAGE_APP",
			"text":    "hello",
		},
	}

	pkt, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !pkt.IsTextMessage() || pkt.Text == nil || pkt.Text.Text != "hello" {
		t.Errorf("Text = %+v", pkt.Text)
	}
	if pkt.From != NodeID(0xaaaa1111) {
		t.Errorf("From = %v, want 0xaaaa1111 derived from fromId", uint32(pkt.From))
	}
	if pkt.FromID != "!aaaa1111" {
		t.Errorf("FromID = %q, want !aaaa1111", pkt.FromID)
	}
	if !pkt.ToAll() {
		t.Error("ToAll() should be true for toId ^all")
	}
	if pkt.To != BROADCAST_ID || pkt.ToID != "!ffffffff" {
		t.Errorf("To = %v ToID = %q, want broadcast", uint32(pkt.To), pkt.ToID)
	}
}

func TestClassifySparseMaps(t *testing.T) {
	// Nothing in these may panic or error; missing fields default.
	tests := []struct {
		name     string
		raw      map[string]any
		wantPort string
	}{
		{"empty map", map[string]any{}, PortUnknown},
		{"envelope only", map[string]any{"from": 1, "to": 2}, PortUnknown},
		{"encrypted marker", map[string]any{"from": 1, "encrypted": "aGk="}, PortEncrypted},
		{"decoded without portnum", map[string]any{"decoded": map[string]any{}}, PortUnknown},
		{"unknown portnum", map[string]any{"decoded": map[string]any{"portnum": "ADMIN_APP"}}, "ADMIN_APP"},
		{"text without text field", map[string]any{"decoded": map[string]any{"portnum": "TEXT_MESSAGE_APP"}}, PortTextMessage},
		{"position without body", map[string]any{"decoded": map[string]any{"portnum": "POSITION_APP"}}, PortPosition},
		{"telemetry without groups", map[string]any{"decoded": map[string]any{"portnum": "TELEMETRY_APP"}}, PortTelemetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := Classify(tt.raw)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if pkt.Port != tt.wantPort {
				t.Errorf("Port = %q, want %q", pkt.Port, tt.wantPort)
			}
		})
	}
}

func TestClassifyNodeInfo(t *testing.T) {
	raw := map[string]any{
		"from": uint32(0x433b57b8),
		"to":   uint32(0x16fad3dc),
		"decoded": map[string]any{
			"portnum": "NODEINFO_APP",
			"user": map[string]any{
				"id":        "!433b57b8",
				"shortName": "RPTR",
				"longName":  "Ridge Repeater",
				"hwModel":   "RAK4631",
			},
		},
	}

	pkt, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if pkt.NodeInfo == nil {
		t.Fatal("NodeInfo should be populated")
	}
	if pkt.NodeInfo.ShortName != "RPTR" || pkt.NodeInfo.LongName != "Ridge Repeater" {
		t.Errorf("NodeInfo = %+v", pkt.NodeInfo)
	}
}

func TestClassifyRouting(t *testing.T) {
	raw := map[string]any{
		"from": uint32(0x433b57b8),
		"to":   uint32(0x16fad3dc),
		"decoded": map[string]any{
			"portnum":   "ROUTING_APP",
			"requestId": uint32(987654),
			"routing":   map[string]any{"errorReason": "NO_RESPONSE"},
		},
	}

	pkt, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if pkt.Routing == nil {
		t.Fatal("Routing should be populated")
	}
	if pkt.Routing.RequestID != 987654 {
		t.Errorf("RequestID = %d, want 987654", pkt.Routing.RequestID)
	}
	if pkt.Routing.ErrorReason != "NO_RESPONSE" {
		t.Errorf("ErrorReason = %q, want NO_RESPONSE", pkt.Routing.ErrorReason)
	}
}

func TestClassifyTelemetryGroups(t *testing.T) {
	raw := map[string]any{
		"from": uint32(0x433b57b8),
		"decoded": map[string]any{
			"portnum": "TELEMETRY_APP",
			"telemetry": map[string]any{
				"time": 1756700000,
				"deviceMetrics": map[string]any{
					"batteryLevel": 83,
					"voltage":      4.01,
				},
			},
		},
	}

	pkt, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	tel := pkt.Telemetry
	if tel == nil {
		t.Fatal("Telemetry should be populated")
	}
	if !tel.HasDeviceMetrics() {
		t.Error("device metrics group should be present")
	}
	if tel.HasEnvironmentMetrics() || tel.HasPowerMetrics() || tel.HasAirQualityMetrics() {
		t.Error("absent groups should not report present")
	}
}

func TestSignalStringsAbsent(t *testing.T) {
	pkt := &Packet{}
	if got := pkt.SnrString(); got != "?" {
		t.Errorf("SnrString() = %q, want ?", got)
	}
	if got := pkt.RssiString(); got != "?" {
		t.Errorf("RssiString() = %q, want ?", got)
	}
	if got := pkt.HopsString(); got != "?/?" {
		t.Errorf("HopsString() = %q, want ?/?", got)
	}
}
