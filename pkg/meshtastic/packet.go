package meshtastic

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Port application identifiers as they appear in decoded packet maps.
const (
	PortTextMessage = "TEXT_MESSAGE_APP"
	PortPosition    = "POSITION_APP"
	PortTelemetry   = "TELEMETRY_APP"
	PortNodeInfo    = "NODEINFO_APP"
	PortRouting     = "ROUTING_APP"
	PortTraceroute  = "TRACEROUTE_APP"

	// PortEncrypted is a synthetic port assigned to packets that carry an
	// encrypted payload we cannot decode (relayed PKI traffic).
	PortEncrypted = "ENCRYPTED"
	// PortUnknown is a synthetic port for packets with no recognisable
	// decoded section at all.
	PortUnknown = "UNKNOWN"
)

// TextMessage is the decoded payload of a TEXT_MESSAGE_APP packet.
type TextMessage struct {
	Text     string `mapstructure:"text"`
	ReplyID  uint32 `mapstructure:"replyId"`
	Emoji    uint32 `mapstructure:"emoji"`
	Bitfield uint32 `mapstructure:"bitfield"`
}

// Position is the decoded payload of a POSITION_APP packet. Both the
// float-degree and fixed-point integer forms are kept, matching the wire.
type Position struct {
	Latitude       float64 `mapstructure:"latitude"`
	Longitude      float64 `mapstructure:"longitude"`
	LatitudeI      int64   `mapstructure:"latitudeI"`
	LongitudeI     int64   `mapstructure:"longitudeI"`
	Altitude       int32   `mapstructure:"altitude"`
	PDOP           uint32  `mapstructure:"PDOP"`
	GroundSpeed    uint32  `mapstructure:"groundSpeed"`
	GroundTrack    uint32  `mapstructure:"groundTrack"`
	SatsInView     uint32  `mapstructure:"satsInView"`
	PrecisionBits  uint32  `mapstructure:"precisionBits"`
	LocationSource string  `mapstructure:"locationSource"`
	Time           uint32  `mapstructure:"time"`
}

// Telemetry carries up to four independent metric groups. Group schemas
// drift across firmware versions, so the maps are kept open by design;
// only presence is tracked as a flag.
type Telemetry struct {
	Time uint32 `mapstructure:"time"`

	DeviceMetrics      map[string]any `mapstructure:"deviceMetrics"`
	EnvironmentMetrics map[string]any `mapstructure:"environmentMetrics"`
	PowerMetrics       map[string]any `mapstructure:"powerMetrics"`
	AirQualityMetrics  map[string]any `mapstructure:"airQualityMetrics"`
}

func (t *Telemetry) HasDeviceMetrics() bool      { return len(t.DeviceMetrics) > 0 }
func (t *Telemetry) HasEnvironmentMetrics() bool { return len(t.EnvironmentMetrics) > 0 }
func (t *Telemetry) HasPowerMetrics() bool       { return len(t.PowerMetrics) > 0 }
func (t *Telemetry) HasAirQualityMetrics() bool  { return len(t.AirQualityMetrics) > 0 }

// NodeInfo is the decoded user record of a NODEINFO_APP packet.
type NodeInfo struct {
	ID         string `mapstructure:"id"`
	ShortName  string `mapstructure:"shortName"`
	LongName   string `mapstructure:"longName"`
	MacAddress string `mapstructure:"macaddr"`
	HwModel    string `mapstructure:"hwModel"`
	PublicKey  string `mapstructure:"publicKey"`
}

// Routing is the decoded payload of a ROUTING_APP packet. RequestID lives
// on the enclosing decoded section but belongs to this variant.
type Routing struct {
	RequestID   uint32
	ErrorReason string
}

// Traceroute is the decoded payload of a TRACEROUTE_APP packet. The hop
// and SNR arrays are kept opaque; the firmware pads them asymmetrically.
type Traceroute struct {
	Route      []uint32 `mapstructure:"route"`
	RouteBack  []uint32 `mapstructure:"routeBack"`
	SnrTowards []int32  `mapstructure:"snrTowards"`
	SnrBack    []int32  `mapstructure:"snrBack"`
}

// Packet is the normalized form of one inbound radio packet: the common
// envelope plus exactly one port-application variant selected by Port.
type Packet struct {
	Port string

	ID          uint32
	From        NodeID
	To          NodeID
	FromID      string
	ToID        string
	Channel     int32
	ChannelName string
	HopLimit    *int32
	HopStart    *int32
	RxTime      time.Time
	RxSnr       *float64
	RxRssi      *float64
	WantAck     bool
	PKI         bool
	Priority    string

	Text       *TextMessage
	Position   *Position
	Telemetry  *Telemetry
	NodeInfo   *NodeInfo
	Routing    *Routing
	Traceroute *Traceroute
}

// rawEnvelope mirrors the top level of the transport's packet dictionary.
// Pointer fields distinguish absent from zero.
type rawEnvelope struct {
	ID          uint32         `mapstructure:"id"`
	From        uint32         `mapstructure:"from"`
	To          uint32         `mapstructure:"to"`
	FromID      string         `mapstructure:"fromId"`
	ToID        string         `mapstructure:"toId"`
	Channel     int32          `mapstructure:"channel"`
	ChannelName string         `mapstructure:"channelName"`
	HopLimit    *int32         `mapstructure:"hopLimit"`
	HopStart    *int32         `mapstructure:"hopStart"`
	RxTime      int64          `mapstructure:"rxTime"`
	RxSnr       *float64       `mapstructure:"rxSnr"`
	RxRssi      *float64       `mapstructure:"rxRssi"`
	WantAck     bool           `mapstructure:"wantAck"`
	PKI         bool           `mapstructure:"pkiEncrypted"`
	Priority    string         `mapstructure:"priority"`
	Encrypted   any            `mapstructure:"encrypted"`
	Decoded     map[string]any `mapstructure:"decoded"`
}

type rawDecoded struct {
	Portnum    string         `mapstructure:"portnum"`
	RequestID  uint32         `mapstructure:"requestId"`
	Text       string         `mapstructure:"text"`
	ReplyID    uint32         `mapstructure:"replyId"`
	Emoji      uint32         `mapstructure:"emoji"`
	Bitfield   uint32         `mapstructure:"bitfield"`
	Position   map[string]any `mapstructure:"position"`
	Telemetry  map[string]any `mapstructure:"telemetry"`
	User       map[string]any `mapstructure:"user"`
	Routing    map[string]any `mapstructure:"routing"`
	Traceroute map[string]any `mapstructure:"traceroute"`
}

func weakDecode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Classify converts the transport's semi-structured packet dictionary into
// a Packet. Missing optional fields default; Classify only fails when the
// dictionary cannot be interpreted as a packet envelope at all.
func Classify(raw map[string]any) (*Packet, error) {
	var env rawEnvelope
	if err := weakDecode(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding packet envelope: %w", err)
	}

	p := &Packet{
		ID:          env.ID,
		From:        NodeID(env.From),
		To:          NodeID(env.To),
		FromID:      env.FromID,
		ToID:        env.ToID,
		Channel:     env.Channel,
		ChannelName: env.ChannelName,
		HopLimit:    env.HopLimit,
		HopStart:    env.HopStart,
		RxSnr:       env.RxSnr,
		RxRssi:      env.RxRssi,
		WantAck:     env.WantAck,
		PKI:         env.PKI,
		Priority:    env.Priority,
	}
	if env.RxTime != 0 {
		p.RxTime = time.Unix(env.RxTime, 0).UTC()
	} else {
		p.RxTime = time.Now().UTC()
	}

	// Some gateways only populate the string identities; the numeric
	// fields are derived from them when absent.
	if env.From == 0 && env.FromID != "" {
		if id, err := ParseNodeID(env.FromID); err == nil {
			p.From = id
		}
	}
	if env.To == 0 && env.ToID != "" {
		if id, err := ParseNodeID(env.ToID); err == nil {
			p.To = id
		}
	}

	// The library rewrites broadcast toId as "^all"; keep the bang form so
	// identity comparisons stay uniform.
	if p.FromID == "" && p.From != 0 {
		p.FromID = p.From.String()
	}
	if p.ToID == "" || p.ToID == "^all" {
		p.ToID = p.To.String()
	}

	if len(env.Decoded) == 0 {
		if env.Encrypted != nil {
			p.Port = PortEncrypted
		} else {
			p.Port = PortUnknown
		}
		return p, nil
	}

	var dec rawDecoded
	if err := weakDecode(env.Decoded, &dec); err != nil {
		return nil, fmt.Errorf("decoding packet payload: %w", err)
	}
	p.Port = dec.Portnum
	if p.Port == "" {
		p.Port = PortUnknown
		return p, nil
	}

	switch p.Port {
	case PortTextMessage:
		p.Text = &TextMessage{
			Text:     dec.Text,
			ReplyID:  dec.ReplyID,
			Emoji:    dec.Emoji,
			Bitfield: dec.Bitfield,
		}
	case PortPosition:
		pos := &Position{}
		if err := weakDecode(dec.Position, pos); err != nil {
			return nil, fmt.Errorf("decoding position: %w", err)
		}
		p.Position = pos
	case PortTelemetry:
		tel := &Telemetry{}
		if err := weakDecode(dec.Telemetry, tel); err != nil {
			return nil, fmt.Errorf("decoding telemetry: %w", err)
		}
		p.Telemetry = tel
	case PortNodeInfo:
		ni := &NodeInfo{}
		if err := weakDecode(dec.User, ni); err != nil {
			return nil, fmt.Errorf("decoding node info: %w", err)
		}
		p.NodeInfo = ni
	case PortRouting:
		rt := &Routing{RequestID: dec.RequestID}
		if reason, ok := dec.Routing["errorReason"].(string); ok {
			rt.ErrorReason = reason
		}
		p.Routing = rt
	case PortTraceroute:
		tr := &Traceroute{}
		if err := weakDecode(dec.Traceroute, tr); err != nil {
			return nil, fmt.Errorf("decoding traceroute: %w", err)
		}
		p.Traceroute = tr
	}

	return p, nil
}

// IsTextMessage reports whether this is a text message packet.
func (p *Packet) IsTextMessage() bool { return p.Port == PortTextMessage }

// ToAll reports whether the packet was addressed to the broadcast address.
func (p *Packet) ToAll() bool { return p.To.IsBroadcast() }

// SnrString renders the receive SNR as "<v> dB", or "?" when absent.
func (p *Packet) SnrString() string { return signalString(p.RxSnr) }

// RssiString renders the receive RSSI as "<v> dB", or "?" when absent.
func (p *Packet) RssiString() string { return signalString(p.RxRssi) }

func signalString(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%g dB", *v)
}

// HopsString renders hop usage as "used/start", with "?" for either side
// when the packet omitted the hop fields.
func (p *Packet) HopsString() string {
	used, start := "?", "?"
	if p.HopStart != nil {
		start = fmt.Sprintf("%d", *p.HopStart)
		if p.HopLimit != nil {
			used = fmt.Sprintf("%d", *p.HopStart-*p.HopLimit)
		}
	}
	return used + "/" + start
}
