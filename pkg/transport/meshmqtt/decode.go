package meshmqtt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/kabili207/meshtastic-go/core/crypto"
	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic/pki"
)

// Matches Meshtastic channel topics: msh/{root}/2/e/{channel}/{gateway}
var meshtasticTopicRegex = regexp.MustCompile(`^(msh(?:/[^/]+)*)/2/e/([^/]+)/(![a-f0-9]{8})$`)

// keyRing resolves channel PSKs from configuration.
type keyRing struct {
	channels []config.MeshChannelDef
}

func newKeyRing(channels []config.MeshChannelDef) *keyRing {
	return &keyRing{channels: channels}
}

// Key returns the PSK for a channel, or the default Meshtastic key for
// the stock channel names.
func (r *keyRing) Key(channelName string) []byte {
	for _, ch := range r.channels {
		if ch.Name == channelName {
			if ch.Key == "" {
				return crypto.DefaultKey
			}
			key, err := crypto.ParseKey(ch.Key)
			if err != nil {
				return nil
			}
			return key
		}
	}
	if channelName == "LongFast" || channelName == "LongSlow" || channelName == "VLongSlow" {
		return crypto.DefaultKey
	}
	return nil
}

// Hash returns the Meshtastic channel hash for a named channel.
func (r *keyRing) Hash(channelName string) (uint32, error) {
	key := r.Key(channelName)
	if key == nil {
		return 0, fmt.Errorf("no key for channel %q", channelName)
	}
	return crypto.ChannelHash(channelName, key)
}

// protoToMap round-trips a protobuf message through protojson, producing
// the camelCase dictionary form the rest of the bridge consumes.
func protoToMap(m proto.Message) map[string]any {
	b, err := protojson.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// envelopeToRaw converts a decoded ServiceEnvelope into the
// semi-structured packet dictionary delivered to OnReceive. Packets that
// cannot be decrypted still produce an envelope with an encrypted marker.
func (c *core) envelopeToRaw(env *pb.ServiceEnvelope) (map[string]any, error) {
	pkt := env.GetPacket()
	if pkt == nil {
		return nil, fmt.Errorf("service envelope without packet")
	}

	raw := map[string]any{
		"channelName": env.ChannelId,

		"id":      pkt.Id,
		"from":    pkt.From,
		"to":      pkt.To,
		"fromId":  fmt.Sprintf("!%08x", pkt.From),
		"toId":    fmt.Sprintf("!%08x", pkt.To),
		"channel": pkt.Channel,
		"rxTime":  int64(pkt.RxTime),
		"wantAck": pkt.WantAck,
	}
	if pkt.HopLimit != 0 {
		raw["hopLimit"] = pkt.HopLimit
	}
	if pkt.HopStart != 0 {
		raw["hopStart"] = pkt.HopStart
	}
	if pkt.RxSnr != 0 {
		raw["rxSnr"] = float64(pkt.RxSnr)
	}
	if pkt.RxRssi != 0 {
		raw["rxRssi"] = float64(pkt.RxRssi)
	}
	if pkt.PkiEncrypted {
		raw["pkiEncrypted"] = true
	}
	raw["priority"] = pkt.Priority.String()

	var data *pb.Data
	if pkt.PkiEncrypted {
		data = c.tryPkiDecode(pkt)
	} else {
		key := c.keys.Key(env.ChannelId)
		if key == nil {
			key = crypto.DefaultKey
		}
		if d, err := crypto.TryDecode(pkt, key); err == nil {
			data = d
		}
	}
	if data == nil {
		if enc := pkt.GetEncrypted(); len(enc) > 0 {
			raw["encrypted"] = base64.StdEncoding.EncodeToString(enc)
		}
		return raw, nil
	}

	decoded := map[string]any{
		"portnum": data.Portnum.String(),
	}
	if data.RequestId != 0 {
		decoded["requestId"] = data.RequestId
	}

	switch data.Portnum {
	case pb.PortNum_TEXT_MESSAGE_APP:
		decoded["text"] = string(data.Payload)
		if data.ReplyId != 0 {
			decoded["replyId"] = data.ReplyId
		}
		if data.Emoji != 0 {
			decoded["emoji"] = data.Emoji
		}
		if data.Bitfield != nil {
			decoded["bitfield"] = *data.Bitfield
		}

	case pb.PortNum_POSITION_APP:
		var pos pb.Position
		if err := proto.Unmarshal(data.Payload, &pos); err == nil {
			m := protoToMap(&pos)
			// The fixed-point integers are authoritative; derive the
			// float-degree pair the way device clients do.
			if pos.LatitudeI != nil {
				m["latitude"] = float64(*pos.LatitudeI) * 1e-7
			}
			if pos.LongitudeI != nil {
				m["longitude"] = float64(*pos.LongitudeI) * 1e-7
			}
			decoded["position"] = m
		}

	case pb.PortNum_TELEMETRY_APP:
		var tel pb.Telemetry
		if err := proto.Unmarshal(data.Payload, &tel); err == nil {
			decoded["telemetry"] = protoToMap(&tel)
		}

	case pb.PortNum_NODEINFO_APP:
		var user pb.User
		if err := proto.Unmarshal(data.Payload, &user); err == nil {
			decoded["user"] = protoToMap(&user)
		}

	case pb.PortNum_ROUTING_APP:
		var routing pb.Routing
		if err := proto.Unmarshal(data.Payload, &routing); err == nil {
			m := protoToMap(&routing)
			if _, ok := m["errorReason"]; !ok {
				m["errorReason"] = pb.Routing_NONE.String()
			}
			decoded["routing"] = m
		}

	case pb.PortNum_TRACEROUTE_APP:
		var disco pb.RouteDiscovery
		if err := proto.Unmarshal(data.Payload, &disco); err == nil {
			decoded["traceroute"] = protoToMap(&disco)
		}
	}

	raw["decoded"] = decoded
	return raw, nil
}

// tryPkiDecode opens a PKI-encrypted payload with the local private key
// and the sender's overheard public key.
func (c *core) tryPkiDecode(pkt *pb.MeshPacket) *pb.Data {
	if len(c.pkiKey) == 0 {
		return nil
	}
	peerKey := c.peerPublicKey(pkt.From)
	if peerKey == nil {
		slog.Debug("pki packet from node with unknown public key", "from", pkt.From)
		return nil
	}

	plain, err := pki.Decrypt(pkt.GetEncrypted(), c.pkiKey, peerKey, pkt.Id, pkt.From)
	if err != nil {
		slog.Debug("pki decrypt failed", "from", pkt.From, "error", err)
		return nil
	}
	var data pb.Data
	if err := proto.Unmarshal(plain, &data); err != nil {
		return nil
	}
	return &data
}
