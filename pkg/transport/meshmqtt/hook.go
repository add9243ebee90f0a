package meshmqtt

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

// Credentials validates gateway connections in broker mode. A nil
// Credentials admits everyone.
type Credentials interface {
	Authenticate(username, password string) bool
}

// Broker is the broker-mode transport: the bridge embeds an MQTT server
// and mesh gateways connect to it directly.
type Broker struct {
	*core
	server *mqtt.Server
	creds  Credentials
}

var _ transport.Transport = (*Broker)(nil)

// NewBroker builds a broker-mode transport listening on cfg.ListenAddr.
func NewBroker(cfg config.MeshSettings, handlers transport.Handlers, creds Credentials) *Broker {
	b := &Broker{core: newCore(cfg, handlers), creds: creds}
	b.server = mqtt.New(&mqtt.Options{InlineClient: true})
	b.publish = func(topic string, payload []byte) error {
		return b.server.Publish(topic, payload, false, 0)
	}
	return b
}

func (b *Broker) Connect() error {
	if err := b.server.AddHook(new(meshHook), &meshHookOptions{Core: b.core, Creds: b.creds}); err != nil {
		return fmt.Errorf("adding mesh hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "mesh-tcp", Address: b.cfg.ListenAddr})
	if err := b.server.AddListener(tcp); err != nil {
		return fmt.Errorf("adding listener: %w", err)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			slog.Error("embedded broker stopped", "error", err)
			if b.handlers.OnDisconnect != nil {
				b.handlers.OnDisconnect(err)
			}
		}
	}()

	epoch := b.bumpEpoch()
	slog.Info("embedded broker listening", "addr", b.cfg.ListenAddr, "epoch", epoch)
	if b.handlers.OnConnect != nil {
		b.handlers.OnConnect(epoch)
	}
	return nil
}

func (b *Broker) Close() error {
	return b.server.Close()
}

// SendHeartbeat reports link health. With no gateway connected there is
// no path to the mesh, which counts as a dead link.
func (b *Broker) SendHeartbeat() error {
	for _, cl := range b.server.Clients.GetAll() {
		if !cl.Closed() && !cl.Net.Inline {
			return nil
		}
	}
	return fmt.Errorf("no mesh gateway connected")
}

// meshHookOptions configures the mesh hook.
type meshHookOptions struct {
	Core  *core
	Creds Credentials
}

// meshHook feeds packets published by connected gateways into the shared
// decode path.
type meshHook struct {
	mqtt.HookBase
	config *meshHookOptions
}

func (h *meshHook) ID() string {
	return "mesh-bridge-hook"
}

func (h *meshHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
		mqtt.OnConnect,
		mqtt.OnDisconnect,
		mqtt.OnPublish,
	}, []byte{b})
}

func (h *meshHook) Init(config any) error {
	opts, ok := config.(*meshHookOptions)
	if !ok || opts == nil || opts.Core == nil {
		return mqtt.ErrInvalidConfigType
	}
	h.config = opts
	return nil
}

// OnConnectAuthenticate checks CONNECT credentials against the gateway
// account table. Inline publishes from the bridge itself never reach
// this hook.
func (h *meshHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	if h.config.Creds == nil {
		return true
	}
	user := string(pk.Connect.Username)
	if h.config.Creds.Authenticate(user, string(pk.Connect.Password)) {
		return true
	}
	h.Log.Warn("gateway failed authentication", "client", cl.ID, "user", user, "remote", cl.Net.Remote)
	return false
}

// OnACLCheck restricts gateways to the mesh topic tree and their will
// topic.
func (h *meshHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	if topic == "will" || topic == "/will" {
		return true
	}
	root := h.config.Core.cfg.MqttRoot
	if topic == root || strings.HasPrefix(topic, root+"/") {
		return true
	}
	h.Log.Warn("gateway denied topic", "client", cl.ID, "topic", topic, "write", write)
	return false
}

func (h *meshHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	h.Log.Info("gateway connected", "client", cl.ID)
	return nil
}

func (h *meshHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if err != nil {
		h.Log.Info("gateway disconnected", "client", cl.ID, "expire", expire, "error", err)
	} else {
		h.Log.Info("gateway disconnected", "client", cl.ID, "expire", expire)
	}
}

func (h *meshHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	matches := meshtasticTopicRegex.FindStringSubmatch(pk.TopicName)
	if len(matches) == 0 {
		return pk, nil
	}

	// Our own publishes come back through this hook; the gateway segment
	// tells them apart from real mesh traffic.
	if matches[3] == h.config.Core.cfg.SelfNode.NodeID.String() {
		return pk, nil
	}

	h.config.Core.handlePayload(pk.Payload)
	return pk, nil
}
