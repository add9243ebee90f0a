package meshmqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

const publishTimeout = 5 * time.Second

// Client is the client-mode transport: it connects out to an external
// MQTT broker carrying mesh gateway traffic.
type Client struct {
	*core
	mqtt paho.Client
}

var _ transport.Transport = (*Client)(nil)

// NewClient builds a client-mode transport. Handlers fire on paho's
// goroutines once Connect succeeds.
func NewClient(cfg config.MeshSettings, handlers transport.Handlers) *Client {
	c := &Client{core: newCore(cfg, handlers)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerAddr).
		SetClientID("meshbridge-" + cfg.SelfNode.NodeID.String()).
		SetUsername(cfg.MqttUser).
		SetPassword(cfg.MqttPass).
		SetAutoReconnect(false).
		SetOrderMatters(false)

	opts.SetOnConnectHandler(func(client paho.Client) {
		epoch := c.bumpEpoch()
		filter := cfg.MqttRoot + "/2/e/+/+"
		token := client.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
			c.handlePayload(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			slog.Error("mesh topic subscribe failed", "filter", filter, "error", token.Error())
			return
		}
		slog.Info("mesh link established", "broker", cfg.BrokerAddr, "filter", filter, "epoch", epoch)
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect(epoch)
		}
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mesh link lost", "error", err)
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(err)
		}
	})

	c.mqtt = paho.NewClient(opts)
	c.publish = c.publishPacket
	return c
}

func (c *Client) Connect() error {
	token := c.mqtt.Connect()
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker %s: %w", c.cfg.BrokerAddr, token.Error())
	}
	return nil
}

func (c *Client) Close() error {
	c.mqtt.Disconnect(250)
	return nil
}

func (c *Client) publishPacket(topic string, payload []byte) error {
	token := c.mqtt.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}

// SendHeartbeat probes the broker link by publishing the gateway status
// topic. A closed connection fails immediately.
func (c *Client) SendHeartbeat() error {
	if !c.mqtt.IsConnectionOpen() {
		return fmt.Errorf("mqtt connection closed")
	}
	topic := c.cfg.MqttRoot + "/2/stat/" + c.cfg.SelfNode.NodeID.String()
	return c.publishPacket(topic, []byte("online"))
}
