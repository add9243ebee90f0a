package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

const (
	tickInterval = 500 * time.Millisecond
	// heartbeatEvery spaces link probes out to one per 30 seconds.
	heartbeatEvery = 60
)

// TransportFactory builds a fresh transport for the reconnect
// supervisor.
type TransportFactory func(handlers transport.Handlers) (transport.Transport, error)

// SetTransportFactory installs the builder used for forced reconnects.
func (b *Bridge) SetTransportFactory(factory TransportFactory) {
	b.newTransport = factory
}

// Run drives the bridge: a cooperative loop that drains at most one item
// from each queue per tick, then services the mesh side. Every step
// recovers on its own; the loop itself never stops until the context
// does.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case <-b.stop:
			slog.Info("scheduler stopping")
			return
		case <-ticker.C:
		}

		tick++
		b.safeStep("chat message", b.postNextMessage)
		b.safeStep("chat edit", b.postNextEdit)
		b.safeStep("thread dump", b.postNextDump)

		b.safeStep("self info", b.refreshSelfInfo)
		b.safeStep("battery watchdog", b.checkBattery)
		if tick%heartbeatEvery == 0 {
			b.safeStep("heartbeat", b.checkHeartbeat)
		}
		b.safeStep("reconnect", b.superviseReconnect)
		b.safeStep("send dispatch", b.dispatchNext)
		b.safeStep("admin dispatch", b.adminNext)
	}
}

// Stop ends the scheduler loop.
func (b *Bridge) Stop() {
	close(b.stop)
}

func (b *Bridge) safeStep(name string, step func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler step panicked", "step", name, "panic", r)
		}
	}()
	step()
}

func (b *Bridge) postNextMessage() {
	msg, ok := b.messages.TryDequeue()
	if !ok {
		return
	}
	if _, err := b.session.Send(msg); err != nil {
		slog.Error("posting chat message failed", "title", msg.Title, "error", err)
		return
	}
	if msg.CloseAfter {
		slog.Warn("closing chat session after final message", "title", msg.Title)
		if err := b.session.Close(); err != nil {
			slog.Error("closing chat session failed", "error", err)
		}
	}
}

func (b *Bridge) postNextEdit() {
	edit, ok := b.edits.TryDequeue()
	if !ok {
		return
	}
	if err := b.session.Edit(edit); err != nil {
		slog.Error("editing chat message failed",
			"message", edit.Handle.MessageID, "error", err)
	}
}

func (b *Bridge) postNextDump() {
	dump, ok := b.dumps.TryDequeue()
	if !ok {
		return
	}
	if err := b.session.PostThread(dump); err != nil {
		slog.Error("posting thread dump failed", "title", dump.Title, "error", err)
	}
}

// checkBattery watches the local node's battery level and raises one
// alert per excursion below the configured threshold.
func (b *Bridge) checkBattery() {
	threshold := b.cfg.MeshSettings.BatteryAlertLevel
	if threshold <= 0 {
		return
	}
	reset := b.cfg.MeshSettings.BatteryResetLevel
	if reset <= threshold {
		reset = threshold + 5
	}

	node, err := b.directory.Lookup(uint32(b.cfg.MeshSettings.SelfNode.NodeID))
	if err != nil || node == nil || node.BatteryLevel == nil {
		return
	}
	level := *node.BatteryLevel

	switch {
	case !b.batteryAlerted && level < threshold:
		b.batteryAlerted = true
		slog.Warn("local node battery low", "level", level, "threshold", threshold)
		b.messages.Enqueue(chat.Message{
			ChannelID: b.cfg.Discord.ChannelID,
			Title:     "Battery low",
			Body:      fmt.Sprintf("Local node battery at %.0f%% (threshold %.0f%%).", level, threshold),
			Color:     chat.ColorError,
		})
	case b.batteryAlerted && level >= reset:
		b.batteryAlerted = false
		slog.Info("local node battery recovered", "level", level)
	}
}

// checkHeartbeat probes the mesh link. A failed probe posts the
// lost-communication notice and hands the link to the reconnect
// supervisor.
func (b *Bridge) checkHeartbeat() {
	tr := b.transport()
	if tr == nil {
		return
	}
	err := tr.SendHeartbeat()
	if err == nil {
		return
	}
	slog.Warn("mesh heartbeat failed", "error", err)

	if b.cfg.MeshSettings.MonitorConnection {
		select {
		case b.reconnectRequested <- struct{}{}:
		default:
		}
		return
	}

	b.messages.Enqueue(chat.Message{
		ChannelID:  b.cfg.Discord.ChannelID,
		Title:      "Lost communication",
		Body:       "Lost communication with the mesh and reconnection is disabled. Shutting down.",
		Color:      chat.ColorError,
		CloseAfter: true,
	})
}

// superviseReconnect tears down and recreates the transport when a
// reconnect has been requested. A successful reconnect bumps the session
// epoch, so in-flight acknowledgments from the old connection no longer
// correlate.
func (b *Bridge) superviseReconnect() {
	select {
	case <-b.reconnectRequested:
	default:
		return
	}

	if !b.cfg.MeshSettings.MonitorConnection || b.newTransport == nil {
		return
	}

	slog.Warn("reconnecting mesh transport")
	if tr := b.transport(); tr != nil {
		b.flagOrphanedSends(tr.Epoch())
		if err := tr.Close(); err != nil {
			slog.Warn("closing old transport failed", "error", err)
		}
	}

	maxRetries := b.cfg.MeshSettings.MaxReconnectRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		tr, err := b.newTransport(b.Handlers())
		if err == nil {
			err = tr.Connect()
		}
		if err == nil {
			b.SetTransport(tr)
			slog.Info("mesh transport reconnected", "attempt", attempt, "epoch", tr.Epoch())
			return
		}
		slog.Error("reconnect attempt failed", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	b.messages.Enqueue(chat.Message{
		ChannelID:  b.cfg.Discord.ChannelID,
		Title:      "Lost communication",
		Body:       fmt.Sprintf("Could not reconnect to the mesh after %d attempts. Shutting down.", maxRetries),
		Color:      chat.ColorError,
		CloseAfter: true,
	})
}

// flagOrphanedSends notifies the chat messages of sends still awaiting
// an acknowledgment when the link resets. The epoch changes on
// reconnect, so those acknowledgments can never correlate again.
func (b *Bridge) flagOrphanedSends(epoch string) {
	pending, err := b.stores.TxPackets.GetUnacked(epoch)
	if err != nil {
		slog.Warn("listing unacknowledged sends failed", "error", err)
		return
	}
	for _, tx := range pending {
		if tx.ReplyHandle.IsZero() {
			continue
		}
		b.edits.Enqueue(chat.Edit{
			Handle: tx.ReplyHandle,
			Title:  "Still pending",
			Body:   fmt.Sprintf("The mesh link was reset before packet %d was acknowledged.", tx.PacketID),
			Color:  chat.ColorPending,
		})
	}
}
