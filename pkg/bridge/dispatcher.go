package bridge

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

type sendKind int

const (
	sendChannel sendKind = iota
	sendDirect
	sendTelemetryReq
)

// sendIntent is one queued outbound mesh operation.
type sendIntent struct {
	kind     sendKind
	text     string
	selector string
	channel  string
	handle   models.ReplyHandle
}

var (
	selectorBangHex = regexp.MustCompile(`^![0-9a-fA-F]{8}$`)
	selectorHex     = regexp.MustCompile(`^0x[0-9a-fA-F]{8}$`)
	selectorDecimal = regexp.MustCompile(`^[0-9]{1,10}$`)
)

// SendToChannel queues a broadcast onto a mesh channel. Blocks while the
// send queue is full.
func (b *Bridge) SendToChannel(text, channel string, handle models.ReplyHandle) {
	if channel == "" {
		channel = b.cfg.MeshSettings.RelayChannel
	}
	b.sendQueue.Enqueue(&sendIntent{
		kind:    sendChannel,
		text:    text,
		channel: channel,
		handle:  handle,
	})
}

// SendDM queues a direct message to the node the selector names.
func (b *Bridge) SendDM(text, selector string, handle models.ReplyHandle) {
	b.sendQueue.Enqueue(&sendIntent{
		kind:     sendDirect,
		text:     text,
		selector: selector,
		handle:   handle,
	})
}

// RequestTelemetry queues a telemetry request to the node the selector
// names.
func (b *Bridge) RequestTelemetry(selector string, handle models.ReplyHandle) {
	b.sendQueue.Enqueue(&sendIntent{
		kind:     sendTelemetryReq,
		selector: selector,
		handle:   handle,
	})
}

// resolvedDest is a disambiguated send destination.
type resolvedDest struct {
	id        meshtastic.NodeID
	shortName *string
	longName  *string
}

// resolveSelector interprets a free-form destination selector. The
// selector must match exactly one accepted form: a bang-hex node ID, a
// 0x-hex node ID, a decimal node number, or a short name of up to four
// characters.
func (b *Bridge) resolveSelector(selector string) (*resolvedDest, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty destination")
	}

	isBang := selectorBangHex.MatchString(selector)
	isHex := selectorHex.MatchString(selector)
	isDecimal := selectorDecimal.MatchString(selector)
	isShort := !isBang && !isHex && !isDecimal && len([]rune(selector)) <= 4

	matches := 0
	for _, ok := range []bool{isBang, isHex, isDecimal, isShort} {
		if ok {
			matches++
		}
	}
	if matches != 1 {
		return nil, fmt.Errorf("ambiguous destination %q: use !hex, 0xhex, a node number, or a short name", selector)
	}

	switch {
	case isBang:
		id, err := meshtastic.ParseNodeID(selector)
		if err != nil {
			return nil, err
		}
		return b.destFromID(id)
	case isHex:
		v, err := strconv.ParseUint(selector[2:], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid destination %q: %w", selector, err)
		}
		return b.destFromID(meshtastic.NodeID(v))
	case isDecimal:
		v, err := strconv.ParseUint(selector, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid destination %q: node numbers are 32-bit", selector)
		}
		return b.destFromID(meshtastic.NodeID(v))
	}

	// Short name: the directory decides the arity.
	nodes, err := b.directory.ResolveShortName(selector)
	if err != nil {
		return nil, fmt.Errorf("resolving short name %q: %w", selector, err)
	}
	switch len(nodes) {
	case 1:
		node := nodes[0]
		dest := &resolvedDest{id: meshtastic.NodeID(node.NodeNum)}
		if s := node.ShortName(); s != "" {
			dest.shortName = &s
		}
		if l := node.LongName(); l != "" {
			dest.longName = &l
		}
		return dest, nil
	case 0:
		msg := fmt.Sprintf("no node with short name %q", selector)
		if names, err := b.directory.ShortNames(); err == nil {
			if suggestions := suggestShortNames(selector, names); len(suggestions) > 0 {
				msg += "; closest: " + strings.Join(suggestions, ", ")
			}
		}
		return nil, fmt.Errorf("%s", msg)
	default:
		descriptors := make([]string, 0, len(nodes))
		for _, n := range nodes {
			descriptors = append(descriptors, n.Descriptor())
		}
		return nil, fmt.Errorf("short name %q matches %d nodes: %s; use a node ID",
			selector, len(nodes), strings.Join(descriptors, " / "))
	}
}

func (b *Bridge) destFromID(id meshtastic.NodeID) (*resolvedDest, error) {
	dest := &resolvedDest{id: id}
	node, err := b.directory.Lookup(uint32(id))
	if err != nil {
		slog.Warn("destination lookup failed", "node", id.String(), "error", err)
	}
	if node != nil {
		if s := node.ShortName(); s != "" {
			dest.shortName = &s
		}
		if l := node.LongName(); l != "" {
			dest.longName = &l
		}
	}
	return dest, nil
}

// dispatchNext processes at most one queued send. Every intent ends in
// exactly one of a recorded send with a confirmation edit, or an error
// edit.
func (b *Bridge) dispatchNext() {
	intent, ok := b.sendQueue.TryDequeue()
	if !ok {
		return
	}

	switch intent.kind {
	case sendChannel:
		b.dispatchChannel(intent)
	case sendDirect:
		b.dispatchDirect(intent)
	case sendTelemetryReq:
		b.dispatchTelemetry(intent)
	}
}

func (b *Bridge) dispatchChannel(intent *sendIntent) {
	tr := b.transport()
	if tr == nil {
		b.editError(intent.handle, "Mesh transport is not connected.")
		return
	}

	result, err := tr.SendText(intent.text, meshtastic.BROADCAST_ID, intent.channel, false)
	if err != nil || result == nil || result.ID == 0 {
		slog.Error("channel send failed", "channel", intent.channel, "error", err)
		b.editError(intent.handle, fmt.Sprintf("Send on %s failed: %v", intent.channel, err))
		return
	}

	b.recordSend(intent, result, nil, false)
	b.edits.Enqueue(chat.Edit{
		Handle: intent.handle,
		Title:  "Sent",
		Body:   fmt.Sprintf("Broadcast on %s (packet %d).", intent.channel, result.ID),
		Color:  chat.ColorSent,
	})
}

func (b *Bridge) dispatchDirect(intent *sendIntent) {
	dest, err := b.resolveSelector(intent.selector)
	if err != nil {
		b.editError(intent.handle, "Cannot send: "+err.Error())
		return
	}

	tr := b.transport()
	if tr == nil {
		b.editError(intent.handle, "Mesh transport is not connected.")
		return
	}

	result, err := tr.SendText(intent.text, dest.id, "", true)
	if err != nil || result == nil || result.ID == 0 {
		slog.Error("direct send failed", "dest", dest.id.String(), "error", err)
		b.editError(intent.handle, fmt.Sprintf("Send to %s failed: %v", dest.id, err))
		return
	}

	b.recordSend(intent, result, dest, true)
	b.edits.Enqueue(chat.Edit{
		Handle: intent.handle,
		Title:  "Sent",
		Body:   fmt.Sprintf("Direct message to %s (packet %d), awaiting acknowledgment.", b.directory.Descriptor(dest.id), result.ID),
		Color:  chat.ColorSent,
	})
}

func (b *Bridge) dispatchTelemetry(intent *sendIntent) {
	dest, err := b.resolveSelector(intent.selector)
	if err != nil {
		b.editError(intent.handle, "Cannot request telemetry: "+err.Error())
		return
	}

	tr := b.transport()
	if tr == nil {
		b.editError(intent.handle, "Mesh transport is not connected.")
		return
	}

	result, err := tr.SendTelemetryRequest(dest.id)
	if err != nil || result == nil || result.ID == 0 {
		slog.Error("telemetry request failed", "dest", dest.id.String(), "error", err)
		b.editError(intent.handle, fmt.Sprintf("Telemetry request to %s failed: %v", dest.id, err))
		return
	}

	intent.text = "telemetry request"
	b.recordSend(intent, result, dest, true)
	b.edits.Enqueue(chat.Edit{
		Handle: intent.handle,
		Title:  "Telemetry requested",
		Body:   fmt.Sprintf("Asked %s for telemetry (packet %d).", b.directory.Descriptor(dest.id), result.ID),
		Color:  chat.ColorSent,
	})
}

// recordSend persists the TxPacket row for a successful transmit.
func (b *Bridge) recordSend(intent *sendIntent, result *transport.SendResult, dest *resolvedDest, wantAck bool) {
	tx := &models.TxPacket{
		PacketID:     result.ID,
		SessionEpoch: b.transport().Epoch(),
		Channel:      result.Channel,
		Text:         intent.text,
		DestNum:      uint32(result.To),
		DestID:       result.To.String(),
		AckRequested: wantAck,
		ReplyHandle:  intent.handle,
		SentAt:       time.Now().UTC(),
	}
	hopLimit := result.HopLimit
	tx.HopLimit = &hopLimit
	if dest != nil {
		tx.DestShortName = dest.shortName
		tx.DestLongName = dest.longName
	}

	if err := b.stores.TxPackets.Insert(tx); err != nil {
		slog.Error("persisting sent packet failed", "packet_id", result.ID, "error", err)
	}
}

func (b *Bridge) editError(handle models.ReplyHandle, body string) {
	b.edits.Enqueue(chat.Edit{
		Handle: handle,
		Title:  "Error",
		Body:   body,
		Color:  chat.ColorError,
	})
}
