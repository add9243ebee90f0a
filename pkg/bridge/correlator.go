package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

// routingErrorNone is the no-error reason carried by successful
// acknowledgments.
const routingErrorNone = "NONE"

// Correlator matches inbound routing responses to the sends that asked
// for them. Correlation is scoped to the transport session epoch, so a
// packet ID recycled after a reconnect can never match a stale record.
// Pending records never expire; unanswered sends stay on file.
type Correlator struct {
	bridge *Bridge
}

func NewCorrelator(b *Bridge) *Correlator {
	return &Correlator{bridge: b}
}

// OnRouting processes one ROUTING_APP packet. Repeated acknowledgments
// of the same send are logged and otherwise ignored.
func (c *Correlator) OnRouting(pkt *meshtastic.Packet, rx *models.RxPacket) {
	b := c.bridge
	if pkt.Routing == nil || pkt.Routing.RequestID == 0 {
		slog.Debug("routing packet without request id", "from", pkt.FromID)
		return
	}
	requestID := pkt.Routing.RequestID

	tr := b.transport()
	if tr == nil {
		slog.Error("routing response with no transport attached", "request_id", requestID)
		return
	}

	tx, err := b.stores.TxPackets.GetByRequestID(requestID, tr.Epoch())
	if err != nil {
		slog.Error("ack lookup failed", "request_id", requestID, "error", err)
		return
	}
	if tx == nil {
		slog.Error("routing response matches no sent packet",
			"request_id", requestID, "from", pkt.FromID)
		return
	}

	if tx.AckReceived {
		slog.Info("send already acknowledged",
			"request_id", requestID, "tx_packet", tx.ID, "from", pkt.FromID)
		return
	}

	// An acknowledgment relayed by our own gateway only proves the packet
	// left the radio; one from anyone else is the real thing.
	implicit := pkt.From == b.cfg.MeshSettings.SelfNode.NodeID

	errorReason := pkt.Routing.ErrorReason
	if errorReason == "" {
		errorReason = routingErrorNone
	}

	now := time.Now().UTC()
	tx.AckReceived = true
	tx.ResponseRxSnr = pkt.RxSnr
	tx.ResponseRxRssi = pkt.RxRssi
	tx.ResponseHopLimit = pkt.HopLimit
	tx.ResponseHopStart = pkt.HopStart
	tx.ResponseErrorReason = &errorReason
	tx.ResponseAt = &now
	if err := b.stores.TxPackets.MarkAcked(tx); err != nil {
		slog.Error("marking send acknowledged failed", "tx_packet", tx.ID, "error", err)
		return
	}

	ack := &models.Ack{
		TxPacketID: tx.ID,
		RxPacketID: rx.ID,
		Implicit:   implicit,
		AckedBy:    uint32(pkt.From),
		AckedByID:  pkt.FromID,
		RxSnr:      pkt.RxSnr,
		RxRssi:     pkt.RxRssi,
		HopLimit:   pkt.HopLimit,
		HopStart:   pkt.HopStart,
	}
	if errorReason != routingErrorNone {
		ack.ErrorReason = &errorReason
	}
	if err := b.stores.Acks.Insert(ack); err != nil {
		slog.Error("persisting acknowledgment failed", "tx_packet", tx.ID, "error", err)
	}

	if !tx.ReplyHandle.IsZero() {
		b.edits.Enqueue(c.ackEdit(tx, pkt, implicit, errorReason))
	}

	slog.Info("send acknowledged",
		"tx_packet", tx.ID,
		"request_id", requestID,
		"implicit", implicit,
		"error_reason", errorReason,
		"acked_by", pkt.FromID)
}

// ackEdit renders the acknowledgment update for the originating chat
// message.
func (c *Correlator) ackEdit(tx *models.TxPacket, pkt *meshtastic.Packet, implicit bool, errorReason string) chat.Edit {
	var title string
	color := chat.ColorAcked
	switch {
	case errorReason != routingErrorNone:
		title = "Delivery failed"
		color = chat.ColorError
	case implicit:
		title = "Acknowledged (implicit)"
	default:
		title = "Acknowledged"
	}

	body := fmt.Sprintf("Error reason: %s\n", errorReason)
	if !implicit {
		body += "Acknowledged by: " + c.bridge.directory.Descriptor(pkt.From) + "\n"
	}
	body += signalFooter(pkt)

	return chat.Edit{
		Handle: tx.ReplyHandle,
		Title:  title,
		Body:   body,
		Color:  color,
	}
}
