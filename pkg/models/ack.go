package models

import "time"

// Ack links a routing response back to the send it acknowledges.
// Implicit acks are emitted by our own gateway node when it hears the
// packet repeated; explicit acks come from the destination itself.
type Ack struct {
	ID          int64     `db:"id"`
	TxPacketID  int64     `db:"tx_packet_id"`
	RxPacketID  int64     `db:"rx_packet_id"`
	Implicit    bool      `db:"implicit"`
	AckedBy     uint32    `db:"acked_by"`
	AckedByID   string    `db:"acked_by_id"`
	RxSnr       *float64  `db:"rx_snr"`
	RxRssi      *float64  `db:"rx_rssi"`
	HopLimit    *int32    `db:"hop_limit"`
	HopStart    *int32    `db:"hop_start"`
	ErrorReason *string   `db:"error_reason"`
	CreatedAt   time.Time `db:"created_at"`
}
