package models

import "time"

// TxPacket is the persisted record of one outbound send attempt. Rows
// are never deleted; they are the audit trail the ack correlator and
// the detail reports read from. SessionEpoch scopes PacketID to the
// transport connection that issued it, since the firmware recycles
// packet ids across reconnects.
type TxPacket struct {
	ID           int64  `db:"id"`
	PacketID     uint32 `db:"packet_id"`
	SessionEpoch string `db:"session_epoch"`
	Channel      int32  `db:"channel"`
	HopLimit     *int32 `db:"hop_limit"`

	Text          string  `db:"text"`
	DestNum       uint32  `db:"dest_num"`
	DestID        string  `db:"dest_id"`
	DestShortName *string `db:"dest_short_name"`
	DestLongName  *string `db:"dest_long_name"`

	AckRequested bool `db:"ack_requested"`
	AckReceived  bool `db:"ack_received"`

	// Response mirror: filled in when the routing response arrives.
	ResponseRxSnr       *float64   `db:"response_rx_snr"`
	ResponseRxRssi      *float64   `db:"response_rx_rssi"`
	ResponseHopLimit    *int32     `db:"response_hop_limit"`
	ResponseHopStart    *int32     `db:"response_hop_start"`
	ResponseErrorReason *string    `db:"response_error_reason"`
	ResponseAt          *time.Time `db:"response_at"`

	ReplyHandle

	SentAt time.Time `db:"sent_at"`
}
