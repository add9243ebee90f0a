package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

var selectTxPackets = `SELECT t.* FROM tx_packets t`

// TxPacketStore provides database operations for sent packets. Rows are
// append-only; nothing here deletes.
type TxPacketStore interface {
	Insert(packet *models.TxPacket) error
	GetByID(id int64) (*models.TxPacket, error)
	GetByRequestID(packetID uint32, sessionEpoch string) (*models.TxPacket, error)
	MarkAcked(packet *models.TxPacket) error
	GetUnacked(sessionEpoch string) ([]*models.TxPacket, error)
}

type postgresTxPacketStore struct {
	db *sqlx.DB
}

// NewTxPackets creates a new sent-packet store.
func NewTxPackets(dbconn *sqlx.DB) TxPacketStore {
	return &postgresTxPacketStore{db: dbconn}
}

// Insert persists a sent packet and fills in its row ID.
func (s *postgresTxPacketStore) Insert(packet *models.TxPacket) error {
	stmt := `
	INSERT INTO tx_packets (packet_id, session_epoch, channel, hop_limit,
		text, dest_num, dest_id, dest_short_name, dest_long_name,
		ack_requested, ack_received,
		discord_guild_id, discord_channel_id, discord_message_id,
		discord_user_id, discord_user_name, sent_at)
	VALUES (:packet_id, :session_epoch, :channel, :hop_limit,
		:text, :dest_num, :dest_id, :dest_short_name, :dest_long_name,
		:ack_requested, :ack_received,
		:discord_guild_id, :discord_channel_id, :discord_message_id,
		:discord_user_id, :discord_user_name, :sent_at)
	RETURNING id;`

	rows, err := s.db.NamedQuery(stmt, packet)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&packet.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *postgresTxPacketStore) GetByID(id int64) (*models.TxPacket, error) {
	query := selectTxPackets + " WHERE t.id = $1;"
	var packet models.TxPacket
	err := s.db.Get(&packet, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &packet, nil
}

// GetByRequestID looks up a send by the packet ID a routing response
// refers to, scoped to the connection that issued it.
func (s *postgresTxPacketStore) GetByRequestID(packetID uint32, sessionEpoch string) (*models.TxPacket, error) {
	query := selectTxPackets + " WHERE t.packet_id = $1 AND t.session_epoch = $2;"
	var packet models.TxPacket
	err := s.db.Get(&packet, query, packetID, sessionEpoch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &packet, nil
}

// MarkAcked records the routing response on the original send row.
func (s *postgresTxPacketStore) MarkAcked(packet *models.TxPacket) error {
	stmt := `
	UPDATE tx_packets
	SET ack_received = :ack_received,
	    response_rx_snr = :response_rx_snr,
	    response_rx_rssi = :response_rx_rssi,
	    response_hop_limit = :response_hop_limit,
	    response_hop_start = :response_hop_start,
	    response_error_reason = :response_error_reason,
	    response_at = :response_at
	WHERE id = :id;
	`

	_, err := s.db.NamedExec(stmt, packet)
	return err
}

func (s *postgresTxPacketStore) GetUnacked(sessionEpoch string) ([]*models.TxPacket, error) {
	query := selectTxPackets + ` WHERE t.session_epoch = $1
	AND t.ack_requested AND NOT t.ack_received
	ORDER BY t.sent_at;`
	packets := []*models.TxPacket{}
	err := s.db.Select(&packets, query, sessionEpoch)
	if err == sql.ErrNoRows {
		return packets, nil
	}
	return packets, err
}
