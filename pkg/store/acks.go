package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

var selectAcks = `SELECT a.* FROM acks a`

// AckStore provides database operations for acknowledgment records.
type AckStore interface {
	Insert(ack *models.Ack) error
	GetByTxPacketID(txPacketID int64) ([]*models.Ack, error)
}

type postgresAckStore struct {
	db *sqlx.DB
}

// NewAcks creates a new acknowledgment store.
func NewAcks(dbconn *sqlx.DB) AckStore {
	return &postgresAckStore{db: dbconn}
}

func (s *postgresAckStore) Insert(ack *models.Ack) error {
	stmt := `
	INSERT INTO acks (tx_packet_id, rx_packet_id, implicit, acked_by, acked_by_id,
		rx_snr, rx_rssi, hop_limit, hop_start, error_reason)
	VALUES (:tx_packet_id, :rx_packet_id, :implicit, :acked_by, :acked_by_id,
		:rx_snr, :rx_rssi, :hop_limit, :hop_start, :error_reason)
	RETURNING id;`

	rows, err := s.db.NamedQuery(stmt, ack)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&ack.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *postgresAckStore) GetByTxPacketID(txPacketID int64) ([]*models.Ack, error) {
	query := selectAcks + " WHERE a.tx_packet_id = $1 ORDER BY a.created_at;"
	acks := []*models.Ack{}
	err := s.db.Select(&acks, query, txPacketID)
	if err == sql.ErrNoRows {
		return acks, nil
	}
	return acks, err
}
