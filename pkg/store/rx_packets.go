package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

var selectRxPackets = `SELECT p.* FROM rx_packets p`

// PortActivity summarizes one node's traffic on a single port application.
type PortActivity struct {
	PortNum string    `db:"port_num"`
	Count   int64     `db:"count"`
	LastRx  time.Time `db:"last_rx"`
}

// RxPacketStore provides database operations for received packets.
type RxPacketStore interface {
	Insert(packet *models.RxPacket) error
	GetByID(id int64) (*models.RxPacket, error)
	GetPortActivity(fromNum uint32) ([]*PortActivity, error)
	LatestByPort(fromNum uint32, portNum string) (*models.RxPacket, error)
}

type postgresRxPacketStore struct {
	db *sqlx.DB
}

// NewRxPackets creates a new received-packet store.
func NewRxPackets(dbconn *sqlx.DB) RxPacketStore {
	return &postgresRxPacketStore{db: dbconn}
}

// Insert persists a received packet and fills in its row ID.
func (s *postgresRxPacketStore) Insert(packet *models.RxPacket) error {
	stmt := `
	INSERT INTO rx_packets (packet_id, port_num, from_num, to_num, from_id, to_id,
		channel, hop_limit, hop_start, rx_time, rx_snr, rx_rssi, want_ack,
		pki_encrypted, priority,
		text, reply_id, emoji,
		latitude, longitude, altitude, pdop, ground_speed, ground_track,
		sats_in_view, precision_bits, location_source,
		has_device_metrics, has_environment_metrics, has_power_metrics,
		has_air_quality_metrics, device_metrics, environment_metrics,
		power_metrics, air_quality_metrics,
		user_id, short_name, long_name, mac_address, hw_model, public_key,
		request_id, error_reason,
		route, route_back, snr_towards, snr_back)
	VALUES (:packet_id, :port_num, :from_num, :to_num, :from_id, :to_id,
		:channel, :hop_limit, :hop_start, :rx_time, :rx_snr, :rx_rssi, :want_ack,
		:pki_encrypted, :priority,
		:text, :reply_id, :emoji,
		:latitude, :longitude, :altitude, :pdop, :ground_speed, :ground_track,
		:sats_in_view, :precision_bits, :location_source,
		:has_device_metrics, :has_environment_metrics, :has_power_metrics,
		:has_air_quality_metrics, :device_metrics, :environment_metrics,
		:power_metrics, :air_quality_metrics,
		:user_id, :short_name, :long_name, :mac_address, :hw_model, :public_key,
		:request_id, :error_reason,
		:route, :route_back, :snr_towards, :snr_back)
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

func (s *postgresRxPacketStore) GetByID(id int64) (*models.RxPacket, error) {
	query := selectRxPackets + " WHERE p.id = $1;"
	var packet models.RxPacket
	err := s.db.Get(&packet, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &packet, nil
}

// GetPortActivity returns per-port packet counts and latest receive
// timestamps for one sending node.
func (s *postgresRxPacketStore) GetPortActivity(fromNum uint32) ([]*PortActivity, error) {
	query := `
	SELECT port_num, COUNT(*) AS count, MAX(rx_time) AS last_rx
	FROM rx_packets
	WHERE from_num = $1
	GROUP BY port_num
	ORDER BY port_num;`

	activity := []*PortActivity{}
	err := s.db.Select(&activity, query, fromNum)
	if err == sql.ErrNoRows {
		return activity, nil
	}
	return activity, err
}

func (s *postgresRxPacketStore) LatestByPort(fromNum uint32, portNum string) (*models.RxPacket, error) {
	query := selectRxPackets + ` WHERE p.from_num = $1 AND p.port_num = $2
	ORDER BY p.rx_time DESC LIMIT 1;`
	var packet models.RxPacket
	err := s.db.Get(&packet, query, fromNum, portNum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &packet, nil
}
