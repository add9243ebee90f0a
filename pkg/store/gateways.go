package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

var selectGateways = `SELECT g.* FROM mesh_gateways g`

// GatewayStore provides database operations for broker-mode gateway
// accounts.
type GatewayStore interface {
	GetByName(name string) (*models.Gateway, error)
	GetAll() ([]*models.Gateway, error)
	Create(gateway *models.Gateway) error
	TouchLastSeen(id int64, seen time.Time) error
}

type postgresGatewayStore struct {
	db *sqlx.DB
}

// NewGateways creates a new gateway account store.
func NewGateways(dbconn *sqlx.DB) GatewayStore {
	return &postgresGatewayStore{db: dbconn}
}

func (s *postgresGatewayStore) GetByName(name string) (*models.Gateway, error) {
	query := selectGateways + " WHERE g.name = $1;"
	var gateway models.Gateway
	err := s.db.Get(&gateway, query, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gateway, nil
}

func (s *postgresGatewayStore) GetAll() ([]*models.Gateway, error) {
	query := selectGateways + " ORDER BY g.name;"
	gateways := []*models.Gateway{}
	err := s.db.Select(&gateways, query)
	if err == sql.ErrNoRows {
		return gateways, nil
	}
	return gateways, err
}

func (s *postgresGatewayStore) Create(gateway *models.Gateway) error {
	stmt := `
	INSERT INTO mesh_gateways (name, password_hash, salt, node_id)
	VALUES (:name, :password_hash, :salt, :node_id)
	RETURNING id;`

	rows, err := s.db.NamedQuery(stmt, gateway)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&gateway.ID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *postgresGatewayStore) TouchLastSeen(id int64, seen time.Time) error {
	stmt := `UPDATE mesh_gateways SET last_seen = $2 WHERE id = $1;`
	_, err := s.db.Exec(stmt, id, seen)
	return err
}
