package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Stores aggregates the per-table stores over one database connection.
type Stores struct {
	Nodes     NodeStore
	RxPackets RxPacketStore
	TxPackets TxPacketStore
	Acks      AckStore
	Gateways  GatewayStore
}

// NewStores builds the store aggregate over an open connection.
func NewStores(db *sqlx.DB) *Stores {
	return &Stores{
		Nodes:     NewNodes(db),
		RxPackets: NewRxPackets(db),
		TxPackets: NewTxPackets(db),
		Acks:      NewAcks(db),
		Gateways:  NewGateways(db),
	}
}

// Open connects to postgres and verifies the connection.
func Open(user, password, host, dbName string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, host, dbName)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}
