package models

import "time"

// Gateway is a credentialed MQTT account for a mesh gateway node
// connecting to the embedded broker.
type Gateway struct {
	ID           int64      `db:"id"`
	Name         string     `db:"name"`
	PasswordHash string     `db:"password_hash"`
	Salt         string     `db:"salt"`
	NodeID       *string    `db:"node_id"`
	CreatedAt    time.Time  `db:"created_at"`
	LastSeen     *time.Time `db:"last_seen"`
}
