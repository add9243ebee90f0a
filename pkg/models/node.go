package models

import (
	"fmt"
	"time"
)

// Node is a directory entry for one mesh node. Identity (node_num /
// node_id) is immutable once learned. Display attributes are written
// through two independent provenance channels — the device's periodic
// node-database snapshot and explicit NODEINFO_APP packets — each with
// its own shadow columns and update timestamp, so staleness per source
// can be reported to the user.
type Node struct {
	NodeNum uint32 `db:"node_num"`
	NodeID  string `db:"node_id"`

	ShortNameNodeDB  *string `db:"short_name_nodedb"`
	LongNameNodeDB   *string `db:"long_name_nodedb"`
	MacAddressNodeDB *string `db:"mac_address_nodedb"`
	HwModelNodeDB    *string `db:"hw_model_nodedb"`
	PublicKeyNodeDB  *string `db:"public_key_nodedb"`

	ShortNameNodeInfo  *string `db:"short_name_nodeinfo"`
	LongNameNodeInfo   *string `db:"long_name_nodeinfo"`
	MacAddressNodeInfo *string `db:"mac_address_nodeinfo"`
	HwModelNodeInfo    *string `db:"hw_model_nodeinfo"`
	PublicKeyNodeInfo  *string `db:"public_key_nodeinfo"`

	UpdatedNodeDB   *time.Time `db:"upd_ts_nodedb"`
	UpdatedNodeInfo *time.Time `db:"upd_ts_nodeinfo"`

	Latitude       *float64 `db:"latitude"`
	Longitude      *float64 `db:"longitude"`
	LatitudeI      *int64   `db:"latitude_i"`
	LongitudeI     *int64   `db:"longitude_i"`
	Altitude       *int32   `db:"altitude"`
	LocationSource *string  `db:"location_source"`

	BatteryLevel       *float64 `db:"battery_level"`
	Voltage            *float64 `db:"voltage"`
	ChannelUtilization *float64 `db:"channel_utilization"`
	AirUtilTx          *float64 `db:"air_util_tx"`
	UptimeSeconds      *int64   `db:"uptime_seconds"`

	Snr        *float64   `db:"snr"`
	LastHeard  *time.Time `db:"last_heard"`
	HopsAway   *int32     `db:"hops_away"`
	IsFavorite bool       `db:"is_favorite"`
}

// coalesce returns the NODEINFO_APP-provenance value when present,
// falling back to the node-database snapshot value.
func coalesce(nodeinfo, nodedb *string) string {
	if nodeinfo != nil && *nodeinfo != "" {
		return *nodeinfo
	}
	if nodedb != nil {
		return *nodedb
	}
	return ""
}

// ShortName returns the effective short display name.
func (n *Node) ShortName() string {
	return coalesce(n.ShortNameNodeInfo, n.ShortNameNodeDB)
}

// LongName returns the effective long display name.
func (n *Node) LongName() string {
	return coalesce(n.LongNameNodeInfo, n.LongNameNodeDB)
}

// MacAddress returns the effective MAC address.
func (n *Node) MacAddress() string {
	return coalesce(n.MacAddressNodeInfo, n.MacAddressNodeDB)
}

// HwModel returns the effective hardware model name.
func (n *Node) HwModel() string {
	return coalesce(n.HwModelNodeInfo, n.HwModelNodeDB)
}

// PublicKey returns the effective public key.
func (n *Node) PublicKey() string {
	return coalesce(n.PublicKeyNodeInfo, n.PublicKeyNodeDB)
}

// Descriptor renders the "!id | short | long" string used in chat output.
// Unknown names render as "?".
func (n *Node) Descriptor() string {
	short, long := n.ShortName(), n.LongName()
	if short == "" {
		short = "?"
	}
	if long == "" {
		long = "?"
	}
	return fmt.Sprintf("%s | %s | %s", n.NodeID, short, long)
}
