package models

import "time"

// RxPacket is the persisted record of one inbound radio packet. The
// envelope columns are always populated; exactly one port-application
// column group is populated according to PortNum.
type RxPacket struct {
	ID        int64     `db:"id"`
	PacketID  uint32    `db:"packet_id"`
	PortNum   string    `db:"port_num"`
	FromNum   uint32    `db:"from_num"`
	ToNum     uint32    `db:"to_num"`
	FromID    string    `db:"from_id"`
	ToID      string    `db:"to_id"`
	Channel   int32     `db:"channel"`
	HopLimit  *int32    `db:"hop_limit"`
	HopStart  *int32    `db:"hop_start"`
	RxTime    time.Time `db:"rx_time"`
	RxSnr     *float64  `db:"rx_snr"`
	RxRssi    *float64  `db:"rx_rssi"`
	WantAck   bool      `db:"want_ack"`
	PKI       bool      `db:"pki_encrypted"`
	Priority  *string   `db:"priority"`
	CreatedAt time.Time `db:"created_at"`

	// TEXT_MESSAGE_APP
	Text    *string `db:"text"`
	ReplyID *int64  `db:"reply_id"`
	Emoji   *int64  `db:"emoji"`

	// POSITION_APP
	Latitude       *float64 `db:"latitude"`
	Longitude      *float64 `db:"longitude"`
	Altitude       *int32   `db:"altitude"`
	PDOP           *int64   `db:"pdop"`
	GroundSpeed    *int64   `db:"ground_speed"`
	GroundTrack    *int64   `db:"ground_track"`
	SatsInView     *int64   `db:"sats_in_view"`
	PrecisionBits  *int64   `db:"precision_bits"`
	LocationSource *string  `db:"location_source"`

	// TELEMETRY_APP: each group stored as JSONB alongside a presence flag,
	// so "group absent" and "group present but empty" stay distinct.
	HasDeviceMetrics      bool      `db:"has_device_metrics"`
	HasEnvironmentMetrics bool      `db:"has_environment_metrics"`
	HasPowerMetrics       bool      `db:"has_power_metrics"`
	HasAirQualityMetrics  bool      `db:"has_air_quality_metrics"`
	DeviceMetrics         MetricMap `db:"device_metrics"`
	EnvironmentMetrics    MetricMap `db:"environment_metrics"`
	PowerMetrics          MetricMap `db:"power_metrics"`
	AirQualityMetrics     MetricMap `db:"air_quality_metrics"`

	// NODEINFO_APP
	UserID     *string `db:"user_id"`
	ShortName  *string `db:"short_name"`
	LongName   *string `db:"long_name"`
	MacAddress *string `db:"mac_address"`
	HwModel    *string `db:"hw_model"`
	PublicKey  *string `db:"public_key"`

	// ROUTING_APP
	RequestID   *int64  `db:"request_id"`
	ErrorReason *string `db:"error_reason"`

	// TRACEROUTE_APP
	Route      UintList `db:"route"`
	RouteBack  UintList `db:"route_back"`
	SnrTowards IntList  `db:"snr_towards"`
	SnrBack    IntList  `db:"snr_back"`
}
