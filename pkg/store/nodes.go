package store

import (
	"database/sql"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

var selectNodes = `SELECT n.* FROM nodes n`

const nodeCacheTTL = 5 * time.Minute

// NodeStore provides database operations for the mesh node directory.
type NodeStore interface {
	GetByNum(num uint32) (*models.Node, error)
	GetByID(nodeID string) (*models.Node, error)
	GetByShortName(shortName string) ([]*models.Node, error)
	GetAll() ([]*models.Node, error)
	GetActive(since time.Time) ([]*models.Node, error)
	UpsertFromNodeDB(node *models.Node) error
	UpsertFromNodeInfo(node *models.Node) error
	TouchLastHeard(num uint32, heard time.Time, snr *float64, hopsAway *int32) error
	UpdatePosition(node *models.Node) error
	UpdateDeviceMetrics(node *models.Node) error
}

type postgresNodeStore struct {
	db    *sqlx.DB
	cache *ttlcache.Cache[uint32, *models.Node]
}

// NewNodes creates a new node store.
func NewNodes(dbconn *sqlx.DB) NodeStore {
	cache := ttlcache.New[uint32, *models.Node](
		ttlcache.WithTTL[uint32, *models.Node](nodeCacheTTL),
	)
	go cache.Start()
	return &postgresNodeStore{db: dbconn, cache: cache}
}

func (s *postgresNodeStore) GetByNum(num uint32) (*models.Node, error) {
	if item := s.cache.Get(num); item != nil {
		return item.Value(), nil
	}
	query := selectNodes + " WHERE n.node_num = $1;"
	var node models.Node
	err := s.db.Get(&node, query, num)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cache.Set(num, &node, nodeCacheTTL)
	return &node, nil
}

func (s *postgresNodeStore) GetByID(nodeID string) (*models.Node, error) {
	query := selectNodes + " WHERE n.node_id = $1;"
	var node models.Node
	err := s.db.Get(&node, query, nodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// GetByShortName returns every node whose effective short name matches.
// Matching is case-insensitive; the caller decides what to do when the
// result has zero or several entries.
func (s *postgresNodeStore) GetByShortName(shortName string) ([]*models.Node, error) {
	query := selectNodes + ` WHERE LOWER(COALESCE(NULLIF(n.short_name_nodeinfo, ''), n.short_name_nodedb)) = LOWER($1);`
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, query, shortName)
	if err == sql.ErrNoRows {
		return nodes, nil
	}
	return nodes, err
}

func (s *postgresNodeStore) GetAll() ([]*models.Node, error) {
	query := selectNodes + " ORDER BY n.last_heard DESC NULLS LAST;"
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, query)
	if err == sql.ErrNoRows {
		return nodes, nil
	}
	return nodes, err
}

func (s *postgresNodeStore) GetActive(since time.Time) ([]*models.Node, error) {
	query := selectNodes + " WHERE n.last_heard >= $1 ORDER BY n.last_heard DESC;"
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, query, since)
	if err == sql.ErrNoRows {
		return nodes, nil
	}
	return nodes, err
}

// UpsertFromNodeDB writes the device node-database provenance channel.
// COALESCE keeps an existing non-null value when the incoming one is null,
// and node_num/node_id are never rewritten once set.
func (s *postgresNodeStore) UpsertFromNodeDB(node *models.Node) error {
	stmt := `
	INSERT INTO nodes (node_num, node_id,
		short_name_nodedb, long_name_nodedb, mac_address_nodedb,
		hw_model_nodedb, public_key_nodedb, upd_ts_nodedb,
		latitude, longitude, altitude,
		battery_level, voltage, channel_utilization, air_util_tx,
		snr, last_heard, hops_away)
	VALUES (:node_num, :node_id,
		:short_name_nodedb, :long_name_nodedb, :mac_address_nodedb,
		:hw_model_nodedb, :public_key_nodedb, :upd_ts_nodedb,
		:latitude, :longitude, :altitude,
		:battery_level, :voltage, :channel_utilization, :air_util_tx,
		:snr, :last_heard, :hops_away)
	ON CONFLICT (node_num)
	DO UPDATE SET
		short_name_nodedb   = COALESCE(EXCLUDED.short_name_nodedb, nodes.short_name_nodedb),
		long_name_nodedb    = COALESCE(EXCLUDED.long_name_nodedb, nodes.long_name_nodedb),
		mac_address_nodedb  = COALESCE(EXCLUDED.mac_address_nodedb, nodes.mac_address_nodedb),
		hw_model_nodedb     = COALESCE(EXCLUDED.hw_model_nodedb, nodes.hw_model_nodedb),
		public_key_nodedb   = COALESCE(EXCLUDED.public_key_nodedb, nodes.public_key_nodedb),
		upd_ts_nodedb       = EXCLUDED.upd_ts_nodedb,
		latitude            = COALESCE(EXCLUDED.latitude, nodes.latitude),
		longitude           = COALESCE(EXCLUDED.longitude, nodes.longitude),
		altitude            = COALESCE(EXCLUDED.altitude, nodes.altitude),
		battery_level       = COALESCE(EXCLUDED.battery_level, nodes.battery_level),
		voltage             = COALESCE(EXCLUDED.voltage, nodes.voltage),
		channel_utilization = COALESCE(EXCLUDED.channel_utilization, nodes.channel_utilization),
		air_util_tx         = COALESCE(EXCLUDED.air_util_tx, nodes.air_util_tx),
		snr                 = COALESCE(EXCLUDED.snr, nodes.snr),
		last_heard          = COALESCE(EXCLUDED.last_heard, nodes.last_heard),
		hops_away           = COALESCE(EXCLUDED.hops_away, nodes.hops_away)
	;`

	_, err := s.db.NamedExec(stmt, node)
	if err == nil {
		s.cache.Delete(node.NodeNum)
	}
	return err
}

// UpsertFromNodeInfo writes the NODEINFO_APP provenance channel.
func (s *postgresNodeStore) UpsertFromNodeInfo(node *models.Node) error {
	stmt := `
	INSERT INTO nodes (node_num, node_id,
		short_name_nodeinfo, long_name_nodeinfo, mac_address_nodeinfo,
		hw_model_nodeinfo, public_key_nodeinfo, upd_ts_nodeinfo,
		last_heard)
	VALUES (:node_num, :node_id,
		:short_name_nodeinfo, :long_name_nodeinfo, :mac_address_nodeinfo,
		:hw_model_nodeinfo, :public_key_nodeinfo, :upd_ts_nodeinfo,
		:last_heard)
	ON CONFLICT (node_num)
	DO UPDATE SET
		short_name_nodeinfo  = COALESCE(EXCLUDED.short_name_nodeinfo, nodes.short_name_nodeinfo),
		long_name_nodeinfo   = COALESCE(EXCLUDED.long_name_nodeinfo, nodes.long_name_nodeinfo),
		mac_address_nodeinfo = COALESCE(EXCLUDED.mac_address_nodeinfo, nodes.mac_address_nodeinfo),
		hw_model_nodeinfo    = COALESCE(EXCLUDED.hw_model_nodeinfo, nodes.hw_model_nodeinfo),
		public_key_nodeinfo  = COALESCE(EXCLUDED.public_key_nodeinfo, nodes.public_key_nodeinfo),
		upd_ts_nodeinfo      = EXCLUDED.upd_ts_nodeinfo,
		last_heard           = COALESCE(EXCLUDED.last_heard, nodes.last_heard)
	;`

	_, err := s.db.NamedExec(stmt, node)
	if err == nil {
		s.cache.Delete(node.NodeNum)
	}
	return err
}

func (s *postgresNodeStore) TouchLastHeard(num uint32, heard time.Time, snr *float64, hopsAway *int32) error {
	stmt := `
	UPDATE nodes
	SET last_heard = $2,
	    snr = COALESCE($3, snr),
	    hops_away = COALESCE($4, hops_away)
	WHERE node_num = $1;
	`

	_, err := s.db.Exec(stmt, num, heard, snr, hopsAway)
	if err == nil {
		s.cache.Delete(num)
	}
	return err
}

func (s *postgresNodeStore) UpdatePosition(node *models.Node) error {
	stmt := `
	UPDATE nodes
	SET latitude = COALESCE(:latitude, latitude),
	    longitude = COALESCE(:longitude, longitude),
	    latitude_i = COALESCE(:latitude_i, latitude_i),
	    longitude_i = COALESCE(:longitude_i, longitude_i),
	    altitude = COALESCE(:altitude, altitude),
	    location_source = COALESCE(:location_source, location_source)
	WHERE node_num = :node_num;
	`

	_, err := s.db.NamedExec(stmt, node)
	if err == nil {
		s.cache.Delete(node.NodeNum)
	}
	return err
}

func (s *postgresNodeStore) UpdateDeviceMetrics(node *models.Node) error {
	stmt := `
	UPDATE nodes
	SET battery_level = COALESCE(:battery_level, battery_level),
	    voltage = COALESCE(:voltage, voltage),
	    channel_utilization = COALESCE(:channel_utilization, channel_utilization),
	    air_util_tx = COALESCE(:air_util_tx, air_util_tx),
	    uptime_seconds = COALESCE(:uptime_seconds, uptime_seconds)
	WHERE node_num = :node_num;
	`

	_, err := s.db.NamedExec(stmt, node)
	if err == nil {
		s.cache.Delete(node.NodeNum)
	}
	return err
}
