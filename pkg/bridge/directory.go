package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
	"github.com/wpamesh/mesh-discord-bridge/pkg/store"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
)

// Directory is the node directory: identity and display names for every
// node heard on the mesh, merged from two provenance channels and backed
// by the node store. A write-through map keeps lookups off the database
// on the receive path.
type Directory struct {
	store store.NodeStore
	nodes map[uint32]*models.Node
	lock  sync.RWMutex
}

func NewDirectory(nodeStore store.NodeStore) *Directory {
	return &Directory{
		store: nodeStore,
		nodes: make(map[uint32]*models.Node),
	}
}

// Lookup returns the directory entry for a node number, or nil when the
// node has never been heard.
func (d *Directory) Lookup(num uint32) (*models.Node, error) {
	d.lock.RLock()
	node, ok := d.nodes[num]
	d.lock.RUnlock()
	if ok {
		return node, nil
	}

	node, err := d.store.GetByNum(num)
	if err != nil {
		return nil, err
	}
	if node != nil {
		d.lock.Lock()
		d.nodes[num] = node
		d.lock.Unlock()
	}
	return node, nil
}

// Descriptor renders the "!id | short | long" display string for a node.
// The broadcast address never resolves through the directory.
func (d *Directory) Descriptor(id meshtastic.NodeID) string {
	if id.IsBroadcast() {
		return fmt.Sprintf("%s | %s | %s", id, meshtastic.BroadcastShortName, meshtastic.BroadcastLongName)
	}
	node, err := d.Lookup(uint32(id))
	if err != nil {
		slog.Warn("directory lookup failed", "node", id.String(), "error", err)
	}
	if node == nil {
		return fmt.Sprintf("%s | ? | ?", id)
	}
	return node.Descriptor()
}

// ResolveShortName returns every node whose effective short name matches.
// The caller distinguishes the zero, one and many cases.
func (d *Directory) ResolveShortName(shortName string) ([]*models.Node, error) {
	return d.store.GetByShortName(shortName)
}

// ShortNames returns every effective short name known to the directory,
// as candidates for fuzzy suggestions.
func (d *Directory) ShortNames() ([]string, error) {
	nodes, err := d.store.GetAll()
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, n := range nodes {
		if s := n.ShortName(); s != "" {
			names = append(names, s)
		}
	}
	return names, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RecordNodeInfo applies a NODEINFO_APP packet to the directory. Display
// fields land in the nodeinfo provenance channel; existing values are
// never cleared by an empty update.
func (d *Directory) RecordNodeInfo(pkt *meshtastic.Packet) error {
	if pkt.NodeInfo == nil {
		return fmt.Errorf("packet carries no node info")
	}

	now := time.Now().UTC()
	node := &models.Node{
		NodeNum:            uint32(pkt.From),
		NodeID:             pkt.From.String(),
		ShortNameNodeInfo:  strPtr(pkt.NodeInfo.ShortName),
		LongNameNodeInfo:   strPtr(pkt.NodeInfo.LongName),
		MacAddressNodeInfo: strPtr(pkt.NodeInfo.MacAddress),
		HwModelNodeInfo:    strPtr(pkt.NodeInfo.HwModel),
		PublicKeyNodeInfo:  strPtr(pkt.NodeInfo.PublicKey),
		UpdatedNodeInfo:    &now,
		LastHeard:          &pkt.RxTime,
	}

	if err := d.store.UpsertFromNodeInfo(node); err != nil {
		return err
	}
	d.invalidate(uint32(pkt.From))
	return nil
}

// RecordSnapshot applies a device node-database entry to the directory,
// in the nodedb provenance channel.
func (d *Directory) RecordSnapshot(snap transport.NodeSnapshot) error {
	now := time.Now().UTC()
	node := &models.Node{
		NodeNum:            snap.Num,
		NodeID:             snap.ID,
		ShortNameNodeDB:    strPtr(snap.ShortName),
		LongNameNodeDB:     strPtr(snap.LongName),
		MacAddressNodeDB:   strPtr(snap.MacAddress),
		HwModelNodeDB:      strPtr(snap.HwModel),
		PublicKeyNodeDB:    strPtr(snap.PublicKey),
		UpdatedNodeDB:      &now,
		Latitude:           snap.Latitude,
		Longitude:          snap.Longitude,
		Altitude:           snap.Altitude,
		BatteryLevel:       snap.Battery,
		Voltage:            snap.Voltage,
		ChannelUtilization: snap.ChannelUtilization,
		AirUtilTx:          snap.AirUtilTx,
		Snr:                snap.Snr,
		HopsAway:           snap.HopsAway,
	}
	if snap.LastHeard != nil {
		heard := time.Unix(*snap.LastHeard, 0).UTC()
		node.LastHeard = &heard
	}

	if err := d.store.UpsertFromNodeDB(node); err != nil {
		return err
	}
	d.invalidate(snap.Num)
	return nil
}

// RecordHeard updates freshness fields for the sender of any packet.
func (d *Directory) RecordHeard(pkt *meshtastic.Packet) error {
	var hops *int32
	if pkt.HopStart != nil && pkt.HopLimit != nil {
		h := *pkt.HopStart - *pkt.HopLimit
		hops = &h
	}
	if err := d.store.TouchLastHeard(uint32(pkt.From), pkt.RxTime, pkt.RxSnr, hops); err != nil {
		return err
	}
	d.invalidate(uint32(pkt.From))
	return nil
}

// RecordPosition applies a POSITION_APP packet to the directory entry.
func (d *Directory) RecordPosition(pkt *meshtastic.Packet) error {
	if pkt.Position == nil {
		return fmt.Errorf("packet carries no position")
	}
	pos := pkt.Position
	node := &models.Node{
		NodeNum: uint32(pkt.From),
		NodeID:  pkt.From.String(),
	}
	if pos.Latitude != 0 || pos.Longitude != 0 {
		node.Latitude = &pos.Latitude
		node.Longitude = &pos.Longitude
	}
	if pos.LatitudeI != 0 || pos.LongitudeI != 0 {
		node.LatitudeI = &pos.LatitudeI
		node.LongitudeI = &pos.LongitudeI
	}
	if pos.Altitude != 0 {
		node.Altitude = &pos.Altitude
	}
	node.LocationSource = strPtr(pos.LocationSource)

	if err := d.store.UpdatePosition(node); err != nil {
		return err
	}
	d.invalidate(uint32(pkt.From))
	return nil
}

// RecordDeviceMetrics applies a telemetry device-metrics group to the
// directory entry.
func (d *Directory) RecordDeviceMetrics(pkt *meshtastic.Packet) error {
	if pkt.Telemetry == nil || !pkt.Telemetry.HasDeviceMetrics() {
		return nil
	}
	dm := models.MetricMap(pkt.Telemetry.DeviceMetrics)
	node := &models.Node{
		NodeNum: uint32(pkt.From),
		NodeID:  pkt.From.String(),
	}
	if v, ok := dm.Float("batteryLevel"); ok {
		node.BatteryLevel = &v
	}
	if v, ok := dm.Float("voltage"); ok {
		node.Voltage = &v
	}
	if v, ok := dm.Float("channelUtilization"); ok {
		node.ChannelUtilization = &v
	}
	if v, ok := dm.Float("airUtilTx"); ok {
		node.AirUtilTx = &v
	}
	if v, ok := dm.Float("uptimeSeconds"); ok {
		u := int64(v)
		node.UptimeSeconds = &u
	}

	if err := d.store.UpdateDeviceMetrics(node); err != nil {
		return err
	}
	d.invalidate(uint32(pkt.From))
	return nil
}

func (d *Directory) invalidate(num uint32) {
	d.lock.Lock()
	delete(d.nodes, num)
	d.lock.Unlock()
}
