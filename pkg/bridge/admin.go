package bridge

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

// pageSize is the row limit per thread page for node listings.
const pageSize = 10

type adminKind int

const (
	adminActiveNodes adminKind = iota
	adminAllNodes
	adminNodeDetail
	adminTraceroute
)

// adminIntent is one queued reporting or diagnostic operation.
type adminIntent struct {
	kind     adminKind
	lookback time.Duration
	selector string
	handle   models.ReplyHandle
}

// ListActiveNodes queues a listing of nodes heard within the lookback
// window.
func (b *Bridge) ListActiveNodes(lookback time.Duration, handle models.ReplyHandle) {
	b.adminQueue.Enqueue(&adminIntent{kind: adminActiveNodes, lookback: lookback, handle: handle})
}

// ListAllNodes queues a listing of every node on file.
func (b *Bridge) ListAllNodes(handle models.ReplyHandle) {
	b.adminQueue.Enqueue(&adminIntent{kind: adminAllNodes, handle: handle})
}

// NodeDetail queues a detail report for the node the selector names.
func (b *Bridge) NodeDetail(selector string, handle models.ReplyHandle) {
	b.adminQueue.Enqueue(&adminIntent{kind: adminNodeDetail, selector: selector, handle: handle})
}

// Traceroute queues a route discovery towards the node the selector
// names.
func (b *Bridge) Traceroute(selector string, handle models.ReplyHandle) {
	b.adminQueue.Enqueue(&adminIntent{kind: adminTraceroute, selector: selector, handle: handle})
}

// adminNext processes at most one queued admin operation.
func (b *Bridge) adminNext() {
	intent, ok := b.adminQueue.TryDequeue()
	if !ok {
		return
	}

	switch intent.kind {
	case adminActiveNodes:
		b.runActiveNodes(intent)
	case adminAllNodes:
		b.runAllNodes(intent)
	case adminNodeDetail:
		b.runNodeDetail(intent)
	case adminTraceroute:
		b.runTraceroute(intent)
	}
}

// chunkLines splits report lines into thread pages.
func chunkLines(lines []string, size int) []string {
	pages := []string{}
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, strings.Join(lines[start:end], "\n"))
	}
	return pages
}

func nodeListLine(n *models.Node) string {
	return fmt.Sprintf("%s | heard %s", n.Descriptor(), formatLastHeard(n.LastHeard))
}

func (b *Bridge) runActiveNodes(intent *adminIntent) {
	lookback := intent.lookback
	if lookback <= 0 {
		lookback = time.Hour
	}
	since := time.Now().UTC().Add(-lookback)

	nodes, err := b.stores.Nodes.GetActive(since)
	if err != nil {
		slog.Error("listing active nodes failed", "error", err)
		b.editError(intent.handle, "Listing active nodes failed: "+err.Error())
		return
	}

	title := fmt.Sprintf("Active nodes (last %s): %d", lookback, len(nodes))
	b.postNodeList(intent.handle, title, nodes)
}

func (b *Bridge) runAllNodes(intent *adminIntent) {
	nodes, err := b.stores.Nodes.GetAll()
	if err != nil {
		slog.Error("listing nodes failed", "error", err)
		b.editError(intent.handle, "Listing nodes failed: "+err.Error())
		return
	}

	title := fmt.Sprintf("All known nodes: %d", len(nodes))
	b.postNodeList(intent.handle, title, nodes)
}

func (b *Bridge) postNodeList(handle models.ReplyHandle, title string, nodes []*models.Node) {
	if len(nodes) == 0 {
		b.edits.Enqueue(chat.Edit{
			Handle: handle,
			Title:  title,
			Body:   "No nodes.",
			Color:  chat.ColorSent,
		})
		return
	}

	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		lines = append(lines, nodeListLine(n))
	}

	b.dumps.Enqueue(chat.ThreadDump{
		ChannelID: handle.ChannelID,
		Title:     title,
		Pages:     chunkLines(lines, pageSize),
	})
	b.edits.Enqueue(chat.Edit{
		Handle: handle,
		Title:  title,
		Body:   "Posted to thread.",
		Color:  chat.ColorAcked,
	})
}

// runNodeDetail builds the full per-node report: identity with
// provenance freshness, position, stored metrics, and per-port traffic
// counts.
func (b *Bridge) runNodeDetail(intent *adminIntent) {
	dest, err := b.resolveSelector(intent.selector)
	if err != nil {
		b.editError(intent.handle, "Cannot report: "+err.Error())
		return
	}

	node, err := b.directory.Lookup(uint32(dest.id))
	if err != nil {
		b.editError(intent.handle, "Node lookup failed: "+err.Error())
		return
	}
	if node == nil {
		b.editError(intent.handle, fmt.Sprintf("Node %s has never been heard.", dest.id))
		return
	}

	lines := []string{
		node.Descriptor(),
		"Hardware: " + orUnknown(node.HwModel()),
		"MAC: " + orUnknown(node.MacAddress()),
		"Last heard: " + formatLastHeard(node.LastHeard),
		"Updated via node DB: " + formatLastHeard(node.UpdatedNodeDB),
		"Updated via NODEINFO_APP: " + formatLastHeard(node.UpdatedNodeInfo),
	}

	if node.Latitude != nil && node.Longitude != nil {
		pos := fmt.Sprintf("Position: %.5f, %.5f", *node.Latitude, *node.Longitude)
		if node.Altitude != nil {
			pos += fmt.Sprintf(" at %dm", *node.Altitude)
		}
		if node.LocationSource != nil {
			pos += " (" + *node.LocationSource + ")"
		}
		lines = append(lines, pos)
	}

	if node.BatteryLevel != nil {
		lines = append(lines, fmt.Sprintf("Battery: %.0f%%", *node.BatteryLevel))
	}
	if node.Voltage != nil {
		lines = append(lines, fmt.Sprintf("Voltage: %.2fV", *node.Voltage))
	}
	if node.ChannelUtilization != nil {
		lines = append(lines, fmt.Sprintf("Channel utilization: %.1f%%", *node.ChannelUtilization))
	}
	if node.AirUtilTx != nil {
		lines = append(lines, fmt.Sprintf("Air util TX: %.1f%%", *node.AirUtilTx))
	}
	if node.UptimeSeconds != nil {
		lines = append(lines, fmt.Sprintf("Uptime: %s", time.Duration(*node.UptimeSeconds)*time.Second))
	}

	if env, err := b.stores.RxPackets.LatestByPort(node.NodeNum, meshtastic.PortTelemetry); err == nil && env != nil && env.HasEnvironmentMetrics {
		lines = append(lines, "Environment metrics:")
		lines = append(lines, metricLines(env.EnvironmentMetrics)...)
	}

	activity, err := b.stores.RxPackets.GetPortActivity(node.NodeNum)
	if err != nil {
		slog.Warn("reading port activity failed", "node", node.NodeID, "error", err)
	}
	if len(activity) > 0 {
		lines = append(lines, "Packets heard:")
		for _, a := range activity {
			lines = append(lines, fmt.Sprintf("%s: %d (last %s)", a.PortNum, a.Count, formatLastHeard(&a.LastRx)))
		}
	}

	b.dumps.Enqueue(chat.ThreadDump{
		ChannelID: intent.handle.ChannelID,
		Title:     "Node " + node.NodeID,
		Pages:     chunkLines(lines, pageSize),
	})
	b.edits.Enqueue(chat.Edit{
		Handle: intent.handle,
		Title:  "Node " + node.NodeID,
		Body:   "Posted to thread.",
		Color:  chat.ColorAcked,
	})
}

func (b *Bridge) runTraceroute(intent *adminIntent) {
	dest, err := b.resolveSelector(intent.selector)
	if err != nil {
		b.editError(intent.handle, "Cannot traceroute: "+err.Error())
		return
	}

	tr := b.transport()
	if tr == nil {
		b.editError(intent.handle, "Mesh transport is not connected.")
		return
	}

	result, err := tr.SendTraceroute(dest.id)
	if err != nil || result == nil || result.ID == 0 {
		slog.Error("traceroute failed", "dest", dest.id.String(), "error", err)
		b.editError(intent.handle, fmt.Sprintf("Traceroute to %s failed: %v", dest.id, err))
		return
	}

	b.recordSend(&sendIntent{
		text:   "traceroute",
		handle: intent.handle,
	}, result, dest, true)
	b.edits.Enqueue(chat.Edit{
		Handle: intent.handle,
		Title:  "Traceroute started",
		Body:   fmt.Sprintf("Route discovery towards %s (packet %d). The result posts when it arrives.", b.directory.Descriptor(dest.id), result.ID),
		Color:  chat.ColorSent,
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
