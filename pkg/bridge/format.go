package bridge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic"
	"github.com/wpamesh/mesh-discord-bridge/pkg/models"
)

// signalFooter renders the "SNR / RSSI / hops" trailer shared by relayed
// messages and acknowledgment edits.
func signalFooter(pkt *meshtastic.Packet) string {
	return fmt.Sprintf("SNR: %s | RSSI: %s | Hops: %s",
		pkt.SnrString(), pkt.RssiString(), pkt.HopsString())
}

// formatInboundText renders a mesh text message for the chat channel.
// Broadcasts carry the mesh channel name; direct messages carry the
// sender's descriptor.
func (b *Bridge) formatInboundText(pkt *meshtastic.Packet) chat.Message {
	sender := b.directory.Descriptor(pkt.From)

	var title string
	if pkt.ToAll() {
		channel := pkt.ChannelName
		if channel == "" {
			channel = b.cfg.MeshSettings.RelayChannel
		}
		title = fmt.Sprintf("Message on %s from %s", channel, sender)
	} else {
		title = fmt.Sprintf("Direct message from %s", sender)
	}

	body := pkt.Text.Text + "\n\n" + signalFooter(pkt)
	return chat.Message{
		ChannelID: b.cfg.Discord.ChannelID,
		Title:     title,
		Body:      body,
		Color:     chat.ColorSent,
	}
}

// metricLines renders one telemetry metric group, one "key: value" line
// per metric, in stable order.
func metricLines(group models.MetricMap) []string {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, group[k]))
	}
	return lines
}

// formatTelemetry renders a telemetry response for the chat channel.
func (b *Bridge) formatTelemetry(pkt *meshtastic.Packet) chat.Message {
	sender := b.directory.Descriptor(pkt.From)
	tel := pkt.Telemetry

	sections := []string{}
	if tel.HasDeviceMetrics() {
		sections = append(sections, "Device metrics:\n"+strings.Join(metricLines(models.MetricMap(tel.DeviceMetrics)), "\n"))
	}
	if tel.HasEnvironmentMetrics() {
		sections = append(sections, "Environment metrics:\n"+strings.Join(metricLines(models.MetricMap(tel.EnvironmentMetrics)), "\n"))
	}
	if tel.HasPowerMetrics() {
		sections = append(sections, "Power metrics:\n"+strings.Join(metricLines(models.MetricMap(tel.PowerMetrics)), "\n"))
	}
	if tel.HasAirQualityMetrics() {
		sections = append(sections, "Air quality metrics:\n"+strings.Join(metricLines(models.MetricMap(tel.AirQualityMetrics)), "\n"))
	}
	if len(sections) == 0 {
		sections = append(sections, "No metric groups reported.")
	}

	body := strings.Join(sections, "\n\n") + "\n\n" + signalFooter(pkt)
	return chat.Message{
		ChannelID: b.cfg.Discord.ChannelID,
		Title:     "Telemetry from " + sender,
		Body:      body,
		Color:     chat.ColorSent,
	}
}

// formatTraceroute renders a route discovery response. Unknown hops show
// as the broadcast placeholder.
func (b *Bridge) formatTraceroute(pkt *meshtastic.Packet) chat.Message {
	sender := b.directory.Descriptor(pkt.From)
	tr := pkt.Traceroute

	renderRoute := func(label string, route []uint32, snrs []int32) string {
		if len(route) == 0 {
			return label + ": direct"
		}
		hops := make([]string, 0, len(route))
		for i, num := range route {
			hop := b.directory.Descriptor(meshtastic.NodeID(num))
			if i < len(snrs) {
				hop += fmt.Sprintf(" (%.2f dB)", float64(snrs[i])/4)
			}
			hops = append(hops, hop)
		}
		return label + ":\n" + strings.Join(hops, "\n")
	}

	body := renderRoute("Route towards", tr.Route, tr.SnrTowards) + "\n\n" +
		renderRoute("Route back", tr.RouteBack, tr.SnrBack) + "\n\n" +
		signalFooter(pkt)

	return chat.Message{
		ChannelID: b.cfg.Discord.ChannelID,
		Title:     "Traceroute via " + sender,
		Body:      body,
		Color:     chat.ColorSent,
	}
}

// formatLastHeard renders a node freshness timestamp for reports.
func formatLastHeard(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}
