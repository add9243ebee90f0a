package meshtastic

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is the 32-bit Meshtastic node number. Its canonical string form
// is the bang-hex ID used on the wire and in user dictionaries, e.g. "!a4e1f2c0".
type NodeID uint32

// BROADCAST_ID is the reserved all-ones broadcast address.
const BROADCAST_ID NodeID = 0xFFFFFFFF

// Display names for the broadcast address. The broadcast ID never resolves
// through the node directory.
const (
	BroadcastShortName = "^all"
	BroadcastLongName  = "All Nodes"
)

func (n NodeID) String() string {
	return fmt.Sprintf("!%08x", uint32(n))
}

func (n NodeID) IsBroadcast() bool {
	return n == BROADCAST_ID
}

func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText lets node IDs appear in bang-hex form in config files.
func (n *NodeID) UnmarshalText(text []byte) error {
	id, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// ParseNodeID parses a bang-hex node ID ("!a4e1f2c0"). The "^all" alias
// used by some firmware for broadcast destinations is accepted.
func ParseNodeID(s string) (NodeID, error) {
	if s == "^all" {
		return BROADCAST_ID, nil
	}
	if !strings.HasPrefix(s, "!") {
		return 0, fmt.Errorf("node ID %q missing ! prefix", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node ID %q: %w", s, err)
	}
	return NodeID(v), nil
}
