package chat

import "github.com/wpamesh/mesh-discord-bridge/pkg/models"

// Message state colors. A relayed send starts peach while queued, turns
// yellow once the radio accepts it, and settles green or red when the
// acknowledgment (or failure) arrives.
const (
	ColorPending = 0xFFDAB9
	ColorSent    = 0xFFFF00
	ColorAcked   = 0x00FF00
	ColorError   = 0xFF0000
)

// Message is one outbound chat post.
type Message struct {
	ChannelID string
	Title     string
	Body      string
	Color     int
	// CloseAfter asks the session to shut down once this message is
	// delivered. Used for the lost-communication notice.
	CloseAfter bool
}

// Edit updates a previously posted message in place, identified by the
// reply handle captured when the command arrived.
type Edit struct {
	Handle models.ReplyHandle
	Title  string
	Body   string
	Color  int
}

// ThreadDump posts a titled thread under a channel and fills it with
// pre-chunked pages, then archives the thread.
type ThreadDump struct {
	ChannelID string
	Title     string
	Pages     []string
}

// Session is the chat platform surface the bridge talks to. The concrete
// Discord session lives outside this module; tests use a fake.
type Session interface {
	// Send posts a message and returns the platform message ID.
	Send(msg Message) (string, error)
	// Edit rewrites the message the handle points at.
	Edit(edit Edit) error
	// PostThread runs a complete thread dump: open, post pages, archive.
	PostThread(dump ThreadDump) error
	Close() error
}
