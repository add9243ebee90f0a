package chat

import (
	"log/slog"

	"github.com/google/uuid"
)

// LogSession is a Session that writes everything to the log. It stands
// in when no chat platform binding is configured, and doubles as a dry
// run mode.
type LogSession struct{}

var _ Session = (*LogSession)(nil)

func NewLogSession() *LogSession {
	return &LogSession{}
}

func (s *LogSession) Send(msg Message) (string, error) {
	slog.Info("chat send", "channel", msg.ChannelID, "title", msg.Title, "body", msg.Body)
	return uuid.NewString(), nil
}

func (s *LogSession) Edit(edit Edit) error {
	slog.Info("chat edit", "message", edit.Handle.MessageID, "title", edit.Title, "body", edit.Body)
	return nil
}

func (s *LogSession) PostThread(dump ThreadDump) error {
	slog.Info("chat thread", "channel", dump.ChannelID, "title", dump.Title, "pages", len(dump.Pages))
	return nil
}

func (s *LogSession) Close() error {
	return nil
}
