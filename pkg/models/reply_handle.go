package models

// ReplyHandle locates the chat message a mesh operation originated from,
// so later status edits land on the right message. A zero handle means
// the operation was not user-initiated.
type ReplyHandle struct {
	GuildID   string `db:"discord_guild_id"`
	ChannelID string `db:"discord_channel_id"`
	MessageID string `db:"discord_message_id"`
	UserID    string `db:"discord_user_id"`
	UserName  string `db:"discord_user_name"`
}

func (h ReplyHandle) IsZero() bool {
	return h.MessageID == ""
}
