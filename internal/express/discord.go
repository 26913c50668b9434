package express

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// MaxMessengerMessageLength is the messenger's maximum message length.
const MaxMessengerMessageLength = 2000

// DiscordChannel delivers long-form messenger expressions via Discord.
type DiscordChannel struct {
	getSession func() *discordgo.Session
	channelID  string
}

// NewDiscordChannel creates the messenger channel. getSession returns nil
// while the gateway is disconnected; sends fail soft and the thought stays
// re-routable.
func NewDiscordChannel(getSession func() *discordgo.Session, channelID string) *DiscordChannel {
	return &DiscordChannel{getSession: getSession, channelID: channelID}
}

// Name returns the channel label used in expression rows.
func (d *DiscordChannel) Name() string { return "messenger" }

// Send delivers one message, chunking at the platform limit.
func (d *DiscordChannel) Send(ctx context.Context, payload string) (SendResult, error) {
	session := d.getSession()
	if session == nil {
		return SendResult{}, fmt.Errorf("messenger session not connected")
	}

	var lastID string
	for _, chunk := range splitMessage(payload, MaxMessengerMessageLength) {
		msg, err := session.ChannelMessageSend(d.channelID, chunk)
		if err != nil {
			return SendResult{}, fmt.Errorf("messenger send: %w", err)
		}
		lastID = msg.ID
	}
	return SendResult{Delivered: true, MessageID: lastID}, nil
}

// splitMessage breaks content into chunks under the limit, preferring line
// boundaries.
func splitMessage(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}
	var chunks []string
	for len(content) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if content[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	if len(content) > 0 {
		chunks = append(chunks, content)
	}
	return chunks
}
