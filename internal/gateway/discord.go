package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordBridge mirrors one world room into one Discord channel.
type DiscordBridge struct {
	token     string
	channelID string
	session   *discordgo.Session
	handler   MessageHandler
	logger    *zap.Logger
}

// NewDiscordBridge creates a Discord bridge for the given channel.
func NewDiscordBridge(token, channelID string, logger *zap.Logger) *DiscordBridge {
	return &DiscordBridge{token: token, channelID: channelID, logger: logger}
}

func (b *DiscordBridge) Platform() string { return "discord" }

func (b *DiscordBridge) OnMessage(h MessageHandler) { b.handler = h }

// Connect opens the Discord gateway websocket.
func (b *DiscordBridge) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + b.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages
	session.AddHandler(b.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	b.session = session

	if len(session.State.Guilds) == 0 {
		b.logger.Warn("discord bot is not a member of any server yet")
	}
	b.logger.Info("discord bridge connected",
		zap.String("user", session.State.User.Username),
		zap.String("channel", b.channelID))
	return nil
}

func (b *DiscordBridge) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.ChannelID != b.channelID {
		return
	}
	if b.handler == nil {
		return
	}
	b.handler(&InboundMessage{
		Platform:  "discord",
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: time.Now(),
	})
}

// Post sends room activity to the bound Discord channel.
func (b *DiscordBridge) Post(_ context.Context, content string) error {
	if _, err := b.session.ChannelMessageSend(b.channelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (b *DiscordBridge) Close() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}
