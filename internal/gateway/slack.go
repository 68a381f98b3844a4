package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackBridge mirrors one world room into one Slack channel using Socket
// Mode. botToken is the Bot User OAuth Token (xoxb-...), appToken the
// App-Level Token (xapp-...).
type SlackBridge struct {
	channelID string
	client    *slack.Client
	socket    *socketmode.Client
	handler   MessageHandler
	logger    *zap.Logger
}

// NewSlackBridge creates a Slack bridge for the given channel.
func NewSlackBridge(botToken, appToken, channelID string, logger *zap.Logger) *SlackBridge {
	client := slack.New(botToken,
		slack.OptionAppLevelToken(appToken),
	)
	socket := socketmode.New(client,
		socketmode.OptionLog(zap.NewStdLog(logger)),
	)
	return &SlackBridge{
		channelID: channelID,
		client:    client,
		socket:    socket,
		logger:    logger,
	}
}

func (b *SlackBridge) Platform() string { return "slack" }

func (b *SlackBridge) OnMessage(h MessageHandler) { b.handler = h }

// Connect starts the Socket Mode event loop in background goroutines.
func (b *SlackBridge) Connect(ctx context.Context) error {
	go b.handleEvents(ctx)
	go func() {
		if err := b.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			b.logger.Error("slack socket mode error", zap.Error(err))
		}
	}()
	b.logger.Info("slack bridge connected via socket mode",
		zap.String("channel", b.channelID))
	return nil
}

func (b *SlackBridge) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			b.processEvent(evt)
		}
	}
}

func (b *SlackBridge) processEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	b.socket.Ack(*evt.Request)

	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}
	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Bot messages would loop straight back into the room.
	if inner.BotID != "" || inner.Channel != b.channelID {
		return
	}
	if b.handler == nil {
		return
	}
	b.handler(&InboundMessage{
		Platform:  "slack",
		UserName:  inner.User,
		Content:   inner.Text,
		Timestamp: time.Now(),
	})
}

// Post sends room activity to the bound Slack channel.
func (b *SlackBridge) Post(_ context.Context, content string) error {
	_, _, err := b.client.PostMessage(b.channelID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; context cancellation stops the socket loop.
func (b *SlackBridge) Close() error { return nil }
