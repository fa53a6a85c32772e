// Package telegram provides the Telegram channel adapter built on the
// Telego library. It long-polls the Bot API for updates, publishes them to
// the message bus as inbound messages, and delivers outbound messages
// addressed to the "telegram" channel.
package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/config"
	"github.com/mkravets/omnibot/internal/logger"
	"github.com/mkravets/omnibot/internal/version"
)

// ChannelName is the bus channel identifier for this adapter.
const ChannelName = "telegram"

// SessionStore is the slice of the session manager the connector's bot
// commands need.
type SessionStore interface {
	Reset(key string) error
	ActiveCount() int
}

// Connector bridges the Telegram Bot API and the message bus.
type Connector struct {
	cfg      config.TelegramConfig
	logger   *logger.Logger
	bus      *bus.MessageBus
	sessions SessionStore
	bot      BotInterface
	ctx      context.Context
	cancel   context.CancelFunc

	outbound *bus.Subscription[bus.OutboundMessage]
}

// New creates a Telegram connector.
func New(cfg config.TelegramConfig, log *logger.Logger, msgBus *bus.MessageBus, sessions SessionStore) *Connector {
	return &Connector{
		cfg:      cfg,
		logger:   log,
		bus:      msgBus,
		sessions: sessions,
	}
}

// Name implements channels.Channel.
func (c *Connector) Name() string {
	return ChannelName
}

// Start initializes the bot and starts the long-poll and outbound loops.
func (c *Connector) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.logger.Info("telegram connector disabled in config")
		return nil
	}

	if c.cfg.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	bot, err := telego.NewBot(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	c.bot = NewBotAdapter(bot)
	c.ctx, c.cancel = context.WithCancel(ctx)

	botUser, err := c.bot.GetMe(c.ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to get bot info: %w", err)
	}

	c.logger.Info("telegram bot initialized",
		logger.Field{Key: "bot_id", Value: botUser.ID},
		logger.Field{Key: "username", Value: botUser.Username})

	if err := c.registerCommands(); err != nil {
		c.logger.ErrorCtx(c.ctx, "failed to register bot commands", err)
	}

	c.outbound = c.bus.SubscribeOutbound()
	go c.handleOutbound()
	go c.longPoll()

	c.publishEvent(bus.EventConnect, "", "long polling started")

	return nil
}

// Stop shuts the connector down. In-flight work for this channel is
// abandoned by the executor when it sees the disconnect event.
func (c *Connector) Stop() error {
	if c.cancel == nil {
		return nil
	}

	c.publishEvent(bus.EventDisconnect, "", "connector stopping")
	c.cancel()

	if c.outbound != nil {
		c.outbound.Close()
		c.outbound = nil
	}
	c.bot = nil

	c.logger.Info("telegram connector stopped")
	return nil
}

func (c *Connector) registerCommands() error {
	params := &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "new", Description: "Start a new session (clear history)"},
			{Command: "status", Description: "Show session and bot status"},
		},
	}
	return c.bot.SetMyCommands(c.ctx, params)
}

// longPoll receives updates until the context is cancelled. An update
// stream that ends on its own is reported as a fatal channel error so the
// executor can abort runs bound to this channel.
func (c *Connector) longPoll() {
	updates, err := c.bot.UpdatesViaLongPolling(c.ctx, &telego.GetUpdatesParams{
		Timeout: c.cfg.PollTimeoutSeconds,
	})
	if err != nil {
		c.logger.ErrorCtx(c.ctx, "failed to start long polling", err)
		c.publishFatalError("", fmt.Sprintf("long polling failed: %v", err))
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				if c.ctx.Err() == nil {
					c.logger.Warn("telegram update stream closed unexpectedly")
					c.publishFatalError("", "update stream closed")
				}
				return
			}
			if err := c.handleUpdate(update); err != nil {
				c.logger.ErrorCtx(c.ctx, "failed to handle update", err)
			}
		}
	}
}

// handleUpdate converts a Telegram update into an inbound bus message. Bot
// commands are answered here and never reach the model.
func (c *Connector) handleUpdate(update telego.Update) error {
	if update.Message == nil || update.Message.Text == "" {
		return nil
	}

	msg := update.Message
	var senderID string
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}

	if !c.isAllowedUser(senderID) {
		c.logger.WarnCtx(c.ctx, "message blocked, user not in whitelist",
			logger.Field{Key: "sender_id", Value: senderID})
		return nil
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if strings.HasPrefix(msg.Text, "/") {
		handled, err := c.handleCommand(chatID, msg.Text)
		if handled || err != nil {
			return err
		}
	}

	inbound := bus.NewInboundMessage(ChannelName, chatID, senderID, msg.Text)
	inbound.Metadata = map[string]string{
		"message_id": strconv.Itoa(msg.MessageID),
		"chat_type":  msg.Chat.Type,
	}
	if msg.From != nil {
		inbound.Metadata["username"] = msg.From.Username
	}

	if err := c.bus.PublishInbound(inbound); err != nil {
		return fmt.Errorf("failed to publish inbound message: %w", err)
	}

	c.logger.DebugCtx(c.ctx, "inbound message published",
		logger.Field{Key: "sender_id", Value: senderID},
		logger.Field{Key: "chat_id", Value: chatID})

	return nil
}

// handleCommand answers the bot commands registered in registerCommands.
// Unknown slash-prefixed text is not handled and falls through to the model.
func (c *Connector) handleCommand(chatID, text string) (bool, error) {
	name := strings.Fields(text)[0]
	name = strings.TrimPrefix(name, "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	switch name {
	case "new":
		if err := c.sessions.Reset(bus.SessionKey(ChannelName, chatID)); err != nil {
			c.sendText(chatID, "Failed to reset the session, please try again.")
			return true, fmt.Errorf("failed to reset session: %w", err)
		}
		c.sendText(chatID, "Started a new session.")
		return true, nil
	case "status":
		c.sendText(chatID, fmt.Sprintf("omnibot %s\nactive sessions: %d",
			version.Version(), c.sessions.ActiveCount()))
		return true, nil
	}
	return false, nil
}

// isAllowedUser checks the sender against the whitelist. An empty
// whitelist allows everyone.
func (c *Connector) isAllowedUser(senderID string) bool {
	if len(c.cfg.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.cfg.AllowedUsers, senderID)
}

// handleOutbound delivers outbound bus messages addressed to this channel.
func (c *Connector) handleOutbound() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.outbound.C():
			if !ok {
				return
			}
			if msg.Channel != ChannelName {
				continue
			}
			c.send(msg)
		}
	}
}

func (c *Connector) sendText(chatID, text string) {
	c.send(bus.OutboundMessage{Channel: ChannelName, ChatID: chatID, Content: text})
}

func (c *Connector) send(msg bus.OutboundMessage) {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		c.logger.ErrorCtx(c.ctx, "invalid chat id in outbound message", err,
			logger.Field{Key: "chat_id", Value: msg.ChatID})
		return
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Content,
	}

	sendCtx, cancel := context.WithTimeout(c.ctx, time.Duration(c.cfg.SendTimeoutSeconds)*time.Second)
	defer cancel()

	if _, err := c.bot.SendMessage(sendCtx, params); err != nil {
		c.logger.ErrorCtx(c.ctx, "failed to send telegram message", err,
			logger.Field{Key: "chat_id", Value: msg.ChatID})
		c.publishEvent(bus.EventError, msg.ChatID, fmt.Sprintf("send failed: %v", err))
	}
}

func (c *Connector) publishEvent(kind bus.EventKind, chatID, detail string) {
	evt := bus.NewEvent(kind, ChannelName, chatID, detail)
	if err := c.bus.PublishEvent(evt); err != nil {
		c.logger.Warn("failed to publish channel event",
			logger.Field{Key: "kind", Value: string(kind)},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (c *Connector) publishFatalError(chatID, detail string) {
	evt := bus.NewEvent(bus.EventError, ChannelName, chatID, detail)
	evt.Fatal = true
	if err := c.bus.PublishEvent(evt); err != nil {
		c.logger.Warn("failed to publish channel error event",
			logger.Field{Key: "error", Value: err.Error()})
	}
}
