package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/config"
	"github.com/mkravets/omnibot/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// fakeBot records sent messages without touching the Bot API.
type fakeBot struct {
	sent []*telego.SendMessageParams
}

func (f *fakeBot) GetMe(context.Context) (*telego.User, error) {
	return &telego.User{ID: 1, Username: "omnibot_bot"}, nil
}

func (f *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

func (f *fakeBot) SetMyCommands(context.Context, *telego.SetMyCommandsParams) error {
	return nil
}

func (f *fakeBot) UpdatesViaLongPolling(context.Context, *telego.GetUpdatesParams, ...telego.LongPollingOption) (<-chan telego.Update, error) {
	return nil, nil
}

func (f *fakeBot) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	return nil
}

// fakeSessionStore records reset calls.
type fakeSessionStore struct {
	reset  []string
	active int
}

func (f *fakeSessionStore) Reset(key string) error {
	f.reset = append(f.reset, key)
	return nil
}

func (f *fakeSessionStore) ActiveCount() int { return f.active }

type connectorFixture struct {
	conn     *Connector
	bot      *fakeBot
	sessions *fakeSessionStore
	inbound  *bus.Subscription[bus.InboundMessage]
}

func newConnectorFixture(t *testing.T) *connectorFixture {
	t.Helper()
	log := testLogger(t)

	mb := bus.New(100, 64, bus.NewTestMetrics(), log)
	require.NoError(t, mb.Start(context.Background()))
	t.Cleanup(func() { _ = mb.Stop() })

	bot := &fakeBot{}
	sessions := &fakeSessionStore{active: 3}
	conn := New(config.TelegramConfig{
		Enabled:            true,
		SendTimeoutSeconds: 5,
	}, log, mb, sessions)
	conn.bot = bot
	conn.ctx = context.Background()

	return &connectorFixture{
		conn:     conn,
		bot:      bot,
		sessions: sessions,
		inbound:  mb.SubscribeInbound(),
	}
}

func textUpdate(chatID int64, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		MessageID: 10,
		Text:      text,
		Chat:      telego.Chat{ID: chatID, Type: "private"},
		From:      &telego.User{ID: 7, Username: "ira"},
	}}
}

func (f *connectorFixture) expectNoInbound(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.inbound.C():
		t.Fatalf("unexpected inbound message: %q", msg.Content)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlainMessagePublishedInbound(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "hello")))

	select {
	case msg := <-f.inbound.C():
		assert.Equal(t, ChannelName, msg.Channel)
		assert.Equal(t, "42", msg.ChatID)
		assert.Equal(t, "7", msg.SenderID)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "ira", msg.Metadata["username"])
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message never published")
	}
}

func TestNewCommandResetsSession(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "/new")))

	assert.Equal(t, []string{"telegram:42"}, f.sessions.reset)
	require.Len(t, f.bot.sent, 1)
	assert.Equal(t, "Started a new session.", f.bot.sent[0].Text)
	assert.Equal(t, int64(42), f.bot.sent[0].ChatID.ID)
	f.expectNoInbound(t)
}

func TestNewCommandWithBotMention(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "/new@omnibot_bot")))

	assert.Equal(t, []string{"telegram:42"}, f.sessions.reset)
	f.expectNoInbound(t)
}

func TestStatusCommandReportsState(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "/status")))

	require.Len(t, f.bot.sent, 1)
	assert.Contains(t, f.bot.sent[0].Text, "omnibot")
	assert.Contains(t, f.bot.sent[0].Text, "active sessions: 3")
	f.expectNoInbound(t)
}

func TestUnknownSlashCommandGoesToModel(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "/weather tomorrow")))

	assert.Empty(t, f.bot.sent)
	select {
	case msg := <-f.inbound.C():
		assert.Equal(t, "/weather tomorrow", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message never published")
	}
}

func TestWhitelistBlocksUnknownSender(t *testing.T) {
	f := newConnectorFixture(t)
	f.conn.cfg.AllowedUsers = []string{"999"}

	require.NoError(t, f.conn.handleUpdate(textUpdate(42, "hello")))
	f.expectNoInbound(t)
}
