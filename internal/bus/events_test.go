package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "telegram:42", SessionKey("telegram", "42"))

	in := NewInboundMessage("telegram", "42", "7", "hi")
	assert.Equal(t, "telegram:42", in.SessionKey())

	out := NewOutboundMessage("telegram", "42", "hi")
	assert.Equal(t, "telegram:42", out.SessionKey())

	evt := NewEvent(EventDisconnect, "telegram", "42", "")
	assert.Equal(t, "telegram:42", evt.SessionKey())
}

func TestInboundMessageJSON(t *testing.T) {
	in := NewInboundMessage("telegram", "42", "7", "what time is it")
	in.Metadata = map[string]string{"message_id": "9"}

	data, err := in.ToJSON()
	require.NoError(t, err)

	var got InboundMessage
	require.NoError(t, got.FromJSON(data))

	assert.Equal(t, in.Channel, got.Channel)
	assert.Equal(t, in.ChatID, got.ChatID)
	assert.Equal(t, in.SenderID, got.SenderID)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, in.Metadata, got.Metadata)
}

func TestNewEventSetsTimestamp(t *testing.T) {
	evt := NewEvent(EventError, "telegram", "1", "boom")
	assert.Equal(t, EventError, evt.Kind)
	assert.Equal(t, "boom", evt.Detail)
	assert.False(t, evt.Fatal)
	assert.False(t, evt.Timestamp.IsZero())
}
