package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"uniqsocial/client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSMessage_OmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(models.WSMessage{Type: models.TypeTyping, SessionID: "s1"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"typing","session_id":"s1"}`, string(data))
}

func TestWSMessage_KnownType(t *testing.T) {
	for _, typ := range []string{"message", "typing", "read_receipt", "chat_ended"} {
		assert.True(t, models.WSMessage{Type: typ}.KnownType(), typ)
	}
	assert.False(t, models.WSMessage{Type: ""}.KnownType())
	assert.False(t, models.WSMessage{Type: "presence"}.KnownType())
}

func TestWSMessage_SentAt(t *testing.T) {
	stamped := models.WSMessage{Timestamp: "2026-10-17T20:15:00Z"}
	got, ok := stamped.SentAt()
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2026, 10, 17, 20, 15, 0, 0, time.UTC)))

	_, ok = models.WSMessage{}.SentAt()
	assert.False(t, ok)

	_, ok = models.WSMessage{Timestamp: "yesterday"}.SentAt()
	assert.False(t, ok)
}

func TestTransportStateString(t *testing.T) {
	assert.Equal(t, "reconnecting(3)", models.TransportState{Phase: models.Reconnecting, Attempt: 3}.String())
	assert.Equal(t, "disconnected(gave up)", models.TransportState{GaveUp: true}.String())
	assert.Equal(t, "connected", models.TransportState{Phase: models.Connected}.String())
}

func TestMatchResponse_Decode(t *testing.T) {
	body := `{"matched":true,"match":{"session_id":"s1","status":"active","partner_id":"p1",
		"partner_username":"ana","partner_photo":null,"started_at":"2026-10-17T20:00:00Z"}}`

	var resp models.MatchResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	require.NotNil(t, resp.Match)
	assert.True(t, resp.Matched)
	assert.True(t, resp.Match.IsActive())
	assert.Nil(t, resp.Match.PartnerPhoto)
	assert.Equal(t, "ana", resp.Match.PartnerUsername)
}

func TestLocalMessageID(t *testing.T) {
	at := time.UnixMilli(1760731200123)
	assert.Equal(t, "1760731200123-u1-7", models.LocalMessageID(at, "u1", 7))
	assert.NotEqual(t, models.LocalMessageID(at, "u1", 1), models.LocalMessageID(at, "u1", 2))
}
