package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer stamps sender_id and timestamp on every frame and echoes it
// back, roughly what the chat server does for a one-user room.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/ws" || r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg models.WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			msg.SenderID = "user-1"
			msg.Timestamp = time.Date(2026, 10, 17, 21, 0, 0, 0, time.UTC).Format(time.RFC3339)
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGorillaDialer_RoundTrip(t *testing.T) {
	srv := echoServer(t)
	transport := realtime.New("s-42", realtime.Options{
		BaseURL: wsURL(srv),
		Tokens:  &staticToken{token: "tok"},
	})
	defer transport.Disconnect()

	var mu sync.Mutex
	var got []models.WSMessage
	transport.OnMessage(func(m models.WSMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m)
	})

	require.NoError(t, transport.Connect(context.Background()))
	require.NoError(t, transport.Send(models.WSMessage{Type: models.TypeMessage, SessionID: "s-42", Content: "ping"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ping", got[0].Content)
	assert.Equal(t, "user-1", got[0].SenderID)
	sentAt, ok := got[0].SentAt()
	assert.True(t, ok)
	assert.Equal(t, 21, sentAt.Hour())
}

func TestGorillaDialer_HandshakeRejected(t *testing.T) {
	srv := echoServer(t)
	transport := realtime.New("s-42", realtime.Options{
		BaseURL: wsURL(srv),
		Tokens:  &staticToken{token: "wrong"},
	})
	defer transport.Disconnect()

	err := transport.Connect(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.False(t, transport.IsConnected())
}
