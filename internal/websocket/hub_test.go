package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetops/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_NeverBlocks(t *testing.T) {
	hub := NewHub(logger.Discard())

	done := make(chan struct{})
	go func() {
		// nothing drains the hub; the buffer fills and the rest are dropped
		for i := 0; i < 500; i++ {
			hub.Publish("ledger.imported", map[string]int{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated hub")
	}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Discard())
	stop := make(chan struct{})
	go hub.Run(stop)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("userID", "u1")
		ServeWs(hub, c)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("superadmin.repaired", map[string]int{"granted_count": 2})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev struct {
		Event string         `json:"event"`
		Data  map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "superadmin.repaired", ev.Event)
	assert.Equal(t, 2, ev.Data["granted_count"])

	close(stop)
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "stopping the hub closes subscriber connections")
	assert.Zero(t, hub.ClientCount())
}
