package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFramePolygon(t *testing.T) {
	ms := time.Date(2024, 3, 4, 14, 35, 10, 0, time.UTC).UnixMilli()
	frame := []byte(`[{"ev":"status","status":"auth_success"},{"ev":"T","sym":"QQQ","p":440.5,"s":100,"t":` +
		strconv.FormatInt(ms, 10) + `}]`)

	ticks := decodeFrame(frame)
	require.Len(t, ticks, 1)
	assert.Equal(t, "QQQ", ticks[0].Symbol)
	assert.Equal(t, 440.5, ticks[0].Price)
	assert.Equal(t, 100.0, ticks[0].Volume)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 35, 10, 0, time.UTC), ticks[0].Timestamp)
}

func TestDecodeFrameFinnhub(t *testing.T) {
	ticks := decodeFrame([]byte(`{"type":"trade","data":[{"s":"SPY","p":500,"v":3,"t":1709562910000}]}`))
	require.Len(t, ticks, 1)
	assert.Equal(t, "SPY", ticks[0].Symbol)

	assert.Empty(t, decodeFrame([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeFrame([]byte(`garbage`)))
}

func TestClientStreamsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan map[string]string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var msg map[string]string
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"T","sym":"QQQ","p":1,"s":2,"t":1709562910000}]`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), APIKey: "k", Symbols: []string{"qqq"}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, map[string]string{"action": "auth", "params": "k"}, <-received)
	assert.Equal(t, map[string]string{"action": "subscribe", "params": "T.QQQ"}, <-received)

	ticks, _ := c.Read(ctx)
	select {
	case tick := <-ticks:
		require.NotNil(t, tick)
		assert.Equal(t, "QQQ", tick.Symbol)
	case <-ctx.Done():
		t.Fatal("no tick received")
	}
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
