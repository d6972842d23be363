package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDropsOldest(t *testing.T) {
	b := newBroadcaster()
	id, ch := b.subscribe(2)

	for i := byte(1); i <= 3; i++ {
		b.broadcast(message{websocket.BinaryMessage, []byte{i}})
	}
	assert.Equal(t, []byte{2}, (<-ch).data)
	assert.Equal(t, []byte{3}, (<-ch).data)

	require.NoError(t, b.unsubscribe(id))
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, errNotFound, b.unsubscribe(id))
	assert.Equal(t, errNotFound, b.unsubscribe(uuid.New()))
}

func TestBroadcasterClose(t *testing.T) {
	b := newBroadcaster()
	_, first := b.subscribe(1)
	b.close()

	_, ok := <-first
	assert.False(t, ok)

	_, late := b.subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	assert.Equal(t, 0, b.count())
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	return ws
}

func TestHubRelaysFrames(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()
	ws := dial(t, hub)

	p := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 9, SSRC: 42},
		Payload: []byte("media"),
	}
	want, err := p.Marshal()
	require.NoError(t, err)

	hub.Broadcast(p)
	hub.Broadcast(struct{}{}) // ignored
	hub.Broadcast(&rtcp.PictureLossIndication{SenderSSRC: 1, MediaSSRC: 42})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, want, data)

	kind, data, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var m RTCPMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "rtcp", m.Type)
	assert.Equal(t, "PictureLossIndication", m.Kind)
	assert.Equal(t, []uint32{42}, m.SSRCs)

	pkts, err := rtcp.Unmarshal(m.Raw)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
}

func TestHubForgetsClosedSubscriber(t *testing.T) {
	hub := NewHub(0)
	ws := dial(t, hub)

	ws.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
