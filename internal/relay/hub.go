// Package relay forwards frames delivered by a reception flow to WebSocket
// subscribers. RTP packets are sent as binary messages carrying the marshalled
// packet; RTCP packets as JSON text messages.
package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/rxflow/internal/flow"
	"github.com/lanikai/rxflow/internal/logging"
)

var log = logging.DefaultLogger.WithTag("relay")

const (
	DefaultBacklog = 256

	writeTimeout = 5 * time.Second
)

// RTCPMessage is the JSON form of a relayed RTCP packet.
type RTCPMessage struct {
	Type  string   `json:"type"`
	Kind  string   `json:"kind"`
	SSRCs []uint32 `json:"ssrcs"`
	Raw   []byte   `json:"raw"`
}

// Hub is an http.Handler that upgrades requests to WebSocket connections and
// streams every broadcast frame to them.
type Hub struct {
	b        *broadcaster
	backlog  int
	upgrader websocket.Upgrader
}

// NewHub creates a hub that buffers up to backlog messages per subscriber.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		b:       newBroadcaster(),
		backlog: backlog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast sends a frame to all subscribers. It has the signature of a flow
// receive hook.
func (h *Hub) Broadcast(frame flow.Frame) {
	m, err := encode(frame)
	if err != nil {
		log.Debug("Not relaying frame: %v", err)
		return
	}
	h.b.broadcast(m)
}

func encode(frame flow.Frame) (message, error) {
	switch f := frame.(type) {
	case *rtp.Packet:
		data, err := f.Marshal()
		return message{websocket.BinaryMessage, data}, err
	case rtcp.Packet:
		raw, err := f.Marshal()
		if err != nil {
			return message{}, err
		}
		data, err := json.Marshal(RTCPMessage{
			Type:  "rtcp",
			Kind:  strings.TrimPrefix(fmt.Sprintf("%T", f), "*rtcp."),
			SSRCs: f.DestinationSSRC(),
			Raw:   raw,
		})
		return message{websocket.TextMessage, data}, err
	case []byte:
		return message{websocket.BinaryMessage, f}, nil
	default:
		return message{}, errors.Errorf("unsupported frame type %T", frame)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	id, ch := h.b.subscribe(h.backlog)
	log.Info("Subscriber %s connected from %s", id, r.RemoteAddr)

	// Subscribers never send anything meaningful; reading only detects the
	// connection going away.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				h.b.unsubscribe(id)
				return
			}
		}
	}()

	for m := range ch {
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(m.kind, m.data); err != nil {
			log.Debug("Subscriber %s: %v", id, err)
			h.b.unsubscribe(id)
			break
		}
	}
	log.Info("Subscriber %s disconnected", id)
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	return h.b.count()
}

// Close disconnects all subscribers.
func (h *Hub) Close() error {
	h.b.close()
	return nil
}
