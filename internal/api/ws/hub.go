package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/mot/internal/observability"
	"github.com/your-org/mot/pkg/dto"
)

// viewerBuffer is how many frames a viewer may fall behind before it starts
// missing frames.
const viewerBuffer = 16

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	// Origin policy is the CORS layer's job; the upgrader takes whatever
	// reached the route.
	CheckOrigin: func(*http.Request) bool { return true },
}

// FrameFeed publishes each labeled frame of one run to the connected
// WebSocket viewers. The pipeline is single-threaded and must never wait on
// a viewer, so every viewer owns a small buffer and silently misses frames
// while it lags; the connection itself stays open. New viewers are primed
// with the most recent frame so they have something to render before the
// next tick arrives.
type FrameFeed struct {
	runID string

	mu   sync.Mutex
	subs map[*viewer]struct{}
	last []byte
}

type viewer struct {
	out chan []byte
}

func NewFrameFeed(runID string) *FrameFeed {
	return &FrameFeed{runID: runID, subs: make(map[*viewer]struct{})}
}

// Publish marshals the frame once and hands it to every viewer with buffer
// room. Called from the pipeline loop.
func (f *FrameFeed) Publish(frame *dto.LabeledFrame) {
	data, err := json.Marshal(&dto.WSMessage{Type: "labeled_frame", RunID: f.runID, Frame: frame})
	if err != nil {
		slog.Error("marshal labeled frame", "error", err)
		return
	}

	f.mu.Lock()
	f.last = data
	for v := range f.subs {
		select {
		case v.out <- data:
		default:
			// Lagging viewer: this frame is lost for it.
		}
	}
	f.mu.Unlock()
}

// Viewers returns the number of connected viewers.
func (f *FrameFeed) Viewers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// HandleWS upgrades the request and serves the feed until the viewer hangs
// up. The request goroutine doubles as the read loop; viewers send nothing
// meaningful, reading only notices the close.
func (f *FrameFeed) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	hello, err := json.Marshal(&dto.WSMessage{Type: "status", RunID: f.runID})
	if err != nil {
		slog.Error("marshal ws status", "error", err)
		return
	}

	v := &viewer{out: make(chan []byte, viewerBuffer)}
	f.mu.Lock()
	f.subs[v] = struct{}{}
	v.out <- hello
	if f.last != nil {
		v.out <- f.last
	}
	f.mu.Unlock()
	observability.WSConnections.Inc()
	defer f.drop(v)

	go func() {
		for msg := range v.out {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		}
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop detaches the viewer; closing its channel ends the writer.
func (f *FrameFeed) drop(v *viewer) {
	f.mu.Lock()
	_, live := f.subs[v]
	if live {
		delete(f.subs, v)
		close(v.out)
	}
	f.mu.Unlock()
	if live {
		observability.WSConnections.Dec()
	}
}
