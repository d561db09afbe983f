package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/server/middlewares"
	"github.com/Luismorlan/campusfeed/stats"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	FrameSnapshot    = "snapshot"
	FrameStats       = "stats"
	FrameStreamError = "stream_error"

	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Clients only send pongs and close frames.
	maxMessageSize = 512
)

// Frame is one websocket message pushed to a subscribed viewer.
type Frame struct {
	Type     string                `json:"type"`
	Snapshot *SnapshotView         `json:"snapshot,omitempty"`
	Stats    *model.CommunityStats `json:"stats,omitempty"`
	Error    string                `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (h *Handler) pingInterval() time.Duration {
	if h.PingInterval <= 0 {
		return 30 * time.Second
	}
	return h.PingInterval
}

// GET /subscription
//
// Upgrades to a websocket and streams a snapshot frame followed by a stats
// frame for every new snapshot of the feed. Stream errors are forwarded as
// stream_error frames while the broker resubscribes.
func (h *Handler) Subscribe(c *gin.Context) {
	viewer := middlewares.GetIdentity(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an http error.
		Logger.Log.Infof("websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.Broker.Subscribe(ctx, viewer.UserId)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer sub.Cancel()

	log := Logger.Log.WithFields(logrus.Fields{"subscription_id": sub.Id, "viewer_id": viewer.UserId})
	log.Info("websocket subscribed")

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sub.Snapshots(), sub.Errors(), viewer.UserId, log)

	log.Info("websocket unsubscribed")
}

// readPump only exists to process control frames, the connection is done as
// soon as a read fails.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	pongWait := h.pingInterval() * 10 / 9
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, snapshots <-chan *model.Snapshot, errs <-chan error, viewerId string, log *logrus.Entry) {
	ticker := time.NewTicker(h.pingInterval())
	defer ticker.Stop()

	write := func(frame *Frame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Infof("websocket write failed: %s", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			view, err := NewSnapshotView(snapshot, viewerId)
			if err != nil {
				log.Errorf("fail to render snapshot: %s", err)
				return
			}
			if !write(&Frame{Type: FrameSnapshot, Snapshot: view}) {
				return
			}
			if !write(&Frame{Type: FrameStats, Stats: stats.OnSnapshot(snapshot)}) {
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if !write(&Frame{Type: FrameStreamError, Error: err.Error()}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
