package streamserver

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// ingestFrame is the wire shape of one frame posted to /ingest/{exercise},
// matching spec.md §6's incoming frame payload: a source device label, a
// fractional-second timestamp, the exercise key (the URL path is the
// binding authority; Device and Exercise are decoded but not otherwise
// enforced here, since Server is already bound to one exercise's engine
// at construction), and exactly 33 landmarks.
type ingestFrame struct {
	Device    string                `json:"device"`
	Timestamp float64               `json:"timestamp"`
	Exercise  string                `json:"exercise"`
	Landmarks [landmark.Count]point `json:"landmarks"`
}

type point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// ServeIngest accepts a WebSocket connection at /ingest/{exercise} and
// feeds every decoded frame into the server via Ingest. The exercise name
// in the path is accepted but not otherwise enforced here — Server is
// already bound to one exercise's engine at construction.
func (s *Server) ServeIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ingest accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "ingest closed")

	ctx := r.Context()
	for {
		var frame ingestFrame
		if err := readJSON(ctx, conn, &frame); err != nil {
			if isNormalClose(err) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.Debug("ingest read failed, closing", zap.Error(err))
			return
		}

		var raw landmark.RawFrame
		raw.TimestampMS = int64(frame.Timestamp * 1000)
		for i, p := range frame.Landmarks {
			raw.Points[i] = landmark.Point{X: p.X, Y: p.Y, Z: p.Z, Visibility: p.Visibility}
		}
		if err := raw.Validate(); err != nil {
			s.log.Debug("rejecting invalid ingest frame", zap.Error(err))
			continue
		}
		s.Ingest(raw)
	}
}

// ServeSubscribe accepts a WebSocket connection at /subscribe and streams
// every coaching payload the engine produces until the client disconnects.
func (s *Server) ServeSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("subscribe accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "subscribe closed")

	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.log.Debug("subscribe write failed, closing", zap.Error(err))
				return
			}
		}
	}
}

func readJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func isNormalClose(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
