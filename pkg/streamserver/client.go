package streamserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// ConsumeRemoteSkeletonStream dials url as a WebSocket client and feeds
// every decoded frame to s.Ingest, reconnecting with Config.ReconnectDelay
// between attempts until ctx is canceled. Grounded on
// original_source/backend/websocket_server.py's
// consume_remote_skeleton_stream: a source of pose frames may itself be a
// remote service (e.g. a phone relaying MediaPipe output), and the
// consumer side needs to survive that connection dropping.
func (s *Server) ConsumeRemoteSkeletonStream(ctx context.Context, url string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.consumeOnce(ctx, url); err != nil {
			s.log.Warn("remote skeleton stream disconnected, reconnecting",
				zap.String("url", url), zap.Error(err), zap.Duration("delay", s.cfg.ReconnectDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Server) consumeOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.log.Info("connected to remote skeleton stream", zap.String("url", url))
	for {
		var frame ingestFrame
		if err := readJSON(ctx, conn, &frame); err != nil {
			return err
		}

		var raw landmark.RawFrame
		raw.TimestampMS = int64(frame.Timestamp * 1000)
		for i, p := range frame.Landmarks {
			raw.Points[i] = landmark.Point{X: p.X, Y: p.Y, Z: p.Z, Visibility: p.Visibility}
		}
		if err := raw.Validate(); err != nil {
			s.log.Debug("rejecting invalid remote frame", zap.Error(err))
			continue
		}
		s.Ingest(raw)
	}
}
