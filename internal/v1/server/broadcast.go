package server

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/metrics"
	"github.com/harborchat/harbor/internal/v1/wire"
)

// sendFrame marshals v and queues it on fd's write buffer. A missing
// connection or a full buffer drops the frame; push delivery is
// best-effort by design of the protocol.
func (s *Server) sendFrame(fd int, typ uint16, v any) bool {
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			logging.Error(context.Background(), "marshal outbound frame",
				zap.Uint16("type", typ), zap.Error(err))
			return false
		}
	}
	conn, ok := s.reg.GetConnection(fd)
	if !ok {
		return false
	}
	if !conn.EnqueueFrame(typ, payload) {
		logging.Warn(context.Background(), "write buffer full, dropping frame",
			zap.Int("fd", fd), zap.String("type", wire.TypeName(typ)))
		return false
	}
	return true
}

// notifyRoomUsers fans a push out to every member of a room, the
// triggering user included. The payload is marshaled once and shared.
func (s *Server) notifyRoomUsers(roomID int, typ uint16, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "marshal room push",
			zap.Uint16("type", typ), zap.Error(err))
		return
	}

	members := s.reg.RoomMembers(roomID)
	fds := s.reg.FdsForUsers(members)
	delivered := 0
	for _, fd := range fds {
		conn, ok := s.reg.GetConnection(fd)
		if !ok {
			continue
		}
		if conn.EnqueueFrame(typ, payload) {
			delivered++
		}
	}
	metrics.PushesDelivered.WithLabelValues(wire.TypeName(typ)).Add(float64(delivered))
}
