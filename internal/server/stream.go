package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	logx "relayd/pkg/logx"
)

// streamHandler pushes record updates as server-sent events until the client
// disconnects. Disconnection releases the subscription promptly, so a dead
// client never pins a delivery buffer.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	sub, closeSub, err := s.plane.Stream(r.Context(), bearerToken(r))
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	defer closeSub()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.log.With(logx.String("req", requestID(r)))
	log.Debug("stream attached")

	for {
		select {
		case <-r.Context().Done():
			log.Debug("stream client disconnected")
			return
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			body, err := json.Marshal(rec)
			if err != nil {
				log.Warn("stream encode failed", logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
				log.Debug("stream write failed; dropping client", logx.Err(err))
				return
			}
			flusher.Flush()
		}
	}
}
