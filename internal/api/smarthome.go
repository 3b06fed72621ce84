package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/fulfilment"
)

// handleSmartHome answers an intent envelope for the authenticated owner.
//
// Status codes: 200 for any routed envelope (including per-device errors
// and notSupported), 400 for an unusable envelope, 500 when the envelope
// carries internalError.
func (s *Server) handleSmartHome(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	var req fulfilment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		id := req.RequestID
		if id == "" {
			id = strconv.FormatInt(time.Now().UnixMilli(), 10)
		}
		writeJSON(w, http.StatusBadRequest, fulfilment.Response{
			RequestID: id,
			Payload:   fulfilment.ErrorPayload{ErrorCode: fulfilment.ErrorProtocol},
		})
		return
	}

	ctx := r.Context()
	if secs := s.cfg.API.Timeouts.Request; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	resp, err := s.intents.Handle(ctx, owner, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, fulfilment.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		s.logger.Error("fulfilment failed",
			"owner", owner,
			"request_id", requestIDFrom(r.Context()),
			"intent_request_id", resp.RequestID,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}
