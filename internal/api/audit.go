package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/lumina-bridge/internal/audit"
)

// handleListAudit returns the caller's audit entries.
//
// Query parameters:
//   - action: command or sync
//   - device_id: a single device
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Owner:    ownerFrom(r.Context()),
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
