package api

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds each dependency check on /healthz.
const healthTimeout = 2 * time.Second

// handleIndex identifies the service.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": s.cfg.Service.Name,
		"version": s.version,
	})
}

// handlePing is a liveness probe that touches no dependency.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleHealthz checks every registered dependency. Any failure answers 503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	healthy := true

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleDebugConfig reports which settings are present. Secret values are
// never included, only whether they are set.
func (s *Server) handleDebugConfig(w http.ResponseWriter, _ *http.Request) {
	c := s.cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"service":                 c.Service.Name,
		"registry_driver":         c.Registry.Driver,
		"registry_dsn_set":        c.Registry.DSN != "",
		"mqtt_enabled":            c.MQTT.Enabled,
		"mqtt_broker":             c.MQTT.Broker.Host,
		"mqtt_topic_prefix":       c.MQTT.TopicPrefix,
		"influxdb_enabled":        c.InfluxDB.Enabled,
		"credential_store":        c.Security.CredentialStore,
		"static_token_set":        c.Security.StaticToken != "",
		"test_owner_set":          c.Security.TestOwnerID != "",
		"assertion_secret_set":    c.Security.AssertionSecret != "",
		"oauth_client_id_set":     c.Security.OAuth.ClientID != "",
		"oauth_redirect_uris":     len(c.Security.OAuth.RedirectURIs),
		"metrics_enabled":         c.Metrics.Enabled,
		"websocket_path":          c.WebSocket.Path,
		"request_timeout_seconds": c.API.Timeouts.Request,
	})
}
