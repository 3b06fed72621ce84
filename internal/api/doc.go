// Package api is the HTTP transport of the bridge.
//
// Routes:
//
//	POST /smarthome          intent envelope (bearer auth)
//	GET  /oauth/authorize    issues an authorization code and redirects
//	POST /oauth/token        redeems a code for an access token
//	GET  /ws                 owner-scoped stream of device state changes
//	GET  /api/v1/audit       the caller's command history
//	GET  /, /ping, /healthz  liveness and readiness
//	GET  /debug/config       which settings are present, never their values
//	GET  /metrics            Prometheus exposition (when enabled)
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
