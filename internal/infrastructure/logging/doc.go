// Package logging provides structured logging for Lumina Bridge.
//
// It wraps log/slog so every record carries the service name and build
// version. JSON is the default format; "text" is friendlier during
// development.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log bearer tokens, authorisation codes or broker passwords.
package logging
