// Package audit records device commands and discovery calls in the
// audit_logs table and lists them per owner.
package audit
