// Package logx wraps zerolog behind a small structured-logging API with
// runtime-reconfigurable sinks (console, file).
//
// The zero value of Logger is a safe no-op, so components can hold a
// Logger field without nil checks.
package logx
