// Package logx is classbot's logging layer: a value-type Logger over
// zerolog with a console writer, an optional JSON file and an optional
// rate-limited chat sink for operator alerts. Sinks are swapped at runtime
// by Service.Apply.
package logx
