// Package lifecycle holds process lifecycle vocabulary shared by cmd and app.
package lifecycle

// StopReason explains why the app is shutting down. It is logged on stop.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)
