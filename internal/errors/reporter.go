package errors

import "sync/atomic"

// TelemetryReporter receives errors worth forwarding to an error tracker
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

type reporterHolder struct {
	r TelemetryReporter
}

var telemetryReporter atomic.Pointer[reporterHolder]

// reportableCategories are the categories that indicate a server-side fault.
// Validation, not-found and authorization failures are caller errors and are never reported.
var reportableCategories = map[ErrorCategory]bool{
	CategoryConfiguration:   true,
	CategoryExternalService: true,
	CategoryModelInit:       true,
	CategoryModelLoad:       true,
	CategoryLabelLoad:       true,
	CategoryDatabase:        true,
	CategorySystem:          true,
}

// SetTelemetryReporter installs r as the process-wide reporter. nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	if r == nil {
		telemetryReporter.Store(nil)
		return
	}
	telemetryReporter.Store(&reporterHolder{r: r})
}

func reportToTelemetry(ee *EnhancedError) {
	h := telemetryReporter.Load()
	if h == nil || !h.r.IsEnabled() || !reportableCategories[ee.Category] {
		return
	}
	h.r.ReportError(ee)
	ee.MarkReported()
}
