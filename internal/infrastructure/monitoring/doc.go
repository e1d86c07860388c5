/*
Package monitoring provides metrics collection for dwim.

# Overview

Metrics are registered on a caller-supplied prometheus.Registerer so tests
and the binary each get an isolated registry. Every recording method is safe
to call on a nil *Metrics, which is how components run without metrics.

# Metrics

- dwim_sessions_started_total: shell processes spawned
- dwim_session_restarts_total{reason}: restarts by cause (interrupt, stream_closed, session_closed)
- dwim_session_active: 1 while a shell process is alive in the session slot
- dwim_requests_total{kind,outcome}: executor requests (execute, directory, status)
- dwim_request_duration_seconds{kind}: executor request latency
- dwim_translations_total{status}: translator calls
- dwim_interrupts_total: cancel signals handled by the supervisor
- dwim_debug_http_requests_total{method,path,status}: debug server traffic

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	timer := monitoring.NewTimer(metrics, "execute")
	// ... run the request ...
	timer.Stop("success")

# Metrics Endpoint

The debug server exposes the registry:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
