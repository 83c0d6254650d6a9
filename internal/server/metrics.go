package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// metrics renders a hand-rolled Prometheus text exposition over the
// engine's atomic counters.
func (s *Server) metrics(c *gin.Context) {
	snap := s.stats.Snapshot()

	c.Header("Content-Type", "text/plain; version=0.0.4")
	w := c.Writer
	c.Status(http.StatusOK)

	fmt.Fprintf(w, "# HELP llmsim_requests_total Total simulated requests dispatched.\n")
	fmt.Fprintf(w, "# TYPE llmsim_requests_total counter\n")
	fmt.Fprintf(w, "llmsim_requests_total %d\n", snap.TotalRequests)

	fmt.Fprintf(w, "# HELP llmsim_errors_total Total requests that ended in an error.\n")
	fmt.Fprintf(w, "# TYPE llmsim_errors_total counter\n")
	fmt.Fprintf(w, "llmsim_errors_total %d\n", snap.TotalErrors)

	fmt.Fprintf(w, "# HELP llmsim_input_tokens_total Total prompt tokens accounted.\n")
	fmt.Fprintf(w, "# TYPE llmsim_input_tokens_total counter\n")
	fmt.Fprintf(w, "llmsim_input_tokens_total %d\n", snap.TotalInputTokens)

	fmt.Fprintf(w, "# HELP llmsim_output_tokens_total Total completion tokens accounted.\n")
	fmt.Fprintf(w, "# TYPE llmsim_output_tokens_total counter\n")
	fmt.Fprintf(w, "llmsim_output_tokens_total %d\n", snap.TotalOutputTokens)

	fmt.Fprintf(w, "# HELP llmsim_request_latency_ms Request latency in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE llmsim_request_latency_ms summary\n")
	fmt.Fprintf(w, "llmsim_request_latency_ms{quantile=\"0.5\"} %f\n", snap.Latency.P50Ms)
	fmt.Fprintf(w, "llmsim_request_latency_ms{quantile=\"0.9\"} %f\n", snap.Latency.P90Ms)
	fmt.Fprintf(w, "llmsim_request_latency_ms{quantile=\"0.95\"} %f\n", snap.Latency.P95Ms)
	fmt.Fprintf(w, "llmsim_request_latency_ms{quantile=\"0.99\"} %f\n", snap.Latency.P99Ms)
	fmt.Fprintf(w, "llmsim_request_latency_ms_sum %f\n", snap.Latency.MeanMs*float64(snap.Latency.Count))
	fmt.Fprintf(w, "llmsim_request_latency_ms_count %d\n", snap.Latency.Count)

	fmt.Fprintf(w, "# HELP llmsim_in_flight_requests Requests currently holding an admission slot.\n")
	fmt.Fprintf(w, "# TYPE llmsim_in_flight_requests gauge\n")
	fmt.Fprintf(w, "llmsim_in_flight_requests %d\n", s.admission.InFlight())
}
