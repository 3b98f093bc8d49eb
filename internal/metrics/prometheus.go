package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus renders a snapshot in the Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP graceai_uptime_seconds Time since the daemon started\n")
	sb.WriteString("# TYPE graceai_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "graceai_uptime_seconds %d\n\n", snap.UptimeSeconds)

	sb.WriteString("# HELP graceai_requests_total Requests by route\n")
	sb.WriteString("# TYPE graceai_requests_total counter\n")
	writeByRoute(&sb, "graceai_requests_total", snap.Requests)

	sb.WriteString("# HELP graceai_request_errors_total Error responses by route\n")
	sb.WriteString("# TYPE graceai_request_errors_total counter\n")
	writeByRoute(&sb, "graceai_request_errors_total", snap.Errors)

	sb.WriteString("# HELP graceai_request_duration_ms_total Cumulative request duration by route\n")
	sb.WriteString("# TYPE graceai_request_duration_ms_total counter\n")
	writeByRoute(&sb, "graceai_request_duration_ms_total", snap.DurationMS)

	sb.WriteString("# HELP graceai_requests_in_flight Requests currently being served\n")
	sb.WriteString("# TYPE graceai_requests_in_flight gauge\n")
	writeByRoute(&sb, "graceai_requests_in_flight", snap.InFlight)

	sb.WriteString("# HELP graceai_completions_total Completions served\n")
	sb.WriteString("# TYPE graceai_completions_total counter\n")
	fmt.Fprintf(&sb, "graceai_completions_total %d\n\n", snap.Completions)

	sb.WriteString("# HELP graceai_streamed_completions_total Completions served over SSE\n")
	sb.WriteString("# TYPE graceai_streamed_completions_total counter\n")
	fmt.Fprintf(&sb, "graceai_streamed_completions_total %d\n\n", snap.StreamedCompletions)

	sb.WriteString("# HELP graceai_prompt_tokens_total Prompt tokens consumed\n")
	sb.WriteString("# TYPE graceai_prompt_tokens_total counter\n")
	fmt.Fprintf(&sb, "graceai_prompt_tokens_total %d\n\n", snap.PromptTokens)

	sb.WriteString("# HELP graceai_completion_tokens_total Completion tokens generated\n")
	sb.WriteString("# TYPE graceai_completion_tokens_total counter\n")
	fmt.Fprintf(&sb, "graceai_completion_tokens_total %d\n\n", snap.CompletionTokens)

	sb.WriteString("# HELP graceai_backend_errors_total Generations that failed in the engine\n")
	sb.WriteString("# TYPE graceai_backend_errors_total counter\n")
	fmt.Fprintf(&sb, "graceai_backend_errors_total %d\n", snap.BackendErrors)

	return sb.String()
}

func writeByRoute(sb *strings.Builder, name string, values map[string]int64) {
	for _, route := range sortedKeys(values) {
		fmt.Fprintf(sb, "%s{route=%q} %d\n", name, route, values[route])
	}
	sb.WriteString("\n")
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
