package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// All counters are exported as a single metric with an `event` label, plus
// any gauges supplied by the caller (evaluated on every scrape).
func PrometheusHandler(m *Metrics, gauges map[string]func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintln(w, "# HELP aero_ws_file_relay_events_total Internal event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE aero_ws_file_relay_events_total counter")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "aero_ws_file_relay_events_total{event=\"%s\"} %d\n", labelEscaper.Replace(k), snap[k])
		}

		if len(gauges) == 0 {
			return
		}
		names := make([]string, 0, len(gauges))
		for name := range gauges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			metric := "aero_ws_file_relay_" + name
			_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", metric)
			_, _ = fmt.Fprintf(w, "%s %d\n", metric, gauges[name]())
		}
	})
}
