// Package metrics aggregates in-memory counters for HTTP traffic and CMS
// domain events and renders them in Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

type documentLabel struct {
	collection string
	action     string
}

// Recorder aggregates metrics for HTTP requests, document mutations, auth
// events, and session purges. It coordinates concurrent writers via a
// RWMutex.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	documentEvents  map[documentLabel]uint64
	authEvents      map[string]uint64
	sessionsPurged  uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		documentEvents:  make(map[documentLabel]uint64),
		authEvents:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by packages that do not
// require a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveDocument records a document mutation keyed by collection and action
// ("create", "update", "delete").
func (r *Recorder) ObserveDocument(collection, action string) {
	label := documentLabel{
		collection: normalizeName(collection),
		action:     normalizeName(action),
	}
	r.mu.Lock()
	r.documentEvents[label]++
	r.mu.Unlock()
}

// ObserveAuthEvent records an auth event by type, e.g. "signup",
// "login_success", "login_failure".
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// ObserveSessionPurge records the number of purge sweeps completed.
func (r *Recorder) ObserveSessionPurge() {
	r.mu.Lock()
	r.sessionsPurged++
	r.mu.Unlock()
}

// AuthEventCounts returns a copy of the auth counters for tests.
func (r *Recorder) AuthEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.authEvents))
	for k, v := range r.authEvents {
		out[k] = v
	}
	return out
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.documentEvents = make(map[documentLabel]uint64)
	r.authEvents = make(map[string]uint64)
	r.sessionsPurged = 0
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	documentLabels := r.sortedDocumentLabels()
	authEvents := r.sortedAuthEvents()

	fmt.Fprintln(w, "# HELP folio_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE folio_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "folio_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP folio_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE folio_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "folio_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP folio_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE folio_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "folio_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP folio_document_events_total Document mutations by collection and action")
	fmt.Fprintln(w, "# TYPE folio_document_events_total counter")
	for _, label := range documentLabels {
		count := r.documentEvents[label]
		fmt.Fprintf(w, "folio_document_events_total{collection=\"%s\",action=\"%s\"} %d\n", label.collection, label.action, count)
	}

	fmt.Fprintln(w, "# HELP folio_auth_events_total Auth events by type")
	fmt.Fprintln(w, "# TYPE folio_auth_events_total counter")
	for _, event := range authEvents {
		count := r.authEvents[event]
		fmt.Fprintf(w, "folio_auth_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP folio_session_purges_total Completed expired-session purge sweeps")
	fmt.Fprintln(w, "# TYPE folio_session_purges_total counter")
	fmt.Fprintf(w, "folio_session_purges_total %d\n", r.sessionsPurged)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedDocumentLabels() []documentLabel {
	labels := make([]documentLabel, 0, len(r.documentEvents))
	for label := range r.documentEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].collection != labels[j].collection {
			return labels[i].collection < labels[j].collection
		}
		return labels[i].action < labels[j].action
	})
	return labels
}

func (r *Recorder) sortedAuthEvents() []string {
	events := make([]string, 0, len(r.authEvents))
	for event := range r.authEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveDocument records a document mutation on the default recorder.
func ObserveDocument(collection, action string) {
	defaultRecorder.ObserveDocument(collection, action)
}

// ObserveAuthEvent records an auth event on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// ObserveSessionPurge records a purge sweep on the default recorder.
func ObserveSessionPurge() {
	defaultRecorder.ObserveSessionPurge()
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
