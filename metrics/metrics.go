// Package metrics implements the fire-and-forget StatsD-over-UDP sink:
// increment/decrement/gauge/timing/set plus a named timer helper.
// Nothing here ever blocks a caller or surfaces an error — a dropped UDP
// packet is indistinguishable from a metric nobody looked at, by
// contract.
package metrics

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Tags is a bounded-cardinality label set. Callers must only pass values
// from closed sets (event names, service names, enum values) — never
// UUIDs or other per-entity identifiers.
type Tags map[string]string

// Sink is a StatsD-over-UDP client. The zero value is not usable; build
// one with New.
type Sink struct {
	enabled bool
	conn    net.Conn
	prefix  string

	defaultTags Tags

	mu     sync.Mutex
	timers map[string]time.Time
}

// Options configures a Sink.
type Options struct {
	Enabled     bool
	Host        string
	Port        int
	Namespace   string
	ServiceName string
	Env         string
}

// New dials the configured UDP endpoint if enabled. Dialing UDP never
// blocks on the network (no handshake), so this never fails against an
// unreachable host — only against a malformed address.
func New(opts Options) (*Sink, error) {
	s := &Sink{
		enabled: opts.Enabled,
		prefix:  opts.Namespace,
		defaultTags: Tags{
			"nano_service_name": opts.ServiceName,
			"env":               opts.Env,
		},
		timers: make(map[string]time.Time),
	}
	if !opts.Enabled {
		return s, nil
	}

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: dial udp %s: %w", addr, err)
	}
	s.conn = conn
	return s, nil
}

// isEnabled gates all emissions — when disabled, no network work occurs.
func (s *Sink) isEnabled() bool {
	return s != nil && s.enabled && s.conn != nil
}

func (s *Sink) send(line string) {
	if !s.isEnabled() {
		return
	}
	// Best-effort, non-blocking: UDP writes don't block on a dead peer,
	// and a write error has nowhere useful to go in a fire-and-forget sink.
	_, _ = s.conn.Write([]byte(line))
}

func (s *Sink) metricName(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "." + name
}

func (s *Sink) formatTags(tags Tags) string {
	merged := make(Tags, len(s.defaultTags)+len(tags))
	for k, v := range s.defaultTags {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range tags {
		if v != "" {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return ""
	}
	parts := make([]string, 0, len(merged))
	for k, v := range merged {
		parts = append(parts, fmt.Sprintf("%s:%s", k, v))
	}
	return "|#" + strings.Join(parts, ",")
}

// Increment emits a counter delta (default 1) at the given sample rate.
func (s *Sink) Increment(name string, delta int, sampleRate float64, tags Tags) {
	s.countLine(name, delta, sampleRate, tags)
}

// Decrement emits a negative counter delta.
func (s *Sink) Decrement(name string, delta int, sampleRate float64, tags Tags) {
	s.countLine(name, -delta, sampleRate, tags)
}

func (s *Sink) countLine(name string, delta int, sampleRate float64, tags Tags) {
	if !s.isEnabled() {
		return
	}
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	line := fmt.Sprintf("%s:%d|c", s.metricName(name), delta)
	if sampleRate < 1.0 {
		line += fmt.Sprintf("|@%.2f", sampleRate)
	}
	s.send(line + s.formatTags(tags))
}

// Gauge emits an absolute value.
func (s *Sink) Gauge(name string, value float64, tags Tags) {
	s.send(fmt.Sprintf("%s:%g|g%s", s.metricName(name), value, s.formatTags(tags)))
}

// Timing emits a duration in milliseconds.
func (s *Sink) Timing(name string, ms float64, tags Tags) {
	s.send(fmt.Sprintf("%s:%g|ms%s", s.metricName(name), ms, s.formatTags(tags)))
}

// Set emits a unique-value-per-flush-interval metric.
func (s *Sink) Set(name string, value string, tags Tags) {
	s.send(fmt.Sprintf("%s:%s|s%s", s.metricName(name), value, s.formatTags(tags)))
}

// StartTimer begins a named timer. Safe to call even when the sink is
// disabled; EndTimer then reports the elapsed time without emitting.
func (s *Sink) StartTimer(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[key] = time.Now()
}

// EndTimer returns the elapsed milliseconds since StartTimer(key) and
// clears the timer, or nil if no timer with that key was started.
func (s *Sink) EndTimer(key string) *float64 {
	s.mu.Lock()
	start, ok := s.timers[key]
	if ok {
		delete(s.timers, key)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	ms := float64(time.Since(start).Microseconds()) / 1000.0
	return &ms
}

// Close releases the underlying UDP socket, if any.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
