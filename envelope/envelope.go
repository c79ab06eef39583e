// Package envelope defines the wire message every publisher emits and
// every consumer receives: a four-key JSON body (payload/meta/status/
// system) plus the AMQP-visible message_id/type/app_id properties and the
// x-delay/x-retry-count headers used for backoff.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusCode is the closed set of caller-set outcome codes.
type StatusCode string

const (
	StatusUnknown StatusCode = "unknown"
	StatusSuccess StatusCode = "success"
	StatusError   StatusCode = "error"
)

const createdAtLayout = "2006-01-02 15:04:05.000"

// Status is the caller-set outcome section of the body.
type Status struct {
	Code StatusCode     `json:"code"`
	Data map[string]any `json:"data"`
}

// System carries runtime metadata: debug flag, the terminal consumer
// error (set only when a message is routed to the failed queue), the
// creation timestamp, and the trace chain.
type System struct {
	IsDebug       bool     `json:"is_debug"`
	ConsumerError *string  `json:"consumer_error"`
	CreatedAt     string   `json:"created_at"`
	TraceID       []string `json:"trace_id"`
}

// Body is the fixed four-key JSON document carried as the AMQP message
// body. Unmarshaling defaults any of the four keys that are missing
// rather than failing, since producers outside this module's control may
// omit empty sections.
type Body struct {
	Payload map[string]any `json:"payload"`
	Meta    map[string]any `json:"meta"`
	Status  Status         `json:"status"`
	System  System         `json:"system"`
}

// Envelope is the in-process representation of a message: the body plus
// the AMQP-level properties and headers. MessageID is fixed at
// construction and never mutated; Type is set at most once, before
// publish.
type Envelope struct {
	messageID string
	typ       string
	typSet    bool
	appID     string
	headers   map[string]any
	body      Body
}

// New builds an envelope with a fresh UUIDv7 message id and the default
// default body shape. UUIDv7 is time-sortable, which is what makes
// it the recommended id here — monotonic ids keep outbox/inbox
// indexes append-mostly.
func New() *Envelope {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system's random source is broken;
		// falling back to a random v4 keeps the envelope usable instead of
		// panicking the caller's publish path.
		id = uuid.New()
	}
	return &Envelope{
		messageID: id.String(),
		headers:   map[string]any{},
		body: Body{
			Payload: map[string]any{},
			Meta:    map[string]any{},
			Status:  Status{Code: StatusUnknown, Data: map[string]any{}},
			System: System{
				CreatedAt: time.Now().UTC().Format(createdAtLayout),
				TraceID:   []string{},
			},
		},
	}
}

// FromWire reconstructs an envelope from the properties and raw body a
// consumer received. It does not validate; callers run validate.Delivery
// over the raw delivery first.
func FromWire(messageID, typ, appID string, headers map[string]any, rawBody []byte) (*Envelope, error) {
	body, err := parseBody(rawBody)
	if err != nil {
		return nil, fmt.Errorf("envelope: parse body: %w", err)
	}
	if headers == nil {
		headers = map[string]any{}
	}
	return &Envelope{
		messageID: messageID,
		typ:       typ,
		typSet:    typ != "",
		appID:     appID,
		headers:   headers,
		body:      body,
	}, nil
}

func parseBody(raw []byte) (Body, error) {
	body := Body{
		Payload: map[string]any{},
		Meta:    map[string]any{},
		Status:  Status{Code: StatusUnknown, Data: map[string]any{}},
		System:  System{TraceID: []string{}},
	}
	if len(raw) == 0 {
		return body, nil
	}

	var raws struct {
		Payload json.RawMessage `json:"payload"`
		Meta    json.RawMessage `json:"meta"`
		Status  json.RawMessage `json:"status"`
		System  json.RawMessage `json:"system"`
	}
	if err := json.Unmarshal(raw, &raws); err != nil {
		return Body{}, err
	}
	if len(raws.Payload) > 0 {
		if err := json.Unmarshal(raws.Payload, &body.Payload); err != nil {
			return Body{}, err
		}
	}
	if len(raws.Meta) > 0 {
		if err := json.Unmarshal(raws.Meta, &body.Meta); err != nil {
			return Body{}, err
		}
	}
	if len(raws.Status) > 0 {
		if err := json.Unmarshal(raws.Status, &body.Status); err != nil {
			return Body{}, err
		}
		if body.Status.Data == nil {
			body.Status.Data = map[string]any{}
		}
	}
	if len(raws.System) > 0 {
		if err := json.Unmarshal(raws.System, &body.System); err != nil {
			return Body{}, err
		}
		if body.System.TraceID == nil {
			body.System.TraceID = []string{}
		}
	}
	return body, nil
}

// MessageID returns the envelope's immutable id.
func (e *Envelope) MessageID() string { return e.messageID }

// Type returns the routing key this envelope carries, or "" if unset.
func (e *Envelope) Type() string { return e.typ }

// SetType sets the routing key once, before publish. Calling it a second
// time is a programmer error and
// returns an error rather than silently overwriting.
func (e *Envelope) SetType(t string) error {
	if e.typSet {
		return fmt.Errorf("envelope: type already set to %q", e.typ)
	}
	e.typ = t
	e.typSet = true
	return nil
}

// AppID returns the namespaced publisher identity.
func (e *Envelope) AppID() string { return e.appID }

// SetAppID stamps the publishing service's namespaced identity.
func (e *Envelope) SetAppID(appID string) { e.appID = appID }

// Headers returns the AMQP application headers (x-delay, x-retry-count).
func (e *Envelope) Headers() map[string]any { return e.headers }

// SetHeader sets a single application header.
func (e *Envelope) SetHeader(key string, value any) { e.headers[key] = value }

// RetryCount reads the x-retry-count header, defaulting to 0 when absent.
func (e *Envelope) RetryCount() int {
	v, ok := e.headers["x-retry-count"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Body returns a pointer to the mutable four-key body.
func (e *Envelope) Body() *Body { return &e.body }

// SetPayload replaces the payload map.
func (e *Envelope) SetPayload(p map[string]any) {
	if p == nil {
		p = map[string]any{}
	}
	e.body.Payload = p
}

// MergeMeta merges the given map into the existing meta map, overwriting
// on key collision — this is how accumulated meta (tenant/product/env)
// is layered onto an envelope before publish.
func (e *Envelope) MergeMeta(m map[string]any) {
	if e.body.Meta == nil {
		e.body.Meta = map[string]any{}
	}
	for k, v := range m {
		e.body.Meta[k] = v
	}
}

// SetStatus sets the caller-declared outcome.
func (e *Envelope) SetStatus(code StatusCode, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	e.body.Status = Status{Code: code, Data: data}
}

// IsDebug reports the system.is_debug flag.
func (e *Envelope) IsDebug() bool { return e.body.System.IsDebug }

// SetDebug sets the system.is_debug flag.
func (e *Envelope) SetDebug(debug bool) { e.body.System.IsDebug = debug }

// SetConsumerError records the terminal failure reason before an envelope
// is routed to the failed queue.
func (e *Envelope) SetConsumerError(msg string) {
	e.body.System.ConsumerError = &msg
}

// TraceChain returns the ordered list of ancestor message ids.
func (e *Envelope) TraceChain() []string {
	return append([]string(nil), e.body.System.TraceID...)
}

// AppendTrace extends the trace chain by one hop, appending parentID.
// Called when a new envelope is derived causally from an existing one —
// the chain records the causal path, not just the immediate parent.
func (e *Envelope) AppendTrace(parentID string) {
	e.body.System.TraceID = append(e.body.System.TraceID, parentID)
}

// MarshalBody serializes the body to the fixed four-key JSON shape.
func (e *Envelope) MarshalBody() ([]byte, error) {
	if e.body.Payload == nil {
		e.body.Payload = map[string]any{}
	}
	if e.body.Meta == nil {
		e.body.Meta = map[string]any{}
	}
	if e.body.Status.Data == nil {
		e.body.Status.Data = map[string]any{}
	}
	if e.body.System.TraceID == nil {
		e.body.System.TraceID = []string{}
	}
	return json.Marshal(e.body)
}
