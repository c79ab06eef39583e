package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasDefaults(t *testing.T) {
	e := New()
	assert.NotEmpty(t, e.MessageID())
	assert.Equal(t, "", e.Type())
	assert.Equal(t, StatusUnknown, e.Body().Status.Code)
	assert.Empty(t, e.TraceChain())
	assert.NotNil(t, e.Body().Payload)
	assert.NotNil(t, e.Body().Meta)
}

func TestSetTypeOnlyOnce(t *testing.T) {
	e := New()
	require.NoError(t, e.SetType("order.created"))
	err := e.SetType("order.updated")
	assert.Error(t, err)
	assert.Equal(t, "order.created", e.Type())
}

func TestAppendTraceOrdersChain(t *testing.T) {
	e := New()
	e.AppendTrace("parent-1")
	e.AppendTrace("parent-2")
	assert.Equal(t, []string{"parent-1", "parent-2"}, e.TraceChain())
}

func TestMergeMetaOverwritesOnCollision(t *testing.T) {
	e := New()
	e.MergeMeta(map[string]any{"tenant": "a", "env": "prod"})
	e.MergeMeta(map[string]any{"tenant": "b"})
	assert.Equal(t, "b", e.Body().Meta["tenant"])
	assert.Equal(t, "prod", e.Body().Meta["env"])
}

func TestRetryCountDefaultsToZero(t *testing.T) {
	e := New()
	assert.Equal(t, 0, e.RetryCount())
	e.SetHeader("x-retry-count", 3)
	assert.Equal(t, 3, e.RetryCount())
}

func TestMarshalBodyRoundTrip(t *testing.T) {
	e := New()
	e.SetPayload(map[string]any{"order_id": "abc123"})
	e.MergeMeta(map[string]any{"tenant": "acme"})
	e.SetStatus(StatusSuccess, map[string]any{"rows": float64(1)})
	e.AppendTrace("root")

	raw, err := e.MarshalBody()
	require.NoError(t, err)

	got, err := FromWire("msg-1", "order.created", "project.service", nil, raw)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Body().Payload["order_id"])
	assert.Equal(t, "acme", got.Body().Meta["tenant"])
	assert.Equal(t, StatusSuccess, got.Body().Status.Code)
	assert.Equal(t, []string{"root"}, got.TraceChain())
}

func TestFromWireDefaultsMissingKeys(t *testing.T) {
	e, err := FromWire("msg-2", "order.created", "project.service", nil, []byte(`{"payload":{"a":1}}`))
	require.NoError(t, err)
	assert.NotNil(t, e.Body().Meta)
	assert.Equal(t, StatusUnknown, e.Body().Status.Code)
	assert.NotNil(t, e.Body().System.TraceID)
}

func TestFromWireRejectsInvalidJSON(t *testing.T) {
	_, err := FromWire("msg-3", "order.created", "project.service", nil, []byte(`not json`))
	assert.Error(t, err)
}
