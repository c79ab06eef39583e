package metrics

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func readPacket(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestDisabledSinkNeverWrites(t *testing.T) {
	conn, port := listenUDP(t)
	sink, err := New(Options{Enabled: false, Host: "127.0.0.1", Port: port, ServiceName: "svc", Env: "test"})
	require.NoError(t, err)

	sink.Increment("widgets.processed", 1, 1.0, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	buf := make([]byte, 64)
	_, _, err = conn.ReadFromUDP(buf)
	assert.Error(t, err, "disabled sink must not put any packet on the wire")
}

func TestEnabledSinkEmitsIncrementWithDefaultTags(t *testing.T) {
	conn, port := listenUDP(t)
	sink, err := New(Options{Enabled: true, Host: "127.0.0.1", Port: port, Namespace: "nano", ServiceName: "order-svc", Env: "prod"})
	require.NoError(t, err)
	defer sink.Close()

	sink.Increment("rmq_publish_total", 1, 1.0, nil)

	packet := readPacket(t, conn)
	assert.True(t, strings.HasPrefix(packet, "nano.rmq_publish_total:1|c"))
	assert.Contains(t, packet, "nano_service_name:order-svc")
	assert.Contains(t, packet, "env:prod")
}

func TestEnabledSinkEmitsGaugeAndTiming(t *testing.T) {
	conn, port := listenUDP(t)
	sink, err := New(Options{Enabled: true, Host: "127.0.0.1", Port: port, ServiceName: "svc", Env: "test"})
	require.NoError(t, err)
	defer sink.Close()

	sink.Gauge("queue_depth", 42, Tags{"event_name": "order.created"})
	packet := readPacket(t, conn)
	assert.Contains(t, packet, "queue_depth:42|g")
	assert.Contains(t, packet, "event_name:order.created")

	sink.Timing("rmq_publish_duration_ms", 12.5, nil)
	packet = readPacket(t, conn)
	assert.Contains(t, packet, "rmq_publish_duration_ms:12.5|ms")
}

func TestStartEndTimerReportsElapsed(t *testing.T) {
	sink, err := New(Options{Enabled: false})
	require.NoError(t, err)

	sink.StartTimer("delivery-1")
	time.Sleep(5 * time.Millisecond)
	ms := sink.EndTimer("delivery-1")
	require.NotNil(t, ms)
	assert.Greater(t, *ms, 0.0)
}

func TestEndTimerWithoutStartReturnsNil(t *testing.T) {
	sink, err := New(Options{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, sink.EndTimer("never-started"))
}
