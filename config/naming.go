package config

import (
	"fmt"
	"os"
)

// Namespace derives "{project}.{path}" — the single naming function every
// broker resource name is built from.
func Namespace(project, path string) string {
	return fmt.Sprintf("%s.%s", project, path)
}

// MainQueue returns the service's main queue name, namespace(service).
func (r *Runtime) MainQueue() string {
	return Namespace(r.Project, r.Service)
}

// FailedQueue returns the service's failed-queue name,
// namespace(service) + ".failed".
func (r *Runtime) FailedQueue() string {
	return r.MainQueue() + ".failed"
}

// BusExchange returns the central topic exchange, namespace("bus").
func (r *Runtime) BusExchange() string {
	return Namespace(r.Project, "bus")
}

// DelayExchange returns the service's own delayed-retry exchange. It
// intentionally shares its string with MainQueue: they are two distinct
// broker resources wired together by a self-binding in topology.Ensure,
// not the same resource. ExchangeName/QueueName in amqpx keep that
// distinction at the type level so call sites cannot conflate them.
func (r *Runtime) DelayExchange() string {
	return r.MainQueue()
}

// AppID returns the namespaced publisher identity stamped on every
// envelope this process emits.
func (r *Runtime) AppID() string {
	return Namespace(r.Project, r.Service)
}

func defaultPodName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
