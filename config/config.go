package config

import (
	"fmt"
	"time"
)

// Runtime holds every environment input a publisher/consumer process
// reads. It is built once at process startup by LoadRuntime and then
// handed by value/pointer to the components that need it; nothing in
// this module re-reads the environment after LoadRuntime returns.
type Runtime struct {
	// AMQP
	Project   string
	Service   string
	AMQPHost  string
	AMQPPort  int
	AMQPUser  string
	AMQPPass  string
	AMQPVhost string

	// Outbox/inbox database
	DBHost   string
	DBPort   int
	DBName   string
	DBUser   string
	DBPass   string
	DBSchema string

	// Event trace
	TraceSchema string

	// Metrics
	StatsdEnabled   bool
	StatsdHost      string
	StatsdPort      int
	StatsdNamespace string
	AppEnv          string

	// Tuning
	OutageSleepSeconds    int
	ConnectionMaxJobs     int
	InboxLockStaleSeconds int
	PodName               string
}

// LoadRuntime validates and assembles the required env set for a process
// that runs both the publisher and consumer pipelines (the common case for
// a nano-service). Services that only publish or only consume may still
// call this — unused fields are simply not read downstream.
func LoadRuntime() (*Runtime, error) {
	Load()

	project, err := Required("AMQP_PROJECT")
	if err != nil {
		return nil, err
	}
	service, err := Required("AMQP_MICROSERVICE_NAME")
	if err != nil {
		return nil, err
	}
	host, err := Required("AMQP_HOST")
	if err != nil {
		return nil, err
	}
	user, err := Required("AMQP_USER")
	if err != nil {
		return nil, err
	}
	pass, err := Required("AMQP_PASS")
	if err != nil {
		return nil, err
	}
	vhost, err := Required("AMQP_VHOST")
	if err != nil {
		return nil, err
	}

	dbHost, err := Required("DB_BOX_HOST")
	if err != nil {
		return nil, err
	}
	dbName, err := Required("DB_BOX_NAME")
	if err != nil {
		return nil, err
	}
	dbUser, err := Required("DB_BOX_USER")
	if err != nil {
		return nil, err
	}
	dbPass, err := Required("DB_BOX_PASS")
	if err != nil {
		return nil, err
	}
	dbSchema, err := Required("DB_BOX_SCHEMA")
	if err != nil {
		return nil, err
	}

	podName := GetString("POD_NAME", defaultPodName())

	return &Runtime{
		Project:   project,
		Service:   service,
		AMQPHost:  host,
		AMQPPort:  GetInt("AMQP_PORT", 5672),
		AMQPUser:  user,
		AMQPPass:  pass,
		AMQPVhost: vhost,

		DBHost:   dbHost,
		DBPort:   GetInt("DB_BOX_PORT", 5432),
		DBName:   dbName,
		DBUser:   dbUser,
		DBPass:   dbPass,
		DBSchema: dbSchema,

		TraceSchema: GetString("DB_TRACE_SCHEMA", "pg2event"),

		StatsdEnabled:   GetBool("STATSD_ENABLED", false),
		StatsdHost:      GetString("STATSD_HOST", "127.0.0.1"),
		StatsdPort:      GetInt("STATSD_PORT", 8125),
		StatsdNamespace: GetString("STATSD_NAMESPACE", ""),
		AppEnv:          GetString("APP_ENV", "production"),

		OutageSleepSeconds:    GetInt("OUTAGE_SLEEP_SECONDS", 5),
		ConnectionMaxJobs:     GetInt("CONNECTION_MAX_JOBS", 0),
		InboxLockStaleSeconds: GetInt("INBOX_LOCK_STALE_THRESHOLD", 300),
		PodName:               podName,
	}, nil
}

// InboxLockStaleThreshold is the configured stale-lock window as a Duration.
func (r *Runtime) InboxLockStaleThreshold() time.Duration {
	return time.Duration(r.InboxLockStaleSeconds) * time.Second
}

// OutageSleep is the configured circuit-breaker sleep as a Duration.
func (r *Runtime) OutageSleep() time.Duration {
	return time.Duration(r.OutageSleepSeconds) * time.Second
}

// AMQPURL assembles the broker URL amqp091-go dials.
func (r *Runtime) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", r.AMQPUser, r.AMQPPass, r.AMQPHost, r.AMQPPort, r.AMQPVhost)
}

// PostgresDSN assembles the outbox/inbox database connection string.
func (r *Runtime) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", r.DBUser, r.DBPass, r.DBHost, r.DBPort, r.DBName)
}
