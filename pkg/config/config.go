// Package config centralizes the gateway's environment-variable driven
// configuration into one place, instead of the teacher's pattern of
// reading os.Getenv calls scattered across each examples/*-server main.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting cmd/gateway needs to
// wire up the pipeline driver, upstream clients, and admin surface.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string

	// UpstreamURL is the base URL of the single upstream provider the
	// gateway forwards every transaction to. A gateway deployment sits in
	// front of one provider; clients may speak either wire format, and
	// pkg/upstream.Client converts to UpstreamFormat as needed.
	UpstreamURL string

	// UpstreamFormat is the wire format the upstream provider itself
	// speaks: "openai" or "anthropic".
	UpstreamFormat string

	// UpstreamAPIKey authenticates the gateway's own calls to the
	// upstream provider.
	UpstreamAPIKey string

	// UpstreamModel is passed through to pkg/upstreamhttp for request
	// logging/labeling; the model named in each inbound request is what
	// is actually forwarded.
	UpstreamModel string

	// AdminToken gates every /admin/* route. Required; the gateway
	// refuses to start without one, since an admin surface with no auth
	// would let any caller swap the active policy.
	AdminToken string

	// EventStoreURL, when set, points at the durable out-of-band event
	// store (e.g. a Postgres DSN). Left empty, the gateway falls back to
	// the in-process pkg/observability/memstore reference store.
	EventStoreURL string

	// MaxRequestBodyBytes bounds the size of an inbound request body
	// before ingress even attempts to parse it.
	MaxRequestBodyBytes int64

	// CredentialValidTTL and CredentialInvalidTTL tune pkg/authcache.
	CredentialValidTTL   time.Duration
	CredentialInvalidTTL time.Duration

	// StreamKeepaliveInterval is loaded from
	// LUTHIEN_STREAM_KEEPALIVE_INTERVAL but nothing reads it: the driver
	// runs no keepalive ticker, and a keepalive frame is written only when
	// a policy hook calls policy.Context.Keepalive.
	StreamKeepaliveInterval time.Duration

	// JudgeRatePerSecond and JudgeBurst configure the token-bucket
	// limiter bounding calls to the judge LLM (pkg/judgeclient).
	JudgeRatePerSecond float64
	JudgeBurst         int

	// OTLPEndpoint, when set, makes cmd/gateway build an OTLP HTTP span
	// exporter and enables tracing in the pipeline driver instead of the
	// no-op tracer.
	OTLPEndpoint string
}

const (
	defaultAddr                    = ":8080"
	defaultMaxRequestBodyBytes     = 2 << 20 // 2 MiB
	defaultCredentialValidTTL      = 5 * time.Minute
	defaultCredentialInvalidTTL    = 30 * time.Second
	defaultStreamKeepaliveInterval = 15 * time.Second
	defaultJudgeRatePerSecond      = 5.0
	defaultJudgeBurst              = 10
)

// Load reads the gateway's configuration from the environment. It fails
// fast with log.Fatal on a missing required variable, matching the
// teacher's examples/*-server mains, which call log.Fatal directly in
// main rather than propagating a config error up through layers that
// can't usefully recover from it either.
func Load() Config {
	cfg := Config{
		Addr:                    getenvDefault("LUTHIEN_ADDR", defaultAddr),
		UpstreamURL:             requireEnv("LUTHIEN_UPSTREAM_URL"),
		UpstreamFormat:          getenvDefault("LUTHIEN_UPSTREAM_FORMAT", "openai"),
		UpstreamAPIKey:          requireEnv("LUTHIEN_UPSTREAM_API_KEY"),
		UpstreamModel:           os.Getenv("LUTHIEN_UPSTREAM_MODEL"),
		AdminToken:              requireEnv("LUTHIEN_ADMIN_TOKEN"),
		EventStoreURL:           os.Getenv("LUTHIEN_EVENT_STORE_URL"),
		MaxRequestBodyBytes:     getenvInt64Default("LUTHIEN_MAX_REQUEST_BODY_BYTES", defaultMaxRequestBodyBytes),
		CredentialValidTTL:      getenvDurationDefault("LUTHIEN_CREDENTIAL_VALID_TTL", defaultCredentialValidTTL),
		CredentialInvalidTTL:    getenvDurationDefault("LUTHIEN_CREDENTIAL_INVALID_TTL", defaultCredentialInvalidTTL),
		StreamKeepaliveInterval: getenvDurationDefault("LUTHIEN_STREAM_KEEPALIVE_INTERVAL", defaultStreamKeepaliveInterval),
		JudgeRatePerSecond:      getenvFloatDefault("LUTHIEN_JUDGE_RATE_PER_SECOND", defaultJudgeRatePerSecond),
		JudgeBurst:              int(getenvInt64Default("LUTHIEN_JUDGE_BURST", defaultJudgeBurst)),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	return cfg
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("config: required environment variable %s is not set", key)
	}
	return v
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("config: %s must be an integer: %v", key, err)
	}
	return n
}

func getenvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("config: %s must be a number: %v", key, err)
	}
	return f
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("config: %s must be an integer number of seconds: %v", key, err)
	}
	return time.Duration(secs) * time.Second
}

// String redacts credentials so a config can be logged safely at boot.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Addr:%s UpstreamURL:%s UpstreamFormat:%s EventStoreURL:%s MaxRequestBodyBytes:%d OTLPEndpoint:%s}",
		c.Addr, c.UpstreamURL, c.UpstreamFormat, c.EventStoreURL, c.MaxRequestBodyBytes, c.OTLPEndpoint,
	)
}
