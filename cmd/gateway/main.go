// Command gateway boots the Luthien interposing HTTP gateway: it wires
// configuration, telemetry, the credential cache, the policy registry and
// its initial active descriptor, the upstream client, the pipeline
// driver, and the client-facing + admin gin routes, then serves until
// killed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/luthien/gateway/pkg/authcache"
	"github.com/luthien/gateway/pkg/config"
	"github.com/luthien/gateway/pkg/httpapi"
	"github.com/luthien/gateway/pkg/httpapi/admin"
	"github.com/luthien/gateway/pkg/judgeclient"
	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/observability/memstore"
	"github.com/luthien/gateway/pkg/pipeline"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/policy/judgepolicy"
	"github.com/luthien/gateway/pkg/policy/rulespolicy"
	"github.com/luthien/gateway/pkg/policyregistry"
	"github.com/luthien/gateway/pkg/schema"
	"github.com/luthien/gateway/pkg/telemetry"
	"github.com/luthien/gateway/pkg/upstream"
	"github.com/luthien/gateway/pkg/wire"
)

func main() {
	cfg := config.Load()
	log.Printf("luthien gateway starting: %s", cfg)

	shutdownTracing := setupTracing(cfg)
	defer shutdownTracing()

	eventStore := setupEventStore(cfg)
	emitter := observability.NewEmitter(eventStore, observability.DefaultBufferSize)
	defer emitter.Close()

	authCache := authcache.New(authcache.Config{
		ValidTTL:   cfg.CredentialValidTTL,
		InvalidTTL: cfg.CredentialInvalidTTL,
	})

	upstreamFormat := wire.Format(cfg.UpstreamFormat)
	if !upstreamFormat.Valid() {
		log.Fatalf("config: LUTHIEN_UPSTREAM_FORMAT must be %q or %q, got %q", wire.FormatOpenAI, wire.FormatAnthropic, cfg.UpstreamFormat)
	}
	upstreamClient := upstream.New(upstream.Config{
		BaseURL:        cfg.UpstreamURL,
		UpstreamFormat: upstreamFormat,
		APIKey:         cfg.UpstreamAPIKey,
		Model:          cfg.UpstreamModel,
		AuthCache:      authCache,
	})

	judge := judgeclient.New(judgeclient.Config{
		BaseURL:   cfg.UpstreamURL,
		APIKey:    cfg.UpstreamAPIKey,
		Model:     cfg.UpstreamModel,
		RateLimit: rate.Limit(cfg.JudgeRatePerSecond),
		Burst:     cfg.JudgeBurst,
	})

	registry := policyregistry.NewRegistry()
	registerBuiltinPolicies(registry, judge)

	active := policyregistry.NewActive(&policyregistry.Descriptor{
		ClassRef:  "noop",
		Policy:    policy.Noop{},
		EnabledBy: "boot",
		EnabledAt: time.Now(),
	})

	driver := pipeline.New(pipeline.Config{
		Upstream:  upstreamClient,
		Active:    active,
		Emitter:   emitter,
		Telemetry: telemetry.DefaultSettings().WithEnabled(cfg.OTLPEndpoint != ""),
	})

	router := httpapi.NewRouter(httpapi.Config{
		Driver:              driver,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		MountAdmin: func(group *gin.RouterGroup) {
			admin.Register(group, admin.Config{
				Active:     active,
				Registry:   registry,
				AuthCache:  authCache,
				AdminToken: cfg.AdminToken,
			})
		},
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: listen: %v", err)
		}
	}()

	waitForShutdown(srv)
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("gateway: graceful shutdown failed: %v", err)
		os.Exit(1)
	}
}

func setupTracing(cfg config.Config) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		log.Fatalf("telemetry: building OTLP exporter: %v", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry: tracer provider shutdown: %v", err)
		}
	}
}

func setupEventStore(cfg config.Config) observability.EventStore {
	if cfg.EventStoreURL == "" {
		log.Printf("no LUTHIEN_EVENT_STORE_URL set, using in-process reference event store")
		return memstore.New()
	}
	// A durable, externally-backed EventStore (e.g. Postgres) is an
	// interface-only collaborator per spec.md's scope: this binary ships
	// only the in-process reference implementation and falls back to it
	// even when an external URL is configured, since wiring a specific
	// database driver is out of scope here.
	log.Printf("LUTHIEN_EVENT_STORE_URL set but no external store driver is wired in this build; using in-process reference event store")
	return memstore.New()
}

func registerBuiltinPolicies(registry *policyregistry.Registry, judge *judgeclient.Client) {
	registry.RegisterClass("noop", func(map[string]interface{}) (policy.Policy, error) {
		return policy.Noop{}, nil
	}, nil)

	registry.RegisterClass("tool_call_judge", func(raw map[string]interface{}) (policy.Policy, error) {
		cfg := judgepolicy.DefaultConfig()
		if err := decodeInto(raw, &cfg); err != nil {
			return nil, err
		}
		return judgepolicy.New(judge, cfg), nil
	}, schema.NewJSONSchema(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"ProbabilityThreshold": map[string]interface{}{"type": "number"}},
	}))

	registry.RegisterClass("parallel_rules", func(raw map[string]interface{}) (policy.Policy, error) {
		cfg := rulespolicy.DefaultConfig(nil)
		if err := decodeInto(raw, &cfg); err != nil {
			return nil, err
		}
		return rulespolicy.New(judge, cfg), nil
	}, schema.NewJSONSchema(map[string]interface{}{
		"type":     "object",
		"required": []string{"Rules"},
	}))
}

// decodeInto re-marshals an admin-submitted config map into a typed
// policy Config struct. The registry already validated the map's shape
// against the class's declared schema before this runs.
func decodeInto(raw map[string]interface{}, target interface{}) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("admin: re-marshal policy config: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("admin: decode policy config: %w", err)
	}
	return nil
}
