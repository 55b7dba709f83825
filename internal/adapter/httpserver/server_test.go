package httpserver

import (
	"testing"

	"github.com/pscheid92/tilecast/internal/platform/config"
	"github.com/pscheid92/tilecast/internal/relay"
)

const ponPayload = `{"type":"recommendations","data":{"recommendations":[` +
	`{"action":"2m","confidence":0.2},{"action":"pon","confidence":0.9,"consumed":["5p","5p"]}],` +
	`"tehai":["1m","2m","3m","5p","5p"],"last_kawa_tile":"5p"}}`

type testOption func(*Options, *config.Relay)

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(o *Options, _ *config.Relay) { o.HealthChecks = checks }
}

func withRelay(r relayService) testOption {
	return func(o *Options, _ *config.Relay) { o.Relay = r }
}

func withIngestLimit(rate float64, burst int) testOption {
	return func(_ *Options, cfg *config.Relay) {
		cfg.IngestRate = rate
		cfg.IngestBurst = burst
	}
}

func withStreamLimit(perIP int) testOption {
	return func(_ *Options, cfg *config.Relay) { cfg.MaxStreamsPerIP = perIP }
}

func testConfig() *config.Relay {
	return &config.Relay{
		AppEnv:             "test",
		Port:               "0",
		Role:               config.RolePrimary,
		IngestRate:         1000,
		IngestBurst:        1000,
		MaxSubscribers:     100,
		MaxStreamsPerIP:    100,
		StreamConnectRate:  1000,
		StreamConnectBurst: 1000,
		AllowedOrigins:     []string{"*"},
	}
}

// newTestServer wires a Server around a fresh in-memory relay.
func newTestServer(t *testing.T, opts ...testOption) (*Server, *relay.Relay) {
	t.Helper()

	r := relay.New(relay.NewStore())
	t.Cleanup(r.Stop)

	cfg := testConfig()
	o := Options{Relay: r}
	for _, opt := range opts {
		opt(&o, cfg)
	}

	srv := NewServer(cfg, o)
	t.Cleanup(srv.stopStreams)
	return srv, r
}
