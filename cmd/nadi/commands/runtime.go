package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/nadi/internal/bridge"
	"github.com/dyluth/nadi/internal/config"
	"github.com/dyluth/nadi/internal/health"
	"github.com/dyluth/nadi/internal/nodes"
	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/dyluth/nadi/pkg/nadi/plugin"
)

// runtime is a Context built from a graph file, together with the resources
// it owns: the metrics registry and, when configured, the Redis client.
type runtime struct {
	cfg      *config.GraphConfig
	graph    *nadi.Context
	registry *prometheus.Registry
	rdb      *redis.Client
	bridge   *bridge.Bridge
	logger   *log.Logger
}

// catalog returns every abstract node a graph file can instantiate: the
// built-ins, the Redis bridge nodes when redis is configured, and plugins.
// rdb may be nil when the nodes are only inspected.
func catalog(cfg *config.GraphConfig, rdb *redis.Client) ([]nadi.AbstractNode, *bridge.Bridge, error) {
	abstracts := nodes.Builtins()

	var b *bridge.Bridge
	if cfg.Redis != nil {
		var err error
		b, err = bridge.New(rdb, cfg.Name)
		if err != nil {
			return nil, nil, err
		}
		abstracts = append(abstracts, b.Publisher(), b.Subscriber())
	}

	for _, path := range cfg.Plugins {
		an, err := plugin.Open(path)
		if err != nil {
			return nil, nil, err
		}
		abstracts = append(abstracts, an)
	}
	return abstracts, b, nil
}

// newRuntime creates the Context and registers the catalog. Nodes are not
// created until apply.
func newRuntime(cfg *config.GraphConfig, logger *log.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	rt.registry.MustRegister(collectors.NewGoCollector())

	if cfg.Redis != nil {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		rt.rdb = redis.NewClient(opts)
	}

	abstracts, b, err := catalog(cfg, rt.rdb)
	if err != nil {
		rt.closeRedis()
		return nil, err
	}
	rt.bridge = b

	rt.graph = nadi.New(nadi.Options{
		Name:    cfg.Name,
		Logger:  logger,
		Metrics: nadi.NewMetrics(rt.registry),
	})
	for _, an := range abstracts {
		if err := rt.graph.Register(an); err != nil {
			rt.close(context.Background())
			return nil, fmt.Errorf("failed to register abstract node: %w", err)
		}
	}
	return rt, nil
}

// ping checks Redis when the bridge is configured.
func (rt *runtime) ping(ctx context.Context) error {
	if rt.bridge == nil {
		return nil
	}
	return rt.bridge.Ping(ctx)
}

// apply instantiates the configured nodes and connections.
func (rt *runtime) apply() error {
	return rt.cfg.Apply(rt.graph)
}

// healthServer builds the health and metrics server for this runtime.
func (rt *runtime) healthServer() *health.Server {
	opts := health.Options{
		Addr:     rt.cfg.HTTP.Addr,
		Gatherer: rt.registry,
		Logger:   rt.logger,
		Nodes:    func() int { return len(rt.graph.Nodes()) },
	}
	if rt.bridge != nil {
		opts.Redis = rt.bridge
	}
	return health.NewServer(opts)
}

// close shuts the Context down and then releases the Redis client.
func (rt *runtime) close(ctx context.Context) error {
	var err error
	if rt.graph != nil {
		err = rt.graph.Close(ctx)
	}
	rt.closeRedis()
	return err
}

func (rt *runtime) closeRedis() {
	if rt.rdb != nil {
		rt.rdb.Close()
	}
}
