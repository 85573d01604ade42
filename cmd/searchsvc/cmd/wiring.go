package cmd

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aman-cerp/shopsearch/internal/adaptive"
	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/baseline"
	"github.com/aman-cerp/shopsearch/internal/cache"
	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/embedding"
	"github.com/aman-cerp/shopsearch/internal/intent"
	"github.com/aman-cerp/shopsearch/internal/orchestrator"
	"github.com/aman-cerp/shopsearch/internal/ratelimit"
	"github.com/aman-cerp/shopsearch/internal/retention"
	"github.com/aman-cerp/shopsearch/internal/vectorstore"
)

// components holds every wired piece the serving and offline-job
// commands are built from. Close releases every owned resource in the
// reverse order it was acquired.
type components struct {
	cfg            *config.Config
	log            *slog.Logger
	embedder       *embedding.CachedClient
	gateway        vectorstore.Gateway
	resultCache    *cache.Cache
	inbound        *ratelimit.Inbound
	adaptiveEngine *adaptive.Engine
	classifier     *intent.Classifier
	analyticsStore *analytics.Store
	recorder       *analytics.Recorder
	baselineStore  *baseline.Store
	baselineJob    *baseline.Job
	baselineSched  *baseline.Scheduler
	retentionMgr   *retention.Manager
	retentionSched *retention.Scheduler
	orchestrator   *orchestrator.Orchestrator
}

// dbPathFor derives a sibling SQLite file path for a named store next to
// the configured base database path, so the three stores (products,
// analytics, baselines) live side by side without a separate config
// field for each.
func dbPathFor(base, name string) string {
	dir := filepath.Dir(base)
	return filepath.Join(dir, name)
}

// buildComponents wires every component the search service needs from
// cfg, in dependency order: stores first, then the pieces that read and
// write through them, then the orchestrator that ties search together.
func buildComponents(cfg *config.Config, log *slog.Logger) (*components, error) {
	if log == nil {
		log = slog.Default()
	}

	gateway, err := vectorstore.NewGateway(dbPathFor(cfg.Server.DBPath, "products.db"), cfg.Embedding.Dim)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewFromConfig(cfg.Embedding)
	if err != nil {
		_ = gateway.Close()
		return nil, err
	}

	analyticsStore, err := analytics.NewStore(dbPathFor(cfg.Server.DBPath, "analytics.db"))
	if err != nil {
		_ = gateway.Close()
		_ = embedder.Close()
		return nil, err
	}

	baselineStore, err := baseline.NewStore(dbPathFor(cfg.Server.DBPath, "baseline.db"))
	if err != nil {
		_ = gateway.Close()
		_ = embedder.Close()
		_ = analyticsStore.Close()
		return nil, err
	}

	resultCache := cache.New(cache.TTLs{
		SemanticSearch: cfg.Cache.TTLSemantic,
		FuzzySearch:    cfg.Cache.TTLFuzzy,
		Popular:        cfg.Cache.TTLAggregates,
		Facets:         cfg.Cache.TTLFacets,
	})
	inbound := ratelimit.NewInbound(cfg.Rate.InboundPerWindow, secondsToDuration(cfg.Rate.InboundWindowSeconds))
	adaptiveEngine := adaptive.New(adaptive.DefaultStrategies(), cfg.Adaptive)
	classifier := intent.New()
	recorder := analytics.NewRecorder(analyticsStore, cfg.Analytics)

	baselineJob := baseline.NewJob(analyticsStore, baselineStore, cfg.Baseline)
	baselineSched := baseline.NewScheduler(baselineJob, cfg.Baseline, analyticsStore.DistinctStoreScopes, log)

	retentionMgr := retention.NewManager(log)
	for _, p := range retention.BuildPolicies(analyticsStore, baselineStore, cfg.Retention) {
		retentionMgr.Register(p)
	}
	retentionSched := retention.NewScheduler(retentionMgr, cfg.Retention.Interval)

	orch := orchestrator.New(embedder, gateway, resultCache, inbound, adaptiveEngine, classifier, recorder, cfg.Search, log)

	return &components{
		cfg:            cfg,
		log:            log,
		embedder:       embedder,
		gateway:        gateway,
		resultCache:    resultCache,
		inbound:        inbound,
		adaptiveEngine: adaptiveEngine,
		classifier:     classifier,
		analyticsStore: analyticsStore,
		recorder:       recorder,
		baselineStore:  baselineStore,
		baselineJob:    baselineJob,
		baselineSched:  baselineSched,
		retentionMgr:   retentionMgr,
		retentionSched: retentionSched,
		orchestrator:   orch,
	}, nil
}

// Close releases every resource buildComponents acquired. Safe to call
// once; errors from individual components are logged rather than
// aggregated, since shutdown should make a best effort on all of them.
func (c *components) Close() {
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			c.log.Warn("analytics recorder close failed", "error", err)
		}
	}
	if c.baselineStore != nil {
		if err := c.baselineStore.Close(); err != nil {
			c.log.Warn("baseline store close failed", "error", err)
		}
	}
	if c.analyticsStore != nil {
		if err := c.analyticsStore.Close(); err != nil {
			c.log.Warn("analytics store close failed", "error", err)
		}
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			c.log.Warn("embedding client close failed", "error", err)
		}
	}
	if c.gateway != nil {
		if err := c.gateway.Close(); err != nil {
			c.log.Warn("vector store gateway close failed", "error", err)
		}
	}
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
