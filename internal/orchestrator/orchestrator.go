// Package orchestrator implements the search orchestrator (C5): the
// single serving-path operation that validates a request, admits it
// past the inbound limiter, resolves it against the cache with a
// single-flight guard, falls through embedding/vector/fuzzy search,
// hands the result set to the adaptive filter engine, builds facets,
// and emits analytics — in that strict order for any one request.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/shopsearch/internal/adaptive"
	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/cache"
	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/embedding"
	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
	"github.com/aman-cerp/shopsearch/internal/facets"
	"github.com/aman-cerp/shopsearch/internal/intent"
	"github.com/aman-cerp/shopsearch/internal/types"
	"github.com/aman-cerp/shopsearch/internal/vectorstore"
)

// Request is the full set of inputs to one search call.
type Request struct {
	StoreScope          string
	Query               string
	PriceMinCents       *int64
	PriceMaxCents       *int64
	Status              string
	InStock             *bool
	Page                int
	Limit               int
	SimilarityThreshold float64
	SearchType          string // "semantic", "fuzzy", "image"
	ImageURL            string
	CallerFingerprint   string
	SessionID           string
}

// Item is one product as presented in a search response.
type Item struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	PriceCents int64   `json:"price_cents"`
	Currency   string  `json:"currency"`
	ImageURL   string  `json:"image_url,omitempty"`
	Similarity float32 `json:"similarity"`
	SearchType string  `json:"search_type"`
}

// Metadata reports how a response was produced, for clients and
// analytics that want to distinguish a clean hit from a degraded one.
type Metadata struct {
	CacheHit          bool     `json:"cache_hit"`
	FallbackUsed      bool     `json:"fallback_used"`
	AppliedStrategies []string `json:"applied_strategies,omitempty"`
	PrimaryIntent     string   `json:"primary_intent,omitempty"`
	Difficulty        string   `json:"difficulty,omitempty"`
}

// Response is the full result of one search call.
type Response struct {
	Items         []Item              `json:"items"`
	Page          int                 `json:"page"`
	Limit         int                 `json:"limit"`
	TotalCount    int                 `json:"total_count"`
	Facets        facets.Result       `json:"facets"`
	Filters       vectorstore.Filters `json:"filters"`
	Metadata      Metadata            `json:"metadata"`
	LatencyMillis int64               `json:"latency_millis"`
}

const (
	maxQueryLen    = 256
	defaultPageLim = 20
	searchMargin   = 10
)

// Orchestrator wires C1 (embedding), C2 (vector store), C3 (cache),
// C4 (inbound limiter), C6 (analytics), C7 (adaptive filters), C8
// (intent classification), and C11 (facets) into the single search
// operation.
type Orchestrator struct {
	embedder   embedding.Client
	gateway    vectorstore.Gateway
	cache      *cache.Cache
	inbound    inboundLimiter
	adaptive   *adaptive.Engine
	classifier *intent.Classifier
	recorder   *analytics.Recorder
	cfg        config.SearchConfig
	facetDims  []config.FacetDimension
	buckets    []config.PriceBucket
	log        *slog.Logger
	nowFunc    func() time.Time
}

// inboundLimiter is the narrow slice of ratelimit.Inbound the
// orchestrator depends on, so tests can supply a fake without a real
// sliding-window clock.
type inboundLimiter interface {
	Check(fingerprint string, now time.Time) error
}

// New builds an Orchestrator. log may be nil, in which case the
// default logger is used.
func New(
	embedder embedding.Client,
	gateway vectorstore.Gateway,
	resultCache *cache.Cache,
	inbound inboundLimiter,
	adaptiveEngine *adaptive.Engine,
	classifier *intent.Classifier,
	recorder *analytics.Recorder,
	cfg config.SearchConfig,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		embedder:   embedder,
		gateway:    gateway,
		cache:      resultCache,
		inbound:    inbound,
		adaptive:   adaptiveEngine,
		classifier: classifier,
		recorder:   recorder,
		cfg:        cfg,
		facetDims:  cfg.FacetDimensions,
		buckets:    cfg.PriceBuckets,
		log:        log,
		nowFunc:    time.Now,
	}
}

// Search runs the full thirteen-step serving pipeline for req.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	start := o.nowFunc()

	// Step 1: validate.
	filters, err := o.validate(&req)
	if err != nil {
		return nil, err
	}

	// Step 2: admit.
	if err := o.inbound.Check(req.CallerFingerprint, start); err != nil {
		return nil, err
	}

	// Step 3: compute fingerprint.
	fp := buildFingerprint(req, filters)
	ns := namespaceFor(req.SearchType)

	// Parallel fan-out: the cache lookup and C8 classification are
	// independent of each other, so run them concurrently rather than
	// paying their latency back to back.
	var (
		cachedPayload  []byte
		cacheHit       bool
		classification intent.Classification
	)
	var g errgroup.Group
	g.Go(func() error {
		if payload, ok := o.cache.Get(ns, fp.Hash); ok {
			cachedPayload = payload
			cacheHit = true
		}
		return nil
	})
	g.Go(func() error {
		classification = o.classifier.Classify(req.Query)
		return nil
	})
	_ = g.Wait() // neither goroutine returns an error; Wait only joins them

	priceRange := intent.ExtractPriceRange(req.Query)

	// Step 4: cache hit short-circuits everything else.
	if cacheHit {
		var resp Response
		if err := json.Unmarshal(cachedPayload, &resp); err == nil {
			resp.Metadata.CacheHit = true
			resp.Metadata.PrimaryIntent = string(classification.PrimaryIntent)
			resp.Metadata.Difficulty = string(classification.Difficulty)
			resp.LatencyMillis = o.nowFunc().Sub(start).Milliseconds()
			o.emitAnalytics(req, resp, classification, true)
			return &resp, nil
		}
		// A corrupt cache entry falls through to a fresh computation
		// rather than failing the request.
		o.log.Warn("cache payload failed to unmarshal, recomputing", "namespace", ns)
	}

	// Steps 5-11 run inside the single-flight fetch, detached from the
	// caller's context so a cancelled caller does not abort the fill
	// other waiters (and the cache) depend on.
	type fetchOutcome struct {
		payload []byte
		err     error
	}
	done := make(chan fetchOutcome, 1)
	go func() {
		fillCtx := context.WithoutCancel(ctx)
		payload, err := o.cache.GetOrFetch(ns, fp.Hash, func() ([]byte, error) {
			resp, ferr := o.computeResponse(fillCtx, req, filters, &priceRange)
			if ferr != nil {
				return nil, ferr
			}
			return json.Marshal(resp)
		})
		done <- fetchOutcome{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, searcherrors.Cancelled(searcherrors.ErrCodeCancelled, "search cancelled by caller", ctx.Err())
	case outcome := <-done:
		if outcome.err != nil {
			return nil, outcome.err
		}
		var resp Response
		if err := json.Unmarshal(outcome.payload, &resp); err != nil {
			return nil, searcherrors.IntegrityError(searcherrors.ErrCodeInternal, "search response failed to decode", err)
		}
		resp.Metadata.PrimaryIntent = string(classification.PrimaryIntent)
		resp.Metadata.Difficulty = string(classification.Difficulty)
		resp.LatencyMillis = o.nowFunc().Sub(start).Milliseconds()
		o.emitAnalytics(req, resp, classification, false)
		return &resp, nil
	}
}

// validate normalizes req in place and derives the vectorstore filter
// predicate, or rejects the request outright.
func (o *Orchestrator) validate(req *Request) (vectorstore.Filters, error) {
	req.Query = collapseWhitespace(strings.TrimSpace(req.Query))

	if req.SearchType == "" {
		req.SearchType = "semantic"
	}
	if req.SearchType != "image" {
		if req.Query == "" {
			return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeQueryEmpty, "query must not be empty", nil)
		}
		if len(req.Query) > maxQueryLen {
			return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeQueryTooLong, fmt.Sprintf("query exceeds %d characters", maxQueryLen), nil)
		}
	} else if req.ImageURL == "" {
		return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidImageInput, "image_url is required for image search", nil)
	}
	if hasControlRune(req.Query) {
		return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidFilter, "query contains control characters", nil)
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = defaultPageLim
	}
	maxPage := o.cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}
	if req.Limit > maxPage {
		return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidPage, fmt.Sprintf("limit exceeds maximum page size %d", maxPage), nil)
	}
	if req.SimilarityThreshold <= 0 {
		req.SimilarityThreshold = o.cfg.DefaultSimilarityThreshold
	}

	filters := vectorstore.Filters{
		StoreScope:    strings.ToLower(strings.TrimSpace(req.StoreScope)),
		PriceMinCents: req.PriceMinCents,
		PriceMaxCents: req.PriceMaxCents,
		Status:        strings.ToLower(strings.TrimSpace(req.Status)),
		InStock:       req.InStock,
	}
	if err := filters.Validate(); err != nil {
		return vectorstore.Filters{}, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidPriceRange, err.Error(), err)
	}
	return filters, nil
}

// computeResponse runs steps 6 through 11: embed, vector search,
// fuzzy fallback, adaptive post-processing, facet building, and
// response assembly. It performs no cache I/O of its own — the
// caller's GetOrFetch call owns the write-back.
func (o *Orchestrator) computeResponse(ctx context.Context, req Request, filters vectorstore.Filters, priceRange *intent.PriceRange) (*Response, error) {
	offset := (req.Page - 1) * req.Limit
	searchType := "semantic"
	fallbackUsed := false
	var scored []vectorstore.ScoredProduct
	var queryVector []float32

	if req.SearchType == "fuzzy" {
		searchType = "fuzzy"
	} else {
		var err error
		if req.SearchType == "image" {
			queryVector, err = o.embedder.EmbedImage(ctx, req.ImageURL)
		} else {
			queryVector, err = o.embedder.Embed(ctx, req.Query)
		}
		switch {
		case err == nil:
			scored, err = o.gateway.Search(ctx, queryVector, filters, req.Limit+searchMargin, offset, float32(req.SimilarityThreshold))
			if err != nil {
				return nil, err
			}
		case searcherrors.GetKind(err) == searcherrors.KindUpstreamUnavailable:
			fallbackUsed = true
		default:
			return nil, err
		}
	}

	// Step 8: fuzzy fallback when semantic search produced nothing.
	if len(scored) == 0 {
		searchType = "fuzzy"
		fuzzy, err := o.gateway.FuzzySearch(ctx, req.Query, filters, req.Limit+searchMargin, offset)
		if err != nil {
			return nil, err
		}
		scored = fuzzyToScored(fuzzy)
	}

	// Step 9: adaptive post-processing.
	requery := o.requerier(filters, req, queryVector)
	adapted := o.adaptive.Apply(ctx, scored, priceRange, requery)
	final := adapted.Results
	if len(final) > req.Limit {
		final = final[:req.Limit]
	}

	total, err := o.gateway.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	// Step 10: build facets over the final set, through the facets
	// cache-aside keyed by which products are in it rather than by the
	// search fingerprint, so two fingerprints that happen to settle on
	// the same final set (a relaxed threshold, a different page of the
	// same query) share one computed breakdown.
	products := make([]types.Product, len(final))
	for i, r := range final {
		products[i] = r.Product
	}
	facetResult, err := o.buildFacetsCached(filters.StoreScope, products)
	if err != nil {
		return nil, err
	}

	// Step 11: assemble response.
	items := make([]Item, len(final))
	for i, r := range final {
		items[i] = Item{
			ID:         r.Product.ID,
			Title:      r.Product.Title,
			PriceCents: r.Product.PriceCents,
			Currency:   r.Product.Currency,
			ImageURL:   r.Product.ImageURL,
			Similarity: r.Similarity,
			SearchType: searchType,
		}
	}

	return &Response{
		Items:      items,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalCount: total,
		Facets:     facetResult,
		Filters:    filters,
		Metadata: Metadata{
			FallbackUsed:      fallbackUsed,
			AppliedStrategies: adapted.AppliedStrategies,
		},
	}, nil
}

// requerier translates an adaptive.Amendment into a re-issued C2
// search, widening the price band and/or relaxing the similarity
// threshold as the selected strategy asks. DropFacets names have
// nothing to bind to in vectorstore.Filters (the gateway only
// predicates on store scope, price, status, and stock) and are
// accepted but ignored; strategies that name a facet to drop rely on
// their accompanying ThresholdDelta to actually broaden the result
// set instead.
func (o *Orchestrator) requerier(filters vectorstore.Filters, req Request, queryVector []float32) adaptive.Requerier {
	return func(ctx context.Context, amendment adaptive.Amendment) ([]vectorstore.ScoredProduct, error) {
		if queryVector == nil {
			return nil, fmt.Errorf("orchestrator: no query vector available to requery")
		}
		amended := filters
		if amendment.PriceToleranceDelta != 0 {
			amended.PriceMinCents, amended.PriceMaxCents = widenPriceRange(filters.PriceMinCents, filters.PriceMaxCents, amendment.PriceToleranceDelta)
		}
		threshold := float32(req.SimilarityThreshold) + float32(amendment.ThresholdDelta)
		if threshold < 0 {
			threshold = 0
		}
		return o.gateway.Search(ctx, queryVector, amended, req.Limit+searchMargin, 0, threshold)
	}
}

// emitAnalytics records the request's outcome asynchronously (step
// 13); the recorder's own buffer and writer pool own the I/O, so this
// call never blocks the caller.
func (o *Orchestrator) emitAnalytics(req Request, resp Response, classification intent.Classification, cacheHit bool) {
	if o.recorder == nil {
		return
	}
	var avgSimilarity float64
	var topCategory string
	for _, item := range resp.Items {
		avgSimilarity += float64(item.Similarity)
	}
	if len(resp.Items) > 0 {
		avgSimilarity /= float64(len(resp.Items))
	}
	best := 0
	for _, v := range resp.Facets.Dimensions["category"] {
		if v.Count > best {
			best = v.Count
			topCategory = v.Value
		}
	}

	strategies := append([]string{}, resp.Metadata.AppliedStrategies...)

	o.recorder.Record(types.AnalyticsEvent{
		SessionID:      req.SessionID,
		StoreScope:     req.StoreScope,
		QueryHash:      hashText(req.Query),
		QueryText:      req.Query,
		PrimaryIntent:  string(classification.PrimaryIntent),
		TopCategory:    topCategory,
		ResultCount:    len(resp.Items),
		AvgSimilarity:  avgSimilarity,
		StrategiesUsed: strategies,
		LatencyMillis:  resp.LatencyMillis,
		ClientIPHash:   req.CallerFingerprint,
		CacheHit:       cacheHit,
		Timestamp:      o.nowFunc(),
	})
}

// buildFacetsCached runs facets.Build behind the NamespaceFacets
// cache-aside (C3), keyed by store scope and the exact product set
// being faceted, since the breakdown is a pure function of that set.
func (o *Orchestrator) buildFacetsCached(storeScope string, products []types.Product) (facets.Result, error) {
	payload, err := o.cache.GetOrFetch(cache.NamespaceFacets, facetCacheKey(storeScope, products), func() ([]byte, error) {
		return json.Marshal(facets.Build(products, o.facetDims, o.buckets))
	})
	if err != nil {
		return facets.Result{}, err
	}
	var result facets.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return facets.Result{}, searcherrors.IntegrityError(searcherrors.ErrCodeInternal, "facets payload failed to decode", err)
	}
	return result, nil
}

// facetCacheKey hashes the store scope with the faceted product IDs
// sorted, so reordering (a different ranking of the same set) still
// lands on the same key while a different set does not.
func facetCacheKey(storeScope string, products []types.Product) string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString(storeScope)
	for _, id := range ids {
		b.WriteByte('\x00')
		b.WriteString(id)
	}
	return hashText(b.String())
}

// PopularQueries returns the most-searched normalized query texts for a
// store, through the NamespacePopular cache-aside (C3, spec.md §4.3):
// this aggregate changes far slower than any one search's results and
// is worth its own long TTL distinct from the search-result namespaces.
func (o *Orchestrator) PopularQueries(ctx context.Context, storeScope string, limit int) ([]types.PopularQuery, error) {
	storeScope = strings.ToLower(strings.TrimSpace(storeScope))
	key := storeScope + "\x00" + strconv.Itoa(limit)
	payload, err := o.cache.GetOrFetch(cache.NamespacePopular, key, func() ([]byte, error) {
		queries, ferr := o.recorder.PopularQueries(ctx, storeScope, limit)
		if ferr != nil {
			return nil, ferr
		}
		return json.Marshal(queries)
	})
	if err != nil {
		return nil, err
	}
	var out []types.PopularQuery
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, searcherrors.IntegrityError(searcherrors.ErrCodeInternal, "popular queries payload failed to decode", err)
	}
	return out, nil
}

func namespaceFor(searchType string) cache.Namespace {
	if searchType == "fuzzy" {
		return cache.NamespaceFuzzySearch
	}
	return cache.NamespaceSemanticSearch
}

// buildFingerprint derives the cache identity for req: the normalized
// query, its predicate filters, and the pagination/search-type
// parameters that change what a cache hit would actually serve.
func buildFingerprint(req Request, filters vectorstore.Filters) types.QueryFingerprint {
	normalized := strings.ToLower(req.Query)
	filterMap := map[string]string{
		"status":      filters.Status,
		"search_type": req.SearchType,
		"page":        fmt.Sprintf("%d", req.Page),
		"limit":       fmt.Sprintf("%d", req.Limit),
	}
	if filters.InStock != nil {
		filterMap["in_stock"] = fmt.Sprintf("%t", *filters.InStock)
	}

	fp := types.QueryFingerprint{
		StoreScope:     filters.StoreScope,
		NormalizedText: normalized,
		Filters:        filterMap,
		PriceMinCents:  filters.PriceMinCents,
		PriceMaxCents:  filters.PriceMaxCents,
	}
	fp.Hash = hashFingerprint(fp)
	return fp
}

func hashFingerprint(fp types.QueryFingerprint) string {
	keys := make([]string, 0, len(fp.Filters))
	for k := range fp.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fp.StoreScope)
	b.WriteByte('\x00')
	b.WriteString(fp.NormalizedText)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fp.Filters[k])
	}
	if fp.PriceMinCents != nil {
		fmt.Fprintf(&b, "\x00min=%d", *fp.PriceMinCents)
	}
	if fp.PriceMaxCents != nil {
		fmt.Fprintf(&b, "\x00max=%d", *fp.PriceMaxCents)
	}
	return hashText(b.String())
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasControlRune(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func fuzzyToScored(fuzzy []vectorstore.FuzzyProduct) []vectorstore.ScoredProduct {
	scored := make([]vectorstore.ScoredProduct, len(fuzzy))
	for i, f := range fuzzy {
		similarity := float32(f.MatchScore) / float32(f.MatchScore+1)
		scored[i] = vectorstore.ScoredProduct{Product: f.Product, Similarity: similarity}
	}
	return scored
}

// widenPriceRange relaxes a price band by a fraction of its width in
// the direction implied by delta's sign: negative lowers the floor,
// positive raises the ceiling. A nil bound that would need widening
// is left nil (unbounded already satisfies any widening).
func widenPriceRange(min, max *int64, delta float64) (*int64, *int64) {
	if min == nil && max == nil {
		return nil, nil
	}
	width := int64(1000) // default spread in cents when one bound is unset
	if min != nil && max != nil {
		width = *max - *min
	}
	adjust := int64(float64(width) * delta)

	newMin, newMax := min, max
	if delta < 0 && min != nil {
		v := *min + adjust // adjust is negative, lowers the floor
		if v < 0 {
			v = 0
		}
		newMin = &v
	}
	if delta > 0 && max != nil {
		v := *max + adjust
		newMax = &v
	}
	return newMin, newMax
}
