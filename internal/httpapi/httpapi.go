// Package httpapi exposes the search orchestrator over plain net/http:
// a single search endpoint and a couple of operator-facing introspection
// endpoints, wired with bare handlers and no routing framework, the same
// shape antflydb-antfly-go's healthserver package uses for its liveness
// and metrics probes.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-cerp/shopsearch/internal/cache"
	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
	"github.com/aman-cerp/shopsearch/internal/orchestrator"
)

// ReadHeaderTimeout bounds how long the server waits for a client to
// finish sending request headers, closing the connection if it stalls.
const ReadHeaderTimeout = 10 * time.Second

// searchRequest is the wire shape accepted by POST /v1/search. It mirrors
// orchestrator.Request but omits CallerFingerprint, which the handler
// derives from the request (see callerFingerprint) rather than reading
// it from the JSON body.
type searchRequest struct {
	StoreScope          string  `json:"store_scope"`
	Query               string  `json:"query"`
	PriceMinCents       *int64  `json:"price_min_cents,omitempty"`
	PriceMaxCents       *int64  `json:"price_max_cents,omitempty"`
	Status              string  `json:"status,omitempty"`
	InStock             *bool   `json:"in_stock,omitempty"`
	Page                int     `json:"page"`
	Limit               int     `json:"limit"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	SearchType          string  `json:"search_type,omitempty"`
	ImageURL            string  `json:"image_url,omitempty"`
	SessionID           string  `json:"session_id,omitempty"`
}

// cacheStatsResponse is the wire shape returned by GET /internal/cache/stats.
type cacheStatsResponse struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Stampedes  int64 `json:"stampedes"`
	EntryCount int   `json:"entry_count"`
}

// NewHandler builds the serving process's HTTP surface: a search
// endpoint, a liveness probe, and a cache-introspection endpoint for the
// "cache stats" CLI command. The orchestrator and cache are the only
// dependencies this layer needs; everything else lives behind them.
func NewHandler(orch *orchestrator.Orchestrator, resultCache *cache.Cache, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/v1/search", handleSearch(orch, log))
	mux.HandleFunc("/v1/popular", handlePopularQueries(orch, log))
	mux.HandleFunc("/internal/cache/stats", handleCacheStats(resultCache))
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleSearch(orch *orchestrator.Orchestrator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var body searchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, searcherrors.InvalidInput(searcherrors.ErrCodeInvalidFilter, "malformed request body", err))
			return
		}

		req := orchestrator.Request{
			StoreScope:          body.StoreScope,
			Query:               body.Query,
			PriceMinCents:       body.PriceMinCents,
			PriceMaxCents:       body.PriceMaxCents,
			Status:              body.Status,
			InStock:             body.InStock,
			Page:                body.Page,
			Limit:               body.Limit,
			SimilarityThreshold: body.SimilarityThreshold,
			SearchType:          body.SearchType,
			ImageURL:            body.ImageURL,
			SessionID:           body.SessionID,
			CallerFingerprint:   callerFingerprint(r),
		}

		resp, err := orch.Search(r.Context(), req)
		if err != nil {
			log.Warn("search request failed", "error", err, "store_scope", req.StoreScope)
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func handlePopularQueries(orch *orchestrator.Orchestrator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		storeScope := r.URL.Query().Get("store_scope")
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				limit = parsed
			}
		}

		queries, err := orch.PopularQueries(r.Context(), storeScope, limit)
		if err != nil {
			log.Warn("popular queries request failed", "error", err, "store_scope", storeScope)
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(queries)
	}
}

func handleCacheStats(resultCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		stats := resultCache.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cacheStatsResponse{
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			Evictions:  stats.Evictions,
			Stampedes:  stats.Stampedes,
			EntryCount: stats.EntryCount,
		})
	}
}

// callerFingerprint derives the inbound rate limiter's identity for a
// request: the X-Forwarded-For header when present, otherwise the host
// part of the connection's remote address.
func callerFingerprint(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError maps a SearchError's Kind to an HTTP status and writes its
// JSON representation, falling back to 500 for anything unrecognized.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(searcherrors.GetKind(err)))
	body, marshalErr := searcherrors.FormatJSON(err)
	if marshalErr != nil {
		return
	}
	_, _ = w.Write(body)
}

func statusForKind(kind searcherrors.Kind) int {
	switch kind {
	case searcherrors.KindInvalidInput:
		return http.StatusBadRequest
	case searcherrors.KindThrottled:
		return http.StatusTooManyRequests
	case searcherrors.KindUpstreamUnavailable, searcherrors.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case searcherrors.KindQueryTimeout:
		return http.StatusGatewayTimeout
	case searcherrors.KindCancelled:
		return 499
	case searcherrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
