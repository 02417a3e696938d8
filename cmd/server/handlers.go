package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketproxy/internal/cache"
	"marketproxy/internal/profile"
	"marketproxy/internal/quote"
)

// narrow views of the services, so handler tests can use small fakes

type batchProcessor interface {
	ProcessBatch(ctx context.Context, reqs []quote.Request) ([]quote.Result, []quote.Error)
}

type dividendLister interface {
	History(ctx context.Context, symbol, rng string) ([]quote.DividendRow, error)
}

type profileFetcher interface {
	Fetch(ctx context.Context, handle string) profile.Profile
}

type statsSource interface {
	Stats() cache.Stats
}

type priceRequest struct {
	Symbol         string  `json:"symbol"`
	Type           string  `json:"type"`
	TweetTimestamp *string `json:"tweetTimestamp"`
}

type batchRequest struct {
	Requests []priceRequest `json:"requests"`
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Price  float64 `json:"price"`
	AsOf   string  `json:"asof"`
}

type priceError struct {
	Symbol  string `json:"symbol"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type batchResponse struct {
	Data   []priceResponse `json:"data"`
	Errors []priceError    `json:"errors"`
}

func handleHealth(stats statsSource, apiConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"provider":       "eodhd",
			"api_configured": apiConfigured,
			"cache":          stats.Stats(),
		})
	}
}

func handleBatchQuotes(svc batchProcessor, maxRequests int, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body batchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if len(body.Requests) > maxRequests {
			http.Error(w, fmt.Sprintf("too many requests (max %d)", maxRequests), http.StatusBadRequest)
			return
		}

		reqs := make([]quote.Request, 0, len(body.Requests))
		var preErrors []priceError
		for _, pr := range body.Requests {
			var ts *time.Time
			if pr.TweetTimestamp != nil && *pr.TweetTimestamp != "" {
				parsed, err := time.Parse(time.RFC3339, *pr.TweetTimestamp)
				if err != nil {
					preErrors = append(preErrors, priceError{
						Symbol:  pr.Symbol,
						Type:    pr.Type,
						Message: fmt.Sprintf("invalid tweetTimestamp: %s", *pr.TweetTimestamp),
					})
					continue
				}
				ts = &parsed
			}
			reqs = append(reqs, quote.Request{Symbol: pr.Symbol, Kind: quote.Kind(pr.Type), TweetTimestamp: ts})
		}

		// once accepted, the batch runs to completion even if the client
		// disconnects; the cached results serve the retry
		results, errs := svc.ProcessBatch(context.WithoutCancel(r.Context()), reqs)

		resp := batchResponse{Data: make([]priceResponse, 0, len(results)), Errors: preErrors}
		if resp.Errors == nil {
			resp.Errors = make([]priceError, 0, len(errs))
		}
		for _, res := range results {
			resp.Data = append(resp.Data, priceResponse{
				Symbol: res.Symbol,
				Type:   string(res.Kind),
				Price:  res.Price.InexactFloat64(),
				AsOf:   res.AsOf,
			})
		}
		for _, e := range errs {
			resp.Errors = append(resp.Errors, priceError{Symbol: e.Symbol, Type: string(e.Kind), Message: e.Message})
		}
		if len(resp.Data)+len(resp.Errors) != len(body.Requests) {
			log.Error("batch output count mismatch",
				"inputs", len(body.Requests), "data", len(resp.Data), "errors", len(resp.Errors))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDividends(svc dividendLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
		if sym == "" {
			http.Error(w, "missing symbol query param", http.StatusBadRequest)
			return
		}
		rows, err := svc.History(r.Context(), sym, r.URL.Query().Get("range"))
		if err != nil {
			if errors.Is(err, quote.ErrBadRange) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if rows == nil {
			rows = []quote.DividendRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleProfile(f profileFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := strings.TrimSpace(r.PathValue("handle"))
		if handle == "" || handle == "@" {
			http.Error(w, "missing handle", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, f.Fetch(r.Context(), handle))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
