// Package pricegate decides whether market conditions allow a job to run.
package pricegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// ErrNoPrice is returned when the price service has no update for the feed
var ErrNoPrice = errors.New("no price available")

// Gate is a boolean price check consulted before executing a job
type Gate interface {
	Validate(ctx context.Context, job models.Job) (bool, error)
}

// Quote is a single Pyth price update
type Quote struct {
	Price       *big.Int
	Conf        *big.Int
	Expo        int32
	PublishTime time.Time
}

// Config holds the Pyth gate settings
type Config struct {
	APIURL           string
	FeedID           string
	MaxAge           time.Duration
	MaxConfidenceBps uint64
	CacheTTL         time.Duration
}

// PythGate validates the configured feed against the Pyth Hermes API
type PythGate struct {
	cfg        Config
	cache      *PriceCache
	httpClient *http.Client
	logger     logger.Logger
	now        func() time.Time
}

var _ Gate = (*PythGate)(nil)

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// NewPythGate creates a price gate for a single Pyth feed
func NewPythGate(cfg Config, log logger.Logger) *PythGate {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.FeedID = strings.TrimPrefix(strings.ToLower(cfg.FeedID), "0x")
	return &PythGate{
		cfg:   cfg,
		cache: NewPriceCache(cfg.CacheTTL),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log,
		now:    time.Now,
	}
}

// Validate implements Gate. It returns false for stale, non-positive or too uncertain prices
// and an error when no price could be obtained.
func (g *PythGate) Validate(ctx context.Context, job models.Job) (bool, error) {
	quote, err := g.quote(ctx)
	if err != nil {
		return false, err
	}

	if quote.Price.Sign() <= 0 {
		g.logger.DebugWithJob(job.ID, "Price %s is not positive", quote.Price)
		return false, nil
	}

	age := g.now().Sub(quote.PublishTime)
	if g.cfg.MaxAge > 0 && age > g.cfg.MaxAge {
		g.logger.DebugWithJob(job.ID, "Price is stale: published %s ago (max %s)", age.Round(time.Second), g.cfg.MaxAge)
		return false, nil
	}

	if g.cfg.MaxConfidenceBps > 0 {
		bps := ConfidenceBps(quote)
		if bps.Cmp(new(big.Int).SetUint64(g.cfg.MaxConfidenceBps)) > 0 {
			g.logger.DebugWithJob(job.ID, "Price confidence %s bps exceeds %d bps", bps, g.cfg.MaxConfidenceBps)
			return false, nil
		}
	}

	return true, nil
}

// ConfidenceBps returns conf/price in basis points, rounded down
func ConfidenceBps(q Quote) *big.Int {
	if q.Price == nil || q.Price.Sign() <= 0 || q.Conf == nil {
		return big.NewInt(0)
	}
	bps := new(big.Int).Mul(q.Conf, big.NewInt(10_000))
	return bps.Quo(bps, q.Price)
}

func (g *PythGate) quote(ctx context.Context) (Quote, error) {
	if q, ok := g.cache.Get(g.cfg.FeedID); ok {
		return q, nil
	}

	q, err := g.fetch(ctx)
	if err != nil {
		return Quote{}, err
	}
	g.cache.Set(g.cfg.FeedID, q)
	return q, nil
}

// fetch reads the latest parsed update for the feed from Hermes
func (g *PythGate) fetch(ctx context.Context) (Quote, error) {
	endpoint := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s&parsed=true", g.cfg.APIURL, url.QueryEscape(g.cfg.FeedID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create price request: %v", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			g.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read price response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result hermesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Quote{}, fmt.Errorf("failed to decode price response: %v", err)
	}

	for _, update := range result.Parsed {
		if strings.TrimPrefix(strings.ToLower(update.ID), "0x") != g.cfg.FeedID {
			continue
		}
		price, ok := new(big.Int).SetString(update.Price.Price, 10)
		if !ok {
			return Quote{}, fmt.Errorf("invalid price %q", update.Price.Price)
		}
		conf, ok := new(big.Int).SetString(update.Price.Conf, 10)
		if !ok {
			return Quote{}, fmt.Errorf("invalid confidence %q", update.Price.Conf)
		}
		return Quote{
			Price:       price,
			Conf:        conf,
			Expo:        update.Price.Expo,
			PublishTime: time.Unix(update.Price.PublishTime, 0),
		}, nil
	}
	return Quote{}, fmt.Errorf("%w for feed %s", ErrNoPrice, g.cfg.FeedID)
}
