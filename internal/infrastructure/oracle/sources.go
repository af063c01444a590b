package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"agent-wallet.backend/internal/domain/entities"
)

// Source fetches a spot price for one asset.
type Source interface {
	Name() string
	FetchPrice(ctx context.Context, asset string) (*entities.PriceObservation, error)
}

// guardedSource wraps a Source with a per-source rate limiter, circuit
// breaker and request timeout, so one flapping price API fails fast and
// never starves the chain.
type guardedSource struct {
	inner   Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// Guard wraps src with the standard protections.
func Guard(src Source, rps float64, timeout time.Duration) Source {
	return &guardedSource{
		inner:   src,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    src.Name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		timeout: timeout,
	}
}

func (g *guardedSource) Name() string {
	return g.inner.Name()
}

func (g *guardedSource) FetchPrice(ctx context.Context, asset string) (*entities.PriceObservation, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.FetchPrice(fetchCtx, asset)
	})
	if err != nil {
		return nil, err
	}
	return result.(*entities.PriceObservation), nil
}

// DefaultSources builds the production source chain: CoinGecko first, Pyth
// as fallback, each behind Guard.
func DefaultSources(coingeckoURL, pythURL string, rps float64, timeout time.Duration) []Source {
	return []Source{
		Guard(NewCoinGeckoSource(coingeckoURL), rps, timeout),
		Guard(NewPythSource(pythURL), rps, timeout),
	}
}

var coingeckoIDs = map[string]string{
	"SOL": "solana",
	"ETH": "ethereum",
}

// CoinGeckoSource fetches from the public CoinGecko simple-price endpoint.
type CoinGeckoSource struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoSource creates the source. baseURL is overridable for tests.
func NewCoinGeckoSource(baseURL string) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &CoinGeckoSource{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) FetchPrice(ctx context.Context, asset string) (*entities.PriceObservation, error) {
	id, ok := coingeckoIDs[asset]
	if !ok {
		return nil, fmt.Errorf("coingecko: unmapped asset %q", asset)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	entry, ok := body[id]
	if !ok || entry.USD <= 0 {
		return nil, fmt.Errorf("coingecko: no usd price for %q", asset)
	}

	return &entities.PriceObservation{
		Asset:      asset,
		PriceUSD:   entry.USD,
		Source:     s.Name(),
		ObservedAt: time.Now(),
	}, nil
}

var pythFeedIDs = map[string]string{
	"SOL": "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	"ETH": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
}

// PythSource fetches from the Pyth Hermes latest-price endpoint.
type PythSource struct {
	baseURL string
	client  *http.Client
}

// NewPythSource creates the source. baseURL is overridable for tests.
func NewPythSource(baseURL string) *PythSource {
	if baseURL == "" {
		baseURL = "https://hermes.pyth.network"
	}
	return &PythSource{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (s *PythSource) Name() string { return "pyth" }

func (s *PythSource) FetchPrice(ctx context.Context, asset string) (*entities.PriceObservation, error) {
	feedID, ok := pythFeedIDs[asset]
	if !ok {
		return nil, fmt.Errorf("pyth: unmapped asset %q", asset)
	}

	url := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", s.baseURL, feedID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pyth: status %d", resp.StatusCode)
	}

	var body struct {
		Parsed []struct {
			Price struct {
				Price string `json:"price"`
				Expo  int    `json:"expo"`
			} `json:"price"`
		} `json:"parsed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Parsed) == 0 {
		return nil, fmt.Errorf("pyth: empty response for %q", asset)
	}

	price, err := pythPrice(body.Parsed[0].Price.Price, body.Parsed[0].Price.Expo)
	if err != nil {
		return nil, err
	}

	return &entities.PriceObservation{
		Asset:      asset,
		PriceUSD:   price,
		Source:     s.Name(),
		ObservedAt: time.Now(),
	}, nil
}

// pythPrice converts Pyth's mantissa/exponent form into a float price.
func pythPrice(mantissa string, expo int) (float64, error) {
	var m float64
	if _, err := fmt.Sscanf(mantissa, "%f", &m); err != nil {
		return 0, fmt.Errorf("pyth: bad mantissa %q", mantissa)
	}
	price := m
	for i := 0; i < -expo; i++ {
		price /= 10
	}
	for i := 0; i < expo; i++ {
		price *= 10
	}
	if price <= 0 {
		return 0, fmt.Errorf("pyth: non-positive price")
	}
	return price, nil
}
