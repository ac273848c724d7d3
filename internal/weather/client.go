package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kevindtbd/overplanned-sub003/internal/slug"
)

// Provider timing.
const (
	RequestTimeout = 8 * time.Second
	CacheTTL       = time.Hour
)

// Cache is the payload cache the client reads through. Implementations
// degrade to a miss on any error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// nopCache satisfies Cache for cache-less deployments.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool)            { return nil, false }
func (nopCache) Set(context.Context, string, []byte, time.Duration) {}

// Report is the distilled current-weather reading for a city.
type Report struct {
	City          string    `json:"city"`
	TempCelsius   float64   `json:"temp_celsius"`
	ConditionCode int       `json:"condition_code"`
	Condition     Condition `json:"condition"`
	Description   string    `json:"description,omitempty"`
}

// providerPayload is the provider's wire shape; only the fields the core
// reads. The raw bytes are what gets cached, verbatim.
type providerPayload struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Client fetches current conditions with a short timeout, a circuit breaker
// and a rate limiter in front of the provider, reading through the cache.
// Every failure path returns ok=false; weather never fails a caller.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   Cache
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient builds a provider client. cache may be nil.
func NewClient(baseURL, apiKey string, cache Cache) *Client {
	if cache == nil {
		cache = nopCache{}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("weather breaker state change")
		},
	})
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: RequestTimeout},
		cache:   cache,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for cache keys. Test hook.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// cacheKey is hour-granular: weather:{citySlug}:{YYYYMMDD_HH}.
func (c *Client) cacheKey(city string) string {
	return fmt.Sprintf("weather:%s:%s", slug.Make(city), c.now().UTC().Format("20060102_15"))
}

// Current returns the city's current conditions. ok=false covers every
// degraded path: breaker open, limiter dry, transport failure, non-200
// status, or an unparseable payload.
func (c *Client) Current(ctx context.Context, city string) (*Report, bool) {
	key := c.cacheKey(city)
	if raw, hit := c.cache.Get(ctx, key); hit {
		if r, err := parseReport(city, raw); err == nil {
			return r, true
		}
		log.Debug().Str("city", city).Msg("cached weather payload unparseable, refetching")
	}

	if !c.limiter.Allow() {
		log.Debug().Str("city", city).Msg("weather limiter dry, no data")
		return nil, false
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, city)
	})
	if err != nil {
		log.Debug().Err(err).Str("city", city).Msg("weather fetch degraded to no data")
		return nil, false
	}
	payload := raw.([]byte)

	report, err := parseReport(city, payload)
	if err != nil {
		log.Debug().Err(err).Str("city", city).Msg("weather payload unparseable")
		return nil, false
	}

	// The provider payload is cached verbatim, not the parsed report.
	c.cache.Set(ctx, key, payload, CacheTTL)
	return report, true
}

func (c *Client) fetch(ctx context.Context, city string) ([]byte, error) {
	u := fmt.Sprintf("%s/weather?q=%s&appid=%s",
		c.baseURL, url.QueryEscape(city), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather provider status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read weather body: %w", err)
	}
	return body, nil
}

func parseReport(city string, raw []byte) (*Report, error) {
	var p providerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode weather payload: %w", err)
	}
	if len(p.Weather) == 0 {
		return nil, fmt.Errorf("weather payload carries no conditions")
	}
	code := p.Weather[0].ID
	return &Report{
		City:          city,
		TempCelsius:   CelsiusFromKelvin(p.Main.Temp),
		ConditionCode: code,
		Condition:     Classify(code),
		Description:   p.Weather[0].Description,
	}, nil
}

// OutdoorRisk reports whether current conditions argue against an exposed
// activity category in the city. No data means no veto: the guard degrades
// open.
func (c *Client) OutdoorRisk(ctx context.Context, city, category string) bool {
	report, ok := c.Current(ctx, city)
	if !ok {
		return false
	}
	return RiskFor(category, report.Condition)
}
