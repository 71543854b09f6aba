// Package provider fetches intraday aggregates from upstream vendors.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	"FinSim/internal/service/ratelimit"
	xhttp "FinSim/pkg/http"
	"FinSim/pkg/logger"
	"FinSim/pkg/util"
)

// PolygonName is the source tag stored with bars fetched from Polygon.
const PolygonName = "polygon"

const (
	polygonPageLimit = 50000
	// maxPages bounds next_url chasing in case the vendor keeps returning cursors.
	maxPages = 500
)

// PolygonConfig configures the aggregates client.
type PolygonConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Polygon implements BarProvider over the v2 aggregates endpoint.
type Polygon struct {
	cfg     PolygonConfig
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	metrics domrepo.Metrics
	log     *logger.Logger
}

// NewPolygon builds a provider. limiter may be shared with other callers;
// requests are keyed by the provider name.
func NewPolygon(cfg PolygonConfig, limiter *ratelimit.Limiter, m domrepo.Metrics, l *logger.Logger, opts ...xhttp.ClientOption) *Polygon {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if l == nil {
		l = logger.Nop()
	}
	opts = append([]xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("Accept", "application/json"),
		xhttp.WithHeader("Authorization", "Bearer "+cfg.APIKey),
	}, opts...)
	return &Polygon{
		cfg:     cfg,
		client:  xhttp.NewClient(opts...),
		limiter: limiter,
		metrics: m,
		log:     l,
	}
}

func (p *Polygon) Name() string { return PolygonName }

type aggResponse struct {
	Status       string   `json:"status"`
	ResultsCount int      `json:"resultsCount"`
	Results      []aggBar `json:"results"`
	NextURL      string   `json:"next_url"`
	Error        string   `json:"error"`
}

type aggBar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// FetchBars returns bars for the calendar days spanned by [from, to] in
// ascending order, with naive New York timestamps.
func (p *Polygon) FetchBars(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("polygon: api key is not configured")
	}
	start := time.Now()

	next := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/minute/%s/%s",
		strings.TrimRight(p.cfg.BaseURL, "/"),
		url.PathEscape(strings.ToUpper(symbol)),
		tf.Minutes(),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)
	query := map[string][]string{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {fmt.Sprint(polygonPageLimit)},
	}

	var out []models.Bar
	for page := 0; next != "" && page < maxPages; page++ {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}

		var resp aggResponse
		err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         next,
			QueryParams: query,
		}, &resp)
		if err != nil {
			p.recordError()
			return nil, fmt.Errorf("polygon %s %s page %d: %w", symbol, tf, page, err)
		}
		if resp.Status == "ERROR" {
			p.recordError()
			return nil, fmt.Errorf("polygon %s %s: %s", symbol, tf, resp.Error)
		}

		for _, r := range resp.Results {
			out = append(out, models.Bar{
				Timestamp: wallClock(r.T),
				Open:      r.O,
				High:      r.H,
				Low:       r.L,
				Close:     r.C,
				Volume:    r.V,
			})
		}

		// next_url carries the cursor and the original query
		next = resp.NextURL
		query = nil
	}

	if p.metrics != nil {
		p.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	}
	p.log.Info("polygon bars fetched",
		logger.String("symbol", symbol),
		logger.String("tf", string(tf)),
		logger.Int("bars", len(out)),
		logger.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (p *Polygon) wait(ctx context.Context) error {
	if p.cfg.RequestsPerMinute <= 0 {
		return nil
	}
	rpm := float64(p.cfg.RequestsPerMinute)
	if err := p.limiter.Wait(ctx, PolygonName, rpm, rpm/60); err != nil {
		return fmt.Errorf("polygon rate limit: %w", err)
	}
	return nil
}

func (p *Polygon) recordError() {
	if p.metrics != nil {
		p.metrics.RecordError("provider")
	}
}

func wallClock(ms int64) time.Time {
	return util.WallClock(time.UnixMilli(ms))
}
