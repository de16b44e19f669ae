package monograph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

// Config controls the page fetcher.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// PageFetcher implements catalog.Fetcher using a Colly collector. It is not
// safe for concurrent use; each worker slot owns its own instance.
type PageFetcher struct {
	baseCollector *colly.Collector
	cfg           Config
	logger        *zap.Logger
}

// NewPageFetcher constructs a configured Colly-based fetcher.
func NewPageFetcher(cfg Config, logger *zap.Logger) *PageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &PageFetcher{
		baseCollector: base,
		cfg:           cfg,
		logger:        logger,
	}
}

// PageURL builds the product info URL for a drug code.
func (f *PageFetcher) PageURL(drugCode string) string {
	return fmt.Sprintf("%s/info?lang=eng&code=%s", f.cfg.BaseURL, url.QueryEscape(drugCode))
}

// Fetch retrieves one product page and extracts the monograph reference.
// Network, timeout and HTTP status errors propagate uncaught; classification
// happens one layer up.
func (f *PageFetcher) Fetch(ctx context.Context, drugCode string) (catalog.PageInfo, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchOutcome, 1)
	var once sync.Once
	send := func(res fetchOutcome) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			send(fetchOutcome{err: fmt.Errorf("unexpected status %d", r.StatusCode)})
			return
		}
		send(fetchOutcome{body: append([]byte{}, r.Body...)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown collector error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(fetchOutcome{err: err})
	})

	pageURL := f.PageURL(drugCode)
	if err := collector.Visit(pageURL); err != nil {
		return catalog.PageInfo{}, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return catalog.PageInfo{}, err
		}
		if res.err != nil {
			return catalog.PageInfo{}, fmt.Errorf("fetch %s: %w", pageURL, res.err)
		}
		f.logger.Debug("page fetched",
			zap.String("drug_code", drugCode),
			zap.Int("bytes", len(res.body)),
		)
		return Extract(res.body), nil
	default:
		return catalog.PageInfo{}, errors.New("collector produced no result")
	}
}

type fetchOutcome struct {
	body []byte
	err  error
}
