// Package probe checks, with a single HTTP request, that the System Builder
// login page is up and still exposes the controls the bot relies on.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/gocolly/colly/v2"
)

// LoginControls are the selectors the login step needs.
var LoginControls = []string{
	"#MainContent_txtUserName",
	"#MainContent_txtPassword",
	"#MainContent_btnLogin",
}

// Check results used as metric labels.
const (
	ResultHealthy     = "healthy"
	ResultDegraded    = "degraded"
	ResultUnreachable = "unreachable"
)

// Prober issues preflight checks with a colly collector.
type Prober struct {
	url       string
	collector *colly.Collector
	Metrics   *Metrics
	logger    *slog.Logger
}

// New builds a prober for cfg.SystemBuilderURL.
func New(cfg *config.Config, logger *slog.Logger) (*Prober, error) {
	parsed, err := url.Parse(cfg.SystemBuilderURL)
	if err != nil {
		return nil, fmt.Errorf("parse system builder url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("system builder url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.StepTimeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.StepTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Prober{
		url:       cfg.SystemBuilderURL,
		collector: collector,
		Metrics:   NewMetrics(),
		logger:    logger.With(slog.String("component", "probe")),
	}, nil
}

// Check fetches the login page once. It never fails: problems are
// reported in the returned report.
func (p *Prober) Check(ctx context.Context) models.ProbeReport {
	report := models.ProbeReport{URL: p.url, CheckedAt: time.Now()}
	if err := ctx.Err(); err != nil {
		report.ErrorType = "canceled"
		p.Metrics.IncCheck(ResultUnreachable, 0)
		return report
	}

	c := p.collector.Clone()
	found := make(map[string]bool, len(LoginControls))
	var reqErr error

	c.OnResponse(func(r *colly.Response) {
		report.StatusCode = r.StatusCode
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		for _, sel := range LoginControls {
			if e.DOM.Find(sel).Length() > 0 {
				found[sel] = true
			}
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
			report.StatusCode = status
		}
		reqErr = classifyError(err, status)
	})

	start := time.Now()
	if err := c.Visit(p.url); err != nil && reqErr == nil {
		reqErr = classifyError(err, report.StatusCode)
	}
	report.Duration = time.Since(start)

	if reqErr != nil {
		report.ErrorType = errorTypeLabel(reqErr)
		p.Metrics.IncCheck(ResultUnreachable, report.Duration)
		p.logger.Warn("system builder unreachable",
			slog.String("url", p.url),
			slog.String("error_type", report.ErrorType),
			slog.Any("error", reqErr),
		)
		return report
	}

	report.Reachable = true
	for _, sel := range LoginControls {
		if !found[sel] {
			report.Missing = append(report.Missing, sel)
		}
	}
	if len(report.Missing) > 0 {
		p.Metrics.IncCheck(ResultDegraded, report.Duration)
		p.logger.Warn("login page changed, controls missing",
			slog.String("url", p.url),
			slog.Any("missing", report.Missing),
		)
		return report
	}

	p.Metrics.IncCheck(ResultHealthy, report.Duration)
	p.logger.Info("system builder reachable",
		slog.String("status", "ok"),
		slog.Int("http_status", report.StatusCode),
		slog.Duration("duration", report.Duration),
	)
	return report
}
