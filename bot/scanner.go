package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/aluiziolira/saturday-punter/parser"
)

const (
	selResultLinks = "#MainContent_gvExportSelection a"
	selAllLinks    = "a"

	linkSampleSize    = 5
	timeoutSampleSize = 20
	midPollRound      = 3
)

// RankCandidates filters link texts down to export candidates, newest
// first. Equal timestamps keep listing order. Rejected texts that still
// mention Buccaneer are returned as near misses.
func RankCandidates(texts []string) ([]models.FileCandidate, []string) {
	var candidates []models.FileCandidate
	var nearMisses []string
	for i, raw := range texts {
		name := strings.TrimSpace(raw)
		if !parser.HasExportPrefix(name) {
			continue
		}
		ts, ok := parser.ParseCandidateName(name)
		if !ok {
			if parser.IsNearMiss(name) {
				nearMisses = append(nearMisses, name)
			}
			continue
		}
		candidates = append(candidates, models.FileCandidate{Name: name, Timestamp: ts, Position: i})
	}
	slices.SortStableFunc(candidates, func(a, b models.FileCandidate) int {
		return parser.CompareTimestamps(b.Timestamp, a.Timestamp)
	})
	return candidates, nearMisses
}

// SelectBest returns the head of a ranked candidate list.
func SelectBest(ranked []models.FileCandidate) (models.FileCandidate, bool) {
	if len(ranked) == 0 {
		return models.FileCandidate{}, false
	}
	return ranked[0], true
}

// ScanHTML ranks the export links of a saved page dump, using the same
// container fallback as the live scan.
func ScanHTML(r io.Reader) ([]models.FileCandidate, []string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page dump: %w", err)
	}
	links := doc.Find(selResultLinks)
	if links.Length() == 0 {
		links = doc.Find(selAllLinks)
	}
	texts := links.Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	})
	ranked, nearMisses := RankCandidates(texts)
	return ranked, nearMisses, nil
}

type liveCandidate struct {
	models.FileCandidate
	el Element
}

// Scanner polls the export listing and downloads the newest export.
type Scanner struct {
	rounds    int
	interval  time.Duration
	finalizer *Finalizer
	diag      *Diagnostics
	sleep     sleepFunc
	logger    *slog.Logger
	metrics   *Metrics
}

// Run scans up to rounds times, interval apart. It returns the downloaded
// path, an ErrDownload if a candidate was found but never downloaded, or an
// ErrScanTimeout if no candidate ever appeared.
func (s *Scanner) Run(ctx context.Context, sess Session) (string, error) {
	var downloadErr error
	for round := 1; round <= s.rounds; round++ {
		s.metrics.IncScanRound()
		roundLog := s.logger.With(slog.Int("round", round), slog.Int("rounds", s.rounds))

		path, err := s.scanRound(ctx, sess, roundLog)
		switch {
		case err == nil && path != "":
			return path, nil
		case err != nil:
			if ctx.Err() != nil {
				return "", err
			}
			roundLog.Error("scan round failed", slog.Any("error", err))
			var dl ErrDownload
			if errors.As(err, &dl) {
				downloadErr = err
			}
		default:
			roundLog.Info("export not listed yet")
		}

		if round == midPollRound {
			s.diag.Capture(ctx, sess, "97_poll_mid")
		}
		if round < s.rounds {
			if err := s.sleep(ctx, s.interval); err != nil {
				return "", err
			}
		}
	}

	s.dumpTimeout(ctx, sess)
	if downloadErr != nil {
		return "", downloadErr
	}
	return "", ErrScanTimeout{Rounds: s.rounds, Err: errNoCandidates}
}

func (s *Scanner) scanRound(ctx context.Context, sess Session, logger *slog.Logger) (string, error) {
	candidates, err := s.collect(ctx, sess, logger)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}
	best := candidates[0]
	logger.Info("export candidate selected",
		slog.String("status", "ok"),
		slog.Int("candidates", len(candidates)),
		slog.String("name", best.Name),
		slog.String("timestamp", best.Timestamp),
	)
	return s.finalizer.Download(ctx, sess, best.el, best.Name)
}

// collect builds the ranked candidates of the current page state. Nothing
// is kept between calls: the listing is re-read every round.
func (s *Scanner) collect(ctx context.Context, sess Session, logger *slog.Logger) ([]liveCandidate, error) {
	links, err := sess.Elements(ctx, selResultLinks)
	if err != nil {
		return nil, fmt.Errorf("list export links: %w", err)
	}
	if len(links) == 0 {
		links, err = sess.Elements(ctx, selAllLinks)
		if err != nil {
			return nil, fmt.Errorf("list page links: %w", err)
		}
	}

	texts := make([]string, len(links))
	var sample []string
	for i, link := range links {
		text, err := link.Text()
		if err != nil {
			logger.Debug("link text unavailable", slog.Int("position", i), slog.Any("error", err))
			continue
		}
		texts[i] = text
		if len(sample) < linkSampleSize && strings.Contains(text, parser.ExportPrefix) {
			sample = append(sample, strings.TrimSpace(text))
		}
	}
	if len(links) > 0 {
		logger.Debug("links scanned", slog.Int("links", len(links)), slog.Any("sample_exports", sample))
	}

	ranked, nearMisses := RankCandidates(texts)
	for _, name := range nearMisses {
		logger.Debug("rejected candidate, check timestamp and separators", slog.String("name", name))
	}

	out := make([]liveCandidate, len(ranked))
	for i, c := range ranked {
		out[i] = liveCandidate{FileCandidate: c, el: links[c.Position]}
	}
	return out, nil
}

func (s *Scanner) dumpTimeout(ctx context.Context, sess Session) {
	s.logger.Error("export did not appear", slog.Int("rounds", s.rounds))
	s.diag.Dump(ctx, sess, "debug_timeout_source.html")

	if links, err := sess.Elements(ctx, selAllLinks); err == nil {
		var texts []string
		for _, link := range links {
			if len(texts) == timeoutSampleSize {
				break
			}
			if text, err := link.Text(); err == nil {
				texts = append(texts, strings.TrimSpace(text))
			}
		}
		s.logger.Debug("visible links at timeout", slog.Int("links", len(links)), slog.Any("first", texts))
	}
	s.diag.Capture(ctx, sess, "99_timeout")
}
