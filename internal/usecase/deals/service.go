// Package deals sources, deduplicates and ranks deals for a resolved
// location.
package deals

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// Bounds on how many deals one search may return.
const (
	MinDeals = 1
	MaxDeals = 10
)

// Service runs deal discovery: curated datastore first, web search as the
// fallback.
type Service struct {
	repo     domain.DealRepo
	searcher domain.WebSearcher
	country  string
	radiusKM float64
	log      zerolog.Logger
}

// NewService creates the deal service. country is the human-readable
// country name appended to fallback queries.
func NewService(repo domain.DealRepo, searcher domain.WebSearcher, country string, radiusKM float64, logger zerolog.Logger) *Service {
	if radiusKM <= 0 {
		radiusKM = 5
	}
	return &Service{repo: repo, searcher: searcher, country: country, radiusKM: radiusKM, log: logger}
}

// Search returns up to limit deals near the location, excluding any whose
// identity appears in exclude. Results are ranked by source authority,
// then recency. The method degrades rather than fails: a datastore error
// falls through to the web, and a web error yields whatever the
// datastore produced.
func (s *Service) Search(ctx context.Context, loc domain.Location, category string, limit int, exclude map[string]struct{}) ([]domain.Deal, error) {
	if limit < MinDeals {
		limit = MinDeals
	}
	if limit > MaxDeals {
		limit = MaxDeals
	}

	var pool []domain.Deal

	stored, err := s.repo.SearchByLocation(ctx, loc, category, s.radiusKM, MaxDeals*2)
	if err != nil {
		s.log.Warn().Err(err).Str("category", category).Msg("datastore location search failed")
	} else {
		pool = append(pool, stored...)
	}
	if len(dedupe(pool, exclude)) < limit && loc.Area != "" {
		byArea, err := s.repo.SearchByArea(ctx, loc.Area, category, MaxDeals*2)
		if err != nil {
			s.log.Warn().Err(err).Str("area", loc.Area).Msg("datastore area search failed")
		} else {
			pool = append(pool, byArea...)
		}
	}

	fresh := dedupe(pool, exclude)
	if len(fresh) < limit {
		metrics.DealSearchFallbacks.Inc()
		webDeals, err := s.searchWeb(ctx, loc, category, limit-len(fresh))
		if err != nil {
			s.log.Warn().Err(err).Msg("web fallback failed")
			if len(fresh) == 0 {
				return nil, fmt.Errorf("search deals: %w", err)
			}
		} else {
			fresh = dedupe(append(fresh, webDeals...), exclude)
		}
	}

	rank(fresh)
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}
	for _, d := range fresh {
		metrics.DealsServed.WithLabelValues(d.Source).Inc()
	}
	return fresh, nil
}

func (s *Service) searchWeb(ctx context.Context, loc domain.Location, category string, want int) ([]domain.Deal, error) {
	area := loc.Area
	if area == "" {
		area = loc.DisplayName
	}
	query := fmt.Sprintf("%s deals %s %s", category, area, s.country)

	hits, err := s.searcher.Search(ctx, query, MaxDeals)
	if err != nil {
		return nil, err
	}

	deals := make([]domain.Deal, 0, want)
	for _, hit := range hits {
		if len(deals) >= want {
			break
		}
		deals = append(deals, synthesize(hit, category, area))
	}
	return deals, nil
}

// synthesize builds a presentable deal from one search hit. Missing
// mandatory fields are filled from whatever the hit carries; a hit is
// never dropped. Web deals get a fresh UUID identity so session-level
// dedup applies to them too.
func synthesize(hit domain.SearchHit, category, area string) domain.Deal {
	title := strings.TrimSpace(hit.Title)
	name, offer := splitTitle(title)
	if offer == "" {
		offer = strings.TrimSpace(hit.Snippet)
	}
	if offer == "" {
		offer = title
	}
	if offer == "" {
		offer = fmt.Sprintf("%s deal near %s", category, area)
	}
	if name == "" {
		name = linkHost(hit.Link)
	}
	if name == "" {
		name = fmt.Sprintf("%s spot in %s", category, area)
	}
	return domain.Deal{
		DealID:       uuid.NewString(),
		BusinessName: name,
		Offer:        offer,
		Address:      area,
		Description:  strings.TrimSpace(hit.Snippet),
		Category:     category,
		Source:       domain.DealSourceWeb,
		PostedAt:     time.Now().UTC(),
	}
}

// linkHost extracts a presentable host name from a hit's link.
func linkHost(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// splitTitle separates "Business — offer text" style titles into the two
// halves; a title with no separator becomes the business name.
func splitTitle(title string) (name, offer string) {
	for _, sep := range []string{" - ", " – ", " | ", ": "} {
		if idx := strings.Index(title, sep); idx > 0 {
			return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+len(sep):])
		}
	}
	return title, ""
}

// dedupe drops deals whose identity is in exclude or already seen in the
// slice, preserving order. Deals with no identity always pass.
func dedupe(deals []domain.Deal, exclude map[string]struct{}) []domain.Deal {
	seen := make(map[string]struct{}, len(deals))
	result := make([]domain.Deal, 0, len(deals))
	for _, d := range deals {
		id := d.Identity()
		if id != "" {
			if _, ok := exclude[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		result = append(result, d)
	}
	return result
}

// rank sorts by source authority, highest tier first, newest first within
// a tier.
func rank(deals []domain.Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		ai, aj := domain.SourceAuthority(deals[i].Source), domain.SourceAuthority(deals[j].Source)
		if ai != aj {
			return ai > aj
		}
		return deals[i].PostedAt.After(deals[j].PostedAt)
	})
}
