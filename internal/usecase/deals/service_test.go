package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
)

type stubRepo struct {
	byLocation []domain.Deal
	byArea     []domain.Deal
	err        error
}

func (s *stubRepo) SearchByLocation(_ context.Context, _ domain.Location, _ string, _ float64, _ int) ([]domain.Deal, error) {
	return s.byLocation, s.err
}

func (s *stubRepo) SearchByArea(_ context.Context, _, _ string, _ int) ([]domain.Deal, error) {
	return s.byArea, s.err
}

type stubSearcher struct {
	hits    []domain.SearchHit
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ int) ([]domain.SearchHit, error) {
	s.queries = append(s.queries, query)
	return s.hits, s.err
}

func storedDeal(id string, age time.Duration) domain.Deal {
	return domain.Deal{
		DealID:       id,
		BusinessName: "Biz " + id,
		Offer:        "50% off",
		Category:     "Food & Dining",
		Source:       domain.DealSourceDatastore,
		PostedAt:     time.Now().Add(-age),
	}
}

var orchard = domain.Location{Latitude: 1.3048, Longitude: 103.8318, DisplayName: "Orchard Road", Area: "Orchard"}

func TestSearchExcludesAlreadySharedDeals(t *testing.T) {
	repo := &stubRepo{byLocation: []domain.Deal{storedDeal("a", time.Hour), storedDeal("b", time.Hour), storedDeal("c", time.Hour)}}
	svc := NewService(repo, &stubSearcher{}, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 3, map[string]struct{}{"b": {}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, d := range got {
		if d.DealID == "b" {
			t.Fatal("excluded deal returned")
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(got))
	}
}

func TestSearchDeduplicatesByIdentity(t *testing.T) {
	dup := storedDeal("a", time.Hour)
	legacy := domain.Deal{AltID: "a", BusinessName: "Legacy", Offer: "same deal", Source: domain.DealSourceCurated}
	repo := &stubRepo{byLocation: []domain.Deal{dup, dup, legacy}}
	svc := NewService(repo, &stubSearcher{}, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 deal after dedup, got %d", len(got))
	}
}

func TestSearchFallsBackToWebWhenDatastoreIsShort(t *testing.T) {
	searcher := &stubSearcher{hits: []domain.SearchHit{
		{Title: "Ah Hock Kitchen - 1-for-1 laksa", Snippet: "Weekday lunch special", Link: "https://example.sg/laksa"},
		{Title: "Bistro 8 | $10 set lunch", Snippet: "Until end of month", Link: "https://example.sg/bistro"},
	}}
	svc := NewService(&stubRepo{}, searcher, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 3, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 web deals, got %d", len(got))
	}
	for _, d := range got {
		if d.Source != domain.DealSourceWeb {
			t.Fatalf("expected web source, got %q", d.Source)
		}
		if d.Identity() == "" {
			t.Fatal("web deal must carry a synthetic identity")
		}
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "Food & Dining deals Orchard Singapore" {
		t.Fatalf("unexpected query: %v", searcher.queries)
	}
}

func TestSparseWebHitsAreSynthesizedNotDropped(t *testing.T) {
	searcher := &stubSearcher{hits: []domain.SearchHit{
		{Title: "Laksa promo", Link: "https://www.makanguide.sg/laksa"}, // no separator, no snippet
		{Snippet: "2-for-1 desserts this week"},                        // no title at all
		{Link: "https://dealsite.sg/x"},                                // bare link
	}}
	svc := NewService(&stubRepo{}, searcher, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("every hit must become a deal, got %d", len(got))
	}
	for i, d := range got {
		if d.BusinessName == "" || d.Offer == "" {
			t.Fatalf("hit %d missing mandatory fields: %+v", i, d)
		}
	}
	if got[0].BusinessName != "Laksa promo" || got[0].Offer == "" {
		t.Fatalf("title-only hit mishandled: %+v", got[0])
	}
	if got[2].BusinessName != "dealsite.sg" {
		t.Fatalf("bare link should name the host, got %q", got[2].BusinessName)
	}
}

func TestSearchRanksByAuthorityThenRecency(t *testing.T) {
	old := storedDeal("old", 48*time.Hour)
	fresh := storedDeal("fresh", time.Hour)
	web := domain.Deal{DealID: "w", BusinessName: "Web Biz", Offer: "deal", Source: domain.DealSourceWeb, PostedAt: time.Now()}
	repo := &stubRepo{byLocation: []domain.Deal{web, old, fresh}}
	svc := NewService(repo, &stubSearcher{}, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 3, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].DealID != "fresh" || got[1].DealID != "old" || got[2].DealID != "w" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].DealID, got[1].DealID, got[2].DealID)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	var many []domain.Deal
	for i := 0; i < 20; i++ {
		many = append(many, storedDeal(string(rune('a'+i)), time.Hour))
	}
	svc := NewService(&stubRepo{byLocation: many}, &stubSearcher{}, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 99, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != MaxDeals {
		t.Fatalf("expected clamp to %d, got %d", MaxDeals, len(got))
	}
}

func TestSearchSurvivesDatastoreError(t *testing.T) {
	repo := &stubRepo{err: errors.New("connection refused")}
	searcher := &stubSearcher{hits: []domain.SearchHit{{Title: "Biz - deal", Snippet: "snippet"}}}
	svc := NewService(repo, searcher, "Singapore", 5, zerolog.Nop())

	got, err := svc.Search(context.Background(), orchard, "Food & Dining", 3, nil)
	if err != nil {
		t.Fatalf("search should degrade to web, got error: %v", err)
	}
	if len(got) != 1 || got[0].Source != domain.DealSourceWeb {
		t.Fatalf("expected web fallback result, got %+v", got)
	}
}

func TestSearchFailsOnlyWhenEverySourceFails(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	searcher := &stubSearcher{err: errors.New("search down")}
	svc := NewService(repo, searcher, "Singapore", 5, zerolog.Nop())

	if _, err := svc.Search(context.Background(), orchard, "Food & Dining", 3, nil); err == nil {
		t.Fatal("expected error when all sources fail")
	}
}
