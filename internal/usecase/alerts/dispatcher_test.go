package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
)

type stubSearcher struct {
	deals    []domain.Deal
	excluded map[string]struct{}
}

func (s *stubSearcher) Search(_ context.Context, _ domain.Location, _ string, _ int, exclude map[string]struct{}) ([]domain.Deal, error) {
	s.excluded = exclude
	var fresh []domain.Deal
	for _, d := range s.deals {
		if _, ok := exclude[d.Identity()]; !ok {
			fresh = append(fresh, d)
		}
	}
	return fresh, nil
}

type stubSender struct {
	sent [][]domain.Deal
}

func (s *stubSender) SendAlertDeals(_ context.Context, _, _, _ string, deals []domain.Deal) error {
	s.sent = append(s.sent, deals)
	return nil
}

type memSessions struct {
	sessions map[string]*domain.Session
}

func (m *memSessions) Load(_ context.Context, storeID, userID string) *domain.Session {
	if s, ok := m.sessions[storeID+":"+userID]; ok {
		return s
	}
	return domain.NewSession(storeID, userID)
}

func (m *memSessions) Save(_ context.Context, session *domain.Session) {
	if m.sessions == nil {
		m.sessions = map[string]*domain.Session{}
	}
	m.sessions[session.SessionID()] = session
}

func dueAlert(now time.Time) domain.Alert {
	return domain.Alert{
		ID:           "a1",
		UserID:       "user",
		StoreID:      "store",
		Category:     "Food & Dining",
		Timezone:     "Asia/Singapore",
		IsActive:     true,
		NextSendTime: now.Add(-time.Minute),
		MaxMessages:  domain.DefaultAlertMaxMessages,
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
	}
}

func TestDispatchSendsFreshDealsAndMarksShared(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubAlertRepo{due: []domain.Alert{dueAlert(now)}}
	svc := fixedService(repo, now)
	searcher := &stubSearcher{deals: []domain.Deal{
		{DealID: "d1", BusinessName: "Biz", Offer: "deal", Source: domain.DealSourceDatastore},
	}}
	sender := &stubSender{}
	sessions := &memSessions{}

	d := NewDispatcher(svc, searcher, sender, sessions, 3, zerolog.Nop())
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(sender.sent) != 1 || len(sender.sent[0]) != 1 {
		t.Fatalf("expected one send with one deal, got %+v", sender.sent)
	}
	saved := sessions.sessions["store:user"]
	if saved == nil || len(saved.SharedDealIDs) != 1 || saved.SharedDealIDs[0] != "d1" {
		t.Fatalf("sent deal not marked shared: %+v", saved)
	}
	if len(repo.updated) != 1 || repo.updated[0].MessageCount != 1 {
		t.Fatalf("alert not advanced: %+v", repo.updated)
	}
}

func TestDispatchHonorsAlreadySharedDeals(t *testing.T) {
	now := time.Now().UTC()
	repo := &stubAlertRepo{due: []domain.Alert{dueAlert(now)}}
	svc := fixedService(repo, now)
	searcher := &stubSearcher{deals: []domain.Deal{
		{DealID: "seen", BusinessName: "Biz", Offer: "deal", Source: domain.DealSourceDatastore},
	}}
	sender := &stubSender{}

	session := domain.NewSession("store", "user")
	session.SharedDealIDs = []string{"seen"}
	sessions := &memSessions{sessions: map[string]*domain.Session{"store:user": session}}

	d := NewDispatcher(svc, searcher, sender, sessions, 3, zerolog.Nop())
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Fatalf("stale deal must not be re-sent: %+v", sender.sent)
	}
	if _, ok := searcher.excluded["seen"]; !ok {
		t.Fatal("shared set not passed to search")
	}
	// The schedule still advances so the alert leaves the due window.
	if len(repo.updated) != 1 || repo.updated[0].MessageCount != 0 {
		t.Fatalf("expected reschedule without send: %+v", repo.updated)
	}
}
