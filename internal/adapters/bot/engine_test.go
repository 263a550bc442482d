package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
	"lobang-bot/internal/usecase/alerts"
	"lobang-bot/internal/usecase/creator"
	"lobang-bot/internal/usecase/deals"
	"lobang-bot/internal/usecase/location"
)

// In-memory doubles for the engine's collaborators.

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
	m.sessions[session.SessionID()] = session
}

type stubDealRepo struct {
	deals []domain.Deal
}

func (s *stubDealRepo) SearchByLocation(_ context.Context, _ domain.Location, _ string, _ float64, _ int) ([]domain.Deal, error) {
	return s.deals, nil
}

func (s *stubDealRepo) SearchByArea(_ context.Context, _, _ string, _ int) ([]domain.Deal, error) {
	return nil, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, _ string, _ int) ([]domain.SearchHit, error) {
	return nil, nil
}

type stubGeocoder struct {
	place domain.Place
}

func (s *stubGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (domain.Location, error) {
	return domain.Location{Latitude: lat, Longitude: lng, DisplayName: "Tiong Bahru", Area: "Tiong Bahru", Source: domain.LocationSourceGPS}, nil
}

func (s *stubGeocoder) Autocomplete(_ context.Context, query string, _ int) ([]domain.Location, error) {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "nowhere"):
		return nil, nil
	case strings.Contains(q, "eiffel"):
		return []domain.Location{{
			DisplayName: "Eiffel Tower", PlaceID: "place-eiffel",
			FormattedAddress: "Paris, France",
			Latitude:         48.8584, Longitude: 2.2945,
		}}, nil
	}
	return []domain.Location{{DisplayName: "Bugis", PlaceID: "place-bugis", FormattedAddress: "Bugis, Singapore"}}, nil
}

func (s *stubGeocoder) PlaceDetails(_ context.Context, placeID string) (domain.Location, error) {
	if placeID == "place-klcc" {
		return domain.Location{Latitude: 3.1390, Longitude: 101.6869, DisplayName: "KLCC"}, nil
	}
	return domain.Location{Latitude: 1.3009, Longitude: 103.8559, DisplayName: "Bugis", Area: "Bugis"}, nil
}

func (s *stubGeocoder) FindPlace(_ context.Context, name string) (domain.Place, error) {
	if s.place.PlaceID == "" {
		return domain.Place{}, domain.ErrNotFound
	}
	return s.place, nil
}

func (s *stubGeocoder) PlacePhotos(_ context.Context, _ string, max int) ([]string, error) {
	return []string{"https://photos.example/1.jpg"}, nil
}

type memProfiles struct {
	profiles map[string]domain.RestaurantProfile
}

func (m *memProfiles) GetProfile(_ context.Context, userID string) (domain.RestaurantProfile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return domain.RestaurantProfile{}, domain.ErrNotFound
}

func (m *memProfiles) UpsertProfile(_ context.Context, profile domain.RestaurantProfile) (domain.RestaurantProfile, error) {
	m.profiles[profile.UserID] = profile
	return profile, nil
}

type memObjectStore struct {
	keys []string
}

func (m *memObjectStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.keys = append(m.keys, key)
	return "https://store.example/" + key, nil
}

type memQueue struct {
	jobs []domain.GenerationJob
}

func (m *memQueue) Enqueue(_ context.Context, job domain.GenerationJob) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memQueue) Pop(_ context.Context) (domain.GenerationJob, error) {
	job := m.jobs[0]
	m.jobs = m.jobs[1:]
	return job, nil
}

type memStatus struct {
	statuses map[string]domain.GenerationStatus
}

func (m *memStatus) SetStatus(_ context.Context, jobID string, status domain.GenerationStatus) error {
	m.statuses[jobID] = status
	return nil
}

func (m *memStatus) GetStatus(_ context.Context, jobID string) (domain.GenerationStatus, bool, error) {
	s, ok := m.statuses[jobID]
	return s, ok, nil
}

type stubChat struct {
	reply string
}

func (s stubChat) Reply(_ context.Context, _ string, _ []domain.ConversationEntry, _ int) (string, error) {
	return s.reply, nil
}

type stubClassifier struct {
	verdict bool
}

func (s stubClassifier) IsDealSubmission(_ context.Context, _ string) (bool, error) {
	return s.verdict, nil
}

type recordingSender struct {
	mu       sync.Mutex
	messages []whatsapp.Message
}

func (r *recordingSender) Send(_ context.Context, _ string, msg whatsapp.Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

type stubMedia struct{}

func (stubMedia) DownloadMedia(_ context.Context, _ string) ([]byte, string, error) {
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

// memOnceGuard mimics the Redis once-guard: first caller per key wins, and
// done signals each completed Once call so tests can wait for the detached
// send.
type memOnceGuard struct {
	mu   sync.Mutex
	used map[string]bool
	done chan struct{}
}

func newMemOnceGuard() *memOnceGuard {
	return &memOnceGuard{used: map[string]bool{}, done: make(chan struct{}, 8)}
}

func (g *memOnceGuard) Once(key string, _ time.Duration, fn func() error) error {
	defer func() { g.done <- struct{}{} }()
	g.mu.Lock()
	if g.used[key] {
		g.mu.Unlock()
		return nil
	}
	g.used[key] = true
	g.mu.Unlock()
	return fn()
}

type fixture struct {
	engine   *Engine
	sessions *memSessions
	sender   *recordingSender
	repo     *stubDealRepo
	profiles *memProfiles
	store    *memObjectStore
	queue    *memQueue
	status   *memStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	botCfg := domain.BotConfig{
		StoreID:     "store",
		CountryCode: "SG",
		CountryName: "Singapore",
		Timezone:    "Asia/Singapore",
		Country:     domain.BoundingBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.59, MaxLng: 104.10},
		Categories:  []string{"Food & Dining", "Events", "Fashion"},
		MaxDeals:    3,
		SessionTTL:  24 * time.Hour,
	}
	repo := &stubDealRepo{deals: []domain.Deal{
		{DealID: "d1", BusinessName: "Ah Hock Kitchen", Offer: "1-for-1 laksa", Address: "78 Tiong Bahru Rd", Source: domain.DealSourceDatastore, PostedAt: time.Now()},
		{DealID: "d2", BusinessName: "Bistro 8", Offer: "$10 set lunch", Source: domain.DealSourceDatastore, PostedAt: time.Now()},
	}}
	geocoder := &stubGeocoder{place: domain.Place{
		PlaceID: "place-ahhock", Name: "Ah Hock Kitchen", Address: "78 Tiong Bahru Rd",
		Latitude: 1.2847, Longitude: 103.8270, Phone: "+65 6123 4567",
	}}
	sessions := &memSessions{sessions: map[string]*domain.Session{}}
	sender := &recordingSender{}
	profiles := &memProfiles{profiles: map[string]domain.RestaurantProfile{}}
	store := &memObjectStore{}
	queue := &memQueue{}
	status := &memStatus{statuses: map[string]domain.GenerationStatus{}}
	logger := zerolog.Nop()

	engine := NewEngine(Config{
		Bot:          botCfg,
		Sessions:     sessions,
		Deals:        deals.NewService(repo, stubSearcher{}, "Singapore", 5, logger),
		Location:     location.NewService(geocoder, botCfg.Country, location.DefaultPopularPlaces(), logger),
		Alerts:       alerts.NewService(&memAlertRepo{}, logger),
		Creator:      creator.NewService(geocoder, profiles, store, queue, status, logger),
		Chat:         stubChat{reply: "Try the laksa, it's legendary!"},
		Detector:     stubClassifier{verdict: false},
		Sender:       sender,
		Media:        stubMedia{},
		ChatMaxTurns: 10,
		Logger:       logger,
	})
	return &fixture{
		engine:   engine,
		sessions: sessions,
		sender:   sender,
		repo:     repo,
		profiles: profiles,
		store:    store,
		queue:    queue,
		status:   status,
	}
}

type memAlertRepo struct {
	created []domain.Alert
}

func (m *memAlertRepo) CreateAlert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	m.created = append(m.created, alert)
	return alert, nil
}

func (m *memAlertRepo) GetAlert(_ context.Context, _ string) (domain.Alert, error) {
	return domain.Alert{}, domain.ErrNotFound
}

func (m *memAlertRepo) ListActiveDue(_ context.Context, _, _ time.Time) ([]domain.Alert, error) {
	return nil, nil
}

func (m *memAlertRepo) UpdateAlertDispatch(_ context.Context, _ domain.Alert) error { return nil }
func (m *memAlertRepo) DeactivateAlert(_ context.Context, _ string) error          { return nil }

func text(body string) whatsapp.Inbound {
	return whatsapp.Inbound{From: "6591234567", Type: whatsapp.InboundText, Text: body}
}

func tap(id string) whatsapp.Inbound {
	return whatsapp.Inbound{From: "6591234567", Type: whatsapp.InboundInteractive, InteractiveID: id}
}

func gps(lat, lng float64) whatsapp.Inbound {
	return whatsapp.Inbound{From: "6591234567", Type: whatsapp.InboundLocation, Latitude: lat, Longitude: lng}
}

func (f *fixture) session() *domain.Session {
	return f.sessions.sessions["store:6591234567"]
}

func (f *fixture) lastMessage(t *testing.T) whatsapp.Message {
	t.Helper()
	if len(f.sender.messages) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sender.messages[len(f.sender.messages)-1]
}

func (f *fixture) countBodies(substr string) int {
	n := 0
	for _, msg := range f.sender.messages {
		if strings.Contains(msg.Body, substr) {
			n++
		}
	}
	return n
}

// showDeals walks a fresh contact through pin plus category to deals_shown.
func (f *fixture) showDeals(t *testing.T) {
	t.Helper()
	f.engine.Handle(context.Background(), gps(1.2847, 103.8270))
	f.engine.Handle(context.Background(), tap("cat:Food & Dining"))
	if f.session().State.Step != domain.StepDealsShown {
		t.Fatalf("setup expected deals_shown, got %s", f.session().State.Step)
	}
}

func TestGreetingDetection(t *testing.T) {
	for _, greet := range []string{"hi", "Hello!!", " good morning ", "Yo~"} {
		if !isGreetingText(greet) {
			t.Errorf("%q should read as a greeting", greet)
		}
	}
	for _, other := range []string{"bugis", "tiong bahru plaza", "hipster cafe", ""} {
		if isGreetingText(other) {
			t.Errorf("%q should not read as a greeting", other)
		}
	}
}

func TestColdContactGetsLocationButtons(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), text("hi"))

	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeButtons {
		t.Fatalf("expected buttons greeting, got %s", msg.Type)
	}
	if len(msg.Buttons) != 3 || msg.Buttons[0].ID != idShareLocation || msg.Buttons[2].ID != idPopularPlaces {
		t.Fatalf("expected location entry buttons, got %+v", msg.Buttons)
	}
	if f.session() == nil || f.session().State.Step != domain.StepWelcome {
		t.Fatalf("unexpected session state: %+v", f.session())
	}
}

func TestPinAtWelcomeConfirmsLocationThenCategoryShowsDeals(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), gps(1.2847, 103.8270))

	session := f.session()
	if session.State.Step != domain.StepLocationConfirmed {
		t.Fatalf("expected location_confirmed, got %s", session.State.Step)
	}
	if session.State.Location == nil || session.State.Location.DisplayName != "Tiong Bahru" {
		t.Fatalf("unexpected location: %+v", session.State.Location)
	}
	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeButtons || len(msg.Buttons) != 3 || !strings.HasPrefix(msg.Buttons[0].ID, idCategoryPrefix) {
		t.Fatalf("expected category buttons, got %+v", msg)
	}

	f.engine.Handle(context.Background(), tap("cat:Food & Dining"))

	session = f.session()
	if session.State.Step != domain.StepDealsShown {
		t.Fatalf("expected deals_shown, got %s", session.State.Step)
	}
	if len(session.SharedDealIDs) != 2 {
		t.Fatalf("expected 2 shared deals, got %v", session.SharedDealIDs)
	}
	if f.countBodies("Ah Hock Kitchen") == 0 {
		t.Fatal("deal card not sent")
	}
}

func TestOverseasPinAtWelcomeIsRejected(t *testing.T) {
	f := newFixture(t)
	// Kuala Lumpur.
	f.engine.Handle(context.Background(), gps(3.1390, 101.6869))

	msg := f.lastMessage(t)
	if !strings.Contains(msg.Body, "only works in Singapore") {
		t.Fatalf("expected coverage message, got %q", msg.Body)
	}
	if msg.Type != whatsapp.TypeButtons || len(msg.Buttons) != 3 {
		t.Fatalf("expected recovery buttons, got %+v", msg)
	}
	session := f.session()
	if session.State.Step != domain.StepWelcome || session.State.Location != nil {
		t.Fatalf("rejection must leave the session untouched: %+v", session.State)
	}
}

func TestTypedOverseasLocationIsRejected(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), text("eiffel tower"))

	msg := f.lastMessage(t)
	if !strings.Contains(msg.Body, "only works in Singapore") {
		t.Fatalf("expected coverage message, got %q", msg.Body)
	}
	if f.session().State.Step != domain.StepWelcome {
		t.Fatalf("rejection must keep welcome, got %s", f.session().State.Step)
	}
}

func TestTypedLocationOffersSuggestions(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), text("bugis"))

	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeList {
		t.Fatalf("expected suggestion list, got %s", msg.Type)
	}
	if msg.Sections[0].Rows[0].ID != idPlacePrefix+"place-bugis" {
		t.Fatalf("unexpected suggestion row: %+v", msg.Sections[0].Rows[0])
	}
	if f.session().State.Step != domain.StepLocationSearch {
		t.Fatalf("expected location_search, got %s", f.session().State.Step)
	}

	f.engine.Handle(context.Background(), tap(idPlacePrefix+"place-bugis"))
	if f.session().State.Step != domain.StepLocationConfirmed {
		t.Fatalf("expected location_confirmed after pick, got %s", f.session().State.Step)
	}

	f.engine.Handle(context.Background(), tap("cat:Events"))
	if f.session().State.Step != domain.StepDealsShown {
		t.Fatalf("expected deals_shown after category, got %s", f.session().State.Step)
	}
}

func TestPopularPlacesShortcut(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), tap(idPopularPlaces))

	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeList || !strings.HasPrefix(msg.Sections[0].Rows[0].ID, idPopularPrefix) {
		t.Fatalf("expected popular list, got %+v", msg)
	}

	f.engine.Handle(context.Background(), tap(idPopularPrefix+"Bugis"))
	session := f.session()
	if session.State.Step != domain.StepLocationConfirmed {
		t.Fatalf("expected location_confirmed, got %s", session.State.Step)
	}
	if session.State.Location == nil || session.State.Location.Source != domain.LocationSourcePopular {
		t.Fatalf("unexpected location: %+v", session.State.Location)
	}
}

func TestUnresolvableLocationFallsBackToPopular(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), text("nowhere special"))

	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeList {
		t.Fatalf("expected popular list, got %s", msg.Type)
	}
	if !strings.HasPrefix(msg.Sections[0].Rows[0].ID, idPopularPrefix) {
		t.Fatalf("expected popular rows, got %+v", msg.Sections[0].Rows[0])
	}
	if f.session().State.Step != domain.StepWelcome {
		t.Fatalf("retry must stay on welcome, got %s", f.session().State.Step)
	}
}

func TestMoreDealsExcludesAlreadyShown(t *testing.T) {
	f := newFixture(t)
	f.showDeals(t)

	f.engine.Handle(context.Background(), tap(idMoreDeals))

	msg := f.lastMessage(t)
	if strings.Contains(msg.Body, "Ah Hock Kitchen") {
		t.Fatal("already shown deal repeated")
	}
	if !strings.Contains(msg.Body, "seen everything") {
		t.Fatalf("expected exhaustion message, got %q", msg.Body)
	}
}

func TestChatModeIsCappedAtTenTurns(t *testing.T) {
	f := newFixture(t)
	f.showDeals(t)
	f.engine.Handle(context.Background(), tap(idChatMode))

	for i := 0; i < 10; i++ {
		f.engine.Handle(context.Background(), text(fmt.Sprintf("question %d", i)))
		if f.session().State.Step != domain.StepChatMode {
			t.Fatalf("turn %d left chat mode early", i)
		}
	}

	f.engine.Handle(context.Background(), text("one more"))
	session := f.session()
	if session.State.Step != domain.StepWelcome {
		t.Fatalf("expected restart at welcome after cap, got %s", session.State.Step)
	}
	if len(session.State.LastDeals) != 0 || session.State.Category != "" {
		t.Fatalf("capped chat must clear the slate: %+v", session.State)
	}
	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeButtons || msg.Buttons[0].ID != idShareLocation {
		t.Fatalf("expected fresh greeting after cap, got %+v", msg)
	}
}

func TestChatModeExitReturnsToDeals(t *testing.T) {
	f := newFixture(t)
	f.showDeals(t)
	f.engine.Handle(context.Background(), tap(idChatMode))
	f.engine.Handle(context.Background(), text("any laksa around?"))

	f.engine.Handle(context.Background(), text("  Exit "))

	session := f.session()
	if session.State.Step != domain.StepDealsShown {
		t.Fatalf("expected deals_shown after exit, got %s", session.State.Step)
	}
	if session.State.ChatInteractions != 0 {
		t.Fatalf("exit must reset the chat counter, got %d", session.State.ChatInteractions)
	}
	if len(session.State.LastDeals) == 0 {
		t.Fatal("exit must keep the deals on the table")
	}
	if f.lastMessage(t).Type != whatsapp.TypeButtons {
		t.Fatalf("expected action buttons after exit, got %s", f.lastMessage(t).Type)
	}
}

func TestChatModeNeedsDealsOnTheTable(t *testing.T) {
	f := newFixture(t)
	f.repo.deals = nil // every source comes up empty
	f.engine.Handle(context.Background(), gps(1.2847, 103.8270))
	f.engine.Handle(context.Background(), tap("cat:Food & Dining"))
	if f.session().State.Step != domain.StepDealsShown {
		t.Fatalf("setup expected deals_shown, got %s", f.session().State.Step)
	}

	f.engine.Handle(context.Background(), text("let's just chat then"))

	if f.session().State.Step != domain.StepDealsShown {
		t.Fatalf("chat without deals must be refused, got %s", f.session().State.Step)
	}
	msg := f.lastMessage(t)
	if msg.Type != whatsapp.TypeButtons || !strings.Contains(msg.Body, "find you some deals first") {
		t.Fatalf("expected find-deals-first nudge, got %+v", msg)
	}
}

func TestDealDeliveryCarriesDailyTeaserOnce(t *testing.T) {
	f := newFixture(t)
	guard := newMemOnceGuard()
	f.engine.decor = guard

	f.showDeals(t)
	<-guard.done

	if got := f.countBodies("Lobang of the day"); got != 1 {
		t.Fatalf("expected one teaser, got %d", got)
	}

	// A second delivery the same day stays quiet.
	f.session().SharedDealIDs = nil
	f.engine.Handle(context.Background(), tap(idMoreDeals))
	<-guard.done

	if got := f.countBodies("Lobang of the day"); got != 1 {
		t.Fatalf("teaser repeated within the day: %d", got)
	}
}

func TestAlertSetupCreatesDailyAlert(t *testing.T) {
	f := newFixture(t)
	f.showDeals(t)
	f.engine.Handle(context.Background(), tap(idSetAlert))

	if f.session().State.Step != domain.StepAlertSetup {
		t.Fatalf("expected alert_setup, got %s", f.session().State.Step)
	}
	f.engine.Handle(context.Background(), tap(idAlertTimePrefix+"18:00"))
	if f.session().State.Step != domain.StepAlertTimeSelected {
		t.Fatalf("expected alert_time_selected, got %s", f.session().State.Step)
	}
	f.engine.Handle(context.Background(), tap(idAlertConfirm))

	if f.session().State.Step != domain.StepAlertCreated {
		t.Fatalf("expected alert_created, got %s", f.session().State.Step)
	}
	msg := f.lastMessage(t)
	if !strings.Contains(msg.Body, "18:00") {
		t.Fatalf("confirmation must echo the time, got %q", msg.Body)
	}
}

func TestIdleGreetingRestartsConversation(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), gps(1.2847, 103.8270))

	// Age the session past the reset window.
	session := f.session()
	session.Timestamp = time.Now().Add(-time.Hour).UnixMilli()

	f.engine.Handle(context.Background(), text("hello"))
	if f.session().State.Step != domain.StepWelcome {
		t.Fatalf("expected welcome after idle reset, got %s", f.session().State.Step)
	}
	if f.session().State.Location != nil {
		t.Fatal("stale location survived the reset")
	}
}

func TestIdleButtonTapActsOnPriorState(t *testing.T) {
	f := newFixture(t)
	f.showDeals(t)

	session := f.session()
	session.Timestamp = time.Now().Add(-31 * time.Minute).UnixMilli()

	f.engine.Handle(context.Background(), tap(idMoreDeals))

	if f.session().State.Step != domain.StepDealsShown {
		t.Fatalf("late tap must not reset the flow, got %s", f.session().State.Step)
	}
	if !strings.Contains(f.lastMessage(t).Body, "seen everything") {
		t.Fatalf("expected the deal search to run, got %q", f.lastMessage(t).Body)
	}
}

func TestDuplicateSuppressionIsOffByDefault(t *testing.T) {
	f := newFixture(t)
	f.engine.Handle(context.Background(), text("hi"))
	count := len(f.sender.messages)
	f.engine.Handle(context.Background(), text("hello"))
	if len(f.sender.messages) != count*2 {
		t.Fatalf("identical greeting should resend by default: %d then %d", count, len(f.sender.messages))
	}
}
