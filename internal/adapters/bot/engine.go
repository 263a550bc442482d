// Package bot hosts the conversation engine behind the WhatsApp webhook:
// routing, the consumer and operator state machines, and outbound
// delivery.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/adapters/detect"
	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
	"lobang-bot/internal/usecase/alerts"
	"lobang-bot/internal/usecase/creator"
	"lobang-bot/internal/usecase/deals"
	"lobang-bot/internal/usecase/location"
)

// InactivityReset is how long a conversation may idle before it restarts
// from the greeting.
const InactivityReset = 30 * time.Minute

// Sender delivers composed messages to a user.
type Sender interface {
	Send(ctx context.Context, to string, msg whatsapp.Message) error
}

// MediaDownloader fetches inbound media content by ID.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// OnceGuard runs fn at most once per key within a TTL. Used to rate-limit
// best-effort decorations.
type OnceGuard interface {
	Once(key string, ttl time.Duration, fn func() error) error
}

// Engine drives one webhook event through the conversation state machine
// and sends whatever the machine produced.
type Engine struct {
	cfg      domain.BotConfig
	sessions domain.SessionStore
	deals    *deals.Service
	location *location.Service
	alerts   *alerts.Service
	creator  *creator.Service
	chat     domain.ChatAI
	detector domain.DealClassifier
	fallback domain.DealClassifier
	sender   Sender
	media    MediaDownloader
	decor    OnceGuard
	dedup    whatsapp.Deduplicator
	maxTurns int
	log      zerolog.Logger
	now      func() time.Time
}

// Config bundles the engine dependencies.
type Config struct {
	Bot           domain.BotConfig
	Sessions      domain.SessionStore
	Deals         *deals.Service
	Location      *location.Service
	Alerts        *alerts.Service
	Creator       *creator.Service
	Chat          domain.ChatAI
	Detector      domain.DealClassifier
	Sender        Sender
	Media         MediaDownloader
	Decorations   OnceGuard
	SuppressDupes bool
	ChatMaxTurns  int
	Logger        zerolog.Logger
}

// NewEngine creates the engine.
func NewEngine(cfg Config) *Engine {
	maxTurns := cfg.ChatMaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Engine{
		cfg:      cfg.Bot,
		sessions: cfg.Sessions,
		deals:    cfg.Deals,
		location: cfg.Location,
		alerts:   cfg.Alerts,
		creator:  cfg.Creator,
		chat:     cfg.Chat,
		detector: cfg.Detector,
		fallback: detect.KeywordClassifier{},
		sender:   cfg.Sender,
		media:    cfg.Media,
		decor:    cfg.Decorations,
		dedup:    whatsapp.Deduplicator{Suppress: cfg.SuppressDupes},
		maxTurns: maxTurns,
		log:      cfg.Logger,
		now:      time.Now,
	}
}

// Handle processes one inbound event end to end: load the session, run
// the state machine, deliver the replies, persist the session. It never
// returns an error to the webhook; failures degrade into apology
// messages.
func (e *Engine) Handle(ctx context.Context, inb whatsapp.Inbound) {
	start := e.now()
	metrics.MessagesInbound.WithLabelValues(string(inb.Type)).Inc()

	session := e.sessions.Load(ctx, e.cfg.StoreID, inb.From)
	// Only a greeting restarts an idle conversation; a late button tap
	// still acts on the state it was offered in.
	if inb.Type == whatsapp.InboundText && isGreetingText(inb.Text) &&
		session.IdleSince(start) > InactivityReset && session.State.Step != domain.StepWelcome {
		e.log.Info().Str("user_id", inb.From).Str("step", string(session.State.Step)).Msg("idle session reset")
		session.State = domain.UserState{Step: domain.StepWelcome}
	}

	session.AppendConversation(domain.RoleUser, transcriptOf(inb))

	replies := e.dispatch(ctx, session, inb)

	for _, msg := range replies {
		hash := whatsapp.Fingerprint(msg)
		if !e.dedup.ShouldSend(session, hash) {
			metrics.OutboundSuppressed.Inc()
			continue
		}
		if err := e.sender.Send(ctx, inb.From, msg); err != nil {
			e.log.Error().Err(err).Str("user_id", inb.From).Str("type", string(msg.Type)).Msg("send failed")
			continue
		}
		e.dedup.Record(session, hash, msg.Type, e.now())
		metrics.MessagesOutbound.WithLabelValues(string(msg.Type)).Inc()
		if msg.Body != "" {
			session.AppendConversation(domain.RoleAssistant, msg.Body)
		}
	}

	session.Touch(e.now())
	e.sessions.Save(ctx, session)
	metrics.HandlerDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) dispatch(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if isOperatorStep(session.State.Step) {
		return e.handleOperator(ctx, session, inb)
	}
	// A fresh conversation that opens with something reading like a
	// promotion is a restaurant owner, not a deal hunter.
	if session.State.Step == domain.StepWelcome && inb.Type == whatsapp.InboundText && e.isDealSubmission(ctx, inb.Text) {
		return e.enterOperatorFlow(ctx, session, inb.Text)
	}
	return e.handleConsumer(ctx, session, inb)
}

func isOperatorStep(step domain.Step) bool {
	switch step {
	case domain.StepCollectRestaurantName, domain.StepRestaurantConfirmed,
		domain.StepCollectRestaurantImages, domain.StepCollectDealDetails,
		domain.StepGenerateContent, domain.StepContentGenerated, domain.StepContentApproved:
		return true
	}
	return false
}

// isDealSubmission prefers the model verdict and falls back to the
// keyword rule when the model is unavailable.
func (e *Engine) isDealSubmission(ctx context.Context, text string) bool {
	if e.detector != nil {
		isDeal, err := e.detector.IsDealSubmission(ctx, text)
		if err == nil {
			return isDeal
		}
		e.log.Warn().Err(err).Msg("deal classifier failed, using keyword rule")
	}
	isDeal, _ := e.fallback.IsDealSubmission(ctx, text)
	return isDeal
}

// sendDealTeaser pushes a best-effort "lobang of the day" extra alongside
// deal delivery, at most once per user per day. It runs detached and never
// blocks or fails the conversation.
func (e *Engine) sendDealTeaser(userID string, top domain.Deal) {
	if e.decor == nil {
		return
	}
	key := fmt.Sprintf("teaser:%s:%s", userID, e.now().Format("2006-01-02"))
	body := fmt.Sprintf("🌟 Lobang of the day: %s at %s!", top.Offer, top.BusinessName)
	go func() {
		err := e.decor.Once(key, 24*time.Hour, func() error {
			return e.sender.Send(context.Background(), userID, whatsapp.NewText(body))
		})
		if err != nil {
			e.log.Warn().Err(err).Str("user_id", userID).Msg("deal teaser failed")
		}
	}()
}

// transcriptOf renders an inbound event for the conversation log.
func transcriptOf(inb whatsapp.Inbound) string {
	switch inb.Type {
	case whatsapp.InboundInteractive:
		return fmt.Sprintf("[Selected: %s]", inb.InteractiveID)
	case whatsapp.InboundLocation:
		return fmt.Sprintf("[Shared location: %f,%f]", inb.Latitude, inb.Longitude)
	case whatsapp.InboundMedia:
		return "[Sent an image]"
	default:
		return inb.Text
	}
}
