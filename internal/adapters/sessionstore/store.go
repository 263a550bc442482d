// Package sessionstore persists conversational sessions in Redis with a
// primary and a fallback keyspace. The fallback absorbs permission-denied
// replies from the primary so a misconfigured ACL degrades writes instead
// of breaking conversations.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// DefaultTTL re-arms on every save.
const DefaultTTL = 24 * time.Hour

// Store implements domain.SessionStore on Redis.
type Store struct {
	client   *redis.Client
	log      zerolog.Logger
	primary  string
	fallback string
	ttl      time.Duration
}

// New creates a session store. Table names become key prefixes; the
// primary keys by user ID, the fallback by the composite session ID.
func New(client *redis.Client, logger zerolog.Logger, primaryTable, fallbackTable string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client:   client,
		log:      logger.With().Str("component", "sessionstore").Logger(),
		primary:  primaryTable,
		fallback: fallbackTable,
		ttl:      ttl,
	}
}

var _ domain.SessionStore = (*Store)(nil)

// Load fetches a session, falling back to the secondary keyspace and
// finally to a fresh default. It never fails the caller.
func (s *Store) Load(ctx context.Context, storeID, userID string) *domain.Session {
	fresh := domain.NewSession(storeID, userID)

	data, err := s.client.Get(ctx, s.primaryKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		data, err = s.client.Get(ctx, s.fallbackKey(fresh.SessionID())).Bytes()
		if errors.Is(err, redis.Nil) {
			return fresh
		}
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("session load failed, starting fresh")
		return fresh
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("session decode failed, starting fresh")
		return fresh
	}
	session.StoreID = storeID
	session.UserID = userID
	if session.State.Step == "" {
		session.State.Step = domain.StepWelcome
	}
	return &session
}

// Save applies the bounded-length invariants, re-arms the TTL and persists
// the session. Storage errors are logged and swallowed.
func (s *Store) Save(ctx context.Context, session *domain.Session) {
	if session == nil {
		return
	}
	Compact(session)
	session.TTLSeconds = int64(s.ttl.Seconds())

	data, err := json.Marshal(session)
	if err != nil {
		s.log.Error().Err(err).Str("user", session.UserID).Msg("session encode failed")
		return
	}

	err = s.client.Set(ctx, s.primaryKey(session.UserID), data, s.ttl).Err()
	if isAccessDenied(err) {
		metrics.SessionFallbackWrites.Inc()
		s.log.Warn().Str("user", session.UserID).Msg("primary session table denied, using fallback")
		err = s.client.Set(ctx, s.fallbackKey(session.SessionID()), data, s.ttl).Err()
	}
	if err != nil {
		s.log.Error().Err(err).Str("user", session.UserID).Msg("session save failed")
	}
}

func (s *Store) primaryKey(userID string) string {
	return s.primary + ":" + userID
}

func (s *Store) fallbackKey(sessionID string) string {
	return s.fallback + ":" + sessionID
}

// Compact enforces the session bounds: it drops entries missing required
// fields, deduplicates shared deal IDs, and trims each sequence to its cap
// keeping the most recent entries.
func Compact(session *domain.Session) {
	conversation := session.Conversation[:0]
	for _, entry := range session.Conversation {
		if entry.Role == "" || strings.TrimSpace(entry.Content) == "" {
			continue
		}
		conversation = append(conversation, entry)
	}
	session.Conversation = tailConversation(conversation, domain.MaxConversationEntries)

	sent := session.SentMessages[:0]
	for _, msg := range session.SentMessages {
		if msg.Hash == "" {
			continue
		}
		sent = append(sent, msg)
	}
	session.SentMessages = tailSent(sent, domain.MaxSentMessages)

	seen := make(map[string]struct{}, len(session.SharedDealIDs))
	shared := session.SharedDealIDs[:0]
	for _, id := range session.SharedDealIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		shared = append(shared, id)
	}
	if len(shared) > domain.MaxSharedDealIDs {
		shared = shared[len(shared)-domain.MaxSharedDealIDs:]
	}
	session.SharedDealIDs = shared
}

func tailConversation(entries []domain.ConversationEntry, limit int) []domain.ConversationEntry {
	if len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}

func tailSent(entries []domain.SentMessage, limit int) []domain.SentMessage {
	if len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}

func isAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrAccessDenied) {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "NOPERM") || strings.Contains(msg, "PERMISSION DENIED")
}
