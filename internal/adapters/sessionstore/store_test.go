package sessionstore

import (
	"fmt"
	"testing"

	"lobang-bot/internal/domain"
)

func TestCompactTrimsConversationTail(t *testing.T) {
	session := domain.NewSession("store", "user")
	for i := 0; i < domain.MaxConversationEntries+10; i++ {
		session.AppendConversation(domain.RoleUser, fmt.Sprintf("message %d", i))
	}

	Compact(session)

	if len(session.Conversation) != domain.MaxConversationEntries {
		t.Fatalf("expected %d entries, got %d", domain.MaxConversationEntries, len(session.Conversation))
	}
	last := session.Conversation[len(session.Conversation)-1]
	if last.Content != fmt.Sprintf("message %d", domain.MaxConversationEntries+9) {
		t.Fatalf("tail not kept, last entry %q", last.Content)
	}
}

func TestCompactDropsInvalidEntries(t *testing.T) {
	session := domain.NewSession("store", "user")
	session.Conversation = []domain.ConversationEntry{
		{Role: "", Content: "no role"},
		{Role: domain.RoleUser, Content: "   "},
		{Role: domain.RoleUser, Content: "keep"},
	}
	session.SentMessages = []domain.SentMessage{
		{Hash: "", Timestamp: 1},
		{Hash: "abc", Timestamp: 2},
	}

	Compact(session)

	if len(session.Conversation) != 1 || session.Conversation[0].Content != "keep" {
		t.Fatalf("unexpected conversation: %+v", session.Conversation)
	}
	if len(session.SentMessages) != 1 || session.SentMessages[0].Hash != "abc" {
		t.Fatalf("unexpected sent messages: %+v", session.SentMessages)
	}
}

func TestCompactDeduplicatesAndCapsSharedDeals(t *testing.T) {
	session := domain.NewSession("store", "user")
	for i := 0; i < domain.MaxSharedDealIDs+50; i++ {
		session.SharedDealIDs = append(session.SharedDealIDs, fmt.Sprintf("deal-%d", i))
	}
	session.SharedDealIDs = append(session.SharedDealIDs, "deal-5", "", "deal-7")

	Compact(session)

	if len(session.SharedDealIDs) != domain.MaxSharedDealIDs {
		t.Fatalf("expected %d ids, got %d", domain.MaxSharedDealIDs, len(session.SharedDealIDs))
	}
	seen := map[string]int{}
	for _, id := range session.SharedDealIDs {
		if id == "" {
			t.Fatal("empty id survived compaction")
		}
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("duplicate id %q survived compaction", id)
		}
	}
}

func TestCompactKeepsSessionsWithinBoundsUntouched(t *testing.T) {
	session := domain.NewSession("store", "user")
	session.AppendConversation(domain.RoleUser, "hi")
	session.SharedDealIDs = []string{"a", "b"}

	Compact(session)

	if len(session.Conversation) != 1 || len(session.SharedDealIDs) != 2 {
		t.Fatalf("in-bounds session mutated: %+v", session)
	}
}
