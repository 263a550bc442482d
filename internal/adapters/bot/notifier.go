package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// Notifier pushes bot-initiated messages outside the webhook cycle:
// daily alert digests and finished generation assets.
type Notifier struct {
	sender Sender
	log    zerolog.Logger
}

// NewNotifier creates the push-message sender.
func NewNotifier(sender Sender, logger zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, log: logger}
}

// SendAlertDeals delivers an alert's deals to the user.
func (n *Notifier) SendAlertDeals(ctx context.Context, storeID, userID, category string, found []domain.Deal) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Your daily %s lobangs are in! 🔔\n", strings.ToLower(category))
	for i, d := range found {
		fmt.Fprintf(&b, "\n%d. *%s*\n   %s\n", i+1, d.BusinessName, d.Offer)
		if d.Address != "" {
			fmt.Fprintf(&b, "   📍 %s\n", d.Address)
		}
	}
	msg := whatsapp.NewText(b.String())
	if err := n.sender.Send(ctx, userID, msg); err != nil {
		return fmt.Errorf("send alert deals: %w", err)
	}
	metrics.MessagesOutbound.WithLabelValues(string(msg.Type)).Inc()
	return nil
}

// SendGeneratedAsset delivers a finished marketing asset to the operator.
func (n *Notifier) SendGeneratedAsset(ctx context.Context, storeID, userID, assetURL, caption string) error {
	msg := whatsapp.NewImage(assetURL, caption)
	if err := n.sender.Send(ctx, userID, msg); err != nil {
		return fmt.Errorf("send generated asset: %w", err)
	}
	metrics.MessagesOutbound.WithLabelValues(string(msg.Type)).Inc()
	return nil
}
