package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
)

// Interactive IDs the operator flow emits and recognizes.
const (
	idRestaurantConfirm = "rest_confirm"
	idRestaurantRetry   = "rest_retry"
	idImagesDone        = "images_done"
	idGenerateStart     = "gen_start"
	idGenerateStatus    = "gen_status"
	idGenerateApprove   = "gen_approve"
	idGenerateRetry     = "gen_retry"
	idOperatorDone      = "op_done"
)

// enterOperatorFlow starts the marketing flow for a restaurant owner who
// opened with a deal description. A known profile skips the
// identification steps entirely.
func (e *Engine) enterOperatorFlow(ctx context.Context, session *domain.Session, dealText string) []whatsapp.Message {
	session.State = domain.UserState{DealText: dealText}

	profile, err := e.creator.Profile(ctx, session.UserID)
	if err == nil {
		session.State.Restaurant = &domain.RestaurantCandidate{
			Name:      profile.Name,
			PlaceID:   profile.PlaceID,
			Address:   profile.Address,
			Latitude:  profile.Latitude,
			Longitude: profile.Longitude,
		}
		session.State.ImageCount = len(profile.UploadedImages)
		session.State.Step = domain.StepGenerateContent
		return []whatsapp.Message{whatsapp.NewButtons(
			fmt.Sprintf("Welcome back, %s! 👨‍🍳 That sounds like a tasty deal. Ready to turn it into marketing content?", profile.Name),
			[]whatsapp.Button{
				{ID: idGenerateStart, Title: "Generate 🎨"},
				{ID: idOperatorDone, Title: "Not now"},
			},
		)}
	}
	if !errors.Is(err, domain.ErrNotFound) {
		e.log.Warn().Err(err).Str("user_id", session.UserID).Msg("load profile failed")
	}

	session.State.Step = domain.StepCollectRestaurantName
	return []whatsapp.Message{whatsapp.NewText(
		"Ooh, that sounds like a deal you're promoting! 👀 I can whip up marketing content for it.\n\nFirst things first — what's your restaurant called?",
	)}
}

func (e *Engine) handleOperator(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	switch session.State.Step {
	case domain.StepCollectRestaurantName:
		return e.onCollectName(ctx, session, inb)
	case domain.StepRestaurantConfirmed, domain.StepCollectRestaurantImages:
		return e.onCollectImages(ctx, session, inb)
	case domain.StepCollectDealDetails:
		return e.onCollectDealDetails(ctx, session, inb)
	case domain.StepGenerateContent:
		return e.onGenerateContent(ctx, session, inb)
	case domain.StepContentGenerated:
		return e.onContentGenerated(ctx, session, inb)
	case domain.StepContentApproved:
		return e.onContentApproved(ctx, session, inb)
	default:
		session.State = domain.UserState{Step: domain.StepWelcome}
		return e.greeting()
	}
}

func (e *Engine) onCollectName(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive {
		switch inb.InteractiveID {
		case idRestaurantConfirm:
			return e.confirmRestaurant(ctx, session)
		case idRestaurantRetry:
			session.State.Restaurant = nil
			return []whatsapp.Message{whatsapp.NewText("No problem — what's the exact name of your restaurant?")}
		}
	}
	if inb.Type != whatsapp.InboundText || strings.TrimSpace(inb.Text) == "" {
		return []whatsapp.Message{whatsapp.NewText("Just type your restaurant's name and I'll look it up. 🔎")}
	}

	candidate, err := e.creator.Identify(ctx, inb.Text)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []whatsapp.Message{whatsapp.NewText(
				fmt.Sprintf("I couldn't find \"%s\" on the map. 😕 Could you try the full name, maybe with the area?", strings.TrimSpace(inb.Text)),
			)}
		}
		e.log.Error().Err(err).Msg("identify restaurant failed")
		return e.apology()
	}

	session.State.Restaurant = &candidate
	messages := make([]whatsapp.Message, 0, 3)
	for _, photo := range candidate.Photos {
		messages = append(messages, whatsapp.NewImage(photo, ""))
	}
	messages = append(messages, whatsapp.NewButtons(
		fmt.Sprintf("Found it! Is this your place?\n\n*%s*\n📍 %s", candidate.Name, candidate.Address),
		[]whatsapp.Button{
			{ID: idRestaurantConfirm, Title: "Yes, that's us ✅"},
			{ID: idRestaurantRetry, Title: "No, try again"},
		},
	))
	return messages
}

func (e *Engine) confirmRestaurant(ctx context.Context, session *domain.Session) []whatsapp.Message {
	if session.State.Restaurant == nil {
		session.State.Step = domain.StepCollectRestaurantName
		return []whatsapp.Message{whatsapp.NewText("What's your restaurant called?")}
	}
	profile, err := e.creator.ConfirmProfile(ctx, session.UserID, *session.State.Restaurant)
	if err != nil {
		e.log.Error().Err(err).Msg("confirm profile failed")
		return e.apology()
	}
	session.State.Step = domain.StepCollectRestaurantImages
	session.State.ImageCount = len(profile.UploadedImages)
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Great, %s is on file! 📸 Now send me up to %d photos of your food or your place — they make the content pop. Or skip straight ahead.", profile.Name, domain.MaxUploadedImages),
		[]whatsapp.Button{{ID: idImagesDone, Title: "Skip photos"}},
	)}
}

func (e *Engine) onCollectImages(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive && inb.InteractiveID == idImagesDone {
		return e.advanceToDealDetails(session)
	}
	if inb.Type == whatsapp.InboundText {
		switch strings.ToLower(strings.TrimSpace(inb.Text)) {
		case "done", "skip":
			return e.advanceToDealDetails(session)
		}
	}
	if inb.Type != whatsapp.InboundMedia {
		return []whatsapp.Message{whatsapp.NewButtons(
			"Send a photo, or tap below when you're done. 📸",
			[]whatsapp.Button{{ID: idImagesDone, Title: "Done with photos"}},
		)}
	}

	profile, err := e.creator.Profile(ctx, session.UserID)
	if err != nil {
		e.log.Error().Err(err).Msg("load profile for upload failed")
		return e.apology()
	}
	data, mime, err := e.media.DownloadMedia(ctx, inb.MediaID)
	if err != nil {
		e.log.Error().Err(err).Str("media_id", inb.MediaID).Msg("download media failed")
		return []whatsapp.Message{whatsapp.NewText("I couldn't grab that photo. 😓 Mind sending it again?")}
	}

	profile, ok, err := e.creator.AddImage(ctx, profile, data, mime)
	if err != nil {
		e.log.Error().Err(err).Msg("store image failed")
		return e.apology()
	}
	session.State.ImageCount = len(profile.UploadedImages)
	if !ok || session.State.ImageCount >= domain.MaxUploadedImages {
		messages := []whatsapp.Message{whatsapp.NewText(
			fmt.Sprintf("That's %d photos — plenty to work with! 🙌", session.State.ImageCount),
		)}
		return append(messages, e.advanceToDealDetails(session)...)
	}
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Got it! %d of %d photos saved. Send more, or wrap up.", session.State.ImageCount, domain.MaxUploadedImages),
		[]whatsapp.Button{{ID: idImagesDone, Title: "Done with photos"}},
	)}
}

// advanceToDealDetails moves on after photos. A deal captured at flow
// entry skips straight to the generation prompt.
func (e *Engine) advanceToDealDetails(session *domain.Session) []whatsapp.Message {
	if strings.TrimSpace(session.State.DealText) != "" {
		session.State.Step = domain.StepGenerateContent
		return e.generatePrompt(session)
	}
	session.State.Step = domain.StepCollectDealDetails
	return []whatsapp.Message{whatsapp.NewText(
		"Now tell me about the deal you want to promote — the offer, the price, how long it runs. ✍️",
	)}
}

func (e *Engine) onCollectDealDetails(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type != whatsapp.InboundText || strings.TrimSpace(inb.Text) == "" {
		return []whatsapp.Message{whatsapp.NewText("Type out the deal details and I'll take it from there. ✍️")}
	}
	if !e.isDealSubmission(ctx, inb.Text) {
		return []whatsapp.Message{whatsapp.NewText(
			"Hmm, that doesn't read like a deal to me. 🤔 Try something like \"1-for-1 laksa every weekday lunch, $8.90\".",
		)}
	}
	session.State.DealText = strings.TrimSpace(inb.Text)
	session.State.Step = domain.StepGenerateContent
	return e.generatePrompt(session)
}

func (e *Engine) generatePrompt(session *domain.Session) []whatsapp.Message {
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Here's the deal I've got:\n\n_%s_\n\nShall I create the marketing content?", session.State.DealText),
		[]whatsapp.Button{
			{ID: idGenerateStart, Title: "Generate 🎨"},
			{ID: idOperatorDone, Title: "Not now"},
		},
	)}
}

func (e *Engine) onGenerateContent(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundText && strings.TrimSpace(inb.Text) != "" {
		// New text at the confirmation prompt replaces the deal.
		return e.onCollectDealDetails(ctx, session, inb)
	}
	if inb.Type != whatsapp.InboundInteractive {
		return e.generatePrompt(session)
	}
	switch inb.InteractiveID {
	case idGenerateStart, idGenerateRetry:
		jobID, err := e.creator.StartGeneration(ctx, e.cfg.StoreID, session.UserID, session.State.DealText)
		if err != nil {
			e.log.Error().Err(err).Msg("start generation failed")
			return e.apology()
		}
		session.State.GenerationJobID = jobID
		session.State.Step = domain.StepContentGenerated
		return []whatsapp.Message{whatsapp.NewButtons(
			"On it! 🎨 The content is cooking — this usually takes a minute or two.",
			[]whatsapp.Button{{ID: idGenerateStatus, Title: "Check status 🔄"}},
		)}
	case idOperatorDone:
		session.State = domain.UserState{Step: domain.StepWelcome}
		return []whatsapp.Message{whatsapp.NewText("No worries! Message me your deal any time you want content made. 👋")}
	}
	return e.generatePrompt(session)
}

func (e *Engine) onContentGenerated(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive && inb.InteractiveID == idGenerateApprove {
		session.State.Step = domain.StepContentApproved
		return []whatsapp.Message{whatsapp.NewText(
			"Love it! ✅ Your content is approved and ready to post. Come back any time you've got a new deal to shout about!",
		)}
	}
	if inb.Type == whatsapp.InboundInteractive && inb.InteractiveID == idGenerateRetry {
		return e.onGenerateContent(ctx, session, inb)
	}

	status, err := e.creator.PollGeneration(ctx, session.State.GenerationJobID)
	if err != nil {
		e.log.Error().Err(err).Str("job_id", session.State.GenerationJobID).Msg("poll generation failed")
		return e.apology()
	}
	switch status.State {
	case domain.GenerationQueued, domain.GenerationRunning:
		return []whatsapp.Message{whatsapp.NewButtons(
			"Still cooking! 🍳 Give it a moment and check again.",
			[]whatsapp.Button{{ID: idGenerateStatus, Title: "Check status 🔄"}},
		)}
	case domain.GenerationDone:
		return []whatsapp.Message{
			whatsapp.NewImage(status.AssetURL, "Fresh out of the oven! 🎉"),
			whatsapp.NewButtons(
				"What do you think?",
				[]whatsapp.Button{
					{ID: idGenerateApprove, Title: "Approve ✅"},
					{ID: idGenerateRetry, Title: "Regenerate 🔄"},
				},
			),
		}
	default:
		session.State.Step = domain.StepGenerateContent
		return []whatsapp.Message{whatsapp.NewButtons(
			"Ah, the generation hit a snag. 😓 Want me to try again?",
			[]whatsapp.Button{
				{ID: idGenerateStart, Title: "Try again 🔄"},
				{ID: idOperatorDone, Title: "Maybe later"},
			},
		)}
	}
}

func (e *Engine) onContentApproved(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundText && e.isDealSubmission(ctx, inb.Text) {
		return e.enterOperatorFlow(ctx, session, inb.Text)
	}
	session.State = domain.UserState{Step: domain.StepWelcome}
	return append(
		[]whatsapp.Message{whatsapp.NewText("All wrapped up here! Send me a new deal whenever you're ready. 🚀")},
		e.greeting()...,
	)
}
