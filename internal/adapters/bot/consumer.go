package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
)

// Interactive IDs the consumer flow emits and recognizes.
const (
	idShareLocation    = "share_location"
	idSearchByName     = "search_name"
	idPopularPlaces    = "popular_places"
	idCategoryPrefix   = "cat:"
	idPlacePrefix      = "place:"
	idPopularPrefix    = "pop:"
	idMoreDeals        = "more_deals"
	idSetAlert         = "set_alert"
	idChatMode         = "chat_mode"
	idAlertTimePrefix  = "alert_time:"
	idAlertConfirm     = "alert_confirm"
	idAlertCancel      = "alert_cancel"
	idBackToCategories = "back_categories"
)

var alertTimeChoices = []string{"09:00", "12:00", "18:00", "21:00"}

// greetingWords are the openers that repeat the welcome instead of being
// treated as a typed location.
var greetingWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "yo": {}, "halo": {}, "hai": {},
	"start": {}, "good morning": {}, "good afternoon": {}, "good evening": {},
}

func isGreetingText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, "!.?,~ ")
	_, ok := greetingWords[t]
	return ok
}

func (e *Engine) handleConsumer(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	switch session.State.Step {
	case domain.StepWelcome, "":
		return e.onWelcome(ctx, session, inb)
	case domain.StepLocationSearch:
		return e.onLocationSearch(ctx, session, inb)
	case domain.StepLocationConfirmed:
		return e.onLocationConfirmed(ctx, session, inb)
	case domain.StepSearchingDeals:
		// Transitional step. A message arriving here means the user got
		// ahead of a search in flight; rerun it for them.
		return e.searchAndShow(ctx, session)
	case domain.StepDealsShown:
		return e.onDealsShown(ctx, session, inb)
	case domain.StepChatMode:
		return e.onChatMode(ctx, session, inb)
	case domain.StepAlertSetup:
		return e.onAlertSetup(session, inb)
	case domain.StepAlertTimeSelected:
		return e.onAlertTimeSelected(ctx, session, inb)
	case domain.StepAlertCreated:
		return e.onAlertCreated(ctx, session, inb)
	default:
		session.State = domain.UserState{Step: domain.StepWelcome}
		return e.greeting()
	}
}

func (e *Engine) greeting() []whatsapp.Message {
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Hey! 👋 I'm your lobang buddy — I dig up the best deals in %s.\n\nWhere should I look?", e.cfg.CountryName),
		[]whatsapp.Button{
			{ID: idShareLocation, Title: "Share Location 📍"},
			{ID: idSearchByName, Title: "Search by Name 🔎"},
			{ID: idPopularPlaces, Title: "Popular Places ⭐"},
		},
		whatsapp.WithHeader("Lobang Bot"),
	)}
}

// onWelcome handles the entry state: a location signal in any form moves
// the flow forward, a greeting repeats the welcome.
func (e *Engine) onWelcome(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	switch inb.Type {
	case whatsapp.InboundLocation:
		return e.onGPS(ctx, session, inb)

	case whatsapp.InboundInteractive:
		switch {
		case inb.InteractiveID == idShareLocation:
			return []whatsapp.Message{whatsapp.NewText("Tap the 📎 attach button and share your location — I'll take it from there!")}
		case inb.InteractiveID == idSearchByName:
			return []whatsapp.Message{whatsapp.NewText("Type the name of an area or place and I'll find it. 🔎")}
		case inb.InteractiveID == idPopularPlaces:
			return e.popularList("Pick one of these popular spots! ⭐")
		case strings.HasPrefix(inb.InteractiveID, idPopularPrefix):
			return e.pickPopular(ctx, session, inb.InteractiveID)
		case strings.HasPrefix(inb.InteractiveID, idPlacePrefix):
			return e.pickSuggestion(ctx, session, inb.InteractiveID)
		}
		return e.greeting()

	case whatsapp.InboundText:
		if isGreetingText(inb.Text) {
			return e.greeting()
		}
		return e.suggestLocations(ctx, session, inb.Text)
	}
	return e.greeting()
}

// suggestLocations turns typed text into a pickable suggestion list and
// moves to location_search. An out-of-country best match keeps the state
// and explains the coverage.
func (e *Engine) suggestLocations(ctx context.Context, session *domain.Session, query string) []whatsapp.Message {
	suggestions, err := e.location.ResolveText(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrNotInCountry) {
			return e.onlyWorksHere()
		}
		e.log.Warn().Err(err).Str("query", query).Msg("autocomplete failed")
	}
	if len(suggestions) == 0 {
		session.State.Step = domain.StepWelcome
		return append(
			[]whatsapp.Message{whatsapp.NewText("Hmm, I couldn't place that. 🤔 Try one of these popular spots:")},
			e.popularList("Pick a spot")...,
		)
	}

	rows := make([]whatsapp.ListRow, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, whatsapp.ListRow{
			ID:          idPlacePrefix + s.PlaceID,
			Title:       s.DisplayName,
			Description: s.FormattedAddress,
		})
	}
	session.State.Step = domain.StepLocationSearch
	return []whatsapp.Message{whatsapp.NewList(
		"Which of these did you mean?",
		"Pick a place",
		[]whatsapp.ListSection{{Rows: rows}},
	)}
}

// onlyWorksHere is the coverage message for out-of-country locations. The
// state is left untouched so the user can just try another spot.
func (e *Engine) onlyWorksHere() []whatsapp.Message {
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Sorry, this bot only works in %s for now! 🇸🇬 Pick a spot here instead?", e.cfg.CountryName),
		[]whatsapp.Button{
			{ID: idShareLocation, Title: "Share Location 📍"},
			{ID: idSearchByName, Title: "Search by Name 🔎"},
			{ID: idPopularPlaces, Title: "Popular Places ⭐"},
		},
	)}
}

func (e *Engine) popularList(body string) []whatsapp.Message {
	rows := make([]whatsapp.ListRow, 0, len(e.location.Popular()))
	for _, place := range e.location.Popular() {
		rows = append(rows, whatsapp.ListRow{ID: idPopularPrefix + place.Name, Title: place.Name})
	}
	return []whatsapp.Message{whatsapp.NewList(
		body,
		"Popular spots",
		[]whatsapp.ListSection{{Title: "Popular spots", Rows: rows}},
	)}
}

func (e *Engine) onGPS(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	loc, err := e.location.ResolveGPS(ctx, inb.Latitude, inb.Longitude)
	if err != nil {
		if errors.Is(err, domain.ErrNotInCountry) {
			return e.onlyWorksHere()
		}
		e.log.Error().Err(err).Msg("resolve gps failed")
		return e.apology()
	}
	return e.confirmLocation(session, loc)
}

func (e *Engine) pickSuggestion(ctx context.Context, session *domain.Session, interactiveID string) []whatsapp.Message {
	placeID := strings.TrimPrefix(interactiveID, idPlacePrefix)
	loc, err := e.location.ResolveSuggestion(ctx, placeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotInCountry) {
			return e.onlyWorksHere()
		}
		e.log.Error().Err(err).Str("place_id", placeID).Msg("resolve suggestion failed")
		return e.apology()
	}
	return e.confirmLocation(session, loc)
}

func (e *Engine) pickPopular(ctx context.Context, session *domain.Session, interactiveID string) []whatsapp.Message {
	name := strings.TrimPrefix(interactiveID, idPopularPrefix)
	loc, ok := e.location.ResolvePopular(name)
	if !ok {
		return e.popularList("Pick one of these popular spots! ⭐")
	}
	return e.confirmLocation(session, loc)
}

func (e *Engine) onLocationSearch(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	switch inb.Type {
	case whatsapp.InboundLocation:
		return e.onGPS(ctx, session, inb)

	case whatsapp.InboundInteractive:
		switch {
		case strings.HasPrefix(inb.InteractiveID, idPlacePrefix):
			return e.pickSuggestion(ctx, session, inb.InteractiveID)
		case strings.HasPrefix(inb.InteractiveID, idPopularPrefix):
			return e.pickPopular(ctx, session, inb.InteractiveID)
		}
		return []whatsapp.Message{whatsapp.NewText("Pick one of the places above, or type another area. 📍")}

	case whatsapp.InboundText:
		return e.suggestLocations(ctx, session, inb.Text)
	}
	return []whatsapp.Message{whatsapp.NewText("Pick one of the places above, or type another area. 📍")}
}

// confirmLocation stores the resolved location and asks for a category.
func (e *Engine) confirmLocation(session *domain.Session, loc domain.Location) []whatsapp.Message {
	session.State.Location = &loc
	session.State.Step = domain.StepLocationConfirmed
	return e.askCategories(loc.DisplayName)
}

func (e *Engine) askCategories(area string) []whatsapp.Message {
	buttons := make([]whatsapp.Button, 0, len(e.cfg.Categories))
	for _, cat := range e.cfg.Categories {
		buttons = append(buttons, whatsapp.Button{ID: idCategoryPrefix + cat, Title: cat})
	}
	return []whatsapp.Message{whatsapp.NewButtons(
		fmt.Sprintf("Got it, %s! 📍 What kind of lobangs are you hunting for?", area),
		buttons,
	)}
}

func (e *Engine) onLocationConfirmed(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundLocation {
		// A fresh pin replaces the previous pick.
		return e.onGPS(ctx, session, inb)
	}
	if inb.Type == whatsapp.InboundInteractive && strings.HasPrefix(inb.InteractiveID, idCategoryPrefix) {
		category := strings.TrimPrefix(inb.InteractiveID, idCategoryPrefix)
		if !e.validCategory(category) {
			e.log.Warn().Err(domain.ErrUnknownCategory).Str("category", category).Msg("category selection rejected")
			return e.askCategories(locationName(session.State.Location))
		}
		session.State.Category = category
		session.State.Step = domain.StepSearchingDeals
		return e.searchAndShow(ctx, session)
	}
	return e.askCategories(locationName(session.State.Location))
}

func (e *Engine) validCategory(category string) bool {
	for _, cat := range e.cfg.Categories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}

// searchAndShow runs deal discovery for the confirmed location and
// presents the results with follow-up actions.
func (e *Engine) searchAndShow(ctx context.Context, session *domain.Session) []whatsapp.Message {
	state := &session.State
	if state.Location == nil {
		state.Step = domain.StepWelcome
		return e.greeting()
	}
	if state.Category == "" {
		state.Step = domain.StepLocationConfirmed
		return e.askCategories(state.Location.DisplayName)
	}

	found, err := e.deals.Search(ctx, *state.Location, state.Category, e.cfg.MaxDeals, session.SharedSet())
	if err != nil {
		e.log.Error().Err(err).Str("category", state.Category).Msg("deal search failed")
		state.Step = domain.StepDealsShown
		return []whatsapp.Message{whatsapp.NewButtons(
			fmt.Sprintf("I struck out looking for %s deals near %s just now. 😓 Want me to try again?", strings.ToLower(state.Category), state.Location.DisplayName),
			[]whatsapp.Button{
				{ID: idMoreDeals, Title: "Try again 🔄"},
				{ID: idBackToCategories, Title: "Change category"},
			},
		)}
	}
	if len(found) == 0 {
		state.Step = domain.StepDealsShown
		return []whatsapp.Message{whatsapp.NewButtons(
			fmt.Sprintf("No fresh %s deals near %s right now — you've seen everything I've got! 🙈", strings.ToLower(state.Category), state.Location.DisplayName),
			[]whatsapp.Button{
				{ID: idSetAlert, Title: "Alert me daily 🔔"},
				{ID: idBackToCategories, Title: "Change category"},
			},
		)}
	}

	state.LastDeals = found
	state.Step = domain.StepDealsShown
	session.MarkShared(found)
	e.sendDealTeaser(session.UserID, found[0])

	messages := []whatsapp.Message{e.composeDeals(state.Location.DisplayName, found)}
	messages = append(messages, whatsapp.NewButtons(
		"What's next?",
		[]whatsapp.Button{
			{ID: idMoreDeals, Title: "More deals 🔍"},
			{ID: idSetAlert, Title: "Alert me daily 🔔"},
			{ID: idChatMode, Title: "Just chat 💬"},
		},
	))
	return messages
}

// composeDeals renders deals as one card. Curated catalog deals become a
// product message when a catalog is provisioned; everything else is text.
func (e *Engine) composeDeals(area string, found []domain.Deal) whatsapp.Message {
	if e.cfg.CatalogID != "" && allFromDatastore(found) {
		ids := make([]string, 0, len(found))
		for _, d := range found {
			ids = append(ids, d.DealID)
		}
		return whatsapp.NewCatalog(
			fmt.Sprintf("Here's what I found near %s! 🎉", area),
			e.cfg.CatalogID,
			ids,
			whatsapp.WithHeader("Deals near "+area),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found near %s! 🎉\n", area)
	for i, d := range found {
		fmt.Fprintf(&b, "\n%d. *%s*\n   %s\n", i+1, d.BusinessName, d.Offer)
		if d.Address != "" {
			fmt.Fprintf(&b, "   📍 %s\n", d.Address)
		}
		if d.Validity != "" {
			fmt.Fprintf(&b, "   ⏰ %s\n", d.Validity)
		}
	}
	return whatsapp.NewText(b.String())
}

func allFromDatastore(found []domain.Deal) bool {
	for _, d := range found {
		if d.Source != domain.DealSourceDatastore || d.DealID == "" {
			return false
		}
	}
	return len(found) > 0
}

func (e *Engine) onDealsShown(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive {
		switch inb.InteractiveID {
		case idMoreDeals:
			return e.searchAndShow(ctx, session)
		case idSetAlert:
			session.State.Step = domain.StepAlertSetup
			return e.askAlertTime()
		case idChatMode:
			return e.enterChatMode(session)
		case idBackToCategories:
			session.State.Category = ""
			session.State.LastDeals = nil
			return e.searchAndShow(ctx, session)
		}
	}
	if inb.Type == whatsapp.InboundText {
		// Free text after deals puts the user straight into chat mode.
		if len(session.State.LastDeals) == 0 {
			return e.chatNeedsDeals()
		}
		session.State.Step = domain.StepChatMode
		session.State.ChatInteractions = 0
		return e.onChatMode(ctx, session, inb)
	}
	return e.searchAndShow(ctx, session)
}

// enterChatMode opens free chat, which needs deals on the table to talk
// about.
func (e *Engine) enterChatMode(session *domain.Session) []whatsapp.Message {
	if len(session.State.LastDeals) == 0 {
		return e.chatNeedsDeals()
	}
	session.State.Step = domain.StepChatMode
	session.State.ChatInteractions = 0
	return []whatsapp.Message{whatsapp.NewText("Sure, let's chat! Ask me anything about deals, food or what's happening around. 💬")}
}

func (e *Engine) chatNeedsDeals() []whatsapp.Message {
	return []whatsapp.Message{whatsapp.NewButtons(
		"Let's find you some deals first, then we can chat about them! 🔍",
		[]whatsapp.Button{
			{ID: idMoreDeals, Title: "Find deals 🔍"},
			{ID: idBackToCategories, Title: "Change category"},
		},
	)}
}

func (e *Engine) onChatMode(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive {
		return e.onDealsShown(ctx, session, inb)
	}
	if inb.Type != whatsapp.InboundText {
		return []whatsapp.Message{whatsapp.NewText("Just type your question and I'll do my best! 💬")}
	}
	if strings.EqualFold(strings.TrimSpace(inb.Text), "exit") {
		session.State.ChatInteractions = 0
		session.State.Step = domain.StepDealsShown
		return []whatsapp.Message{whatsapp.NewButtons(
			"Back to the deals! What would you like to do?",
			[]whatsapp.Button{
				{ID: idMoreDeals, Title: "More deals 🔍"},
				{ID: idSetAlert, Title: "Alert me daily 🔔"},
				{ID: idBackToCategories, Title: "Change category"},
			},
		)}
	}

	session.State.ChatInteractions++
	if session.State.ChatInteractions > e.maxTurns {
		session.State = domain.UserState{Step: domain.StepWelcome}
		return append(
			[]whatsapp.Message{whatsapp.NewText("That was a good chat! 😄 Let's start fresh.")},
			e.greeting()...,
		)
	}

	system := fmt.Sprintf(
		"You are a friendly local deals assistant for %s. Keep replies short, casual and helpful. The user was last looking at %s deals near %s.",
		e.cfg.CountryName, session.State.Category, locationName(session.State.Location),
	)
	reply, err := e.chat.Reply(ctx, system, session.Conversation, 500)
	if err != nil {
		e.log.Warn().Err(err).Msg("chat reply failed")
		return []whatsapp.Message{whatsapp.NewText("My brain froze for a second there. 🥶 Try asking again?")}
	}
	return []whatsapp.Message{whatsapp.NewText(reply)}
}

func locationName(loc *domain.Location) string {
	if loc == nil {
		return "town"
	}
	return loc.DisplayName
}

func (e *Engine) askAlertTime() []whatsapp.Message {
	rows := make([]whatsapp.ListRow, 0, len(alertTimeChoices))
	for _, t := range alertTimeChoices {
		rows = append(rows, whatsapp.ListRow{ID: idAlertTimePrefix + t, Title: t})
	}
	return []whatsapp.Message{whatsapp.NewList(
		"I can ping you once a day with fresh deals. 🔔 When should I drop by?",
		"Pick a time",
		[]whatsapp.ListSection{{Rows: rows}},
	)}
}

func (e *Engine) onAlertSetup(session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive && strings.HasPrefix(inb.InteractiveID, idAlertTimePrefix) {
		session.State.AlertTime = strings.TrimPrefix(inb.InteractiveID, idAlertTimePrefix)
		session.State.Step = domain.StepAlertTimeSelected
		return []whatsapp.Message{whatsapp.NewButtons(
			fmt.Sprintf("Daily %s deals near %s at %s — sound good?", strings.ToLower(session.State.Category), locationName(session.State.Location), session.State.AlertTime),
			[]whatsapp.Button{
				{ID: idAlertConfirm, Title: "Confirm ✅"},
				{ID: idAlertCancel, Title: "Cancel"},
			},
		)}
	}
	return e.askAlertTime()
}

func (e *Engine) onAlertTimeSelected(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type != whatsapp.InboundInteractive {
		return e.onAlertSetup(session, inb)
	}
	switch inb.InteractiveID {
	case idAlertConfirm:
		state := &session.State
		if state.Location == nil {
			state.Step = domain.StepWelcome
			return e.greeting()
		}
		alert, err := e.alerts.Create(ctx, e.cfg.StoreID, session.UserID, *state.Location, state.Category, state.AlertTime, e.cfg.Timezone)
		if err != nil {
			e.log.Error().Err(err).Msg("create alert failed")
			return e.apology()
		}
		state.Step = domain.StepAlertCreated
		return []whatsapp.Message{whatsapp.NewButtons(
			fmt.Sprintf("Done! 🎉 I'll send you %s deals near %s every day at %s.", strings.ToLower(alert.Category), locationName(state.Location), alert.PreferredTime),
			[]whatsapp.Button{
				{ID: idMoreDeals, Title: "More deals 🔍"},
				{ID: idBackToCategories, Title: "Change category"},
			},
		)}
	case idAlertCancel:
		session.State.AlertTime = ""
		session.State.Step = domain.StepDealsShown
		return []whatsapp.Message{whatsapp.NewText("No worries, no alert set. 👍")}
	}
	return e.onAlertSetup(session, inb)
}

func (e *Engine) onAlertCreated(ctx context.Context, session *domain.Session, inb whatsapp.Inbound) []whatsapp.Message {
	if inb.Type == whatsapp.InboundInteractive {
		switch inb.InteractiveID {
		case idMoreDeals:
			return e.searchAndShow(ctx, session)
		case idBackToCategories:
			session.State.Category = ""
			session.State.LastDeals = nil
			return e.searchAndShow(ctx, session)
		}
	}
	session.State.Step = domain.StepDealsShown
	return []whatsapp.Message{whatsapp.NewText("Your alert is live! Send me anything to keep browsing. 🛍️")}
}

func (e *Engine) apology() []whatsapp.Message {
	return []whatsapp.Message{whatsapp.NewText("Something went wrong on my side. 😓 Give it another go in a bit?")}
}
