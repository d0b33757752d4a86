package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/nutrition"
	"github.com/sheetfit/trackerbot/internal/schema"
)

// RowWriter is the slice of the row store the engine needs.
type RowWriter interface {
	WriteMetrics(ctx context.Context, t *schema.Tenant, date time.Time, updates map[int]interface{}) error
	AccumulateNutrition(ctx context.Context, t *schema.Tenant, date time.Time, proteinG, carbsG, fatG, fiberG float64) error
}

// NutritionResolver resolves a parsed item list into a nutrition total.
type NutritionResolver interface {
	ResolveAll(ctx context.Context, items []model.ParsedItem) (*nutrition.AggregateResult, error)
}

// ItemExtractor turns free-form meal descriptions into structured items.
type ItemExtractor interface {
	FromText(ctx context.Context, text string) ([]model.ParsedItem, error)
	FromImage(ctx context.Context, data []byte, mimeType string) ([]model.ParsedItem, error)
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Engine runs the logging conversation state machine. It owns all state
// transitions; handlers mutate the session only while Step holds its lock.
type Engine struct {
	rows      RowWriter
	resolver  NutritionResolver
	extractor ItemExtractor
	sessions  *Manager
	log       zerolog.Logger
	now       func() time.Time
}

func NewEngine(rows RowWriter, resolver NutritionResolver, extractor ItemExtractor, sessions *Manager, log zerolog.Logger) *Engine {
	return &Engine{
		rows:      rows,
		resolver:  resolver,
		extractor: extractor,
		sessions:  sessions,
		log:       log.With().Str("component", "conversation").Logger(),
		now:       time.Now,
	}
}

// Dispatch routes one event for (tenant, chat) through the session it
// belongs to, creating or ending sessions as needed.
func (e *Engine) Dispatch(ctx context.Context, t *schema.Tenant, chatID int64, ev Event) []Reply {
	if ev.Kind == EventStart {
		s := e.sessions.Start(t, chatID)
		e.log.Info().Str("session_id", s.ID).Int64("chat_id", chatID).Msg("session started")
		return []Reply{{Text: "Which day are we logging? Send a date, or \"today\" / \"yesterday\"."}}
	}

	s := e.sessions.Get(t, chatID)
	if s == nil {
		if ev.Kind == EventCancel {
			return []Reply{{Text: "Nothing to cancel."}}
		}
		return []Reply{{Text: "No logging session is active. Send /newlog to start one."}}
	}

	replies := e.Step(ctx, s, ev)
	if s.State() == StateEnd {
		e.sessions.End(s)
	}
	return replies
}

// Step applies one event to the session. A panic in any handler ends
// the session cleanly instead of wedging the chat.
func (e *Engine) Step(ctx context.Context, s *Session, ev Event) (replies []Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("session_id", s.ID).
				Str("state", s.state.String()).Msg("handler panicked, ending session")
			s.state = StateEnd
			replies = []Reply{{Text: "Something went wrong and the session was ended. Send /newlog to start over."}}
		}
	}()

	if ev.Kind == EventCancel {
		s.state = StateEnd
		return []Reply{{Text: "Logging session cancelled."}}
	}

	switch s.state {
	case StateSelectingDate:
		return e.handleSelectingDate(s, ev)
	case StateAwaitingMetricChoice:
		return e.handleMetricChoice(s, ev)
	case StateAwaitingMetricValue:
		return e.handleMetricValue(ctx, s, ev)
	case StateAwaitingMealInput:
		return e.handleMealInput(ctx, s, ev)
	case StateAwaitingItemQuantityEdit:
		return e.handleItemEdit(ctx, s, ev)
	case StateAwaitingMealConfirmation:
		return e.handleConfirmation(ctx, s, ev)
	case StateAwaitingMacroEdit:
		return e.handleMacroEdit(ctx, s, ev)
	case StateAskLogMore:
		return e.handleAskLogMore(s, ev)
	default:
		s.state = StateEnd
		return []Reply{{Text: "Session is over. Send /newlog to start a new one."}}
	}
}

func (e *Engine) handleSelectingDate(s *Session, ev Event) []Reply {
	if ev.Kind != EventText {
		return []Reply{{Text: "Send the date as text, e.g. \"today\" or \"Jul 16\"."}}
	}
	d, err := parseTargetDate(e.now(), ev.Text)
	if err != nil {
		return []Reply{{Text: "I couldn't understand that date. Try \"today\", \"yesterday\" or e.g. \"Jul 16\"."}}
	}
	s.targetDate = d
	s.state = StateAwaitingMetricChoice
	return []Reply{{
		Text:     fmt.Sprintf("Logging for %s. What would you like to log?", d.Format(schema.DateLayout)),
		Keyboard: metricKeyboard(),
	}}
}

func (e *Engine) handleMetricChoice(s *Session, ev Event) []Reply {
	if ev.Kind != EventChoice {
		return []Reply{{Text: "Please use the buttons.", Keyboard: metricKeyboard()}}
	}

	switch ev.Choice {
	case choiceCancelLog:
		s.state = StateEnd
		return []Reply{{Text: "Logging session finished."}}
	case choiceLogMeal:
		s.resetMealState()
		s.state = StateAwaitingMealInput
		return []Reply{{Text: "Describe the meal in text, or send a photo or a voice message."}}
	}

	key := strings.TrimPrefix(ev.Choice, metricChoicePrefix)
	m := metricByKey(key)
	if m == nil {
		return []Reply{{Text: "Unknown choice.", Keyboard: metricKeyboard()}}
	}
	s.metric = m
	s.state = StateAwaitingMetricValue
	return []Reply{{Text: m.Prompt}}
}

func (e *Engine) handleMetricValue(ctx context.Context, s *Session, ev Event) []Reply {
	if ev.Kind != EventText {
		return []Reply{{Text: "Send the value as a text message."}}
	}
	m := s.metric
	if m == nil {
		s.state = StateAwaitingMetricChoice
		return []Reply{{Text: "What would you like to log?", Keyboard: metricKeyboard()}}
	}

	values, err := m.parseValue(ev.Text)
	if err != nil {
		var verr model.ValidationError
		if errors.As(err, &verr) {
			return []Reply{{Text: fmt.Sprintf("That doesn't look right: %s\n\n%s", verr.Message, m.Prompt)}}
		}
		return []Reply{{Text: m.Prompt}}
	}

	updates, err := m.cellUpdates(s.Tenant, values)
	if err != nil {
		e.log.Error().Err(err).Str("metric", m.Key).Str("session_id", s.ID).Msg("schema lookup failed")
		return []Reply{{Text: "This metric isn't configured for your sheet. Pick something else or /cancel."}}
	}

	if err := e.rows.WriteMetrics(ctx, s.Tenant, s.targetDate, updates); err != nil {
		e.log.Error().Err(err).Str("metric", m.Key).Str("session_id", s.ID).Msg("metric write failed")
		return []Reply{{Text: "❌ Failed to update the sheet. Send the value again to retry, or /cancel."}}
	}

	s.metric = nil
	s.state = StateAskLogMore
	return []Reply{{
		Text:     fmt.Sprintf("✅ %s logged for %s. Log anything else?", m.Label, s.targetDate.Format(schema.DateLayout)),
		Keyboard: logMoreKeyboard(),
	}}
}

func (e *Engine) handleMealInput(ctx context.Context, s *Session, ev Event) []Reply {
	var (
		items []model.ParsedItem
		err   error
	)
	switch ev.Kind {
	case EventText:
		items, err = e.extractor.FromText(ctx, ev.Text)
	case EventPhoto:
		items, err = e.extractor.FromImage(ctx, ev.Media, ev.MimeType)
	case EventAudio:
		var text string
		text, err = e.extractor.Transcribe(ctx, ev.Media, ev.MimeType)
		if err == nil {
			items, err = e.extractor.FromText(ctx, text)
		}
	default:
		return []Reply{{Text: "Describe the meal in text, or send a photo or a voice message."}}
	}

	if err != nil || len(items) == 0 {
		if err != nil {
			e.log.Warn().Err(err).Str("session_id", s.ID).Msg("meal extraction failed")
		}
		return []Reply{{Text: "I couldn't find any food items in that. Try describing the meal again."}}
	}

	s.items = items
	s.state = StateAwaitingItemQuantityEdit
	return []Reply{{Text: itemListText(items)}}
}

func (e *Engine) handleItemEdit(ctx context.Context, s *Session, ev Event) []Reply {
	if ev.Kind != EventText {
		return []Reply{{Text: itemListText(s.items)}}
	}

	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, "done") {
		res, err := e.resolver.ResolveAll(ctx, s.items)
		if err != nil {
			e.log.Warn().Err(err).Str("session_id", s.ID).Msg("nutrition resolution failed")
			return []Reply{{Text: "❌ Couldn't work out nutrition for those items. Adjust them and send \"done\" again.\n\n" + itemListText(s.items)}}
		}
		s.estimate = &res.Total
		s.state = StateAwaitingMealConfirmation
		return []Reply{confirmReply(res)}
	}

	idx, grams, err := parseQuantityEdit(text, len(s.items))
	if err != nil {
		var verr model.ValidationError
		if errors.As(err, &verr) {
			return []Reply{{Text: fmt.Sprintf("%s\n\n%s", verr.Message, itemListText(s.items))}}
		}
		return []Reply{{Text: itemListText(s.items)}}
	}

	s.items[idx].QuantityGrams = grams
	return []Reply{{Text: itemListText(s.items)}}
}

func (e *Engine) handleConfirmation(ctx context.Context, s *Session, ev Event) []Reply {
	if ev.Kind != EventChoice {
		return []Reply{{Text: "Please use the buttons."}}
	}

	switch ev.Choice {
	case choiceConfirmYes:
		est := s.estimate
		if est == nil {
			s.state = StateAwaitingMetricChoice
			return []Reply{{Text: "What would you like to log?", Keyboard: metricKeyboard()}}
		}
		if err := e.rows.AccumulateNutrition(ctx, s.Tenant, s.targetDate, est.ProteinG, est.CarbsG, est.FatG, est.FiberG); err != nil {
			e.log.Error().Err(err).Str("session_id", s.ID).Msg("nutrition write failed")
			return []Reply{{Text: "❌ Failed to log the meal. Tap Yes again to retry, or /cancel."}}
		}
		s.resetMealState()
		s.state = StateAskLogMore
		return []Reply{{
			Text:     fmt.Sprintf("✅ Meal logged for %s. Log anything else?", s.targetDate.Format(schema.DateLayout)),
			Keyboard: logMoreKeyboard(),
		}}

	case choiceConfirmNo:
		s.resetMealState()
		s.state = StateAwaitingMetricChoice
		return []Reply{{Text: "Discarded. What would you like to log?", Keyboard: metricKeyboard()}}

	case choiceEditMacros:
		est := s.estimate
		if est == nil {
			s.state = StateAwaitingMetricChoice
			return []Reply{{Text: "What would you like to log?", Keyboard: metricKeyboard()}}
		}
		s.state = StateAwaitingMacroEdit
		r := est.Rounded()
		return []Reply{{Text: fmt.Sprintf(
			"Send four numbers: protein, carbs, fat, fiber (grams).\nCurrent: %.0f %.0f %.0f %.0f",
			r.ProteinG, r.CarbsG, r.FatG, r.FiberG)}}

	default:
		s.resetMealState()
		s.state = StateAwaitingMetricChoice
		return []Reply{{Text: "Invalid choice. What would you like to log?", Keyboard: metricKeyboard()}}
	}
}

func (e *Engine) handleMacroEdit(ctx context.Context, s *Session, ev Event) []Reply {
	if ev.Kind != EventText {
		return []Reply{{Text: "Send four numbers: protein, carbs, fat, fiber (grams)."}}
	}

	fields := strings.Fields(ev.Text)
	if len(fields) != 4 {
		return []Reply{{Text: fmt.Sprintf("Expected 4 numbers, got %d. Send protein, carbs, fat, fiber in grams.", len(fields))}}
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.ReplaceAll(f, ",", "."), 64)
		if err != nil || v < 0 {
			return []Reply{{Text: fmt.Sprintf("%q is not a valid amount. Send protein, carbs, fat, fiber in grams.", f)}}
		}
		vals[i] = v
	}

	// Fiber contributes no calories of its own here.
	est := model.NutritionEstimate{
		Calories: 4*vals[0] + 4*vals[1] + 9*vals[2],
		ProteinG: vals[0],
		CarbsG:   vals[1],
		FatG:     vals[2],
		FiberG:   vals[3],
	}

	if err := e.rows.AccumulateNutrition(ctx, s.Tenant, s.targetDate, est.ProteinG, est.CarbsG, est.FatG, est.FiberG); err != nil {
		e.log.Error().Err(err).Str("session_id", s.ID).Msg("nutrition write failed")
		return []Reply{{Text: "❌ Failed to log the meal. Send the numbers again to retry, or /cancel."}}
	}

	s.resetMealState()
	s.state = StateAskLogMore
	return []Reply{{
		Text:     fmt.Sprintf("✅ Meal logged with your macros for %s. Log anything else?", s.targetDate.Format(schema.DateLayout)),
		Keyboard: logMoreKeyboard(),
	}}
}

func (e *Engine) handleAskLogMore(s *Session, ev Event) []Reply {
	if ev.Kind != EventChoice {
		return []Reply{{Text: "Please use the buttons.", Keyboard: logMoreKeyboard()}}
	}
	switch ev.Choice {
	case choiceLogMore:
		s.resetMealState()
		s.state = StateAwaitingMetricChoice
		return []Reply{{
			Text:     fmt.Sprintf("Still on %s. What would you like to log?", s.targetDate.Format(schema.DateLayout)),
			Keyboard: metricKeyboard(),
		}}
	case choiceFinishLog:
		s.state = StateEnd
		return []Reply{{Text: "All done. Send /newlog whenever you want to log again."}}
	default:
		return []Reply{{Text: "Please use the buttons.", Keyboard: logMoreKeyboard()}}
	}
}

// parseQuantityEdit parses "<index> <grams>" with an optional trailing
// "g" on the quantity. Index is 1-based in user input.
func parseQuantityEdit(text string, itemCount int) (int, float64, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, model.NewValidationError("edit", "Send \"<item number> <grams>\", or \"done\".")
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 1 || idx > itemCount {
		return 0, 0, model.NewValidationError("edit", fmt.Sprintf("Item number must be between 1 and %d.", itemCount))
	}
	q := strings.TrimSuffix(strings.ToLower(fields[1]), "g")
	grams, err := strconv.ParseFloat(strings.ReplaceAll(q, ",", "."), 64)
	if err != nil || grams <= 0 {
		return 0, 0, model.NewValidationError("edit", fmt.Sprintf("%q is not a valid quantity in grams.", fields[1]))
	}
	return idx - 1, grams, nil
}

func itemListText(items []model.ParsedItem) string {
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s — %.0f g\n", i+1, it.Name, it.QuantityGrams)
	}
	b.WriteString("\nSend \"<item number> <grams>\" to adjust a quantity, or \"done\" to continue.")
	return b.String()
}

func confirmReply(res *nutrition.AggregateResult) Reply {
	r := res.Total.Rounded()
	var b strings.Builder
	b.WriteString("Nutrition estimate:\n")
	fmt.Fprintf(&b, "Calories: %.0f kcal\nProtein: %.0f g\nCarbs: %.0f g\nFat: %.0f g\nFiber: %.0f g\n",
		r.Calories, r.ProteinG, r.CarbsG, r.FatG, r.FiberG)
	if len(res.Processed) > 0 {
		b.WriteString("\nResolved: " + strings.Join(res.Processed, ", "))
	}
	if len(res.Failed) > 0 {
		b.WriteString("\nSkipped: " + strings.Join(res.Failed, ", "))
	}
	b.WriteString("\n\nLog this meal?")
	return Reply{
		Text: b.String(),
		Keyboard: [][]Button{
			{{Label: "Yes", Data: choiceConfirmYes}, {Label: "No", Data: choiceConfirmNo}},
			{{Label: "Edit macros", Data: choiceEditMacros}},
		},
	}
}

func metricKeyboard() [][]Button {
	rows := [][]Button{{{Label: "🍽 Log Meal", Data: choiceLogMeal}}}
	var row []Button
	for _, m := range catalog {
		row = append(row, Button{Label: m.Label, Data: metricChoicePrefix + m.Key})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Label: "Finish Session", Data: choiceCancelLog}})
	return rows
}

func logMoreKeyboard() [][]Button {
	return [][]Button{{
		{Label: "Log more", Data: choiceLogMore},
		{Label: "Finish", Data: choiceFinishLog},
	}}
}
