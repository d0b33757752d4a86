package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/conversation"
	"github.com/sheetfit/trackerbot/internal/schema"
)

const helpText = `I log your health and nutrition data to your spreadsheet.

/newlog - start a logging session
/log - log in one message, e.g. /log weight 82.4 or /log meal 150g chicken
/cancel - cancel the current session
/daily_summary - today's totals
/weekly_summary - averages over the last 7 days
/help - this message`

// Conversation is the engine surface the poller drives.
type Conversation interface {
	Dispatch(ctx context.Context, t *schema.Tenant, chatID int64, ev conversation.Event) []conversation.Reply
	QuickLog(ctx context.Context, t *schema.Tenant, args string) []conversation.Reply
	QuickLogPhoto(ctx context.Context, t *schema.Tenant, media []byte, mimeType string) []conversation.Reply
}

// Summarizer renders read-only digests.
type Summarizer interface {
	Daily(ctx context.Context, t *schema.Tenant, date time.Time) (string, error)
	Weekly(ctx context.Context, t *schema.Tenant, date time.Time) (string, error)
}

// Poller long-polls one bot token and routes its updates. One poller
// per tenant; pollers never share state.
type Poller struct {
	api       *Client
	tenant    *schema.Tenant
	engine    Conversation
	summaries Summarizer
	timeout   int
	log       zerolog.Logger
	now       func() time.Time
}

func NewPoller(api *Client, tenant *schema.Tenant, engine Conversation, summaries Summarizer, pollTimeout int, log zerolog.Logger) *Poller {
	return &Poller{
		api:       api,
		tenant:    tenant,
		engine:    engine,
		summaries: summaries,
		timeout:   pollTimeout,
		log:       log.With().Str("component", "poller").Str("sheet_id", tenant.SheetID).Logger(),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried
// after a short pause.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.api.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn().Err(err).Msg("poll failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			p.handleUpdate(ctx, u)
		}
	}
}

func (p *Poller) handleUpdate(ctx context.Context, u Update) {
	switch {
	case u.CallbackQuery != nil:
		p.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		p.handleMessage(ctx, u.Message)
	}
}

func (p *Poller) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if err := p.api.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		p.log.Debug().Err(err).Msg("callback ack failed")
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if !p.authorized(ctx, chatID, cb.From.ID) {
		return
	}
	ev := conversation.Event{Kind: conversation.EventChoice, Choice: cb.Data, UserID: cb.From.ID}
	p.send(ctx, chatID, p.engine.Dispatch(ctx, p.tenant, chatID, ev))
}

func (p *Poller) handleMessage(ctx context.Context, msg *Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	if !p.authorized(ctx, chatID, msg.From.ID) {
		return
	}

	if cmd, args, ok := command(msg.Caption); ok {
		p.handleCaptionCommand(ctx, msg, cmd, args)
		return
	}
	if cmd, args, ok := command(msg.Text); ok {
		p.handleCommand(ctx, chatID, msg.From.ID, cmd, args)
		return
	}

	ev, ok := p.messageEvent(ctx, msg)
	if !ok {
		p.reply(ctx, chatID, "I can handle text, photos and voice messages.")
		return
	}
	p.send(ctx, chatID, p.engine.Dispatch(ctx, p.tenant, chatID, ev))
}

// handleCaptionCommand routes commands arriving as a media caption.
// Only "/log meal" on a photo is meaningful.
func (p *Poller) handleCaptionCommand(ctx context.Context, msg *Message, cmd, args string) {
	chatID := msg.Chat.ID
	first := strings.Fields(args)
	if cmd != "log" || len(msg.Photo) == 0 || len(first) == 0 || strings.ToLower(first[0]) != "meal" {
		p.reply(ctx, chatID, "To log a meal from a photo, send it with the caption /log meal.")
		return
	}
	data, err := p.api.DownloadFile(ctx, largestPhoto(msg.Photo).FileID)
	if err != nil {
		p.log.Warn().Err(err).Msg("photo download failed")
		p.reply(ctx, chatID, "Couldn't download that photo. Please send it again.")
		return
	}
	p.send(ctx, chatID, p.engine.QuickLogPhoto(ctx, p.tenant, data, "image/jpeg"))
}

func (p *Poller) handleCommand(ctx context.Context, chatID, userID int64, cmd, args string) {
	switch cmd {
	case "start", "help":
		p.reply(ctx, chatID, helpText)
	case "log":
		p.send(ctx, chatID, p.engine.QuickLog(ctx, p.tenant, args))
	case "newlog":
		ev := conversation.Event{Kind: conversation.EventStart, UserID: userID}
		p.send(ctx, chatID, p.engine.Dispatch(ctx, p.tenant, chatID, ev))
	case "cancel":
		ev := conversation.Event{Kind: conversation.EventCancel, UserID: userID}
		p.send(ctx, chatID, p.engine.Dispatch(ctx, p.tenant, chatID, ev))
	case "daily_summary":
		text, err := p.summaries.Daily(ctx, p.tenant, p.now())
		if err != nil {
			p.log.Warn().Err(err).Msg("daily summary failed")
			text = "Couldn't read today's row. Is anything logged yet?"
		}
		p.reply(ctx, chatID, text)
	case "weekly_summary":
		text, err := p.summaries.Weekly(ctx, p.tenant, p.now())
		if err != nil {
			p.log.Warn().Err(err).Msg("weekly summary failed")
			text = "Couldn't build the weekly summary."
		}
		p.reply(ctx, chatID, text)
	default:
		p.reply(ctx, chatID, "Unknown command. Send /help for the list.")
	}
}

// messageEvent converts a message into a conversation event, downloading
// media when needed.
func (p *Poller) messageEvent(ctx context.Context, msg *Message) (conversation.Event, bool) {
	userID := msg.From.ID
	switch {
	case len(msg.Photo) > 0:
		data, err := p.api.DownloadFile(ctx, largestPhoto(msg.Photo).FileID)
		if err != nil {
			p.log.Warn().Err(err).Msg("photo download failed")
			return conversation.Event{}, false
		}
		return conversation.Event{Kind: conversation.EventPhoto, Media: data, MimeType: "image/jpeg", UserID: userID}, true

	case msg.Voice != nil:
		data, err := p.api.DownloadFile(ctx, msg.Voice.FileID)
		if err != nil {
			p.log.Warn().Err(err).Msg("voice download failed")
			return conversation.Event{}, false
		}
		mime := msg.Voice.MimeType
		if mime == "" {
			mime = "audio/ogg"
		}
		return conversation.Event{Kind: conversation.EventAudio, Media: data, MimeType: mime, UserID: userID}, true

	case msg.Text != "":
		return conversation.Event{Kind: conversation.EventText, Text: msg.Text, UserID: userID}, true
	}
	return conversation.Event{}, false
}

func (p *Poller) authorized(ctx context.Context, chatID, userID int64) bool {
	if p.tenant.UserAllowed(userID) {
		return true
	}
	p.log.Warn().Int64("user_id", userID).Msg("unauthorized user")
	p.reply(ctx, chatID, "You are not allowed to use this bot.")
	return false
}

func (p *Poller) send(ctx context.Context, chatID int64, replies []conversation.Reply) {
	for _, r := range replies {
		var kb [][]InlineKeyboardButton
		for _, row := range r.Keyboard {
			var out []InlineKeyboardButton
			for _, b := range row {
				out = append(out, InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
			}
			kb = append(kb, out)
		}
		if err := p.api.SendMessage(ctx, chatID, r.Text, kb); err != nil {
			p.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
		}
	}
}

func (p *Poller) reply(ctx context.Context, chatID int64, text string) {
	p.send(ctx, chatID, []conversation.Reply{{Text: text}})
}

// command extracts a bot command name and its argument tail from
// message text, dropping any @botname suffix.
func command(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head := strings.Fields(text)[0]
	cmd := head[1:]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	args := strings.TrimSpace(strings.TrimPrefix(text, head))
	return strings.ToLower(cmd), args, cmd != ""
}

// largestPhoto picks the biggest rendition Telegram offers.
func largestPhoto(photos []PhotoSize) PhotoSize {
	best := photos[0]
	for _, ph := range photos[1:] {
		if ph.FileSize > best.FileSize {
			best = ph
		}
	}
	return best
}
