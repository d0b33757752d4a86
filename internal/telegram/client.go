// Package telegram is a minimal Bot API client covering what the bot
// uses: long polling, messages with inline keyboards, and file download.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.telegram.org"

// Update is one long-poll result.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Photo     []PhotoSize `json:"photo"`
	Voice     *Voice      `json:"voice"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
}

type Voice struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
	Duration int    `json:"duration"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// InlineKeyboardButton mirrors the Bot API wire shape.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

// Client talks to the Bot API for a single bot token.
type Client struct {
	http    *resty.Client
	baseURL string
	token   string
	log     zerolog.Logger
}

func New(token string, log zerolog.Logger) *Client {
	return &Client{
		http:    resty.New(),
		baseURL: defaultBaseURL,
		token:   token,
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, name)
}

// GetUpdates long-polls for updates after offset. timeout is in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	var out apiResponse[[]Update]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"offset":          offset,
			"timeout":         timeout,
			"allowed_updates": []string{"message", "callback_query"},
		}).
		SetResult(&out).
		SetError(&out).
		Post(c.method("getUpdates"))
	if err != nil {
		return nil, errors.Wrap(err, "getUpdates")
	}
	if resp.IsError() || !out.OK {
		return nil, errors.Errorf("getUpdates: status %d: %s", resp.StatusCode(), out.Description)
	}
	return out.Result, nil
}

// SendMessage sends text to chatID, with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]InlineKeyboardButton) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if len(keyboard) > 0 {
		body["reply_markup"] = map[string]interface{}{"inline_keyboard": keyboard}
	}

	var out apiResponse[Message]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(c.method("sendMessage"))
	if err != nil {
		return errors.Wrap(err, "sendMessage")
	}
	if resp.IsError() || !out.OK {
		return errors.Errorf("sendMessage: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// AnswerCallbackQuery acks a button press so the client stops spinning.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	var out apiResponse[bool]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"callback_query_id": callbackID}).
		SetResult(&out).
		SetError(&out).
		Post(c.method("answerCallbackQuery"))
	if err != nil {
		return errors.Wrap(err, "answerCallbackQuery")
	}
	if resp.IsError() || !out.OK {
		return errors.Errorf("answerCallbackQuery: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// DownloadFile fetches a file's bytes by its Bot API file ID.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var out apiResponse[file]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"file_id": fileID}).
		SetResult(&out).
		SetError(&out).
		Post(c.method("getFile"))
	if err != nil {
		return nil, errors.Wrap(err, "getFile")
	}
	if resp.IsError() || !out.OK {
		return nil, errors.Errorf("getFile: status %d: %s", resp.StatusCode(), out.Description)
	}

	dl, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, out.Result.FilePath))
	if err != nil {
		return nil, errors.Wrap(err, "download file")
	}
	if dl.IsError() {
		return nil, errors.Errorf("download file: status %d", dl.StatusCode())
	}
	return dl.Body(), nil
}

// Ping verifies the bot token against getMe.
func (c *Client) Ping(ctx context.Context) error {
	var out apiResponse[User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(c.method("getMe"))
	if err != nil {
		return errors.Wrap(err, "getMe")
	}
	if resp.IsError() || !out.OK {
		return errors.Errorf("getMe: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}
