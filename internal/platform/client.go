package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// Client talks to the platform's bot HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds an API client for the given credential.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
}

// SendMessage delivers a text message and returns its message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applyOptions(payload, opts)
	return c.sendExpectingMessage(ctx, "sendMessage", payload)
}

// SendPhoto delivers a photo by file reference with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, opts *SendOptions) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   fileRef,
		"caption": caption,
	}
	applyOptions(payload, opts)
	return c.sendExpectingMessage(ctx, "sendPhoto", payload)
}

// SendDocument delivers a document by file reference with a caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, fileRef, caption string, opts *SendOptions) (int64, error) {
	payload := map[string]any{
		"chat_id":  chatID,
		"document": fileRef,
		"caption":  caption,
	}
	applyOptions(payload, opts)
	return c.sendExpectingMessage(ctx, "sendDocument", payload)
}

// EditMessageText rewrites a previously sent message in place.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *SendOptions) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	applyOptions(payload, opts)
	_, err := c.call(ctx, "editMessageText", payload)
	return err
}

// AnswerCallback acknowledges a button press so the client stops
// showing a spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	})
	return err
}

func applyOptions(payload map[string]any, opts *SendOptions) {
	if opts == nil {
		return
	}
	if opts.ParseMode != "" {
		payload["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyMarkup != nil {
		payload["reply_markup"] = opts.ReplyMarkup
	}
}

func (c *Client) sendExpectingMessage(ctx context.Context, method string, payload map[string]any) (int64, error) {
	raw, err := c.call(ctx, method, payload)
	if err != nil {
		return 0, err
	}
	var result messageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, apperrors.NewDeliveryFailure(fmt.Errorf("%s: decode result: %w", method, err))
	}
	return result.MessageID, nil
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewDeliveryFailure(fmt.Errorf("%s: encode payload: %w", method, err))
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewDeliveryFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewDeliveryFailure(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewDeliveryFailure(fmt.Errorf("%s: read response: %w", method, err))
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, apperrors.NewDeliveryFailure(fmt.Errorf("%s: decode response (HTTP %d): %w", method, resp.StatusCode, err))
	}
	if !parsed.OK {
		c.logger.Warn("platform API call rejected",
			zap.String("method", method),
			zap.Int("http_status", resp.StatusCode),
			zap.String("description", parsed.Description))
		return nil, apperrors.NewDeliveryFailure(fmt.Errorf("%s: %s", method, parsed.Description))
	}
	return parsed.Result, nil
}
