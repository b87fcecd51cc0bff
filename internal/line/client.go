package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/codustry/gebwai/internal/models"
)

// DefaultAPIURL адрес Messaging API.
const DefaultAPIURL = "https://api.line.me"

// APIError ошибка, которую вернул LINE.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line: %d: %s", e.StatusCode, e.Message)
}

// TextMessage исходящее текстовое сообщение.
type TextMessage struct {
	Text string
}

// NewTextMessage создаёт текстовое сообщение.
func NewTextMessage(text string) TextMessage {
	return TextMessage{Text: text}
}

func toMessages(messages []TextMessage) []messaging_api.MessageInterface {
	out := make([]messaging_api.MessageInterface, 0, len(messages))
	for _, m := range messages {
		out = append(out, messaging_api.TextMessage{Text: m.Text})
	}
	return out
}

// Client клиент Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient создаёт клиента с токеном канала. Пустой baseURL означает DefaultAPIURL.
func NewClient(accessToken, baseURL string) (*Client, error) {
	const op = "line.NewClient"
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	api, err := messaging_api.NewMessagingApiAPI(accessToken,
		messaging_api.WithEndpoint(baseURL),
		messaging_api.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Client{api: api}, nil
}

// withContext копия клиента SDK, привязанная к ctx. WithContext меняет
// клиента на месте, поэтому общий экземпляр не трогаем.
func (c *Client) withContext(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

// checkResponse превращает ответ не из 2xx в *APIError.
func checkResponse(res *http.Response, err error) error {
	if res == nil || res.StatusCode/100 == 2 {
		return err
	}
	apiErr := &APIError{StatusCode: res.StatusCode}
	if res.Body != nil {
		raw, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = res.Status
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	return apiErr
}

// ReplyMessage отвечает на событие по replyToken.
func (c *Client) ReplyMessage(ctx context.Context, replyToken string, messages ...TextMessage) error {
	const op = "line.ReplyMessage"
	res, _, err := c.withContext(ctx).ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   toMessages(messages),
	})
	if err := checkResponse(res, err); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PushMessage отправляет сообщение пользователю, группе или комнате.
// Каждый вызов получает свой X-Line-Retry-Key.
func (c *Client) PushMessage(ctx context.Context, to string, messages ...TextMessage) error {
	const op = "line.PushMessage"
	res, _, err := c.withContext(ctx).PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: toMessages(messages),
	}, uuid.NewString())
	if err := checkResponse(res, err); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetProfile профиль пользователя, добавившего бота в друзья.
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.LINEUser, error) {
	const op = "line.GetProfile"
	res, p, err := c.withContext(ctx).GetProfileWithHttpInfo(userID)
	if err := checkResponse(res, err); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.LINEUser{
		UserID:        p.UserId,
		DisplayName:   p.DisplayName,
		PictureURL:    optional(p.PictureUrl),
		StatusMessage: optional(p.StatusMessage),
		Language:      optional(p.Language),
	}, nil
}

// GetGroupMemberProfile профиль участника группы.
func (c *Client) GetGroupMemberProfile(ctx context.Context, groupID, userID string) (*models.LINEUser, error) {
	const op = "line.GetGroupMemberProfile"
	res, p, err := c.withContext(ctx).GetGroupMemberProfileWithHttpInfo(groupID, userID)
	if err := checkResponse(res, err); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.LINEUser{
		UserID:      p.UserId,
		DisplayName: p.DisplayName,
		PictureURL:  optional(p.PictureUrl),
	}, nil
}

// GetGroupSummary название и картинка группы.
func (c *Client) GetGroupSummary(ctx context.Context, groupID string) (*models.GroupSummary, error) {
	const op = "line.GetGroupSummary"
	res, s, err := c.withContext(ctx).GetGroupSummaryWithHttpInfo(groupID)
	if err := checkResponse(res, err); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.GroupSummary{
		GroupID:    s.GroupId,
		GroupName:  s.GroupName,
		PictureURL: optional(s.PictureUrl),
	}, nil
}
