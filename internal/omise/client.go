// Package omise реализует клиент REST API платёжного шлюза Omise:
// клиенты, карты, списания, расписания регулярных списаний и события.
package omise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultAPIURL адрес API шлюза.
const DefaultAPIURL = "https://api.omise.co"

// ErrDecodeResponse ответ шлюза не удалось разобрать. Такие ошибки бывают временными.
var ErrDecodeResponse = errors.New("omise: failed to decode response")

// APIError ошибка, которую вернул шлюз.
type APIError struct {
	StatusCode int    `json:"-"`
	Object     string `json:"object"`
	Location   string `json:"location"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("omise: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client клиент Omise.
type Client struct {
	publicKey  string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиента с ключами аккаунта. Пустой apiURL означает DefaultAPIURL.
func NewClient(publicKey, secretKey, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		publicKey:  publicKey,
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PublicKey публичный ключ для токенизации карт на стороне LIFF.
func (c *Client) PublicKey() string {
	return c.publicKey
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_status"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeResponse, err)
	}
	return nil
}

// CreateCustomer создаёт клиента.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	const op = "omise.CreateCustomer"
	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &customer, nil
}

// RetrieveCustomer возвращает клиента по ID.
func (c *Client) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	const op = "omise.RetrieveCustomer"
	var customer Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID), nil, &customer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &customer, nil
}

// UpdateCustomer изменяет клиента. Заполненный req.Card привязывает карту по токену.
func (c *Client) UpdateCustomer(ctx context.Context, customerID string, req UpdateCustomerRequest) (*Customer, error) {
	const op = "omise.UpdateCustomer"
	var customer Customer
	if err := c.do(ctx, http.MethodPatch, "/customers/"+url.PathEscape(customerID), req, &customer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &customer, nil
}

// ListCards возвращает карты клиента.
func (c *Client) ListCards(ctx context.Context, customerID string) (*CardList, error) {
	const op = "omise.ListCards"
	var cards CardList
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/cards", nil, &cards); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cards, nil
}

// DestroyCard удаляет карту клиента.
func (c *Client) DestroyCard(ctx context.Context, customerID, cardID string) (*Card, error) {
	const op = "omise.DestroyCard"
	var card Card
	path := "/customers/" + url.PathEscape(customerID) + "/cards/" + url.PathEscape(cardID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &card); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &card, nil
}

// CreateCharge создаёт списание.
func (c *Client) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	const op = "omise.CreateCharge"
	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/charges", req, &charge); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &charge, nil
}

// RetrieveCharge возвращает списание по ID.
func (c *Client) RetrieveCharge(ctx context.Context, chargeID string) (*Charge, error) {
	const op = "omise.RetrieveCharge"
	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, &charge); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &charge, nil
}

// CreateSchedule создаёт расписание регулярных списаний.
func (c *Client) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*Schedule, error) {
	const op = "omise.CreateSchedule"
	var schedule Schedule
	if err := c.do(ctx, http.MethodPost, "/schedules", req, &schedule); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &schedule, nil
}

// RetrieveSchedule возвращает расписание по ID.
func (c *Client) RetrieveSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	const op = "omise.RetrieveSchedule"
	var schedule Schedule
	if err := c.do(ctx, http.MethodGet, "/schedules/"+url.PathEscape(scheduleID), nil, &schedule); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &schedule, nil
}

// DestroySchedule удаляет расписание.
func (c *Client) DestroySchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	const op = "omise.DestroySchedule"
	var schedule Schedule
	if err := c.do(ctx, http.MethodDelete, "/schedules/"+url.PathEscape(scheduleID), nil, &schedule); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &schedule, nil
}

// RetrieveEvent возвращает событие по ID. Вебхуки Omise не подписаны, поэтому
// событие всегда перечитывается из API.
func (c *Client) RetrieveEvent(ctx context.Context, eventID string) (*Event, error) {
	const op = "omise.RetrieveEvent"
	var event Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID), nil, &event); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &event, nil
}
