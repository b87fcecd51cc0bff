package omise

import (
	"fmt"
	"time"
)

// Customer клиент в платёжном шлюзе.
type Customer struct {
	Object      string            `json:"object"`
	ID          string            `json:"id"`
	Email       string            `json:"email,omitempty"`
	Description string            `json:"description,omitempty"`
	DefaultCard string            `json:"default_card,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Cards       CardList          `json:"cards"`
	Created     time.Time         `json:"created_at"`
}

// Card сохранённая карта клиента.
type Card struct {
	Object          string `json:"object"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Brand           string `json:"brand"`
	LastDigits      string `json:"last_digits"`
	ExpirationMonth int    `json:"expiration_month"`
	ExpirationYear  int    `json:"expiration_year"`
	Deleted         bool   `json:"deleted,omitempty"`
}

// ExpirationDate дата окончания в виде "EXP MM/YYYY".
func (c Card) ExpirationDate() string {
	return fmt.Sprintf("EXP %02d/%d", c.ExpirationMonth, c.ExpirationYear)
}

// CardList страница списка карт.
type CardList struct {
	Object string `json:"object"`
	Total  int    `json:"total"`
	Data   []Card `json:"data"`
}

// Charge списание.
type Charge struct {
	Object       string         `json:"object"`
	ID           string         `json:"id"`
	Amount       int64          `json:"amount"`
	Currency     string         `json:"currency"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status"`
	Paid         bool           `json:"paid"`
	Customer     string         `json:"customer,omitempty"`
	AuthorizeURI string         `json:"authorize_uri,omitempty"`
	ReturnURI    string         `json:"return_uri,omitempty"`
	FailureCode  string         `json:"failure_code,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Schedule     string         `json:"schedule,omitempty"`
	Created      time.Time      `json:"created_at"`
}

// Статусы списаний.
const (
	ChargeStatusPending    = "pending"
	ChargeStatusSuccessful = "successful"
	ChargeStatusFailed     = "failed"
	ChargeStatusExpired    = "expired"
	ChargeStatusReversed   = "reversed"
)

// CreateChargeRequest запрос на создание списания. Должно быть задано одно из:
// Customer (списание с карты клиента), Card или Source.
type CreateChargeRequest struct {
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description,omitempty"`
	Customer    string         `json:"customer,omitempty"`
	Card        string         `json:"card,omitempty"`
	Source      string         `json:"source,omitempty"`
	ReturnURI   string         `json:"return_uri,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateCustomerRequest запрос на создание клиента.
type CreateCustomerRequest struct {
	Email       string            `json:"email,omitempty"`
	Description string            `json:"description,omitempty"`
	Card        string            `json:"card,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UpdateCustomerRequest запрос на изменение клиента. Card привязывает новую карту.
type UpdateCustomerRequest struct {
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
	Card        string `json:"card,omitempty"`
}

// ScheduleOn дни, в которые срабатывает расписание.
type ScheduleOn struct {
	DaysOfMonth []int `json:"days_of_month,omitempty"`
}

// ScheduleCharge параметры списания, которое создаёт расписание.
type ScheduleCharge struct {
	Customer    string         `json:"customer"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description,omitempty"`
	Card        string         `json:"card,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateScheduleRequest запрос на создание регулярного расписания списаний.
type CreateScheduleRequest struct {
	Every     int            `json:"every"`
	Period    string         `json:"period"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	On        ScheduleOn     `json:"on"`
	Charge    ScheduleCharge `json:"charge"`
}

// Schedule регулярное расписание списаний.
type Schedule struct {
	Object            string     `json:"object"`
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	Active            bool       `json:"active"`
	Every             int        `json:"every"`
	Period            string     `json:"period"`
	On                ScheduleOn `json:"on"`
	StartOn           string     `json:"start_on"`
	EndOn             string     `json:"end_on"`
	NextOccurrencesOn []string   `json:"next_occurrences_on"`
	Deleted           bool       `json:"deleted,omitempty"`
	Created           time.Time  `json:"created_at"`
}

// Destroyed true если расписание удалено или остановлено шлюзом.
func (s *Schedule) Destroyed() bool {
	return s.Deleted || s.Status == "deleted"
}

// Event событие вебхука.
type Event struct {
	Object  string    `json:"object"`
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Data    Charge    `json:"data"`
	Created time.Time `json:"created_at"`
}

// EventChargeComplete событие завершения списания.
const EventChargeComplete = "charge.complete"
