// Package billing связывает платёжные данные пользователя с платёжным шлюзом Omise:
// клиенты, карты, разовые списания, регулярное расписание и обработку вебхуков.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codustry/gebwai/internal/lib/retry"
	"github.com/codustry/gebwai/internal/lib/sl"
	"github.com/codustry/gebwai/internal/models"
	"github.com/codustry/gebwai/internal/omise"
	"github.com/codustry/gebwai/internal/storage/repository"
)

const dateLayout = "2006-01-02"

var (
	// ErrAlreadySubscribed у пользователя уже есть расписание списаний.
	ErrAlreadySubscribed = errors.New("subscription schedule already exists")
	// ErrScheduleNotDestroyed шлюз не подтвердил удаление расписания.
	ErrScheduleNotDestroyed = errors.New("payment schedule was not destroyed")
	// ErrCardNotAttached шлюз не вернул привязанную карту.
	ErrCardNotAttached = errors.New("card was not attached to customer")
)

// Gateway методы платёжного шлюза.
type Gateway interface {
	CreateCustomer(ctx context.Context, req omise.CreateCustomerRequest) (*omise.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, req omise.UpdateCustomerRequest) (*omise.Customer, error)
	ListCards(ctx context.Context, customerID string) (*omise.CardList, error)
	DestroyCard(ctx context.Context, customerID, cardID string) (*omise.Card, error)
	CreateCharge(ctx context.Context, req omise.CreateChargeRequest) (*omise.Charge, error)
	RetrieveCharge(ctx context.Context, chargeID string) (*omise.Charge, error)
	CreateSchedule(ctx context.Context, req omise.CreateScheduleRequest) (*omise.Schedule, error)
	RetrieveSchedule(ctx context.Context, scheduleID string) (*omise.Schedule, error)
	DestroySchedule(ctx context.Context, scheduleID string) (*omise.Schedule, error)
	RetrieveEvent(ctx context.Context, eventID string) (*omise.Event, error)
}

// Repository хранилище пользователей.
type Repository interface {
	GetUser(ctx context.Context, lineUserID string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	FindUserByOmiseCustomerID(ctx context.Context, customerID string) (*models.User, error)
}

// Service платёжная логика.
type Service struct {
	gateway   Gateway
	repo      Repository
	returnURI string
	retry     retry.Policy
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт платёжный сервис. returnURI адрес, на который шлюз возвращает
// пользователя после подтверждения списания.
func New(log *slog.Logger, gateway Gateway, repo Repository, returnURI string) *Service {
	return &Service{
		gateway:   gateway,
		repo:      repo,
		returnURI: returnURI,
		retry: retry.DefaultPolicy(func(err error) bool {
			return errors.Is(err, omise.ErrDecodeResponse)
		}),
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func chargeMetadata(u *models.User) map[string]any {
	return map[string]any{"line_user_id": u.LineUserID}
}

func toChargeRef(c *omise.Charge) models.ChargeRef {
	return models.ChargeRef{
		ID:           c.ID,
		Amount:       c.Amount,
		Currency:     c.Currency,
		Status:       c.Status,
		AuthorizeURI: c.AuthorizeURI,
		Created:      c.Created,
	}
}

// EnsureCustomer возвращает id клиента в шлюзе и создаёт клиента, если его ещё нет.
func (s *Service) EnsureCustomer(ctx context.Context, u *models.User, email string) (string, error) {
	const op = "billing.EnsureCustomer"

	if u.Payment.OmiseCustomerID != "" {
		return u.Payment.OmiseCustomerID, nil
	}
	customer, err := s.gateway.CreateCustomer(ctx, omise.CreateCustomerRequest{
		Email:       email,
		Description: u.Profile.DisplayName,
		Metadata:    map[string]string{"line_user_id": u.LineUserID},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u.Payment.OmiseCustomerID = customer.ID
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("payment customer created", sl.Op(op), sl.LineUser(u.LineUserID),
		slog.String("customer_id", customer.ID))
	return customer.ID, nil
}

// Subscribe списывает первый месяц с карты клиента и создаёт ежемесячное расписание.
// Возвращает адрес подтверждения первого списания.
func (s *Service) Subscribe(ctx context.Context, u *models.User) (string, error) {
	const op = "billing.Subscribe"

	if u.Payment.OmiseCustomerID == "" {
		return "", fmt.Errorf("%s: %w", op, models.ErrNoCustomer)
	}
	if u.Payment.OmiseScheduleID != "" {
		return "", fmt.Errorf("%s: %w", op, ErrAlreadySubscribed)
	}

	now := s.now()
	billingDay := models.BillingDay(now)
	customerID := u.Payment.OmiseCustomerID

	charge, err := s.gateway.CreateCharge(ctx, omise.CreateChargeRequest{
		Amount:      models.PriceMonthly,
		Currency:    models.Currency,
		Description: models.ChargeDescription,
		Customer:    customerID,
		ReturnURI:   s.returnURI,
		Metadata:    chargeMetadata(u),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u.Payment.AddPendingCharge(toChargeRef(charge))

	local := now.In(models.BillingLocation)
	schedule, err := s.gateway.CreateSchedule(ctx, omise.CreateScheduleRequest{
		Every:     1,
		Period:    "month",
		StartDate: local.AddDate(0, 1, 0).Format(dateLayout),
		EndDate:   local.AddDate(1, 0, 0).Format(dateLayout),
		On:        omise.ScheduleOn{DaysOfMonth: []int{billingDay}},
		Charge: omise.ScheduleCharge{
			Customer:    customerID,
			Amount:      models.PriceMonthly,
			Currency:    models.Currency,
			Description: models.ChargeDescription,
			Metadata:    chargeMetadata(u),
		},
	})
	if err != nil {
		// Первое списание уже создано, его результат придёт вебхуком.
		if saveErr := s.repo.SaveUser(ctx, u); saveErr != nil {
			s.log.Error("failed to save pending charge", sl.Op(op), sl.Err(saveErr))
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u.Payment.OmiseScheduleID = schedule.ID
	u.Payment.BillingDay = billingDay

	if err := s.repo.SaveUser(ctx, u); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscribed", sl.Op(op), sl.LineUser(u.LineUserID),
		slog.String("schedule_id", schedule.ID), slog.Int("billing_day", billingDay))
	return charge.AuthorizeURI, nil
}

// Charge разовое списание по тарифу. Токен карты (tokn_) привязывается к клиенту
// и списание идёт с клиента, токен источника (src_) списывается напрямую.
func (s *Service) Charge(ctx context.Context, u *models.User, token string, amount int64) (string, error) {
	const op = "billing.Charge"

	if err := models.ValidateChargeAmount(amount); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	kind, err := models.ParseTokenKind(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req := omise.CreateChargeRequest{
		Amount:      amount,
		Currency:    models.Currency,
		Description: models.ChargeDescription,
		ReturnURI:   s.returnURI,
		Metadata:    chargeMetadata(u),
	}
	switch kind {
	case models.TokenCard:
		card, err := s.attachCard(ctx, u, token)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		req.Customer = u.Payment.OmiseCustomerID
		req.Card = card.ID
	case models.TokenSource:
		req.Source = token
	}

	charge, err := s.gateway.CreateCharge(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u.Payment.AddPendingCharge(toChargeRef(charge))
	u.Payment.BillingDay = models.BillingDay(s.now())

	if err := s.repo.SaveUser(ctx, u); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("charge created", sl.Op(op), sl.LineUser(u.LineUserID),
		slog.String("charge_id", charge.ID), slog.Int64("amount", amount))
	return charge.AuthorizeURI, nil
}

// MakeOneTimePayment списание на произвольную сумму не меньше минимальной. Без
// sourceToken списывается карта клиента по умолчанию. callbackURL заменяет адрес
// возврата по умолчанию.
func (s *Service) MakeOneTimePayment(ctx context.Context, u *models.User, amount int64, sourceToken, callbackURL string) (string, error) {
	const op = "billing.MakeOneTimePayment"

	if amount < models.MinChargeAmount {
		return "", fmt.Errorf("%s: %w: %d is below minimum %d", op, models.ErrInvalidAmount, amount, models.MinChargeAmount)
	}
	if callbackURL == "" {
		callbackURL = s.returnURI
	}
	req := omise.CreateChargeRequest{
		Amount:      amount,
		Currency:    models.Currency,
		Description: models.ChargeDescription,
		ReturnURI:   callbackURL,
		Metadata:    chargeMetadata(u),
	}
	if sourceToken == "" {
		// Без источника платим картой клиента по умолчанию.
		if u.Payment.OmiseCustomerID == "" {
			return "", fmt.Errorf("%s: %w", op, models.ErrNoCustomer)
		}
		req.Customer = u.Payment.OmiseCustomerID
	} else {
		kind, err := models.ParseTokenKind(sourceToken)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if kind != models.TokenSource {
			return "", fmt.Errorf("%s: %w: one-time payment requires a source", op, models.ErrNotImplemented)
		}
		req.Source = sourceToken
	}

	charge, err := s.gateway.CreateCharge(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u.Payment.AddPendingCharge(toChargeRef(charge))
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return charge.AuthorizeURI, nil
}

// Unsubscribe удаляет расписание списаний. Оплаченный период сохраняется.
func (s *Service) Unsubscribe(ctx context.Context, u *models.User) error {
	const op = "billing.Unsubscribe"

	if u.Payment.OmiseScheduleID == "" {
		return fmt.Errorf("%s: %w", op, models.ErrNoSchedule)
	}
	schedule, err := s.gateway.DestroySchedule(ctx, u.Payment.OmiseScheduleID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !schedule.Destroyed() {
		return fmt.Errorf("%s: %w: status %q", op, ErrScheduleNotDestroyed, schedule.Status)
	}
	u.Payment.OmiseScheduleID = ""
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("unsubscribed", sl.Op(op), sl.LineUser(u.LineUserID), slog.String("schedule_id", schedule.ID))
	return nil
}

// attachCard привязывает карту к клиенту и возвращает её. Новая карта последняя в списке.
func (s *Service) attachCard(ctx context.Context, u *models.User, token string) (*omise.Card, error) {
	if u.Payment.OmiseCustomerID == "" {
		return nil, models.ErrNoCustomer
	}
	customer, err := s.gateway.UpdateCustomer(ctx, u.Payment.OmiseCustomerID, omise.UpdateCustomerRequest{Card: token})
	if err != nil {
		return nil, err
	}
	cards := customer.Cards.Data
	if len(cards) == 0 {
		return nil, ErrCardNotAttached
	}
	return &cards[len(cards)-1], nil
}

// AddCard привязывает карту по токену к клиенту пользователя.
func (s *Service) AddCard(ctx context.Context, u *models.User, token string) (*omise.Card, error) {
	const op = "billing.AddCard"

	kind, err := models.ParseTokenKind(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if kind != models.TokenCard {
		return nil, fmt.Errorf("%s: %w: expected card token", op, models.ErrNotImplemented)
	}
	card, err := s.attachCard(ctx, u, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return card, nil
}

// ListCards карты клиента. Без клиента список пустой.
func (s *Service) ListCards(ctx context.Context, u *models.User) ([]omise.Card, error) {
	const op = "billing.ListCards"

	if u.Payment.OmiseCustomerID == "" {
		return []omise.Card{}, nil
	}
	list, err := s.gateway.ListCards(ctx, u.Payment.OmiseCustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if list.Data == nil {
		return []omise.Card{}, nil
	}
	return list.Data, nil
}

// RemoveCard отвязывает карту от клиента.
func (s *Service) RemoveCard(ctx context.Context, u *models.User, cardID string) error {
	const op = "billing.RemoveCard"

	if u.Payment.OmiseCustomerID == "" {
		return fmt.Errorf("%s: %w", op, models.ErrNoCustomer)
	}
	if _, err := s.gateway.DestroyCard(ctx, u.Payment.OmiseCustomerID, cardID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Charges актуальные данные ожидающих списаний. Ответы, которые не удалось
// разобрать, запрашиваются повторно.
func (s *Service) Charges(ctx context.Context, u *models.User) ([]*omise.Charge, error) {
	const op = "billing.Charges"

	charges := make([]*omise.Charge, 0, len(u.Payment.PendingCharges))
	for _, ref := range u.Payment.PendingCharges {
		id := ref.ID
		charge, err := retry.Do(ctx, s.retry, func() (*omise.Charge, error) {
			return s.gateway.RetrieveCharge(ctx, id)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		charges = append(charges, charge)
	}
	return charges, nil
}

// NextOccurrences ближайшие даты списаний по расписанию.
func (s *Service) NextOccurrences(ctx context.Context, u *models.User) ([]string, error) {
	const op = "billing.NextOccurrences"

	if u.Payment.OmiseScheduleID == "" {
		return []string{}, nil
	}
	schedule, err := s.gateway.RetrieveSchedule(ctx, u.Payment.OmiseScheduleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if schedule.NextOccurrencesOn == nil {
		return []string{}, nil
	}
	return schedule.NextOccurrencesOn, nil
}

// Status состояние подписки для API.
type Status struct {
	State             models.SubscriptionState `json:"state"`
	Tier              models.Tier              `json:"tier"`
	IsOnTrial         bool                     `json:"is_on_trial"`
	IsSubscribed      bool                     `json:"is_subscribed"`
	OncePaid          bool                     `json:"once_paid"`
	EndTrialOn        *time.Time               `json:"end_trial_on,omitempty"`
	EndSubscriptionOn *time.Time               `json:"end_subscription_on,omitempty"`
	BillingDay        int                      `json:"billing_day,omitempty"`
	HasCustomer       bool                     `json:"has_customer"`
	HasSchedule       bool                     `json:"has_schedule"`
	PendingCharges    int                      `json:"pending_charges"`
}

// Status вычисляет состояние подписки пользователя на текущий момент.
func (s *Service) Status(u *models.User) Status {
	now := s.now()
	p := &u.Payment
	return Status{
		State:             p.State(now),
		Tier:              u.Tier,
		IsOnTrial:         p.IsOnTrial(now),
		IsSubscribed:      p.IsSubscribed(now),
		OncePaid:          p.OncePaid(),
		EndTrialOn:        p.EndTrialOn(),
		EndSubscriptionOn: p.EndSubscriptionOn,
		BillingDay:        p.BillingDay,
		HasCustomer:       p.OmiseCustomerID != "",
		HasSchedule:       p.OmiseScheduleID != "",
		PendingCharges:    len(p.PendingCharges),
	}
}

// HandleChargeComplete обрабатывает вебхук о завершении списания. Событие
// перечитывается из шлюза, тело вебхука не используется. Успешное списание
// продлевает подписку на месяц один раз, неуспешное только убирается из ожидающих.
func (s *Service) HandleChargeComplete(ctx context.Context, eventID string) error {
	const op = "billing.HandleChargeComplete"
	log := s.log.With(sl.Op(op), slog.String("event_id", eventID))

	event, err := s.gateway.RetrieveEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if event.Key != omise.EventChargeComplete {
		log.Debug("event ignored", slog.String("key", event.Key))
		return nil
	}
	charge := event.Data
	if charge.Customer == "" {
		log.Warn("charge without customer", slog.String("charge_id", charge.ID))
		return nil
	}

	u, err := s.repo.FindUserByOmiseCustomerID(ctx, charge.Customer)
	if errors.Is(err, repository.ErrUserNotFound) {
		log.Warn("charge for unknown customer", slog.String("customer_id", charge.Customer))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(sl.LineUser(u.LineUserID), slog.String("charge_id", charge.ID))

	switch charge.Status {
	case omise.ChargeStatusSuccessful:
		if u.Payment.ChargeApplied(charge.ID) {
			// Повтор вебхука по уже учтённому списанию.
			log.Info("charge already applied")
			return nil
		}
		wasPending := u.Payment.RemovePendingCharge(charge.ID)
		scheduled := charge.Schedule != "" && charge.Schedule == u.Payment.OmiseScheduleID
		if !wasPending && !scheduled {
			log.Warn("charge is neither pending nor from the user schedule",
				slog.String("schedule_id", charge.Schedule))
			return nil
		}
		end := u.Payment.ExtendSubscription(s.now(), 1)
		u.Payment.MarkChargeApplied(charge.ID)
		u.Tier = models.TierGold
		log.Info("subscription extended", slog.Time("end_subscription_on", end))
	case omise.ChargeStatusFailed, omise.ChargeStatusExpired, omise.ChargeStatusReversed:
		if !u.Payment.RemovePendingCharge(charge.ID) {
			return nil
		}
		log.Info("charge failed", slog.String("status", charge.Status),
			slog.String("failure_code", charge.FailureCode))
	default:
		return nil
	}

	if err := s.repo.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
