package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TrialPeriod длительность пробного периода.
	TrialPeriod = 30 * 24 * time.Hour

	// PriceMonthly цена месячной подписки в сатангах.
	PriceMonthly int64 = 5900
	// PriceYearly цена годовой подписки в сатангах.
	PriceYearly int64 = 58800
	// MinChargeAmount минимальная сумма списания, принимаемая шлюзом.
	MinChargeAmount int64 = 2000

	// Currency валюта всех списаний.
	Currency = "thb"
	// ChargeDescription описание списаний в платёжном шлюзе.
	ChargeDescription = "Gebwai.com Subscription"

	// MaxBillingDay последний день месяца, который есть в любом месяце.
	MaxBillingDay = 28
)

var (
	// ErrInvalidAmount сумма не совпадает ни с одним тарифом.
	ErrInvalidAmount = errors.New("charge amount does not match any plan")
	// ErrNotImplemented тип платёжного токена не поддерживается.
	ErrNotImplemented = errors.New("payment token type is not implemented")
	// ErrNoCustomer у пользователя ещё нет клиента в платёжном шлюзе.
	ErrNoCustomer = errors.New("payment customer is not created")
	// ErrNoSchedule у пользователя нет активного расписания списаний.
	ErrNoSchedule = errors.New("payment schedule is not created")
)

// BillingLocation часовой пояс, в котором считается день списания.
var BillingLocation = time.FixedZone("GMT+7", 7*60*60)

// SubscriptionState вычисляемое состояние подписки.
type SubscriptionState string

const (
	StateNew          SubscriptionState = "new"
	StateTrial        SubscriptionState = "trial"
	StateSubscribed   SubscriptionState = "subscribed"
	StateLapsed       SubscriptionState = "lapsed"
	StateUnsubscribed SubscriptionState = "unsubscribed"
)

// TokenKind тип платёжного токена по его префиксу.
type TokenKind string

const (
	// TokenCard токен карты (tokn_...), карта привязывается к клиенту.
	TokenCard TokenKind = "tokn"
	// TokenSource токен источника оплаты (src_...), например QR или банк.
	TokenSource TokenKind = "src"
)

// ChargeRef ссылка на списание, ожидающее подтверждения.
type ChargeRef struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	AuthorizeURI string    `json:"authorize_uri,omitempty"`
	Created      time.Time `json:"created"`
}

// UserPayment платёжные данные пользователя.
type UserPayment struct {
	OmiseCustomerID   string      `json:"omise_customer_id,omitempty"`
	OmiseScheduleID   string      `json:"omise_schedule_id,omitempty"`
	EndSubscriptionOn *time.Time  `json:"end_subscription_on,omitempty"`
	StartTrialOn      *time.Time  `json:"start_trial_on,omitempty"`
	BillingDay        int         `json:"billing_day,omitempty"` // 1..31, 0 если не задан
	PendingCharges    []ChargeRef `json:"pending_charges"`
	// AppliedCharges последние успешные списания, уже продлившие подписку.
	AppliedCharges []string `json:"applied_charges,omitempty"`
}

// MaxAppliedCharges сколько последних учтённых списаний хранится.
const MaxAppliedCharges = 24

// EndTrialOn дата окончания пробного периода, nil если он не начинался.
func (p *UserPayment) EndTrialOn() *time.Time {
	if p.StartTrialOn == nil {
		return nil
	}
	end := p.StartTrialOn.Add(TrialPeriod)
	return &end
}

// IsOnTrial true пока не закончился пробный период.
func (p *UserPayment) IsOnTrial(now time.Time) bool {
	end := p.EndTrialOn()
	if end == nil {
		return false
	}
	return !now.After(*end)
}

// OncePaid true если подписка хоть раз продлевалась за пределы пробного периода.
func (p *UserPayment) OncePaid() bool {
	end := p.EndTrialOn()
	if end == nil || p.EndSubscriptionOn == nil {
		return false
	}
	return end.Before(*p.EndSubscriptionOn)
}

// IsSubscribed true если подписка оплачена и ещё не истекла.
func (p *UserPayment) IsSubscribed(now time.Time) bool {
	if p.EndSubscriptionOn == nil {
		return false
	}
	return p.OncePaid() && !now.After(*p.EndSubscriptionOn)
}

// State вычисляет текущее состояние подписки. Состояние нигде не хранится.
func (p *UserPayment) State(now time.Time) SubscriptionState {
	switch {
	case p.StartTrialOn == nil:
		return StateNew
	case p.IsSubscribed(now):
		return StateSubscribed
	case p.OncePaid() && p.OmiseScheduleID == "":
		return StateUnsubscribed
	case p.OncePaid():
		return StateLapsed
	case p.IsOnTrial(now):
		return StateTrial
	default:
		return StateLapsed
	}
}

// AddPendingCharge запоминает списание до получения его результата.
func (p *UserPayment) AddPendingCharge(ref ChargeRef) {
	p.PendingCharges = append(p.PendingCharges, ref)
}

// RemovePendingCharge убирает списание из ожидающих. Возвращает false если его не было.
func (p *UserPayment) RemovePendingCharge(id string) bool {
	for i, c := range p.PendingCharges {
		if c.ID == id {
			p.PendingCharges = append(p.PendingCharges[:i], p.PendingCharges[i+1:]...)
			return true
		}
	}
	return false
}

// ChargeApplied true если списание уже продлило подписку.
func (p *UserPayment) ChargeApplied(id string) bool {
	for _, applied := range p.AppliedCharges {
		if applied == id {
			return true
		}
	}
	return false
}

// MarkChargeApplied запоминает учтённое списание. Самые старые записи
// вытесняются после MaxAppliedCharges.
func (p *UserPayment) MarkChargeApplied(id string) {
	if p.ChargeApplied(id) {
		return
	}
	p.AppliedCharges = append(p.AppliedCharges, id)
	if n := len(p.AppliedCharges); n > MaxAppliedCharges {
		p.AppliedCharges = append([]string(nil), p.AppliedCharges[n-MaxAppliedCharges:]...)
	}
}

// ExtendSubscription продлевает подписку на months месяцев от более поздней из дат:
// now или текущего окончания подписки.
func (p *UserPayment) ExtendSubscription(now time.Time, months int) time.Time {
	from := now
	if p.EndSubscriptionOn != nil && p.EndSubscriptionOn.After(now) {
		from = *p.EndSubscriptionOn
	}
	end := from.AddDate(0, months, 0)
	p.EndSubscriptionOn = &end
	return end
}

// BillingDay день месяца для регулярного списания. Дни 29-31 есть не в каждом
// месяце, поэтому для них списание переносится на 1 число.
func BillingDay(now time.Time) int {
	day := now.In(BillingLocation).Day()
	if day > MaxBillingDay {
		return 1
	}
	return day
}

// ValidateChargeAmount проверяет, что сумма совпадает с одним из тарифов.
func ValidateChargeAmount(amount int64) error {
	if amount < MinChargeAmount {
		return fmt.Errorf("%w: %d is below minimum %d", ErrInvalidAmount, amount, MinChargeAmount)
	}
	if amount != PriceMonthly && amount != PriceYearly {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}

// ParseTokenKind определяет тип токена по префиксу до первого "_".
func ParseTokenKind(token string) (TokenKind, error) {
	prefix, _, _ := strings.Cut(token, "_")
	switch TokenKind(prefix) {
	case TokenCard:
		return TokenCard, nil
	case TokenSource:
		return TokenSource, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotImplemented, prefix)
}
