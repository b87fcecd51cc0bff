// Package models содержит доменную модель пользователя Gebwai: учётную запись,
// настройки по источникам (чатам и группам LINE), платёжные данные и статистику.
// Вложенные документы (Settings, Payment, Stats) принадлежат только своему пользователю
// и хранятся вместе с ним.
package models

import "time"

// Tier уровень пользователя.
type Tier string

const (
	// TierIron уровень по умолчанию.
	TierIron Tier = "iron"
	// TierSilver выдаётся на пробный период.
	TierSilver Tier = "silver"
	// TierGold выдаётся после первой успешной оплаты.
	TierGold Tier = "gold"
)

// Valid проверяет, что значение уровня известно.
func (t Tier) Valid() bool {
	switch t {
	case TierIron, TierSilver, TierGold:
		return true
	}
	return false
}

// TutorialExperience отмечает шаги обучения, которые пользователь уже прошёл.
type TutorialExperience struct {
	InvitedToGroup       bool       `json:"invited_to_group"`
	CollectedFirstFileOn *time.Time `json:"collected_first_file_on,omitempty"`
}

// User представляет пользователя бота, идентифицируется LINE user id.
type User struct {
	LineUserID         string             `json:"line_user_id"`
	Profile            LINEUser           `json:"profile"`
	Settings           UserSettings       `json:"settings"`
	Payment            UserPayment        `json:"payment"`
	Stats              MonthlyStats       `json:"stats"`
	Tier               Tier               `json:"tier"`
	TutorialExperience TutorialExperience `json:"tutorial_experience"`
	IsBlocked          bool               `json:"is_blocked"`
	FollowedOn         *time.Time         `json:"followed_on,omitempty"`
	ReferByUser        *string            `json:"refer_by_user,omitempty"`
	ReferTime          *time.Time         `json:"refer_time,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewUser создаёт пользователя с настройками по умолчанию из профиля LINE.
func NewUser(profile LINEUser, now time.Time) *User {
	return &User{
		LineUserID: profile.UserID,
		Profile:    profile,
		Settings:   NewUserSettings(),
		Stats:      MonthlyStats{Updated: now},
		Tier:       TierIron,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StartTrial запускает пробный период, если он ещё не начинался.
// Возвращает false и ничего не меняет при повторном вызове.
// После успешного вызова пользователя нужно сохранить.
func (u *User) StartTrial(now time.Time) bool {
	if u.Payment.StartTrialOn != nil {
		return false
	}
	start := now
	u.Payment.StartTrialOn = &start
	end := *u.Payment.EndTrialOn()
	u.Payment.EndSubscriptionOn = &end
	u.Tier = TierSilver
	return true
}

// Follow отмечает, что пользователь добавил бота в друзья или разблокировал его.
func (u *User) Follow(now time.Time) {
	u.IsBlocked = false
	if u.FollowedOn == nil {
		t := now
		u.FollowedOn = &t
	}
}

// NClub количество источников пользователя без учёта личного чата с ботом.
func (u *User) NClub() int {
	n := len(u.Settings.SourceSettings)
	if _, ok := u.Settings.SourceSettings[u.LineUserID]; ok {
		n--
	}
	return n
}

// NClubBeforeFollowGebwai количество источников, появившихся до добавления бота в друзья.
func (u *User) NClubBeforeFollowGebwai() int {
	n := 0
	for _, s := range u.Settings.SourceSettings {
		if s.BeforeFollowGebwai {
			n++
		}
	}
	return n
}

// RecordGeb учитывает собранный файл в месячной статистике.
func (u *User) RecordGeb(fileType FileType, now time.Time) {
	u.Stats.Record(fileType, now)
	if u.TutorialExperience.CollectedFirstFileOn == nil && fileType != FileTypeChat {
		t := now
		u.TutorialExperience.CollectedFirstFileOn = &t
	}
}
