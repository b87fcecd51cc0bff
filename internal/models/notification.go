package models

import "time"

// TrialExpiringMessage уведомление о скором окончании пробного периода.
type TrialExpiringMessage struct {
	LineUserID  string    `json:"line_user_id"`
	DisplayName string    `json:"display_name"`
	EndTrialOn  time.Time `json:"end_trial_on"`
}
