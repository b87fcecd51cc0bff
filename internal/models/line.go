package models

// LINEUser профиль пользователя из LINE Messaging API.
type LINEUser struct {
	UserID        string  `json:"user_id"`
	DisplayName   string  `json:"display_name"`
	PictureURL    *string `json:"picture_url,omitempty"`
	StatusMessage *string `json:"status_message,omitempty"`
	Language      *string `json:"language,omitempty"`
}

// GroupSummary краткая информация о группе LINE.
type GroupSummary struct {
	GroupID    string  `json:"group_id"`
	GroupName  string  `json:"group_name"`
	PictureURL *string `json:"picture_url,omitempty"`
}
