package models

import "time"

// SourceType тип источника сообщений в LINE.
type SourceType string

const (
	SourceUser  SourceType = "user"
	SourceGroup SourceType = "group"
	SourceRoom  SourceType = "room"
)

// GebSettings какие типы сообщений бот собирает в источнике.
type GebSettings struct {
	Image bool `json:"image"`
	Slip  bool `json:"slip"`
	Audio bool `json:"audio"`
	File  bool `json:"file"`
	Video bool `json:"video"`
	Chat  bool `json:"chat"`
	Link  bool `json:"link"`
}

// DefaultGebSettings собирается всё, кроме обычной переписки.
func DefaultGebSettings() GebSettings {
	return GebSettings{
		Image: true,
		Slip:  true,
		Audio: true,
		File:  true,
		Video: true,
		Chat:  false,
		Link:  true,
	}
}

// Allows проверяет, включён ли сбор для типа файла.
func (g GebSettings) Allows(fileType FileType) bool {
	switch fileType {
	case FileTypeImage:
		return g.Image
	case FileTypeSlip:
		return g.Slip
	case FileTypeAudio:
		return g.Audio
	case FileTypeFile:
		return g.File
	case FileTypeVideo:
		return g.Video
	case FileTypeChat:
		return g.Chat
	case FileTypeLink:
		return g.Link
	}
	return false
}

// TemplateSourceSettings шаблон, из которого создаются настройки новых источников.
type TemplateSourceSettings struct {
	GebSettings GebSettings `json:"geb_settings"`
	VerifySlip  *bool       `json:"verify_slip,omitempty"`
	Enabled     bool        `json:"enabled"`
}

// DefaultTemplateSourceSettings шаблон по умолчанию.
func DefaultTemplateSourceSettings() TemplateSourceSettings {
	return TemplateSourceSettings{
		GebSettings: DefaultGebSettings(),
		Enabled:     true,
	}
}

// SourceSettings настройки конкретного чата или группы.
type SourceSettings struct {
	TemplateSourceSettings
	StartingSourceName string    `json:"starting_source_name"`
	SourceID           string    `json:"source_id"`
	Created            time.Time `json:"created"`
	BeforeFollowGebwai bool      `json:"before_follow_gebwai"`
}

// NewSourceSettingsFromTemplate копирует шаблон в настройки нового источника.
func NewSourceSettingsFromTemplate(startingName, sourceID string, template TemplateSourceSettings, now time.Time) *SourceSettings {
	t := template
	if template.VerifySlip != nil {
		v := *template.VerifySlip
		t.VerifySlip = &v
	}
	return &SourceSettings{
		TemplateSourceSettings: t,
		StartingSourceName:     startingName,
		SourceID:               sourceID,
		Created:                now,
	}
}

// UserSettings глобальные настройки пользователя и настройки по источникам.
type UserSettings struct {
	AutomaticGebForNewlyAddedGroup bool                       `json:"automatic_geb_for_newly_added_group"`
	GebMyOwnFiles                  bool                       `json:"geb_my_own_files"`
	ReportGebStats                 bool                       `json:"report_geb_stats"`
	DefaultSourceSettings          TemplateSourceSettings     `json:"default_source_settings"`
	SourceSettings                 map[string]*SourceSettings `json:"source_settings"`
}

// NewUserSettings настройки нового пользователя.
func NewUserSettings() UserSettings {
	return UserSettings{
		AutomaticGebForNewlyAddedGroup: true,
		GebMyOwnFiles:                  true,
		ReportGebStats:                 true,
		DefaultSourceSettings:          DefaultTemplateSourceSettings(),
		SourceSettings:                 make(map[string]*SourceSettings),
	}
}

// GetOrCreateSourceSettings возвращает настройки источника, создавая их из шаблона
// при первом обращении. Второе значение true только если настройки были созданы,
// в этом случае пользователя нужно сохранить.
func (s *UserSettings) GetOrCreateSourceSettings(sourceID, startingName string, beforeFollowGebwai bool, now time.Time) (*SourceSettings, bool) {
	if existing, ok := s.SourceSettings[sourceID]; ok {
		return existing, false
	}
	if s.SourceSettings == nil {
		s.SourceSettings = make(map[string]*SourceSettings)
	}

	created := NewSourceSettingsFromTemplate(startingName, sourceID, s.DefaultSourceSettings, now)
	if !s.AutomaticGebForNewlyAddedGroup {
		created.Enabled = false
	}
	created.BeforeFollowGebwai = beforeFollowGebwai
	s.SourceSettings[sourceID] = created
	return created, true
}
