package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSettings_GetOrCreateSourceSettings(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	s := NewUserSettings()

	first, created := s.GetOrCreateSourceSettings("C123", "Family", false, now)
	require.True(t, created)
	assert.Equal(t, "C123", first.SourceID)
	assert.Equal(t, "Family", first.StartingSourceName)
	assert.True(t, first.Enabled)
	assert.Equal(t, DefaultGebSettings(), first.GebSettings)
	assert.Equal(t, now, first.Created)

	second, created := s.GetOrCreateSourceSettings("C123", "Renamed", true, now.Add(time.Hour))
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, "Family", second.StartingSourceName)
	assert.False(t, second.BeforeFollowGebwai)
	assert.Len(t, s.SourceSettings, 1)
}

func TestUserSettings_GetOrCreateSourceSettings_AutoDisabled(t *testing.T) {
	s := NewUserSettings()
	s.AutomaticGebForNewlyAddedGroup = false

	got, created := s.GetOrCreateSourceSettings("C1", "Work", true, time.Now())
	require.True(t, created)
	assert.False(t, got.Enabled)
	assert.True(t, got.BeforeFollowGebwai)
	assert.True(t, s.DefaultSourceSettings.Enabled, "template must not change")
}

func TestUserSettings_GetOrCreateSourceSettings_NilMap(t *testing.T) {
	var s UserSettings
	_, created := s.GetOrCreateSourceSettings("C1", "Work", false, time.Now())
	assert.True(t, created)
	assert.Len(t, s.SourceSettings, 1)
}

func TestNewSourceSettingsFromTemplate_CopiesVerifySlip(t *testing.T) {
	verify := true
	tpl := DefaultTemplateSourceSettings()
	tpl.VerifySlip = &verify

	got := NewSourceSettingsFromTemplate("G", "C9", tpl, time.Now())
	require.NotNil(t, got.VerifySlip)
	*got.VerifySlip = false
	assert.True(t, *tpl.VerifySlip)
}

func TestGebSettings_Allows(t *testing.T) {
	g := DefaultGebSettings()
	assert.True(t, g.Allows(FileTypeImage))
	assert.True(t, g.Allows(FileTypeLink))
	assert.False(t, g.Allows(FileTypeChat))
	assert.False(t, g.Allows(FileType("sticker")))
}

func TestUser_NClub(t *testing.T) {
	now := time.Now()
	u := NewUser(LINEUser{UserID: "U1"}, now)
	u.Settings.GetOrCreateSourceSettings("U1", "me", false, now)
	u.Settings.GetOrCreateSourceSettings("C1", "g1", true, now)
	u.Settings.GetOrCreateSourceSettings("C2", "g2", false, now)

	assert.Equal(t, 2, u.NClub())
	assert.Equal(t, 1, u.NClubBeforeFollowGebwai())
}

func TestUser_RecordGeb(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	u := NewUser(LINEUser{UserID: "U1"}, now)

	u.RecordGeb(FileTypeChat, now)
	assert.Nil(t, u.TutorialExperience.CollectedFirstFileOn)

	u.RecordGeb(FileTypeSlip, now.Add(time.Minute))
	require.NotNil(t, u.TutorialExperience.CollectedFirstFileOn)
	assert.Equal(t, now.Add(time.Minute), *u.TutorialExperience.CollectedFirstFileOn)

	assert.Equal(t, 2, u.Stats.NGebAll)
	assert.Equal(t, 1, u.Stats.NProcessSlip)
	assert.Equal(t, 1, u.Stats.NGebByFileType.Chat)

	u.RecordGeb(FileType("sticker"), now)
	assert.Equal(t, 2, u.Stats.NGebAll)
}

func TestTier_Valid(t *testing.T) {
	assert.True(t, TierGold.Valid())
	assert.False(t, Tier("bronze").Valid())
}

func TestUser_Follow(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	u := NewUser(LINEUser{UserID: "U1"}, now)
	u.IsBlocked = true

	u.Follow(now)
	assert.False(t, u.IsBlocked)
	require.NotNil(t, u.FollowedOn)
	assert.Equal(t, now, *u.FollowedOn)

	// Повторное добавление не сдвигает дату первого.
	u.IsBlocked = true
	u.Follow(now.Add(time.Hour))
	assert.False(t, u.IsBlocked)
	assert.Equal(t, now, *u.FollowedOn)
}
