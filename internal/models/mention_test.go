package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMention_SetPayload(t *testing.T) {
	m := &Mention{Platform: PlatformInstagram}

	require.NoError(t, m.SetPayload(&InstagramData{ShortCode: "Cx1", PostType: "image"}))
	assert.NotEmpty(t, m.InstagramData)
	assert.Empty(t, m.TikTokData)

	payload, err := m.Payload()
	require.NoError(t, err)
	ig, ok := payload.(*InstagramData)
	require.True(t, ok)
	assert.Equal(t, "Cx1", ig.ShortCode)
}

func TestMention_SetPayload_RejectsOtherPlatform(t *testing.T) {
	m := &Mention{Platform: PlatformInstagram}

	err := m.SetPayload(&TikTokData{AuthorVerified: true})
	assert.Error(t, err)
	assert.Empty(t, m.InstagramData)
	assert.Empty(t, m.TikTokData)
}

func TestMention_Payload_Empty(t *testing.T) {
	m := &Mention{Platform: PlatformTikTok}

	payload, err := m.Payload()
	assert.NoError(t, err)
	assert.Nil(t, payload)
}

func TestMention_Day(t *testing.T) {
	m := &Mention{PostTimestamp: time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)}
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), m.Day())

	fallback := &Mention{CreatedAt: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)}
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), fallback.Day())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" TikTok ")
	require.NoError(t, err)
	assert.Equal(t, PlatformTikTok, p)

	_, err = ParsePlatform("myspace")
	assert.Error(t, err)
}
