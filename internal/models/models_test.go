package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func TestValidateChatRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := ChatRequest{
			Messages: []ConversationTurn{
				{Role: RoleSystem, Content: "prompt"},
				{Role: RoleUser, Content: "hi"},
			},
			Temperature: floatPtr(0.5),
		}
		assert.Nil(t, Validate(req))
	})

	t.Run("empty messages", func(t *testing.T) {
		issues := Validate(ChatRequest{Messages: []ConversationTurn{}})
		require.Len(t, issues, 1)
		assert.Equal(t, "messages", issues[0].Param)
	})

	t.Run("bad role and empty content", func(t *testing.T) {
		issues := Validate(ChatRequest{Messages: []ConversationTurn{{Role: "narrator", Content: ""}}})
		require.Len(t, issues, 2)
		assert.Equal(t, "messages[0].role", issues[0].Param)
		assert.Equal(t, "Invalid role", issues[0].Msg)
		assert.Equal(t, "messages[0].content", issues[1].Param)
	})

	t.Run("temperature out of range", func(t *testing.T) {
		issues := Validate(ChatRequest{
			Messages:    []ConversationTurn{{Role: RoleUser, Content: "x"}},
			Temperature: floatPtr(1.5),
		})
		require.Len(t, issues, 1)
		assert.Equal(t, "Temperature must be between 0 and 1", issues[0].Msg)
	})
}

func TestSavePersonalityRequestToPersonality(t *testing.T) {
	t.Run("flags default to enabled", func(t *testing.T) {
		req := SavePersonalityRequest{UserName: "Ann", Name: "Rei", Age: "20", Traits: "calm", Interests: "tea", Speech: "soft"}
		p := req.ToPersonality()

		assert.True(t, p.InterestsEnabled)
		assert.True(t, p.SpeechEnabled)
		assert.Equal(t, "tea", p.Interests)
		assert.Equal(t, "soft", p.Speech)
		assert.Equal(t, DefaultLanguage, p.Language)
		assert.NotNil(t, p.Greetings)
		assert.Equal(t, DefaultTemperature, p.Temperature)
	})

	t.Run("disabled flags drop fields", func(t *testing.T) {
		req := SavePersonalityRequest{
			UserName: "Ann", Name: "Rei", Age: "20", Traits: "calm",
			Interests: "tea", InterestsEnabled: boolPtr(false),
			Speech: "soft", SpeechEnabled: boolPtr(false),
			Language: "jp", Temperature: floatPtr(0.3),
		}
		p := req.ToPersonality()

		assert.Empty(t, p.Interests)
		assert.Empty(t, p.Speech)
		assert.False(t, p.HasInterests())
		assert.False(t, p.HasSpeech())
		assert.Equal(t, "jp", p.Language)
		assert.Equal(t, 0.3, p.Temperature)
	})

	t.Run("required fields", func(t *testing.T) {
		req := SavePersonalityRequest{UserName: "  ", Name: "Rei"}
		req.Trim()
		issues := Validate(req)

		params := make([]string, 0, len(issues))
		for _, i := range issues {
			params = append(params, i.Param)
		}
		assert.ElementsMatch(t, []string{"userName", "age", "traits"}, params)
	})
}

func TestConversationHistory(t *testing.T) {
	h := NewConversationHistory("sys")
	assert.True(t, h.HasSystemPrompt())
	assert.Equal(t, 0, h.UserTurns())

	h2 := h.Append(ConversationTurn{Role: RoleUser, Content: "hi"})
	assert.Len(t, h, 1)
	assert.Len(t, h2, 2)
	assert.Equal(t, 1, h2.UserTurns())

	c := h2.Clone()
	c[1].Content = "changed"
	assert.Equal(t, "hi", h2[1].Content)
}

func TestNormalizeUserMessage(t *testing.T) {
	assert.Equal(t, ContinuationSentinel, NormalizeUserMessage("   "))
	assert.Equal(t, "hello", NormalizeUserMessage(" hello "))
}

func TestWhitespaceUserTurnIsValid(t *testing.T) {
	req := ChatRequest{Messages: []ConversationTurn{{Role: RoleUser, Content: "  "}}}
	assert.Nil(t, Validate(req))
	assert.Equal(t, ContinuationSentinel, NormalizeUserMessage(req.Messages[0].Content))

	req.Messages[0].Content = ""
	require.Len(t, Validate(req), 1)
}

func TestEffectiveTemperature(t *testing.T) {
	assert.Equal(t, DefaultTemperature, (&ChatRequest{}).EffectiveTemperature())
	assert.Equal(t, 0.0, (&ChatRequest{Temperature: floatPtr(0)}).EffectiveTemperature())

	withPersonality := &ChatRequest{Personality: &Personality{Temperature: 0.2}}
	assert.Equal(t, 0.2, withPersonality.EffectiveTemperature())

	withPersonality.Temperature = floatPtr(0.9)
	assert.Equal(t, 0.9, withPersonality.EffectiveTemperature())
}
