// internal/models/personality.go
package models

import "strings"

// DefaultLanguage is used when a personality does not name one.
const DefaultLanguage = "en"

// Personality is the user-authored character profile that drives prompt
// generation. It is replaced wholesale on save and never mutated mid-conversation.
type Personality struct {
	UserName         string   `json:"userName" validate:"required"`
	Name             string   `json:"name" validate:"required"`
	Age              string   `json:"age" validate:"required"`
	Location         string   `json:"location"`
	Traits           string   `json:"traits" validate:"required"`
	Interests        string   `json:"interests,omitempty"`
	InterestsEnabled bool     `json:"interestsEnabled"`
	Speech           string   `json:"speech,omitempty"`
	SpeechEnabled    bool     `json:"speechEnabled"`
	Temperature      float64  `json:"temperature" validate:"gte=0,lte=1"`
	Greetings        []string `json:"greetings"`
	Language         string   `json:"language"`
}

// HasInterests reports whether the interests block should be rendered.
func (p *Personality) HasInterests() bool {
	return p.InterestsEnabled && strings.TrimSpace(p.Interests) != ""
}

// HasSpeech reports whether the speech block should be rendered.
func (p *Personality) HasSpeech() bool {
	return p.SpeechEnabled && strings.TrimSpace(p.Speech) != ""
}

// SavePersonalityRequest is the body of a personality save. Enable flags
// default to true when omitted.
type SavePersonalityRequest struct {
	UserName         string   `json:"userName" validate:"required"`
	Name             string   `json:"name" validate:"required"`
	Age              string   `json:"age" validate:"required"`
	Location         string   `json:"location"`
	Traits           string   `json:"traits" validate:"required"`
	Interests        string   `json:"interests"`
	InterestsEnabled *bool    `json:"interestsEnabled"`
	Speech           string   `json:"speech"`
	SpeechEnabled    *bool    `json:"speechEnabled"`
	Temperature      *float64 `json:"temperature" validate:"omitempty,gte=0,lte=1"`
	Greetings        []string `json:"greetings"`
	Language         string   `json:"language"`
}

// Trim strips surrounding whitespace from every free-text field.
func (r *SavePersonalityRequest) Trim() {
	r.UserName = strings.TrimSpace(r.UserName)
	r.Name = strings.TrimSpace(r.Name)
	r.Age = strings.TrimSpace(r.Age)
	r.Location = strings.TrimSpace(r.Location)
	r.Traits = strings.TrimSpace(r.Traits)
	r.Interests = strings.TrimSpace(r.Interests)
	r.Speech = strings.TrimSpace(r.Speech)
	r.Language = strings.TrimSpace(r.Language)
}

// ToPersonality builds the stored profile. Interests and speech are dropped
// when their flag is off.
func (r *SavePersonalityRequest) ToPersonality() Personality {
	p := Personality{
		UserName:         r.UserName,
		Name:             r.Name,
		Age:              r.Age,
		Location:         r.Location,
		Traits:           r.Traits,
		InterestsEnabled: r.InterestsEnabled == nil || *r.InterestsEnabled,
		SpeechEnabled:    r.SpeechEnabled == nil || *r.SpeechEnabled,
		Greetings:        r.Greetings,
		Temperature:      DefaultTemperature,
		Language:         r.Language,
	}
	if p.InterestsEnabled {
		p.Interests = r.Interests
	}
	if p.SpeechEnabled {
		p.Speech = r.Speech
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if p.Greetings == nil {
		p.Greetings = []string{}
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	return p
}
