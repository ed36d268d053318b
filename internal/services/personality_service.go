// internal/services/personality_service.go
package services

import "github.com/Corphon/PersonaChat/internal/models"

// PersonalityService normalizes personality profiles and renders their
// prompts with the server clock. Profiles are not stored server-side.
type PersonalityService struct {
	builder *ContextBuilder
}

// NewPersonalityService creates a service rendering with builder.
func NewPersonalityService(builder *ContextBuilder) *PersonalityService {
	if builder == nil {
		builder = NewContextBuilder(nil)
	}
	return &PersonalityService{builder: builder}
}

// Save validates req and returns the profile the client should keep. The
// returned issues are non-nil only when validation failed.
func (s *PersonalityService) Save(req *models.SavePersonalityRequest) (*models.Personality, []models.ValidationIssue) {
	req.Trim()
	if issues := models.Validate(req); issues != nil {
		return nil, issues
	}
	p := req.ToPersonality()
	return &p, nil
}

// RenderedContext is the server-side rendering of one turn.
type RenderedContext struct {
	Phase        string `json:"phase"`
	SystemPrompt string `json:"systemPrompt"`
	Context      string `json:"context"`
}

// RenderContext renders the system prompt and the turn context for req.
// HistoryLength counts the turns the client already holds, system prompt
// included, so a length of at most one means the first user turn. req must
// already be validated.
func (s *PersonalityService) RenderContext(req *models.ContextRequest) *RenderedContext {
	p := &req.Personality

	message := models.NormalizeUserMessage(req.Message)
	phase := PhaseNormal
	switch {
	case req.HistoryLength <= 1:
		phase = PhaseFirstMessage
	case message == models.ContinuationSentinel:
		phase = PhaseContinuation
	}

	now := s.builder.Now()
	return &RenderedContext{
		Phase:        phase.String(),
		SystemPrompt: RenderSystemPrompt(p, now),
		Context:      RenderTurnContext(p, phase, now, TurnOptions{Message: message, Greeting: req.Greeting}),
	}
}
