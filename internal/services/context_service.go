// internal/services/context_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/models"
)

const (
	clockLayout = "3:04 PM"
	dateLayout  = "Monday, January 2, 2006"
)

// Phase selects which character-context template wraps a user turn.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseFirstMessage
	PhaseContinuation
)

func (p Phase) String() string {
	switch p {
	case PhaseFirstMessage:
		return "first_message"
	case PhaseContinuation:
		return "continuation"
	default:
		return "normal"
	}
}

// SelectPhase picks the phase of message given the turns before it. The first
// user turn after the system prompt is always FirstMessage, even when it is
// the continuation sentinel.
func SelectPhase(prior models.ConversationHistory, message string) Phase {
	if prior.UserTurns() == 0 {
		return PhaseFirstMessage
	}
	if message == models.ContinuationSentinel {
		return PhaseContinuation
	}
	return PhaseNormal
}

// TurnOptions carries the per-turn inputs of a context block.
type TurnOptions struct {
	// Message is the user's normalized message.
	Message string
	// Greeting is the greeting shown before the first user turn.
	Greeting string
}

// ContextBuilder renders the system prompt and per-turn character context
// for a personality. Rendering functions take the instant explicitly; the
// builder's clock is only used by the request-level helpers.
type ContextBuilder struct {
	clock func() time.Time
}

// NewContextBuilder creates a builder. A nil clock means time.Now.
func NewContextBuilder(clock func() time.Time) *ContextBuilder {
	if clock == nil {
		clock = time.Now
	}
	return &ContextBuilder{clock: clock}
}

// Now returns the builder's current instant.
func (b *ContextBuilder) Now() time.Time {
	return b.clock()
}

// RenderSystemPrompt renders the opening system prompt for p at now.
func RenderSystemPrompt(p *models.Personality, now time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a %s-year-old from %s.\n", p.Name, p.Age, p.Location)
	fmt.Fprintf(&sb, "You are chatting with %s.\n", p.UserName)
	fmt.Fprintf(&sb, "Current time: %s\n", now.Format(clockLayout))
	fmt.Fprintf(&sb, "Current date: %s\n", now.Format(dateLayout))
	sb.WriteString("\nYour personality traits:\n")
	sb.WriteString(p.Traits)

	if p.HasInterests() {
		sb.WriteString("\n\nYour interests and hobbies:\n")
		sb.WriteString(p.Interests)
	}
	if p.HasSpeech() {
		sb.WriteString("\n\nYour speech patterns and communication style:\n")
		sb.WriteString(p.Speech)
	}

	sb.WriteString("\n\nWhen chatting:\n")
	fmt.Fprintf(&sb, "- Address the user by their name (%s) occasionally\n", p.UserName)
	sb.WriteString(`- Stay in character and be consistent with your personality
- Be natural and authentic in your responses
- Share relevant personal experiences based on your background
- Never break character or acknowledge being an AI
- Ask follow-up questions to show interest
- Maintain conversation flow naturally
- Be aware of the current time and date when making references to time`)

	return sb.String()
}

type turnRenderer func(p *models.Personality, now time.Time, opts TurnOptions) string

var turnRenderers = map[Phase]turnRenderer{
	PhaseFirstMessage: renderFirstMessage,
	PhaseContinuation: renderContinuation,
	PhaseNormal:       renderNormal,
}

// RenderTurnContext renders the character-context block that replaces the
// user's turn for the given phase.
func RenderTurnContext(p *models.Personality, phase Phase, now time.Time, opts TurnOptions) string {
	render, ok := turnRenderers[phase]
	if !ok {
		render = renderNormal
	}
	return render(p, now, opts)
}

func writeBundle(sb *strings.Builder, tag string, p *models.Personality, now time.Time) {
	fmt.Fprintf(sb, "[%s]\n", tag)
	fmt.Fprintf(sb, "Name: %s\n", p.Name)
	fmt.Fprintf(sb, "Age: %s\n", p.Age)
	fmt.Fprintf(sb, "Location: %s\n", p.Location)
	fmt.Fprintf(sb, "Current time: %s\n", now.Format(clockLayout))
	fmt.Fprintf(sb, "Current date: %s\n", now.Format(dateLayout))
}

func writeTraits(sb *strings.Builder, p *models.Personality) {
	fmt.Fprintf(sb, "Personality Traits:\n%s\n\n", p.Traits)
	fmt.Fprintf(sb, "Interests and Hobbies:\n%s\n\n", p.Interests)
	fmt.Fprintf(sb, "Speech Patterns:\n%s\n\n", p.Speech)
}

func writeDirectives(sb *strings.Builder, p *models.Personality, extra ...string) {
	sb.WriteString("Remember:\n")
	fmt.Fprintf(sb, "- You are %s, stay in character\n", p.Name)
	sb.WriteString("- Maintain your personality and speech patterns\n")
	sb.WriteString("- Never break character or acknowledge being AI\n")
	sb.WriteString("- Reference current time/situation when appropriate\n")
	fmt.Fprintf(sb, "- Address user as %s\n", p.UserName)
	for _, line := range extra {
		fmt.Fprintf(sb, "- %s\n", line)
	}
	sb.WriteString("\n[End Context]")
}

func renderFirstMessage(p *models.Personality, now time.Time, opts TurnOptions) string {
	var sb strings.Builder
	writeBundle(&sb, "Character Context - First Message", p, now)
	fmt.Fprintf(&sb, "\nInitial Greeting Used: \"%s\"\n", ExpandGreeting(p, opts.Greeting))
	fmt.Fprintf(&sb, "User's First Response: \"%s\"\n\n", opts.Message)
	writeTraits(&sb, p)
	writeDirectives(&sb, p,
		"This is the user's first response to your greeting",
		"Acknowledge their response naturally and continue the conversation",
	)
	return sb.String()
}

func renderContinuation(p *models.Personality, now time.Time, opts TurnOptions) string {
	var sb strings.Builder
	writeBundle(&sb, "Character Context - Continue Previous", p, now)
	sb.WriteString("\n")
	writeTraits(&sb, p)
	writeDirectives(&sb, p, "User wants you to continue or elaborate on your previous message")
	return sb.String()
}

func renderNormal(p *models.Personality, now time.Time, opts TurnOptions) string {
	var sb strings.Builder
	writeBundle(&sb, "Character Context", p, now)
	sb.WriteString("\n")
	writeTraits(&sb, p)
	writeDirectives(&sb, p)
	fmt.Fprintf(&sb, "\n\nUser Message: %s", opts.Message)
	return sb.String()
}

// ExpandGreeting substitutes {userName} and {name} in a greeting line.
func ExpandGreeting(p *models.Personality, greeting string) string {
	return strings.NewReplacer("{userName}", p.UserName, "{name}", p.Name).Replace(greeting)
}

const firstMessageDirectives = "\n\nWhen responding to the first message:\n" +
	"- The user is responding to your initial greeting\n" +
	"- Acknowledge their response naturally\n" +
	"- Continue the conversation based on their response\n" +
	"- Stay in character and maintain your personality\n" +
	"- Reference the current time if appropriate\n"

// AugmentFirstMessage appends the first-response directives to the leading
// system turn. Histories without a system turn are returned unchanged.
func AugmentFirstMessage(history models.ConversationHistory) models.ConversationHistory {
	if !history.HasSystemPrompt() {
		return history
	}
	out := history.Clone()
	out[0].Content += firstMessageDirectives
	return out
}

// PreparedConversation is a history ready for the upstream.
type PreparedConversation struct {
	History models.ConversationHistory
	// Phase is only meaningful when Rendered is set.
	Phase    Phase
	Rendered bool
}

// Prepare turns an inbound chat request into the history sent upstream. With
// a personality attached the system prompt is rendered server-side and the
// last user turn is wrapped in its character context; otherwise the client
// rendered history is used as is.
func (b *ContextBuilder) Prepare(req *models.ChatRequest) (*PreparedConversation, error) {
	history := req.History()
	if req.Personality == nil {
		return &PreparedConversation{History: history}, nil
	}
	if len(history) == 0 || history[len(history)-1].Role != models.RoleUser {
		return nil, apperrors.NewValidationError("last message must be a user message", nil)
	}

	now := b.clock()
	p := req.Personality
	last := history[len(history)-1]
	prior := history[:len(history)-1].Clone()

	systemPrompt := RenderSystemPrompt(p, now)
	if prior.HasSystemPrompt() {
		prior[0].Content = systemPrompt
	} else {
		prior = append(models.NewConversationHistory(systemPrompt), prior...)
	}

	message := models.NormalizeUserMessage(last.Content)
	phase := SelectPhase(prior, message)
	last.Content = RenderTurnContext(p, phase, now, TurnOptions{
		Message:  message,
		Greeting: req.Greeting,
	})

	return &PreparedConversation{
		History:  prior.Append(last),
		Phase:    phase,
		Rendered: true,
	}, nil
}
