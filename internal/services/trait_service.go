// internal/services/trait_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
)

const traitTemperature = 0.7

// traitPrompts holds the generation prompt per UI language. %s is the reference.
var traitPrompts = map[string]string{
	"en": "Generate a complex personality profile for a character based on the following reference: %s. " +
		"Present the traits in the following format:\n" +
		"- Trait 1: Description\n" +
		"- Trait 2: Description\n" +
		"- Trait 3: Description\n" +
		"- Trait 4: Description\n" +
		"- Trait 5: Description",
	"id": "Buatkan profil kepribadian yang kompleks untuk karakter berdasarkan referensi berikut: %s. " +
		"Sajikan sifat-sifatnya dalam format berikut:\n" +
		"- Sifat 1: Deskripsi\n" +
		"- Sifat 2: Deskripsi\n" +
		"- Sifat 3: Deskripsi\n" +
		"- Sifat 4: Deskripsi\n" +
		"- Sifat 5: Deskripsi",
	"jp": "次の参照に基づいてキャラクターの詳細な性格プロフィールを生成してください: %s. " +
		"以下の形式で特徴を提示してください:\n" +
		"- 特徴1: 説明\n" +
		"- 特徴2: 説明\n" +
		"- 特徴3: 説明\n" +
		"- 特徴4: 説明\n" +
		"- 特徴5: 説明",
	"kr": "다음 참조 반으로 캐릭터의 상세한 성격 프로필을 생성하세요: %s. " +
		"다음 형식으로 특성을 제시하세요:\n" +
		"- 특성 1: 설명\n" +
		"- 특성 2: 설명\n" +
		"- 특성 3: 설명\n" +
		"- 특성 4: 설명\n" +
		"- 특성 5: 설명",
	"cn": "根据以下参考生成角色的详细性格档案: %s. " +
		"请按以下格式呈现特征:\n" +
		"- 特征1: 描述\n" +
		"- 特征2: 描述\n" +
		"- 特征3: 描述\n" +
		"- 特征4: 描述\n" +
		"- 特征5: 描述",
}

// TraitGenerator asks the upstream for a trait list matching a reference.
type TraitGenerator struct {
	relay *ChatRelay
}

// NewTraitGenerator creates a generator on relay.
func NewTraitGenerator(relay *ChatRelay) *TraitGenerator {
	return &TraitGenerator{relay: relay}
}

// TraitMessages builds the two-turn conversation for a trait request. Unknown
// languages fall back to English.
func TraitMessages(reference, language string) []llm.Message {
	prompt, ok := traitPrompts[language]
	if !ok {
		prompt = traitPrompts[models.DefaultLanguage]
	}
	if language == "" {
		language = models.DefaultLanguage
	}
	return []llm.Message{
		{Role: string(models.RoleSystem), Content: fmt.Sprintf("You are an assistant that generates personality traits in %s language.", language)},
		{Role: string(models.RoleUser), Content: fmt.Sprintf(prompt, reference)},
	}
}

// Generate returns the generated traits, one trimmed non-empty line each.
func (g *TraitGenerator) Generate(ctx context.Context, req *models.TraitRequest) (string, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return "", apperrors.NewValidationError("Reference is required", nil)
	}

	resp, err := g.relay.Complete(ctx, TraitMessages(reference, strings.TrimSpace(req.Language)), traitTemperature)
	if err != nil {
		return "", apperrors.WrapError(err, "trait generation", apperrors.ErrorTypeError)
	}

	traits := CleanTraitLines(resp.Text)
	if traits == "" {
		return "", apperrors.NewMalformedResponseError("generated content is empty", nil)
	}
	return traits, nil
}

// CleanTraitLines drops blank lines and trims the rest.
func CleanTraitLines(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
