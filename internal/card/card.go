// Package card implements C5: rendering a character card into a stable,
// placeholder-expanded text block with per-field clipping. It never
// injects behavioral rules — those come from SystemPromptModules, which
// this package only formats around.
package card

import "strings"

// Card is a CharacterCard (spec §3), read-only to this package.
type Card struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Persona      string `json:"persona"`
	Scenario     string `json:"scenario"`
	FirstMes     string `json:"first_mes"`
	SystemPrompt string `json:"system_prompt"`
	CreatorNotes string `json:"creator_notes"`
}

const (
	clipDescription  = 800
	clipPersona      = 600
	clipScenario     = 600
	clipCreatorNotes = 600
	clipSystemPrompt = 800
	clipFirstMes     = 1200
)

// Render produces the textual character block for c, substituting
// userAlias and c.Name into {{user}}/{{User}}/{{char}}/{{Character}}
// placeholders before clipping each field to its fixed length.
func Render(c Card, userAlias string) string {
	var b strings.Builder

	writeLabeled := func(label, content string, maxChars int) {
		content = strings.TrimSpace(replacePlaceholders(content, userAlias, c.Name))
		if content == "" {
			return
		}
		content = clip(content, maxChars)
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(label)
		b.WriteByte('\n')
		b.WriteString(content)
	}

	if name := strings.TrimSpace(c.Name); name != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Target Character: " + name)
	}
	writeLabeled("["+c.Name+"'s Description]", c.Description, clipDescription)
	writeLabeled("["+c.Name+"'s Persona]", c.Persona, clipPersona)
	writeLabeled("[Scenario]", c.Scenario, clipScenario)
	writeLabeled("[Creator's Notes]", c.CreatorNotes, clipCreatorNotes)
	writeLabeled("[System Prompt]", c.SystemPrompt, clipSystemPrompt)
	writeLabeled("[Dialogue Examples]", c.FirstMes, clipFirstMes)

	return b.String()
}

func replacePlaceholders(text, userAlias, charName string) string {
	replacer := strings.NewReplacer(
		"{{user}}", userAlias,
		"{{User}}", userAlias,
		"{{char}}", charName,
		"{{Character}}", charName,
	)
	return replacer.Replace(text)
}

func clip(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}
