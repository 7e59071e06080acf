package engine

import (
	"fmt"
	"strings"

	"edgellm/pkg/types"
)

// BuildPrompt renders a user prompt in the turn-formatting convention the
// model was trained with. The format is a property of the model, chosen
// independently of the backend running it.
func BuildPrompt(format types.PromptFormat, prompt string) string {
	switch format {
	case types.PromptFormatChatML:
		var b strings.Builder
		b.WriteString("<|im_start|>user\n")
		b.WriteString(prompt)
		b.WriteString("<|im_end|>\n<|im_start|>assistant\n")
		return b.String()
	case types.PromptFormatInstruct:
		return fmt.Sprintf("[INST] %s [/INST]", prompt)
	default:
		return prompt
	}
}

// stopsFor returns the implicit stop sequences of a prompt format, so a
// model does not run past its own turn marker.
func stopsFor(format types.PromptFormat) []string {
	switch format {
	case types.PromptFormatChatML:
		return []string{"<|im_end|>"}
	case types.PromptFormatInstruct:
		return []string{"[INST]"}
	default:
		return nil
	}
}
