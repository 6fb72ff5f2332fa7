package prompts

import "fmt"

const TranslationSystem = "You are a professional translator who keeps the style and formatting of the original text."

// TranslationRequest builds the user message for translating text between two languages.
func TranslationRequest(sourceName, targetName, text string) string {
	return fmt.Sprintf(`You are a professional translator who keeps the tone and style of the original text.

Instructions:
1. Translate the text from %s to %s
2. Preserve all formatting (bold, italics, emojis)
3. Keep the same paragraphs and line breaks
4. Preserve numbers, dates and proper names
5. Do not add or remove information
6. Do not include notes or explanations
7. Keep the same level of formality

Text to translate:
%s`, sourceName, targetName, text)
}
