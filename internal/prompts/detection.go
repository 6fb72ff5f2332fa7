package prompts

import (
	"fmt"
	"strings"
)

const DetectionSystem = "You are a precise language detector that returns only ISO 639-1 codes."

// DetectionRequest builds the user message asking for the ISO 639-1 code of sample.
// allowed lists the codes the detector may answer with and fallback is used when unsure.
func DetectionRequest(allowed []string, fallback, sample string) string {
	return fmt.Sprintf(`Analyze the text and return ONLY the ISO 639-1 code of its main language.
Rules:
1. Return ONLY the 2-letter code
2. Use only these codes: %s
3. If you are not sure or the language is not in the list, return "%s"
4. Do not include punctuation, extra spaces or explanations

Correct examples:
"Hello world" -> en
"Bonjour le monde" -> fr
"Olá mundo" -> pt

Text to analyze:

%s`, strings.Join(allowed, ", "), fallback, sample)
}
