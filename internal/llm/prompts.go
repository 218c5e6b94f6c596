package llm

import "strings"

const EXTRACT_SYSTEM = `You are a credentialing document extraction engine.
You must output ONLY valid JSON and nothing else.
No markdown. No comments. No extra keys.
If a value is unknown, use null for strings and integers where the schema allows it.
Years must be four-digit integers.`

const EXTRACT_USER_TEMPLATE = `You will extract structured data from a practitioner's supporting document.
Return JSON that matches EXACTLY the schema below.

Rules:
- Output JSON only.
- Use the schema keys exactly.
- Do not add keys not in the schema.
- Numbers must be plain numbers, no currency symbols.
- confidence must be a number between 0 and 1.
- If you cannot find a required field, set it to null where allowed and set confidence below 0.6.

Verification step: {{STEP}}

Schema (JSON Schema):
{{JSON_SCHEMA}}

Document text:
{{DOC_TEXT}}

Return JSON only.`

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

func BuildExtractUserPrompt(step string, jsonSchema string, docText string) string {
	return RenderTemplate(EXTRACT_USER_TEMPLATE, map[string]string{
		"STEP":        step,
		"JSON_SCHEMA": jsonSchema,
		"DOC_TEXT":    docText,
	})
}
