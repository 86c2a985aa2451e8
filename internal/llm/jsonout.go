// internal/llm/jsonout.go
package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON pulls the first JSON object out of model output, tolerating
// markdown fences and prose around it.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ValidateAgainstSchema checks a JSON document against a JSON schema and
// returns a single error message listing every violation. The message is fed
// back to the model verbatim on the repair pass.
func ValidateAgainstSchema(schema, document string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(document),
	)
	if err != nil {
		return fmt.Errorf("invalid JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}
	var parts []string
	for _, desc := range result.Errors() {
		parts = append(parts, desc.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(parts, "; "))
}
