package eval

import (
	"regexp"
	"strings"

	"github.com/stellarlinkco/secbench/internal/metrics"
)

var answerPattern = regexp.MustCompile(`(?i)answer:\s*([A-D])`)

// ExtractAnswer pulls the option letter out of a model response that follows
// the "Answer: <letter>" contract. Responses that do not contain a parseable
// letter map to the failure sentinel.
func ExtractAnswer(raw string) string {
	m := answerPattern.FindStringSubmatch(raw)
	if m == nil {
		return metrics.Failed
	}
	return strings.ToUpper(m[1])
}
