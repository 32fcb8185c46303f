// Package redact scans extracted text for PII shapes and replaces matched
// spans with placeholder tokens. Pattern families are recorded; matched
// values never are.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/paperflow/internal/model"
)

type piiPattern struct {
	re   *regexp.Regexp
	kind model.PIIKind
}

// Order matters: longer, more specific shapes first so a card number is not
// partially consumed by the account-number pattern.
var patterns = []piiPattern{
	{regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), model.PIICard},
	{regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`), model.PIISSN},
	{regexp.MustCompile(`\b\d{3}[- ]\d{3}[- ]\d{3}\b`), model.PIISSN},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), model.PIIEmail},
	{regexp.MustCompile(`\b(?:\+?1[- .]?)?\(?\d{3}\)?[- .]\d{3}[- .]\d{4}\b`), model.PIIPhone},
	{regexp.MustCompile(`\b\d{8,12}\b`), model.PIIAccount},
}

// Result holds the redacted text and the typed findings.
type Result struct {
	RedactedText string
	Findings     []model.PIIFinding
}

type span struct {
	kind  model.PIIKind
	start int
	end   int
	last4 string
}

// Redact replaces every PII span in text with a placeholder token. Offsets
// in the findings refer to the original text.
func Redact(text string) Result {
	var spans []span
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(spans, loc[0], loc[1]) {
				continue
			}
			s := span{kind: p.kind, start: loc[0], end: loc[1]}
			if p.kind == model.PIICard {
				s.last4 = lastDigits(text[loc[0]:loc[1]], 4)
			}
			spans = append(spans, s)
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var builder strings.Builder
	findings := make([]model.PIIFinding, 0, len(spans))
	prev := 0
	for _, s := range spans {
		builder.WriteString(text[prev:s.start])
		builder.WriteString(placeholder(s))
		prev = s.end
		findings = append(findings, model.PIIFinding{Kind: s.kind, Start: s.start, End: s.end})
	}
	builder.WriteString(text[prev:])

	return Result{RedactedText: builder.String(), Findings: findings}
}

// RedactBinary is the best-effort binary-level redaction. Arbitrary binary
// formats cannot be rewritten in place without re-encoding, so only
// plain-text buffers are supported; anything else reports an error the
// caller treats as non-fatal.
func RedactBinary(data []byte) ([]byte, error) {
	if !isPlainText(data) {
		return nil, fmt.Errorf("binary redaction unsupported for this format")
	}
	result := Redact(string(data))
	return []byte(result.RedactedText), nil
}

func placeholder(s span) string {
	switch s.kind {
	case model.PIICard:
		if s.last4 != "" {
			return fmt.Sprintf("{{CARD_%s}}", s.last4)
		}
		return "{{CARD}}"
	case model.PIIAccount:
		return "{{ACCOUNT}}"
	case model.PIISSN:
		return "{{SSN}}"
	case model.PIIEmail:
		return "{{EMAIL}}"
	case model.PIIPhone:
		return "{{PHONE}}"
	default:
		return "{{REDACTED}}"
	}
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func lastDigits(s string, n int) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}

func isPlainText(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}
