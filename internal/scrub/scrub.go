// Package scrub redacts secrets from captured wire transcripts.
//
// Every rule is anchored to a field name, XML tag or header name; the
// scrubber never redacts a bare run of digits on its own. Replacing a value
// with Filtered is stable under a second pass, so Scrub is idempotent.
package scrub

import (
	"net/url"
	"regexp"
	"strings"
)

// Filtered replaces every redacted value.
const Filtered = "[FILTERED]"

// Rule is a single anchored redaction.
type Rule struct {
	re   *regexp.Regexp
	repl string
}

func (r Rule) apply(s string) string {
	return r.re.ReplaceAllString(s, r.repl)
}

func alternation(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	return strings.Join(quoted, "|")
}

// FormField redacts form-urlencoded values, both in raw ("card[number]=")
// and percent-encoded ("card%5Bnumber%5D=") spelling.
func FormField(names ...string) Rule {
	all := make([]string, 0, len(names)*2)
	for _, n := range names {
		all = append(all, n)
		if enc := url.QueryEscape(n); enc != n {
			all = append(all, enc)
		}
	}
	re := regexp.MustCompile(`(?m)((?:^|[?&\s"])(?:` + alternation(all) + `)=)[^&\s"\\]*`)
	return Rule{re: re, repl: "${1}" + Filtered}
}

// JSONField redacts JSON string and number values of the named keys. Both
// plain ("cvv":"123") and escaped (\"cvv\":\"123\") transcripts are handled.
func JSONField(names ...string) Rule {
	alt := alternation(names)
	re := regexp.MustCompile(
		`(\\?"(?:` + alt + `)\\?"\s*:\s*)` +
			`(?:(\\?")(?:[^"\\]|\\[^"])*(\\?")|-?\d+(?:\.\d+)?)`,
	)
	return Rule{re: re, repl: "${1}${2}" + Filtered + "${3}"}
}

// XMLTag redacts the text content of the named elements. Attributes on the
// opening tag are preserved; similarly prefixed tags (CardSecValInd) are not
// matched.
func XMLTag(names ...string) Rule {
	re := regexp.MustCompile(`(<(` + alternation(names) + `)(?:\s[^>]*)?>)[^<]*(</)`)
	return Rule{re: re, repl: "${1}" + Filtered + "${3}"}
}

// Header redacts the value of the named HTTP headers.
func Header(names ...string) Rule {
	re := regexp.MustCompile(`(?i)((?:^|[\s"])(?:` + alternation(names) + `):[ \t]*)[^\s\\"]+`)
	return Rule{re: re, repl: "${1}" + Filtered}
}

// AuthorizationHeader redacts Bearer and Basic credentials, keeping the scheme.
func AuthorizationHeader() Rule {
	re := regexp.MustCompile(`(?i)(Authorization:[ \t]*(?:Bearer|Basic)[ \t]+)[^\s\\"]+`)
	return Rule{re: re, repl: "${1}" + Filtered}
}

// Pattern is an escape hatch for gateway-specific anchored patterns. The
// first capture group is kept and the remainder of the match is replaced.
func Pattern(expr string) Rule {
	return Rule{re: regexp.MustCompile(expr), repl: "${1}" + Filtered}
}

// Scrubber applies its rules in order.
type Scrubber struct {
	rules []Rule
}

// New builds a Scrubber from rules.
func New(rules ...Rule) *Scrubber {
	return &Scrubber{rules: rules}
}

// Scrub returns transcript with every matching secret replaced by Filtered.
func (s *Scrubber) Scrub(transcript string) string {
	out := transcript
	for _, r := range s.rules {
		out = r.apply(out)
	}
	return out
}
