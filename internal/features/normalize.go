package features

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// The serving runtime re-implements this normalization in JS. The two
// must stay byte-for-byte identical or training features and inference
// features diverge silently. Any change here requires the same change
// in the web app's feature-engineering module.

var (
	// Combining Diacritical Marks block only, matching the runtime's
	// [̀-ͯ] strip after NFD decomposition.
	combiningMarks = runes.Remove(runes.Predicate(func(r rune) bool {
		return r >= 0x0300 && r <= 0x036f
	}))

	digitRunRe   = regexp.MustCompile(`\b\d{4,}\b`)
	dateTokenRe  = regexp.MustCompile(`\b\d{2}/\d{2}(/\d{2,4})?\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Gateway prefix rules, applied first-match-wins. Order is part of
	// the contract: every rewrite leaves a prefix no later anchored
	// pattern can match, so at most one rule ever fires.
	gatewayRules = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`^DL\*`), "GATEWAY*"},
		{regexp.MustCompile(`^MP\s?\*`), "GATEWAY*"},
		{regexp.MustCompile(`^PAG\*`), "GATEWAY*"},
		{regexp.MustCompile(`^IFD\*`), "GATEWAY*"},
		{regexp.MustCompile(`^EC\s?\*`), "GATEWAY*"},
		{regexp.MustCompile(`^EBN\*`), "GATEWAY*"},
		{regexp.MustCompile(`^PG\s?\*`), "GATEWAY*"},
		{regexp.MustCompile(`^PICPAY\*`), "PICPAY*"},
	}
)

// stripAccents decomposes to NFD and removes combining diacritical marks.
func stripAccents(s string) string {
	out, _, err := transform.String(transform.Chain(norm.NFD, combiningMarks), s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeDescription canonicalizes a raw bank-transaction description
// for feature extraction: uppercase, accent stripping, removal of
// card/account digit runs (4+ digits) and inline DD/MM[/YY[YY]] dates,
// gateway-prefix rewriting, and whitespace collapsing. An empty result
// means the record carries no usable text and is excluded from training.
func NormalizeDescription(text string) string {
	if text == "" {
		return ""
	}

	s := strings.TrimSpace(strings.ToUpper(text))
	s = stripAccents(s)
	s = digitRunRe.ReplaceAllString(s, "")
	s = dateTokenRe.ReplaceAllString(s, "")

	for _, rule := range gatewayRules {
		if rule.re.MatchString(s) {
			s = rule.re.ReplaceAllString(s, rule.repl)
			break
		}
	}

	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
