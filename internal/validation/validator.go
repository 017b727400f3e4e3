// Package validation implements topic input validation for the generation
// endpoint. It normalizes raw text, applies a short-circuiting schema gate
// (length, charset, disallowed symbols), and then evaluates a set of
// independent security checks (embedded URLs, injection patterns, profanity,
// markup), aggregating every triggered reason so callers can report all
// violations at once.
//
// The reported reasons are human-readable strings; Category() maps each one
// to a coarse bucket used for metrics only. Categorization never influences
// the accept/reject decision.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// Topic length bounds, aligned with the frontend rules.
const (
	MinTopicLength = 1
	MaxTopicLength = 50
)

// Reason strings returned to callers. Kept stable so clients and metrics can
// match on them.
const (
	ReasonEmpty        = "Input cannot be empty"
	ReasonTooLong      = "Max 50 characters allowed"
	ReasonCharset      = "Only letters, numbers, spaces, and ? are allowed"
	ReasonSymbols      = "Text contains disallowed special symbols."
	ReasonURL          = "URLs are not allowed."
	ReasonInjection    = "Injection/XSS pattern detected."
	ReasonProfanity    = "Profanity detected."
	ReasonMarkup       = "HTML is not allowed."
	ReasonInternalFail = "Validation error occurred"
)

// ErrInternal signals an unexpected fault inside the validator. Callers must
// treat it as a rejection (fail closed), never as an acceptance.
var ErrInternal = errors.New("validation internal error")

// Result is the outcome of validating one topic.
type Result struct {
	Valid      bool
	Reasons    []string
	Normalized string
}

var (
	// allowedCharsRE is the charset whitelist: letters, digits, spaces, '?'.
	allowedCharsRE = regexp.MustCompile(`^[a-zA-Z0-9 ?]*$`)

	// disallowedSymbolsRE is an independent blacklist of markup/code
	// punctuation. Redundant with the whitelist on purpose so the two checks
	// stay independently testable.
	disallowedSymbolsRE = regexp.MustCompile(`[<>{}\[\]()*/"':;#@!$%^&]`)

	// injectionREs cover query-injection keywords, comment delimiters, script
	// tags, inline event handlers, and script-URI schemes. Go's regexp engine
	// is RE2, so these patterns cannot backtrack pathologically.
	injectionREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(UNION|SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|EXEC|MERGE)\b`),
		regexp.MustCompile(`(?i)(--|;\s*--|/\*|\*/|;\s*SHUTDOWN)`),
		regexp.MustCompile(`(?i)<\s*script\b`),
		regexp.MustCompile(`(?i)\bon(?:error|load|click|mouseover)\s*=`),
		regexp.MustCompile(`(?i)javascript\s*:`),
	}

	// urlHintRE cheaply pre-filters before tokenized URL parsing.
	urlHintRE = regexp.MustCompile(`(?i)(https?://|www\.)`)

	// trailingPunctRE strips punctuation that commonly trails a pasted link.
	trailingPunctRE = regexp.MustCompile(`[()<>.,;:'"!?]+$`)

	// tagRE detects tag-like markup syntax.
	tagRE = regexp.MustCompile(`(?i)</?[a-z][^>]*>`)

	// fqdnLabelRE matches one hostname label.
	fqdnLabelRE = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

	// tldRE matches a plausible top-level domain label.
	tldRE = regexp.MustCompile(`^[a-zA-Z]{2,63}$`)
)

// Validator validates and normalizes topic text. The zero value is not
// usable; construct with New.
type Validator struct {
	profanity *ProfanityFilter
}

// New returns a Validator with the profanity filter for the given language.
// Unsupported languages fall back to English.
func New(lang language.Tag) *Validator {
	return &Validator{profanity: NewProfanityFilter(lang)}
}

// Validate normalizes and checks a raw topic. A bad but well-formed input
// yields Valid=false with reasons and a nil error; a non-nil error indicates
// an internal fault and the caller must reject.
func (v *Validator) Validate(raw string) (Result, error) {
	if v == nil || v.profanity == nil {
		return Result{Valid: false, Reasons: []string{ReasonInternalFail}, Normalized: raw},
			fmt.Errorf("%w: validator not initialized", ErrInternal)
	}

	normalized := strings.ToLower(strings.TrimSpace(raw))
	res := Result{Normalized: normalized}

	// Schema gate: length, charset, disallowed symbols. A violation here
	// short-circuits the remaining checks.
	if gate := schemaReasons(normalized); len(gate) > 0 {
		res.Reasons = gate
		return res, nil
	}

	// Independent security checks; all evaluated, reasons aggregated.
	if containsURL(normalized) {
		res.Reasons = append(res.Reasons, ReasonURL)
	}
	for _, re := range injectionREs {
		if re.MatchString(normalized) {
			res.Reasons = append(res.Reasons, ReasonInjection)
			break
		}
	}
	if v.profanity.Contains(normalized) {
		res.Reasons = append(res.Reasons, ReasonProfanity)
	}
	if hadMarkup, _ := sanitizeMarkup(normalized); hadMarkup {
		res.Reasons = append(res.Reasons, ReasonMarkup)
	}

	res.Valid = len(res.Reasons) == 0
	return res, nil
}

// schemaReasons evaluates the short-circuiting schema gate and returns every
// violated rule within the gate itself.
func schemaReasons(s string) []string {
	var reasons []string
	n := utf8.RuneCountInString(s)
	if n < MinTopicLength {
		reasons = append(reasons, ReasonEmpty)
	}
	if n > MaxTopicLength {
		reasons = append(reasons, ReasonTooLong)
	}
	if !allowedCharsRE.MatchString(s) {
		reasons = append(reasons, ReasonCharset)
	}
	if disallowedSymbolsRE.MatchString(s) {
		reasons = append(reasons, ReasonSymbols)
	}
	return reasons
}

// containsURL tokenizes on whitespace, strips trailing punctuation, and
// reports whether any token parses as a URL or fully-qualified domain name.
func containsURL(s string) bool {
	if !urlHintRE.MatchString(s) {
		return false
	}
	for _, raw := range strings.Fields(s) {
		token := trailingPunctRE.ReplaceAllString(strings.TrimSpace(raw), "")
		if token == "" {
			continue
		}
		if isURL(token) || isFQDN(strings.TrimPrefix(strings.ToLower(token), "www.")) {
			return true
		}
	}
	return false
}

// isURL reports whether the token parses as an http(s) URL, with or without
// an explicit scheme.
func isURL(token string) bool {
	candidate := token
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return isFQDN(u.Hostname()) || u.Hostname() == "localhost"
}

// isFQDN reports whether s is a fully-qualified domain name with a TLD.
func isFQDN(s string) bool {
	if s == "" || len(s) > 253 || strings.HasSuffix(s, ".") {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for i, label := range labels {
		if i == len(labels)-1 {
			if !tldRE.MatchString(label) {
				return false
			}
			continue
		}
		if !fqdnLabelRE.MatchString(label) {
			return false
		}
	}
	return true
}

// sanitizeMarkup strips tag-like syntax and reports whether the input had
// markup and whether stripping changed it. Markup is never allowed for
// topics, so any detected tag is a violation rather than a silent rewrite.
func sanitizeMarkup(s string) (hadMarkup bool, clean string) {
	if !tagRE.MatchString(s) {
		return false, s
	}
	clean = tagRE.ReplaceAllString(s, "")
	return true, clean
}

// Validation failure categories used for metrics labels.
const (
	CategoryProfanity = "profanity"
	CategoryInjection = "injection"
	CategoryURL       = "url"
	CategoryOther     = "other"
)

// Category maps a human-readable reason to a coarse metrics bucket. It is a
// side channel for observability and must not affect admission decisions.
func Category(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "profanity"):
		return CategoryProfanity
	case strings.Contains(lower, "injection"):
		return CategoryInjection
	case strings.Contains(lower, "url"):
		return CategoryURL
	default:
		return CategoryOther
	}
}
