package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Violation severities and report statuses.
const (
	SeveritySuppression = "SUPPRESSION"
	SeverityWarning     = "WARNING"

	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

const titleCharLimit = 200

// forbiddenTitleChars are rejected by the marketplace title validator.
const forbiddenTitleChars = `!$?_{}^~#<>|*;\"¡€™®©`

// Violation describes a single compliance finding.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Field    string `json:"field"`
}

// PolicyReport aggregates the compliance findings for one draft.
type PolicyReport struct {
	Marketplace     string      `json:"marketplace"`
	Status          string      `json:"status"`
	Violations      []Violation `json:"violations"`
	SuppressionRisk bool        `json:"suppression_risk"`
}

// Patterns shared by every checker instance, compiled once.
var (
	titleLetterPattern = regexp.MustCompile(`\p{L}+`)
	urlPattern         = regexp.MustCompile(`(?i)https?://\S+`)
	wwwPattern         = regexp.MustCompile(`(?i)\bwww\.\S+`)
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern       = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[-.]\d{4}\b`)
	asinPattern        = regexp.MustCompile(`(?i)\bB0[A-Z0-9]{8}\b`)
)

// externalRefPatterns are scanned first-match-only over the combined text.
var externalRefPatterns = []struct {
	rule    string
	pattern *regexp.Regexp
	message string
}{
	{"external_url", urlPattern, "listing text contains a URL: %s"},
	{"external_www", wwwPattern, "listing text contains a web address: %s"},
	{"external_email", emailPattern, "listing text contains an email address: %s"},
	{"external_phone", phonePattern, "listing text contains a phone number: %s"},
}

// defaultClaimTerms returns the built-in prohibited-claim vocabulary, keyed
// by category. A JSON terms file may override any category.
func defaultClaimTerms() map[string][]string {
	return map[string][]string{
		"promotional": {
			"best seller", "bestseller", "best selling", "top rated",
			"hot item", "free shipping", "free gift", "money back guarantee",
			"satisfaction guaranteed", "lowest price", "on sale",
			"limited time", "special offer", "buy now", "while supplies last",
		},
		"health": {
			"cure", "cures", "heals", "fda approved", "clinically proven",
			"anti-inflammatory", "prevents infection", "relieves pain",
			"relieves anxiety", "antiviral", "boosts immunity",
		},
		"pesticide": {
			"antibacterial", "anti-bacterial", "antimicrobial", "antifungal",
			"pesticide", "insecticide", "disinfectant", "sanitizes",
			"kills germs", "kills bacteria", "repels insects", "mold resistant",
		},
		"drug": {
			"cbd", "thc", "cannabis", "cannabidiol", "marijuana", "kratom",
			"psilocybin",
		},
		"eco": {
			"eco-friendly", "eco friendly", "environmentally friendly",
			"biodegradable", "compostable", "sustainable", "zero waste",
			"plastic-free",
		},
		"subjective": {
			"best", "cheap", "cheapest", "amazing", "awesome", "perfect",
			"greatest", "ultimate", "unbeatable",
		},
	}
}

// claimCategory binds one prohibited-claim list to its rule id, severity and
// message template.
type claimCategory struct {
	rule     string
	severity string
	message  string
	pattern  *regexp.Regexp
}

// PolicyChecker validates drafts against marketplace content policy.
type PolicyChecker struct {
	claims     []claimCategory
	subjective *regexp.Regexp
}

// NewPolicyChecker constructs a checker using the built-in claim vocabulary,
// optionally overridden per category by a JSON file of the form
// {"promotional": ["..."], ...}. An empty path keeps the defaults.
func NewPolicyChecker(termsPath string) (*PolicyChecker, error) {
	lists := defaultClaimTerms()
	if termsPath != "" {
		data, err := os.ReadFile(filepath.Clean(termsPath))
		if err != nil {
			return nil, fmt.Errorf("read policy terms: %w", err)
		}
		var raw map[string][]string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal policy terms: %w", err)
		}
		for category, terms := range raw {
			if len(terms) > 0 {
				lists[category] = terms
			}
		}
	}

	categories := []struct {
		key      string
		rule     string
		severity string
		message  string
	}{
		{"promotional", "claim_promotional", SeveritySuppression, "promotional claim %q is not allowed"},
		{"health", "claim_health", SeveritySuppression, "health claim %q is not allowed without approval"},
		{"pesticide", "claim_pesticide", SeveritySuppression, "antimicrobial claim %q requires agency registration"},
		{"drug", "claim_drug", SeveritySuppression, "restricted substance term %q is not allowed"},
		{"eco", "claim_eco", SeverityWarning, "environmental claim %q needs certification evidence"},
	}

	checker := &PolicyChecker{}
	for _, c := range categories {
		pattern := buildTermPattern(lists[c.key])
		if pattern == nil {
			continue
		}
		checker.claims = append(checker.claims, claimCategory{
			rule:     c.rule,
			severity: c.severity,
			message:  c.message,
			pattern:  pattern,
		})
	}
	checker.subjective = buildTermPattern(lists["subjective"])
	return checker, nil
}

// Validate ensures the checker carries at least baseline claim vocabulary.
func (c *PolicyChecker) Validate() error {
	if c == nil {
		return errors.New("policy checker is nil")
	}
	if len(c.claims) == 0 {
		return errors.New("policy claim terms missing")
	}
	return nil
}

// Check runs every marketplace content rule against the draft. Only
// marketplaces whose identifier starts with "amazon" are policed; any other
// marketplace passes unconditionally.
func (c *PolicyChecker) Check(draft Draft, marketplace string) PolicyReport {
	report := PolicyReport{Marketplace: marketplace, Status: StatusPass, Violations: []Violation{}}
	if c == nil || !strings.HasPrefix(strings.ToLower(marketplace), "amazon") {
		return report
	}

	report.Violations = append(report.Violations, checkTitle(draft.Title)...)
	combined := draft.Title + " " + draft.bulletText() + " " + draft.Description
	report.Violations = append(report.Violations, c.checkClaims(combined)...)
	report.Violations = append(report.Violations, checkExternalRefs(combined)...)
	report.Violations = append(report.Violations, c.checkBackend(draft.BackendTerms)...)

	for _, v := range report.Violations {
		switch v.Severity {
		case SeveritySuppression:
			report.SuppressionRisk = true
			report.Status = StatusFail
		case SeverityWarning:
			if report.Status == StatusPass {
				report.Status = StatusWarn
			}
		}
	}
	return report
}

func checkTitle(title string) []Violation {
	var violations []Violation

	if length := utf8.RuneCountInString(title); length > titleCharLimit {
		violations = append(violations, Violation{
			Rule:     "title_length",
			Severity: SeveritySuppression,
			Message:  fmt.Sprintf("title is %d characters (limit %d)", length, titleCharLimit),
			Field:    "title",
		})
	}

	var allCaps []string
	words := titleLetterPattern.FindAllString(title, -1)
	for _, word := range words {
		if utf8.RuneCountInString(word) > 3 && word == strings.ToUpper(word) && word != strings.ToLower(word) {
			allCaps = append(allCaps, word)
		}
	}
	if len(allCaps) > 0 {
		if len(allCaps) > 3 {
			allCaps = allCaps[:3]
		}
		violations = append(violations, Violation{
			Rule:     "title_all_caps",
			Severity: SeveritySuppression,
			Message:  fmt.Sprintf("all-caps words in title: %s", strings.Join(allCaps, ", ")),
			Field:    "title",
		})
	}

	var order []string
	counts := make(map[string]int)
	for _, word := range words {
		lower := strings.ToLower(word)
		if utf8.RuneCountInString(lower) <= 2 {
			continue
		}
		if _, seen := counts[lower]; !seen {
			order = append(order, lower)
		}
		counts[lower]++
	}
	for _, word := range order {
		if count := counts[word]; count > 2 {
			violations = append(violations, Violation{
				Rule:     "title_word_repeated",
				Severity: SeveritySuppression,
				Message:  fmt.Sprintf("%q appears %d times in the title", word, count),
				Field:    "title",
			})
		}
	}

	var offending []string
	seen := make(map[rune]struct{})
	for _, r := range title {
		if !strings.ContainsRune(forbiddenTitleChars, r) {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		offending = append(offending, string(r))
	}
	if len(offending) > 0 {
		violations = append(violations, Violation{
			Rule:     "title_special_chars",
			Severity: SeveritySuppression,
			Message:  fmt.Sprintf("title contains forbidden characters: %s", strings.Join(offending, " ")),
			Field:    "title",
		})
	}

	return violations
}

func (c *PolicyChecker) checkClaims(combined string) []Violation {
	var violations []Violation
	for _, category := range c.claims {
		for _, matched := range category.pattern.FindAllString(combined, -1) {
			violations = append(violations, Violation{
				Rule:     category.rule,
				Severity: category.severity,
				Message:  fmt.Sprintf(category.message, strings.ToLower(matched)),
				Field:    "listing",
			})
		}
	}
	return violations
}

func checkExternalRefs(combined string) []Violation {
	var violations []Violation
	for _, ref := range externalRefPatterns {
		if matched := ref.pattern.FindString(combined); matched != "" {
			violations = append(violations, Violation{
				Rule:     ref.rule,
				Severity: SeveritySuppression,
				Message:  fmt.Sprintf(ref.message, matched),
				Field:    "listing",
			})
		}
	}
	return violations
}

func (c *PolicyChecker) checkBackend(backend string) []Violation {
	if backend == "" {
		return nil
	}
	var violations []Violation

	if size := len(backend); size > backendByteCap {
		violations = append(violations, Violation{
			Rule:     "backend_byte_limit",
			Severity: SeveritySuppression,
			Message:  fmt.Sprintf("backend search terms are %d bytes (limit %d)", size, backendByteCap),
			Field:    "backend",
		})
	}

	for _, matched := range asinPattern.FindAllString(backend, -1) {
		violations = append(violations, Violation{
			Rule:     "backend_asin",
			Severity: SeveritySuppression,
			Message:  fmt.Sprintf("backend search terms reference product identifier %s", strings.ToUpper(matched)),
			Field:    "backend",
		})
	}

	if c.subjective != nil {
		for _, matched := range c.subjective.FindAllString(backend, -1) {
			violations = append(violations, Violation{
				Rule:     "backend_subjective",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("subjective word %q wastes backend bytes", strings.ToLower(matched)),
				Field:    "backend",
			})
		}
	}

	return violations
}

// buildTermPattern compiles a case-insensitive word-boundary alternation over
// the given terms. Returns nil for an empty list.
func buildTermPattern(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(strings.ToLower(term))
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
