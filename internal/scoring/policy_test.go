package scoring

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func newTestChecker(t *testing.T) *PolicyChecker {
	t.Helper()
	checker, err := NewPolicyChecker("")
	if err != nil {
		t.Fatalf("policy checker: %v", err)
	}
	return checker
}

func writeTermsFile(t *testing.T, value any) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "policy-*.json")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return f.Name()
}

func violationRules(report PolicyReport) []string {
	rules := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func TestPolicyNonAmazonAlwaysPasses(t *testing.T) {
	checker := newTestChecker(t)
	draft := Draft{
		Title:        strings.Repeat("SPAM ", 50) + "!!! visit https://example.com",
		Bullets:      []string{"best seller with free shipping, cures everything"},
		BackendTerms: strings.Repeat("x", 400) + " B012345678",
	}

	for _, marketplace := range []string{"ebay", "etsy.de", "walmart", ""} {
		report := checker.Check(draft, marketplace)
		if report.Status != StatusPass {
			t.Fatalf("expected PASS for %q, got %s", marketplace, report.Status)
		}
		if len(report.Violations) != 0 {
			t.Fatalf("expected no violations for %q, got %v", marketplace, report.Violations)
		}
		if report.SuppressionRisk {
			t.Fatalf("expected no suppression risk for %q", marketplace)
		}
	}
}

func TestPolicyAppliesToAmazonPrefixes(t *testing.T) {
	checker := newTestChecker(t)
	draft := Draft{Title: "AAAA BBBB CCCC"}

	for _, marketplace := range []string{"amazon.com", "amazon.de", "Amazon.pl"} {
		report := checker.Check(draft, marketplace)
		if report.Status != StatusFail {
			t.Fatalf("expected FAIL for %q, got %s", marketplace, report.Status)
		}
	}
}

func TestPolicyTitleAllCaps(t *testing.T) {
	checker := newTestChecker(t)
	report := checker.Check(Draft{Title: "AAAA BBBB CCCC"}, "amazon.com")

	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", report.Violations)
	}
	v := report.Violations[0]
	if v.Rule != "title_all_caps" || v.Severity != SeveritySuppression {
		t.Fatalf("expected title_all_caps suppression, got %+v", v)
	}
	for _, word := range []string{"AAAA", "BBBB", "CCCC"} {
		if !strings.Contains(v.Message, word) {
			t.Fatalf("expected message to list %s, got %q", word, v.Message)
		}
	}
	if !report.SuppressionRisk || report.Status != StatusFail {
		t.Fatalf("expected FAIL with suppression risk, got %s/%v", report.Status, report.SuppressionRisk)
	}
}

func TestPolicyTitleAllCapsListsAtMostThree(t *testing.T) {
	checker := newTestChecker(t)
	report := checker.Check(Draft{Title: "AAAA BBBB CCCC DDDD EEEE"}, "amazon.com")

	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", report.Violations)
	}
	msg := report.Violations[0].Message
	if strings.Contains(msg, "DDDD") || strings.Contains(msg, "EEEE") {
		t.Fatalf("expected at most 3 words listed, got %q", msg)
	}
}

func TestPolicyTitleLength(t *testing.T) {
	checker := newTestChecker(t)
	report := checker.Check(Draft{Title: strings.Repeat("Aa", 101)}, "amazon.com")

	rules := violationRules(report)
	if len(rules) != 1 || rules[0] != "title_length" {
		t.Fatalf("expected only title_length, got %v", rules)
	}
}

func TestPolicyTitleWordRepeated(t *testing.T) {
	checker := newTestChecker(t)
	report := checker.Check(Draft{Title: "Bottle Pro Bottle Max Bottle Flex"}, "amazon.com")

	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", report.Violations)
	}
	v := report.Violations[0]
	if v.Rule != "title_word_repeated" {
		t.Fatalf("expected title_word_repeated, got %s", v.Rule)
	}
	if !strings.Contains(v.Message, `"bottle"`) || !strings.Contains(v.Message, "3 times") {
		t.Fatalf("expected message naming bottle 3 times, got %q", v.Message)
	}

	// Two-letter words are exempt even when repeated.
	report = checker.Check(Draft{Title: "XL Cover XL Liner XL Strap"}, "amazon.com")
	if len(report.Violations) != 0 {
		t.Fatalf("expected short words exempt, got %v", report.Violations)
	}
}

func TestPolicyTitleSpecialChars(t *testing.T) {
	checker := newTestChecker(t)
	report := checker.Check(Draft{Title: "Big! Deal? Now $5"}, "amazon.com")

	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", report.Violations)
	}
	v := report.Violations[0]
	if v.Rule != "title_special_chars" {
		t.Fatalf("expected title_special_chars, got %s", v.Rule)
	}
	if !strings.Contains(v.Message, "! ? $") {
		t.Fatalf("expected distinct characters in encounter order, got %q", v.Message)
	}
}

func TestPolicyClaimScan(t *testing.T) {
	checker := newTestChecker(t)
	cases := []struct {
		name     string
		draft    Draft
		rule     string
		severity string
		status   string
	}{
		{
			"promotional",
			Draft{Bullets: []string{"A best seller in its class"}},
			"claim_promotional", SeveritySuppression, StatusFail,
		},
		{
			"health",
			Draft{Description: "cures headaches fast"},
			"claim_health", SeveritySuppression, StatusFail,
		},
		{
			"pesticide",
			Draft{Bullets: []string{"antibacterial coating inside"}},
			"claim_pesticide", SeveritySuppression, StatusFail,
		},
		{
			"drug",
			Draft{Description: "infused with cbd oil"},
			"claim_drug", SeveritySuppression, StatusFail,
		},
		{
			"eco warning only",
			Draft{Bullets: []string{"biodegradable packaging"}},
			"claim_eco", SeverityWarning, StatusWarn,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := checker.Check(tc.draft, "amazon.com")
			if len(report.Violations) != 1 {
				t.Fatalf("expected 1 violation, got %v", report.Violations)
			}
			v := report.Violations[0]
			if v.Rule != tc.rule || v.Severity != tc.severity {
				t.Fatalf("expected %s/%s, got %s/%s", tc.rule, tc.severity, v.Rule, v.Severity)
			}
			if report.Status != tc.status {
				t.Fatalf("expected status %s, got %s", tc.status, report.Status)
			}
		})
	}
}

func TestPolicyClaimScanFlagsEveryOccurrence(t *testing.T) {
	checker := newTestChecker(t)
	draft := Draft{
		Title:       "Best Seller Bottle",
		Description: "A true best seller.",
	}
	report := checker.Check(draft, "amazon.com")

	count := 0
	for _, v := range report.Violations {
		if v.Rule == "claim_promotional" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected both occurrences flagged, got %d in %v", count, report.Violations)
	}
}

func TestPolicyExternalReferences(t *testing.T) {
	checker := newTestChecker(t)
	draft := Draft{
		Description: "Visit https://example.com or https://example.org and www.shop.example, " +
			"write to sales@example.com or call 800-555-1234",
	}
	report := checker.Check(draft, "amazon.com")

	rules := violationRules(report)
	want := []string{"external_url", "external_www", "external_email", "external_phone"}
	if len(rules) != len(want) {
		t.Fatalf("expected %v, got %v", want, rules)
	}
	for i, rule := range want {
		if rules[i] != rule {
			t.Fatalf("expected %s at position %d, got %v", rule, i, rules)
		}
	}
}

func TestPolicyBackendRules(t *testing.T) {
	checker := newTestChecker(t)

	report := checker.Check(Draft{BackendTerms: strings.Repeat("a", 260)}, "amazon.com")
	rules := violationRules(report)
	if len(rules) != 1 || rules[0] != "backend_byte_limit" {
		t.Fatalf("expected backend_byte_limit, got %v", rules)
	}

	report = checker.Check(Draft{BackendTerms: "bottle b012345678 holder"}, "amazon.com")
	rules = violationRules(report)
	if len(rules) != 1 || rules[0] != "backend_asin" {
		t.Fatalf("expected backend_asin, got %v", rules)
	}

	report = checker.Check(Draft{BackendTerms: "best bottle quality"}, "amazon.com")
	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", report.Violations)
	}
	v := report.Violations[0]
	if v.Rule != "backend_subjective" || v.Severity != SeverityWarning {
		t.Fatalf("expected backend_subjective warning, got %+v", v)
	}
	if report.Status != StatusWarn || report.SuppressionRisk {
		t.Fatalf("expected WARN without suppression risk, got %s/%v", report.Status, report.SuppressionRisk)
	}

	report = checker.Check(Draft{Title: "Steel Bottle"}, "amazon.com")
	if len(report.Violations) != 0 {
		t.Fatalf("expected empty backend skipped, got %v", report.Violations)
	}
}

func TestPolicyTermOverrides(t *testing.T) {
	path := writeTermsFile(t, map[string][]string{"promotional": {"mega deal"}})
	checker, err := NewPolicyChecker(path)
	if err != nil {
		t.Fatalf("policy checker: %v", err)
	}

	report := checker.Check(Draft{Bullets: []string{"This mega deal ships today"}}, "amazon.com")
	rules := violationRules(report)
	if len(rules) != 1 || rules[0] != "claim_promotional" {
		t.Fatalf("expected overridden promotional term flagged, got %v", rules)
	}

	// The default promotional vocabulary is replaced wholesale.
	report = checker.Check(Draft{Bullets: []string{"A best seller in its class"}}, "amazon.com")
	if len(report.Violations) != 0 {
		t.Fatalf("expected default promotional terms dropped, got %v", report.Violations)
	}

	// Categories not named in the override keep their defaults.
	report = checker.Check(Draft{Bullets: []string{"biodegradable packaging"}}, "amazon.com")
	rules = violationRules(report)
	if len(rules) != 1 || rules[0] != "claim_eco" {
		t.Fatalf("expected default eco terms kept, got %v", rules)
	}
}

func TestPolicyCheckerErrors(t *testing.T) {
	if _, err := NewPolicyChecker("/nonexistent/terms.json"); err == nil {
		t.Fatalf("expected error for missing terms file")
	}

	var nilChecker *PolicyChecker
	if err := nilChecker.Validate(); err == nil {
		t.Fatalf("expected validate error for nil checker")
	}
	if err := newTestChecker(t).Validate(); err != nil {
		t.Fatalf("expected valid checker, got %v", err)
	}
}
