// Package validate holds the pure identifier validators used by order
// intake: NPI, MRN and ICD-10 code formats. None of these touch
// storage, so callers can aggregate every failure into a single report
// before persisting anything.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	npiPattern = regexp.MustCompile(`^\d{10}$`)
	mrnPattern = regexp.MustCompile(`^\d{6}$`)
	// One letter (U is reserved and excluded), two digits, then an
	// optional '.' followed by 1-4 alphanumerics. Matched after
	// uppercasing.
	icd10Pattern = regexp.MustCompile(`^[A-TV-Z]\d{2}(\.[A-Z0-9]{1,4})?$`)
)

// NPI prefix used for the Luhn checksum per the NPPES card-issuer
// identifier convention.
const npiCardIssuerPrefix = "80840"

// NPI reports whether s is a valid National Provider Identifier:
// exactly 10 digits whose Luhn checksum, computed over the digit
// sequence prefixed with 80840, is valid.
func NPI(s string) (bool, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, "NPI is required"
	}
	if !npiPattern.MatchString(s) {
		return false, "NPI must be exactly 10 digits"
	}
	if !luhnValid(npiCardIssuerPrefix + s) {
		return false, "NPI checksum is invalid"
	}
	return true, ""
}

// MRN reports whether s is a valid Medical Record Number (exactly 6 digits).
func MRN(s string) (bool, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, "MRN is required"
	}
	if !mrnPattern.MatchString(s) {
		return false, "MRN must be exactly 6 digits"
	}
	return true, ""
}

// ICD10 reports whether s is a well-formed ICD-10-CM code. This checks
// format only, not whether the code exists in the code set.
func ICD10(s string) (bool, string) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return false, "ICD-10 code is required"
	}
	if !icd10Pattern.MatchString(s) {
		return false, fmt.Sprintf("invalid ICD-10 code format: %s (expected e.g. 'G70.01' or 'I10')", s)
	}
	return true, ""
}

// NormalizeICD10 returns the canonical uppercase form of an ICD-10 code.
func NormalizeICD10(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Date reports whether s is a calendar date in YYYY-MM-DD form.
func Date(s string) (bool, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, "date is required"
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return false, fmt.Sprintf("date must be YYYY-MM-DD, got %q", s)
	}
	return true, ""
}

// luhnValid runs the standard Luhn check over a string of digits,
// treating the final digit as the check digit.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// Report accumulates field-level validation failures so that a single
// response can list everything wrong with a submission.
type Report struct {
	Errors []string
}

// Require adds an error when value is blank.
func (r *Report) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		r.Errors = append(r.Errors, field+" is required")
	}
}

// Check adds the reason when ok is false.
func (r *Report) Check(field string, ok bool, reason string) {
	if !ok {
		r.Errors = append(r.Errors, field+": "+reason)
	}
}

// OK reports whether no errors were recorded.
func (r *Report) OK() bool { return len(r.Errors) == 0 }
