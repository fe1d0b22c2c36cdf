package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Input validation utilities for CLI flags and query parameters

var (
	issueKeyPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	deptPattern     = regexp.MustCompile(`^(\d{2,3}|2[AB])$`)
	regionPattern   = regexp.MustCompile(`^\d{2}$`)
)

// ValidateReportMode checks the run-scoped emission mode
func ValidateReportMode(mode string) error {
	allowed := map[string]bool{
		"skip":   true,
		"test":   true,
		"submit": true,
		"repost": true,
	}
	if !allowed[strings.ToLower(mode)] {
		return fmt.Errorf("invalid report mode: %s (allowed: skip, test, submit, repost)", mode)
	}
	return nil
}

// ValidateIssueKey checks the external issue identifier format (UUID)
func ValidateIssueKey(key string) error {
	if key == "" {
		return fmt.Errorf("issue key cannot be empty")
	}
	if !issueKeyPattern.MatchString(strings.ToLower(key)) {
		return fmt.Errorf("invalid issue key format")
	}
	return nil
}

// ValidateDate parses an ISO collection-window date
func ValidateDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", value)
	}
	return t, nil
}

// ValidateDepartmentCode checks an INSEE department code shape. Existence
// against the reference table is checked later, server-side.
func ValidateDepartmentCode(code string) error {
	if !deptPattern.MatchString(strings.ToUpper(code)) {
		return fmt.Errorf("invalid department code: %s", code)
	}
	return nil
}

// ValidateRegionCode checks an INSEE region code shape
func ValidateRegionCode(code string) error {
	if !regionPattern.MatchString(code) {
		return fmt.Errorf("invalid region code: %s", code)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
