package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReportMode(t *testing.T) {
	for _, mode := range []string{"skip", "test", "submit", "repost", "SUBMIT"} {
		assert.NoError(t, ValidateReportMode(mode), mode)
	}
	assert.Error(t, ValidateReportMode("publish"))
	assert.Error(t, ValidateReportMode(""))
}

func TestValidateIssueKey(t *testing.T) {
	assert.NoError(t, ValidateIssueKey("45ffa954-6475-1598-a6e5-15c03c01f98e"))
	assert.Error(t, ValidateIssueKey(""))
	assert.Error(t, ValidateIssueKey("not-a-uuid"))
}

func TestValidateDate(t *testing.T) {
	d, err := ValidateDate("2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())

	_, err = ValidateDate("10/02/2026")
	assert.Error(t, err)
	_, err = ValidateDate("")
	assert.Error(t, err)
}

func TestValidateAreaCodes(t *testing.T) {
	for _, dep := range []string{"75", "2A", "2B", "971", "978"} {
		assert.NoError(t, ValidateDepartmentCode(dep), dep)
	}
	assert.Error(t, ValidateDepartmentCode("7"))
	assert.Error(t, ValidateDepartmentCode("paris"))

	assert.NoError(t, ValidateRegionCode("11"))
	assert.Error(t, ValidateRegionCode("2A"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("hello\x00"))
	assert.Equal(t, "a\nb", SanitizeString("  a\nb\x01  "))
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 42, ValidateLimit(42))
}
