package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnsReport(t *testing.T) {
	var iss Issue
	assert.False(t, iss.OwnsReport())

	pos := int64(42)
	iss.ReportRef = &pos
	assert.True(t, iss.OwnsReport())

	neg := int64(-42)
	iss.ReportRef = &neg
	assert.False(t, iss.OwnsReport(), "linked members never own the report")
}

func TestReportID(t *testing.T) {
	var iss Issue
	assert.Zero(t, iss.ReportID())

	neg := int64(-42)
	iss.ReportRef = &neg
	assert.Equal(t, int64(42), iss.ReportID())

	pos := int64(42)
	iss.ReportRef = &pos
	assert.Equal(t, int64(42), iss.ReportID())
}

func TestUnclosedStatusesCoverRunModes(t *testing.T) {
	want := map[string]bool{}
	for _, s := range UnclosedStatuses {
		want[s] = true
	}
	// Freshly emitted reports carry the run mode as status and must stay
	// refreshable.
	for _, mode := range []ReportMode{ModeTest, ModeSubmit, ModeRepost} {
		assert.True(t, want[string(mode)], mode)
	}
	assert.True(t, want["valid"])
	assert.True(t, want["reject0"])
	assert.False(t, want["closed"])
}
