package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewValidationReport_AllPassed(t *testing.T) {
	checks := []ValidationCheck{
		{Name: "syntax", Status: CheckStatusPassed},
		{Name: "style", Status: CheckStatusPassed},
	}
	report := NewValidationReport(checks)
	assert.Equal(t, CheckStatusPassed, report.Status)
	assert.Equal(t, 1.0, report.Confidence)
	assert.False(t, report.RequiresHumanReview)
}

func TestNewValidationReport_WorstOfAll(t *testing.T) {
	checks := []ValidationCheck{
		{Name: "syntax", Status: CheckStatusPassed},
		{Name: "security", Status: CheckStatusFailed, Severity: SeverityCritical},
		{Name: "style", Status: CheckStatusWarning, Severity: SeverityLow},
	}
	report := NewValidationReport(checks)
	assert.Equal(t, CheckStatusFailed, report.Status)
	assert.InDelta(t, 1.0/3.0, report.Confidence, 0.0001)
	assert.True(t, report.RequiresHumanReview)
}

func TestNewValidationReport_CriticalSeverityTriggersReviewEvenIfPassed(t *testing.T) {
	checks := []ValidationCheck{
		{Name: "syntax", Status: CheckStatusPassed},
		{Name: "style", Status: CheckStatusPassed},
		{Name: "security", Status: CheckStatusPassed, Severity: SeverityCritical},
		{Name: "type", Status: CheckStatusPassed},
	}
	report := NewValidationReport(checks)
	assert.Equal(t, CheckStatusPassed, report.Status)
	assert.Equal(t, 1.0, report.Confidence)
	assert.True(t, report.RequiresHumanReview)
}

func TestNewValidationReport_TwoFailedChecksTriggerReview(t *testing.T) {
	checks := []ValidationCheck{
		{Name: "syntax", Status: CheckStatusFailed},
		{Name: "security", Status: CheckStatusFailed},
		{Name: "style", Status: CheckStatusPassed},
		{Name: "type", Status: CheckStatusPassed},
		{Name: "runtime", Status: CheckStatusPassed},
	}
	report := NewValidationReport(checks)
	assert.True(t, report.RequiresHumanReview)
}

func TestNewValidationReport_OneFailedCheckAloneDoesNotForceReviewBelowThreshold(t *testing.T) {
	checks := []ValidationCheck{
		{Name: "syntax", Status: CheckStatusFailed},
		{Name: "security", Status: CheckStatusPassed},
		{Name: "style", Status: CheckStatusPassed},
		{Name: "type", Status: CheckStatusPassed},
		{Name: "runtime", Status: CheckStatusPassed},
	}
	report := NewValidationReport(checks)
	assert.Equal(t, 0.8, report.Confidence)
	assert.False(t, report.RequiresHumanReview)
}

func TestNewValidationReport_Empty(t *testing.T) {
	report := NewValidationReport(nil)
	assert.Equal(t, CheckStatusPassed, report.Status)
	assert.Equal(t, 1.0, report.Confidence)
}
