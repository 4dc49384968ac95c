package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_CountsAndExitCode(t *testing.T) {
	r := NewReport(false)
	assert.Equal(t, ExitOK, r.ExitCode())

	r.RecordCategory("App", Created())
	r.RecordCategory("Env", SkippedExists())
	r.RecordTag("Finance", "App", Created())
	assert.Equal(t, 1, r.Categories.Created)
	assert.Equal(t, 1, r.Categories.SkippedExists)
	assert.Equal(t, 2, r.Categories.Total())
	assert.Equal(t, ExitOK, r.ExitCode())

	r.RecordTag("Orphan", "Missing", Failed("category not found"))
	assert.Equal(t, 1, r.Failures())
	assert.True(t, r.HasFailures())
	assert.Equal(t, ExitItemFailures, r.ExitCode())

	r.Abort("remote session lost")
	assert.Equal(t, ExitFatal, r.ExitCode())
	assert.Len(t, r.Items, 4)
}

func TestReport_Summary(t *testing.T) {
	r := NewReport(true)
	r.RecordCategory("App", Created())
	r.RecordTag("Finance", "App", Failed("category not found"))

	out := r.Summary()
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "Categories created=1")
	assert.Contains(t, out, "failed tag App/Finance: category not found")
	assert.NotContains(t, out, "aborted")
}

func TestReport_JSONUsesNames(t *testing.T) {
	r := NewReport(false)
	r.RecordTag("Prod", "Env", Updated())

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entity":"tag"`)
	assert.Contains(t, string(raw), `"outcome":"Updated"`)

	var back Report
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r.Items, back.Items)
	assert.Equal(t, 1, back.Tags.Updated)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "SkippedUnchanged", SkippedUnchanged().String())
	assert.Equal(t, "Failed(boom)", Failed("boom").String())
}
