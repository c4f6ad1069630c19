package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

func sampleReport() *Report {
	return &Report{
		ID:     "run-1",
		Today:  retention.Date{Year: 2024, Month: 3, Day: 11},
		DryRun: true,
		Targets: []TargetReport{
			{Expired: make([]retention.Snapshot, 3), Deleted: make([]retention.Snapshot, 2)},
			{Error: "boom"},
		},
	}
}

func TestRunHookExportsSummary(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code, err := RunHook(context.Background(),
		`echo "$SFG_RUN_ID $SFG_DATE $SFG_DRY_RUN $SFG_EXPIRED $SFG_DELETED $SFG_FAILED"; echo warn >&2`,
		sampleReport(), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "run-1 2024-03-11 true 3 2 1\n", stdout.String())
	assert.Contains(t, stderr.String(), "warn")
}

func TestRunHookFailure(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	code, err := RunHook(context.Background(), "echo fail >&2; exit 3", sampleReport(), &stdout, &stderr)
	assert.Error(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr.String(), "fail")
}

func TestRunHookEmptyCommand(t *testing.T) {
	code, err := RunHook(context.Background(), "   ", sampleReport(), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Equal(t, -1, code)
}
