package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sfg.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644), "write config")
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("SFG_TEST_ROOT", "/srv/backups")

	cfg, err := Load("testdata/test.sfg.yml")
	require.NoError(t, err, "Load should not return an error")

	assert.Equal(t, "custom", cfg.Mode)
	assert.Equal(t, "Sunday", cfg.WeekBegins)
	assert.Equal(t, 31, cfg.MonthBegins)
	assert.Equal(t, RetentionConfig{Daily: 14, Weekly: 8, Monthly: 6}, cfg.Retention)
	assert.Equal(t, "/srv/backups/daily", cfg.Tiers.Daily.Local)
	assert.Equal(t, "vms/daily", cfg.Tiers.Daily.Remote)
	assert.Empty(t, cfg.Tiers.Weekly.Remote)
	assert.Equal(t, "*.qcow2", cfg.Storage.Pattern)
	assert.Equal(t, ".sfgkeep", cfg.Storage.PinFile, "default pin file")
	assert.Equal(t, "vm-backups", cfg.Storage.S3.Bucket)
	assert.Equal(t, "30 2 * * *", cfg.Schedule.Cron)
	assert.Equal(t, ":9180", cfg.Server.Address, "default address")
	assert.Equal(t, 10, cfg.Server.TriggerLimit)
	assert.Equal(t, "echo pruned", cfg.Hooks.PostPrune)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, retention.ModeCustom, policy.Mode())
	assert.Equal(t, retention.Counts{Daily: 14, Weekly: 8, Monthly: 6}, policy.Counts())
	assert.Equal(t, time.Sunday, policy.Calendar().WeekBegins())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SFG_TEST_ROOT", "/data")
	t.Setenv("SFG_STORAGE_S3_BUCKET", "override-bucket")
	t.Setenv("SFG_SERVER_TOKEN", "secret")
	t.Setenv("SFG_MONTH_BEGINS", "15")

	cfg, err := Load("testdata/test.sfg.yml")
	require.NoError(t, err)

	assert.Equal(t, "override-bucket", cfg.Storage.S3.Bucket)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, 15, cfg.MonthBegins)
}

func TestLoadDefaultsToBasicMode(t *testing.T) {
	path := writeConfig(t, `
tiers:
  daily: {local: /b/daily}
  weekly: {local: /b/weekly}
  monthly: {local: /b/monthly}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, retention.ModeBasic, policy.Mode())
	assert.Equal(t, retention.BasicCounts, policy.Counts())
	assert.Equal(t, time.Monday, policy.Calendar().WeekBegins())
	assert.Equal(t, 1, policy.Calendar().MonthBegins())
	assert.Equal(t, "0 1 * * *", cfg.Schedule.Cron)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "bad weekday",
			body: `
week_begins: caturday
tiers: {daily: {local: /d}, weekly: {local: /w}, monthly: {local: /m}}
`,
			wantErr: "caturday",
		},
		{
			name: "zero custom count",
			body: `
mode: custom
retention: {daily: 0, weekly: 4, monthly: 3}
tiers: {daily: {local: /d}, weekly: {local: /w}, monthly: {local: /m}}
`,
			wantErr: "retention.daily",
		},
		{
			name: "missing tier location",
			body: `
tiers: {daily: {local: /d}, weekly: {local: /w}}
`,
			wantErr: "tiers.monthly",
		},
		{
			name: "remote without bucket",
			body: `
tiers: {daily: {local: /d, remote: daily}, weekly: {local: /w}, monthly: {local: /m}}
`,
			wantErr: "storage.s3.bucket",
		},
		{
			name: "unknown timezone",
			body: `
timezone: Mars/Olympus_Mons
tiers: {daily: {local: /d}, weekly: {local: /w}, monthly: {local: /m}}
`,
			wantErr: "Mars/Olympus_Mons",
		},
		{
			name: "unknown mode",
			body: `
mode: hourly
tiers: {daily: {local: /d}, weekly: {local: /w}, monthly: {local: /m}}
`,
			wantErr: "mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadKeepsUnsetReferences(t *testing.T) {
	t.Setenv("SFG_TEST_BACKUPS", "/mnt/nas")
	path := writeConfig(t, `
tiers:
  daily: {local: "${SFG_TEST_BACKUPS}/daily"}
  weekly: {local: $SFG_TEST_BACKUPS/weekly}
  monthly: {local: /b/monthly}
hooks:
  post_prune: 'logger "sfg deleted $SFG_TEST_UNSET_COUNT"'
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/nas/daily", cfg.Tiers.Daily.Local)
	assert.Equal(t, "/mnt/nas/weekly", cfg.Tiers.Weekly.Local)
	assert.Equal(t, `logger "sfg deleted ${SFG_TEST_UNSET_COUNT}"`, cfg.Hooks.PostPrune)
}

func TestLoadShortS3CredentialVariables(t *testing.T) {
	t.Setenv("SFG_TEST_ROOT", "/data")
	t.Setenv("SFG_S3_ACCESS_KEY_ID", "AKID")
	t.Setenv("SFG_S3_SECRET_ACCESS_KEY", "shh")

	cfg, err := Load("testdata/test.sfg.yml")
	require.NoError(t, err)
	assert.Equal(t, "AKID", cfg.Storage.S3.AccessKeyID)
	assert.Equal(t, "shh", cfg.Storage.S3.SecretAccessKey)

	t.Setenv("SFG_STORAGE_S3_ACCESS_KEY_ID", "LONG")
	cfg, err = Load("testdata/test.sfg.yml")
	require.NoError(t, err)
	assert.Equal(t, "LONG", cfg.Storage.S3.AccessKeyID, "the full key name wins")
}
