package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = "sfg.yml"

// Config represents the sfg.yml structure
type Config struct {
	Mode        string          `mapstructure:"mode" yaml:"mode"`
	WeekBegins  string          `mapstructure:"week_begins" yaml:"week_begins"`
	MonthBegins int             `mapstructure:"month_begins" yaml:"month_begins"`
	Timezone    string          `mapstructure:"timezone" yaml:"timezone,omitempty"`
	Retention   RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Tiers       TiersConfig     `mapstructure:"tiers" yaml:"tiers"`
	Storage     StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Schedule    ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
	Server      ServerConfig    `mapstructure:"server" yaml:"server"`
	Hooks       HooksConfig     `mapstructure:"hooks" yaml:"hooks"`
}

// RetentionConfig holds the custom-mode counts. Basic mode ignores it.
type RetentionConfig struct {
	Daily   int `mapstructure:"daily" yaml:"daily"`
	Weekly  int `mapstructure:"weekly" yaml:"weekly"`
	Monthly int `mapstructure:"monthly" yaml:"monthly"`
}

type TiersConfig struct {
	Daily   TierConfig `mapstructure:"daily" yaml:"daily"`
	Weekly  TierConfig `mapstructure:"weekly" yaml:"weekly"`
	Monthly TierConfig `mapstructure:"monthly" yaml:"monthly"`
}

// TierConfig locates one tier's snapshots: a local directory and an
// optional key prefix in the S3 bucket.
type TierConfig struct {
	Local  string `mapstructure:"local" yaml:"local"`
	Remote string `mapstructure:"remote" yaml:"remote,omitempty"`
}

type StorageConfig struct {
	Pattern string   `mapstructure:"pattern" yaml:"pattern,omitempty"`
	PinFile string   `mapstructure:"pin_file" yaml:"pin_file,omitempty"`
	S3      S3Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// ServerConfig configures sfgd's HTTP API. TriggerLimit caps manual runs
// per client per hour; 0 disables the cap.
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Token        string `mapstructure:"token" yaml:"token,omitempty"`
	TriggerLimit int    `mapstructure:"trigger_limit" yaml:"trigger_limit"`
}

type HooksConfig struct {
	PostPrune string `mapstructure:"post_prune" yaml:"post_prune,omitempty"`
}

// Default returns the basic SFG rotation: week begins on Monday, month on
// the 1st, pruning checked daily at 01:00.
func Default() *Config {
	return &Config{
		Mode:        retention.ModeBasic.String(),
		WeekBegins:  "monday",
		MonthBegins: 1,
		Retention: RetentionConfig{
			Daily:   retention.BasicCounts.Daily,
			Weekly:  retention.BasicCounts.Weekly,
			Monthly: retention.BasicCounts.Monthly,
		},
		Storage:  StorageConfig{PinFile: ".sfgkeep"},
		Schedule: ScheduleConfig{Cron: "0 1 * * *"},
		Server:   ServerConfig{Address: ":9180", TriggerLimit: 10},
	}
}

// Load reads path, expands ${VAR} references, and applies SFG_* environment
// overrides (SFG_MODE, SFG_STORAGE_S3_BUCKET, ...). References to unset
// variables are left in place so hook commands can use them at run time.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.Expand(string(data), expandSet)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SFG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	// short aliases for the S3 credentials
	_ = v.BindEnv("storage.s3.access_key_id", "SFG_STORAGE_S3_ACCESS_KEY_ID", "SFG_S3_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_access_key", "SFG_STORAGE_S3_SECRET_ACCESS_KEY", "SFG_S3_SECRET_ACCESS_KEY")

	if err := v.ReadConfig(bytes.NewReader([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandSet(name string) string {
	if value, ok := os.LookupEnv(name); ok {
		return value
	}
	return "${" + name + "}"
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mode", d.Mode)
	v.SetDefault("week_begins", d.WeekBegins)
	v.SetDefault("month_begins", d.MonthBegins)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("retention.daily", d.Retention.Daily)
	v.SetDefault("retention.weekly", d.Retention.Weekly)
	v.SetDefault("retention.monthly", d.Retention.Monthly)
	for _, tier := range []string{"daily", "weekly", "monthly"} {
		v.SetDefault("tiers."+tier+".local", "")
		v.SetDefault("tiers."+tier+".remote", "")
	}
	v.SetDefault("storage.pattern", d.Storage.Pattern)
	v.SetDefault("storage.pin_file", d.Storage.PinFile)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.token", "")
	v.SetDefault("server.trigger_limit", d.Server.TriggerLimit)
	v.SetDefault("hooks.post_prune", "")
}

// Validate checks everything the retention policy does not: tier locations,
// S3 settings and the time zone.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	usesRemote := false
	for _, tier := range retention.Tiers() {
		tc := c.Tier(tier)
		if strings.TrimSpace(tc.Local) == "" && strings.TrimSpace(tc.Remote) == "" {
			errs = append(errs, fmt.Errorf("tiers.%s: a local or remote location is required", tier))
		}
		if tc.Remote != "" {
			usesRemote = true
		}
	}
	if usesRemote && strings.TrimSpace(c.Storage.S3.Bucket) == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required when a tier has a remote location"))
	}
	if c.Server.TriggerLimit < 0 {
		errs = append(errs, fmt.Errorf("server.trigger_limit %d must not be negative", c.Server.TriggerLimit))
	}

	return errors.Join(errs...)
}

// Policy builds the retention policy described by the configuration.
func (c *Config) Policy() (*retention.Policy, error) {
	mode, err := retention.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	return retention.NewPolicy(retention.Options{
		Mode: mode,
		Counts: retention.Counts{
			Daily:   c.Retention.Daily,
			Weekly:  c.Retention.Weekly,
			Monthly: c.Retention.Monthly,
		},
		WeekBegins:  c.WeekBegins,
		MonthBegins: c.MonthBegins,
	})
}

// Location resolves Timezone, defaulting to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Tier returns the locations configured for tier.
func (c *Config) Tier(tier retention.Tier) TierConfig {
	switch tier {
	case retention.Daily:
		return c.Tiers.Daily
	case retention.Weekly:
		return c.Tiers.Weekly
	case retention.Monthly:
		return c.Tiers.Monthly
	default:
		return TierConfig{}
	}
}
