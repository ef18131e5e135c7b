// Package retention reclaims disk space from finished workflow runs.
// Candidates are selected by six merged policies (age, artifact age,
// count, per-run disk, total disk), assigned a cleanup mode, and
// deleted with per-candidate error isolation. Running and paused runs
// are never touched.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the retention thresholds. A zero value disables the
// corresponding policy entirely.
type Config struct {
	LogRetentionDays       int   `yaml:"log_retention_days"`
	FailedLogRetentionDays int   `yaml:"failed_log_retention_days"`
	ArtifactRetentionDays  int   `yaml:"artifact_retention_days"`
	MaxCompleted           int   `yaml:"max_completed"`
	MaxDiskPerWorkflowMB   int64 `yaml:"max_disk_per_workflow_mb"`
	MaxTotalDiskGB         int64 `yaml:"max_total_disk_gb"`

	// Interval drives the periodic scheduler; zero means manual only.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig keeps a month of successful run logs, a quarter of
// failed ones for debugging, and caps the store at 50 completed runs.
func DefaultConfig() Config {
	return Config{
		LogRetentionDays:       30,
		FailedLogRetentionDays: 90,
		ArtifactRetentionDays:  14,
		MaxCompleted:           50,
		MaxDiskPerWorkflowMB:   512,
		MaxTotalDiskGB:         20,
		Interval:               6 * time.Hour,
	}
}

// LoadConfig reads a YAML retention config, falling back to defaults
// when the file does not exist. Keys absent from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read retention config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse retention config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) maxPerWorkflowBytes() int64 { return c.MaxDiskPerWorkflowMB * 1024 * 1024 }

func (c Config) maxTotalBytes() int64 { return c.MaxTotalDiskGB * 1024 * 1024 * 1024 }
