package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can write "1s"/"30s"
// instead of a raw nanosecond count; time.Duration has no YAML
// unmarshaler of its own.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("1s") or a bare
// integer (nanoseconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config holds the daemon's tunables.
type Config struct {
	// EnableJobCreation rejects insertTasks-driven job creation when
	// false. Default true.
	EnableJobCreation bool `yaml:"enable_job_creation"`

	// KillTaskInitialBackoff and KillTaskMaxBackoff bound the
	// exponential backoff statemgr.KillTasks polls under.
	KillTaskInitialBackoff Duration `yaml:"kill_task_initial_backoff"`
	KillTaskMaxBackoff     Duration `yaml:"kill_task_max_backoff"`

	// DataDir is the bbolt data directory.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is loaded from the config file, but the daemon opens
	// no listener on it; the admin façade has no network endpoint.
	// MetricsAddr serves /metrics, /health, /ready, /live.
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		EnableJobCreation:      true,
		KillTaskInitialBackoff: Duration(time.Second),
		KillTaskMaxBackoff:     Duration(30 * time.Second),
		DataDir:                "./corral-data",
		ListenAddr:             "127.0.0.1:8080",
		MetricsAddr:            "127.0.0.1:9090",
	}
}

// Load reads path, unmarshals it over Default(), and returns the
// result. A missing file is not an error: Load returns Default()
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
