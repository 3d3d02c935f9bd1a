// Package config loads the judge configuration: logging, metrics, the
// cgroup backend, spawn retries, concurrency and the named policy
// templates test cases run under.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/judgecore/sandbox/monitor"
	"github.com/judgecore/sandbox/pkg/logger"
	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
)

// DefaultPolicy is the template used when none is named
const DefaultPolicy = "default"

// Comparators
const (
	ComparatorLines = "lines"
	ComparatorExact = "exact"
)

// ErrInvalidConfig is matched by every validation error
var ErrInvalidConfig = errors.New("invalid config")

// Config is the judge configuration
type Config struct {
	Logger  logger.Config       `yaml:"logger"`
	Metrics Metrics             `yaml:"metrics"`
	Cgroup  Cgroup              `yaml:"cgroup"`
	Judge   Judge               `yaml:"judge"`
	Retry   monitor.RetryConfig `yaml:"retry"`

	Concurrency int `yaml:"concurrency"`
	// ProbeInterval is the memory probe period when cgroup is disabled
	ProbeInterval time.Duration `yaml:"probeInterval"`

	Policies map[string]policy.Spec `yaml:"policies"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Cgroup configures the cgroup v2 backend
type Cgroup struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

// Judge configures how outputs are compared
type Judge struct {
	Comparator    string   `yaml:"comparator"`
	Checker       string   `yaml:"checker"`
	CheckerPolicy string   `yaml:"checkerPolicy"`
	Env           []string `yaml:"env"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
		Cgroup: Cgroup{Root: "judge"},
		Judge: Judge{
			Comparator:    ComparatorLines,
			CheckerPolicy: "checker",
			Env:           []string{"PATH=/usr/local/bin:/usr/bin:/bin"},
		},
		Retry:       monitor.DefaultRetry,
		Concurrency: runtime.NumCPU(),
		Policies: map[string]policy.Spec{
			DefaultPolicy: {
				CPUTime:   time.Second,
				Memory:    256 * runner.MiB,
				Output:    64 * runner.MiB,
				Stack:     256 * runner.MiB,
				OpenFiles: 64,
				Allow:     []string{"@default", "@dynamic"},
			},
			"checker": {
				CPUTime:      10 * time.Second,
				Memory:       512 * runner.MiB,
				Output:       64 * runner.MiB,
				DefaultAllow: boolPtr(true),
				Deny:         []string{"socket", "connect", "ptrace"},
			},
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. Unknown keys are rejected
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := c.decode(b); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	c.overrideFromEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decode(b []byte) error {
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// overrideFromEnv applies JUDGE_* variables
func (c *Config) overrideFromEnv(getenv func(string) string) {
	if v := getenv("JUDGE_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("JUDGE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := getenv("JUDGE_CGROUP_ROOT"); v != "" {
		c.Cgroup.Root = v
		c.Cgroup.Enabled = true
	}
	if n, err := strconv.Atoi(getenv("JUDGE_CONCURRENCY")); err == nil && n > 0 {
		c.Concurrency = n
	}
}

// Validate checks the configuration, building every policy template
func (c *Config) Validate() error {
	if c.Logger.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
			return invalid("logger.level", err)
		}
	}
	switch c.Logger.Format {
	case "", "console", "json":
	default:
		return invalid("logger.format", fmt.Errorf("unknown format %q", c.Logger.Format))
	}
	if c.Concurrency < 1 {
		return invalid("concurrency", fmt.Errorf("%d is not positive", c.Concurrency))
	}
	if c.Retry.Attempts < 1 {
		return invalid("retry.attempts", fmt.Errorf("%d is not positive", c.Retry.Attempts))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return invalid("retry", errors.New("negative delay"))
	}
	if c.ProbeInterval < 0 {
		return invalid("probeInterval", errors.New("negative interval"))
	}
	if c.Cgroup.Enabled && c.Cgroup.Root == "" {
		return invalid("cgroup.root", errors.New("empty root"))
	}
	switch c.Judge.Comparator {
	case "", ComparatorLines, ComparatorExact:
	default:
		return invalid("judge.comparator", fmt.Errorf("unknown comparator %q", c.Judge.Comparator))
	}
	if _, ok := c.Policies[DefaultPolicy]; !ok {
		return invalid("policies", fmt.Errorf("missing %q policy", DefaultPolicy))
	}
	if c.Judge.Checker != "" {
		if _, ok := c.Policies[c.Judge.CheckerPolicy]; !ok {
			return invalid("judge.checkerPolicy", fmt.Errorf("unknown policy %q", c.Judge.CheckerPolicy))
		}
	}
	_, err := c.BuildPolicies()
	return err
}

// BuildPolicies builds every policy template. Errors name the template and wrap
// the policy.ConfigError
func (c *Config) BuildPolicies() (map[string]*policy.Policy, error) {
	ret := make(map[string]*policy.Policy, len(c.Policies))
	for _, name := range c.PolicyNames() {
		p, err := policy.Build(c.Policies[name])
		if err != nil {
			return nil, fmt.Errorf("%w: policies.%s: %w", ErrInvalidConfig, name, err)
		}
		ret[name] = p
	}
	return ret, nil
}

// Policy builds the named template
func (c *Config) Policy(name string) (*policy.Policy, error) {
	s, ok := c.Policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, name)
	}
	p, err := policy.Build(s)
	if err != nil {
		return nil, fmt.Errorf("%w: policies.%s: %w", ErrInvalidConfig, name, err)
	}
	return p, nil
}

// PolicyNames returns the template names in order
func (c *Config) PolicyNames() []string {
	names := make([]string, 0, len(c.Policies))
	for n := range c.Policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func invalid(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field, err)
}

func boolPtr(b bool) *bool { return &b }
