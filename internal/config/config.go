package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tpm/internal/schedule"
)

// Config models tpm.yml.
type Config struct {
	Site struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"site"`
	Shifts       []ShiftConfig `yaml:"shifts"`
	DefaultShift string        `yaml:"default_shift"`
	Seed         struct {
		Admin struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"admin"`
		ImportPassword string         `yaml:"import_password"`
		Tasks          []TaskTemplate `yaml:"tasks"`
	} `yaml:"seed"`
	Server   ServerConfig    `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type ShiftConfig struct {
	Name         string `yaml:"name"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	Days         string `yaml:"days"`
	DisplayOrder int    `yaml:"display_order"`
	Active       *bool  `yaml:"active"`
}

// IsActive treats a missing flag as enabled.
func (s ShiftConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

type TaskTemplate struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	IntervalDays  int    `yaml:"interval_days"`
	IntervalType  string `yaml:"interval_type"`
	AssignedShift string `yaml:"assigned_shift"`
	Category      string `yaml:"category"`
	Priority      string `yaml:"priority"`
	ProcedureLink string `yaml:"procedure_link"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tpm init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, s := range c.Shifts {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("config.shifts[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("config.shifts: duplicate shift %s", name)
		}
		seen[name] = true
		if _, err := schedule.ParseShift(s.Def()); err != nil {
			return fmt.Errorf("config.shifts[%d]: %w", i, err)
		}
	}
	if strings.TrimSpace(c.DefaultShift) == "" {
		return fmt.Errorf("config.default_shift is required")
	}
	if len(c.Shifts) > 0 && !seen[c.DefaultShift] {
		return fmt.Errorf("config.default_shift %s is not a configured shift", c.DefaultShift)
	}
	for i, t := range c.Seed.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("config.seed.tasks[%d].name is required", i)
		}
		if _, ok := schedule.ParseIntervalType(t.IntervalType); !ok {
			return fmt.Errorf("config.seed.tasks[%d]: unknown interval_type %q", i, t.IntervalType)
		}
		if t.AssignedShift != "" && len(c.Shifts) > 0 && !seen[t.AssignedShift] {
			return fmt.Errorf("config.seed.tasks[%d]: unknown shift %s", i, t.AssignedShift)
		}
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Def converts a configured shift into its stored form.
func (s ShiftConfig) Def() schedule.ShiftDef {
	return schedule.ShiftDef{
		Name:         strings.TrimSpace(s.Name),
		Start:        s.Start,
		End:          s.End,
		Days:         s.Days,
		DisplayOrder: s.DisplayOrder,
		Active:       s.IsActive(),
	}
}

// Location resolves site.timezone. Empty and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Site.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("config.site.timezone: %w", err)
	}
	return loc, nil
}

// TokenTTL parses server.token_ttl, defaulting to 12h.
func (c *Config) TokenTTL() (time.Duration, error) {
	if strings.TrimSpace(c.Server.TokenTTL) == "" {
		return 12 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Server.TokenTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.server.token_ttl must be a positive duration")
	}
	return d, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tpm.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteName string) string {
	return fmt.Sprintf(defaultTemplate, siteName)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("TPM System"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.DefaultShift == "" && len(cfg.Shifts) > 0 {
		cfg.DefaultShift = strings.TrimSpace(cfg.Shifts[0].Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  name: %q
  timezone: Local

shifts:
  - {name: A, start: "04:30", end: "15:30", days: "Mon,Tue,Wed,Thu", display_order: 1}
  - {name: B, start: "16:30", end: "03:30", days: "Mon,Tue,Wed,Thu", display_order: 2}
  - {name: C, start: "05:00", end: "17:00", days: "Fri,Sat,Sun", display_order: 3}
  - {name: D, start: "17:00", end: "05:00", days: "Fri,Sat,Sun", display_order: 4}

default_shift: A

seed:
  admin:
    username: admin
    password: admin123
  import_password: changeme123
  tasks:
    - name: Daily Equipment Inspection
      description: Perform visual inspection of all production equipment
      interval_days: 1
      interval_type: start_shift_daily
      assigned_shift: A
      category: Safety
      priority: high
    - name: Weekly Lubrication Check
      description: Check and refill lubrication points on machinery
      interval_days: 7
      interval_type: start_shift_weekly
      assigned_shift: A
      category: Maintenance
      priority: medium
    - name: End of Shift Cleanup
      description: Clean work area and secure equipment
      interval_days: 1
      interval_type: end_shift_daily
      category: Housekeeping
      priority: medium
    - name: Monthly Calibration Verification
      description: Verify calibration of measuring instruments
      interval_days: 30
      interval_type: start_shift_weekly
      category: Quality
      priority: high
    - name: Safety Meeting Attendance
      description: Attend weekly safety briefing
      interval_days: 7
      interval_type: start_shift_weekly
      category: Safety
      priority: high
    - name: Production Log Review
      description: Review and sign off on production logs
      interval_days: 1
      interval_type: end_shift_daily
      category: Documentation
      priority: medium
    - name: Emergency Equipment Check
      description: Test emergency stop buttons and safety systems
      interval_days: 7
      interval_type: start_shift_weekly
      category: Safety
      priority: high
    - name: Tool Inventory Count
      description: Count and verify tool inventory
      interval_days: 30
      interval_type: start_shift_weekly
      category: Inventory
      priority: low

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ""
  token_ttl: 12h

# webhooks:
#   - url: https://example.internal/hooks/tpm
#     events: [task.completed, task.completion_undone]
#     secret: change-me
#     timeout_seconds: 5
`
