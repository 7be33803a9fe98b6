// Package core contains the business logic of taskboard: the frontmatter
// codec, the stage registry, the task repository, the stage transition
// engine and the legacy migration pass.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// EnvPrefix is the prefix for environment overrides, e.g. TASKBOARD_LOG_LEVEL.
const EnvPrefix = "TASKBOARD"

// ConfigurationManager loads and validates the workspace configuration.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading .taskboard/config.yaml.
type viperConfigManager struct {
	ws Workspace
}

// NewConfigurationManager creates a ConfigurationManager for the workspace
// under basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{ws: NewWorkspace(basePath)}
}

// DefaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		DefaultStage:    models.StageQueue,
		DefaultTemplate: DefaultTemplateName,
		Log:             models.LogConfig{Level: "info", Format: "text"},
		Events:          models.EventsConfig{Enabled: true},
		Alerts: models.AlertsConfig{
			StaleDays: 7,
			MaxQueue:  25,
			WIPLimits: map[string]int{},
		},
	}
}

// LoadGlobalConfig reads config.yaml from the workspace using Viper. If the
// file does not exist, defaults are returned; environment overrides apply
// either way.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.ws.Root)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("defaults.stage", string(cfg.DefaultStage))
	v.SetDefault("defaults.template", cfg.DefaultTemplate)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("events.enabled", cfg.Events.Enabled)
	v.SetDefault("alerts.stale_days", cfg.Alerts.StaleDays)
	v.SetDefault("alerts.max_queue", cfg.Alerts.MaxQueue)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
	}

	cfg.DefaultStage = models.Stage(strings.ToLower(strings.TrimSpace(v.GetString("defaults.stage"))))
	cfg.DefaultTemplate = v.GetString("defaults.template")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Events.Enabled = v.GetBool("events.enabled")
	cfg.Alerts.StaleDays = v.GetInt("alerts.stale_days")
	cfg.Alerts.MaxQueue = v.GetInt("alerts.max_queue")
	cfg.Alerts.WebhookURL = v.GetString("alerts.webhook_url")
	for stage := range v.GetStringMap("alerts.wip_limits") {
		cfg.Alerts.WIPLimits[stage] = v.GetInt("alerts.wip_limits." + stage)
	}

	return cfg, nil
}

var validLogFormats = map[string]bool{"": true, "text": true, "json": true}

var validLogLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// ValidateConfig checks cfg and reports every problem at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.DefaultStage != "" && !IsCanonicalStage(string(cfg.DefaultStage)) {
		errs = append(errs, fmt.Sprintf(
			"defaults.stage %q is invalid, must be one of: %s",
			cfg.DefaultStage, stageList(),
		))
	}

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}

	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be text or json", cfg.Log.Format))
	}

	if cfg.Alerts.StaleDays < 0 {
		errs = append(errs, fmt.Sprintf("alerts.stale_days must be non-negative, got %d", cfg.Alerts.StaleDays))
	}

	if cfg.Alerts.MaxQueue < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_queue must be non-negative, got %d", cfg.Alerts.MaxQueue))
	}

	if u := cfg.Alerts.WebhookURL; u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		errs = append(errs, fmt.Sprintf("alerts.webhook_url %q must be an http(s) URL", u))
	}

	for stage, limit := range cfg.Alerts.WIPLimits {
		if !IsCanonicalStage(stage) {
			errs = append(errs, fmt.Sprintf("alerts.wip_limits key %q is not a stage", stage))
		}
		if limit < 0 {
			errs = append(errs, fmt.Sprintf("alerts.wip_limits.%s must be non-negative, got %d", stage, limit))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func stageList() string {
	names := make([]string, 0, len(models.Stages()))
	for _, st := range models.Stages() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}
