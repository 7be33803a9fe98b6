package models

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EventsConfig controls the JSONL event log.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// AlertsConfig holds the thresholds used by the alert engine.
type AlertsConfig struct {
	StaleDays int            `yaml:"stale_days" mapstructure:"stale_days"`
	MaxQueue  int            `yaml:"max_queue" mapstructure:"max_queue"`
	WIPLimits map[string]int `yaml:"wip_limits,omitempty" mapstructure:"wip_limits"`
	// WebhookURL, when set, is where `tb alerts --notify` posts a summary.
	WebhookURL string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
}

// GlobalConfig holds workspace-wide settings read from .taskboard/config.yaml via Viper.
type GlobalConfig struct {
	DefaultStage    Stage        `yaml:"default_stage" mapstructure:"default_stage"`
	DefaultTemplate string       `yaml:"default_template" mapstructure:"default_template"`
	Log             LogConfig    `yaml:"log" mapstructure:"log"`
	Events          EventsConfig `yaml:"events" mapstructure:"events"`
	Alerts          AlertsConfig `yaml:"alerts" mapstructure:"alerts"`
}
