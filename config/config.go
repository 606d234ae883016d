// Package config loads the engine configuration from an optional yaml file and DEMANDCAST_*
// environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/aouyang1/go-demandcast"
	"github.com/aouyang1/go-demandcast/event"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-json"
	"github.com/rickar/cal/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "DEMANDCAST"

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// EventConfig is a local event raising demand on the days it spans
type EventConfig struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarConfig holds the holidays and local events added to every tenant's days
type CalendarConfig struct {
	USHolidays bool          `json:"us_holidays"`
	Events     []EventConfig `json:"events"`
}

// Config is the complete configuration of a run
type Config struct {
	Log      LogConfig           `json:"log"`
	Calendar CalendarConfig      `json:"calendar"`
	Engine   *demandcast.Options `json:"engine"`
}

// Load reads config.yaml from the working directory, or the file at path when set, overlaid with
// DEMANDCAST_* environment variables. Every engine option defaults to its package default, e.g.
// DEMANDCAST_ENGINE_FORECAST_OPTIONS_POOLING_THRESHOLD overrides the pooling threshold.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("calendar.us_holidays", true)
	cfg := Config{Engine: demandcast.NewDefaultOptions()}
	if err := setDefaults(v, "engine", cfg.Engine); err != nil {
		return nil, eris.Wrap(err, "config: engine defaults")
	}

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))
	tags := func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}
	if err := v.Unmarshal(&cfg, hook, tags); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// setDefaults registers every field of the default value under the prefix so viper resolves its
// environment override
func setDefaults(v *viper.Viper, prefix string, def any) error {
	b, err := json.Marshal(def)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return err
	}
	setTree(v, prefix, tree)
	return nil
}

func setTree(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := prefix + "." + k
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			setTree(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Options returns the validated engine options with the configured calendar
func (c *Config) Options() (*demandcast.Options, error) {
	opt := c.Engine
	if opt == nil {
		opt = demandcast.NewDefaultOptions()
	}
	cal, err := c.Calendar.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: calendar")
	}
	opt, err = opt.Validate()
	if err != nil {
		return nil, eris.Wrap(err, "config: engine options")
	}
	opt.FeatureStoreOptions.Calendar = cal
	return opt, nil
}

// Build returns the event calendar of the configured holidays and events
func (c CalendarConfig) Build() (*event.Calendar, error) {
	var holidays []*cal.Holiday
	if c.USHolidays {
		holidays = event.USHolidays
	}
	events := make([]event.Event, 0, len(c.Events))
	for _, e := range c.Events {
		events = append(events, event.NewEvent(e.Name, e.Start, e.End))
	}
	return event.NewCalendar(holidays, events...)
}

// InitLogger creates and sets a global zap logger based on config
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
