package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by the Loader.
const EnvPrefix = "SURGE"

// Overlay keys. Each maps to a flag of the same name and to SURGE_<KEY>,
// with dashes replaced by underscores.
const (
	keyConfig      = "config"
	keyURL         = "url"
	keyDuration    = "duration"
	keyVUs         = "vus"
	keyGracePeriod = "grace-period"
	keyThinkTime   = "think-time"
	keyTimeout     = "timeout"
	keyTags        = "tags"
)

// flagNames maps overlay keys to flag names where they differ.
var flagNames = map[string]string{
	keyTags: "tag",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(keyConfig, "c", "", "Path to a YAML or JSON test configuration")
	fs.StringP(keyURL, "u", "", "URL requested by every iteration")
	fs.StringP(keyDuration, "d", "", "How long VUs start new iterations (e.g. 30s)")
	fs.Int(keyVUs, 0, "Number of concurrent virtual users")
	fs.String(keyGracePeriod, "", "How long in-flight iterations may finish after the duration (default 30s)")
	fs.String(keyThinkTime, "", "Pause after every iteration (e.g. 1s)")
	fs.String(keyTimeout, "", "Per-request timeout (default 30s)")
	fs.StringArray(flagNames[keyTags], nil, "Tag attached to every result as key=value (repeatable)")
}

// Loader builds a TestConfig from a file, SURGE_* environment variables and
// command-line flags. Precedence from highest to lowest: flags, environment,
// file, defaults.
type Loader struct {
	v      *viper.Viper
	getenv func(string) string
}

// NewLoader creates a Loader reading the flags registered by RegisterFlags.
// flags may be nil, in which case only the environment is consulted.
func NewLoader(flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range []string{keyConfig, keyURL, keyDuration, keyVUs, keyGracePeriod, keyThinkTime, keyTimeout, keyTags} {
			name := key
			if alias, ok := flagNames[key]; ok {
				name = alias
			}
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	return &Loader{v: v, getenv: os.Getenv}, nil
}

// ConfigPath returns the configuration file path, if any.
func (l *Loader) ConfigPath() string {
	return strings.TrimSpace(l.v.GetString(keyConfig))
}

// Load reads, overlays, defaults, expands and validates the configuration.
func (l *Loader) Load() (*TestConfig, error) {
	cfg := &TestConfig{}
	if path := l.ConfigPath(); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := l.overlay(cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	cfg.Tags = ExpandTags(cfg.Tags, l.getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay applies every key set by a flag or the environment.
func (l *Loader) overlay(cfg *TestConfig) error {
	errs := &ValidationErrors{}

	if l.v.IsSet(keyURL) {
		cfg.Request.URL = strings.TrimSpace(l.v.GetString(keyURL))
	}

	if l.v.IsSet(keyVUs) {
		raw := strings.TrimSpace(l.v.GetString(keyVUs))
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs.Add("vus", fmt.Sprintf("invalid integer: %q", raw))
		} else {
			cfg.VUs = n
		}
	}

	durations := []struct {
		key   string
		field string
		set   func(Duration)
	}{
		{keyDuration, "duration", func(d Duration) { cfg.Duration = d }},
		{keyGracePeriod, "gracePeriod", func(d Duration) { cfg.GracePeriod = &d }},
		{keyThinkTime, "request.thinkTime", func(d Duration) { cfg.Request.ThinkTime = d }},
		{keyTimeout, "request.timeout", func(d Duration) { cfg.Request.Timeout = d }},
	}
	for _, d := range durations {
		if !l.v.IsSet(d.key) {
			continue
		}
		parsed, err := ParseDurationString(l.v.GetString(d.key))
		if err != nil {
			errs.Add(d.field, err.Error())
			continue
		}
		d.set(Duration(parsed))
	}

	if l.v.IsSet(keyTags) {
		var pairs []string
		switch raw := l.v.Get(keyTags).(type) {
		case string:
			pairs = []string{raw}
		case []string:
			pairs = raw
		default:
			errs.Add("tags", fmt.Sprintf("unsupported tag value %v", raw))
		}

		tags, err := ParseTags(pairs)
		if err != nil {
			errs.Add("tags", err.Error())
		}
		if len(tags) > 0 {
			if cfg.Tags == nil {
				cfg.Tags = make(map[string]string, len(tags))
			}
			for k, v := range tags {
				cfg.Tags[k] = v
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
