package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/pkg/jsonschema"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultGracePeriod = 30 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultMethod      = "GET"
	DefaultUserAgent   = "surge/1.0"
)

//go:embed schema.json
var schemaJSON string

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.Compile(schemaJSON)
})

// Schema returns the JSON Schema that configuration files must satisfy.
func Schema() string {
	return schemaJSON
}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Returns the parsed TestConfig or an error if parsing fails.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension. The document is checked
// against the embedded schema before decoding, so unknown keys are rejected.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	doc, err := toJSON(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}
	if errs := schema.ValidateJSON(doc); errs != nil {
		verrs := &ValidationErrors{}
		for _, e := range errs {
			verrs.Add("", e.Error())
		}
		return nil, verrs
	}

	var config TestConfig
	if err := json.Unmarshal(doc, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &config, nil
}

// toJSON normalizes a YAML or JSON document to JSON.
func toJSON(data []byte, ext string) ([]byte, error) {
	var v interface{}
	if ext == ".json" {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return data, nil
	}

	if err := yaml.Unmarshal(data, &v); err != nil {
		if ext == ".yaml" || ext == ".yml" || ext == "" {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
	}
	if v == nil {
		v = map[string]interface{}{}
	}

	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return doc, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// Returns the parsed duration or an error.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.GracePeriod == nil {
		grace := Duration(DefaultGracePeriod)
		config.GracePeriod = &grace
	}

	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	if config.Request.Method == "" {
		config.Request.Method = DefaultMethod
	}
	config.Request.Method = strings.ToUpper(config.Request.Method)
	if config.Request.Timeout == 0 {
		config.Request.Timeout = config.Settings.Timeout
	}

	if config.Name == "" {
		config.Name = "surge"
	}
}

// ExpandTags replaces ${VAR} and $VAR references in tag values using lookup.
// Unset variables expand to the empty string.
func ExpandTags(tags map[string]string, lookup func(string) string) map[string]string {
	if len(tags) == 0 {
		return tags
	}

	expanded := make(map[string]string, len(tags))
	for k, v := range tags {
		expanded[k] = os.Expand(v, lookup)
	}
	return expanded
}

// ParseTags parses "k=v" pairs. Entries may also be comma separated.
func ParseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string)
	for _, pair := range pairs {
		for _, item := range strings.Split(pair, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			k, v, ok := strings.Cut(item, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid tag %q: expected key=value", item)
			}
			tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return tags, nil
}
