package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// BIOETL_SOURCE_PAGE_SIZE=50 overrides source.page_size.
const EnvPrefix = "BIOETL"

// LoadOptions controls LoadPipeline.
type LoadOptions struct {
	// Path of a YAML file; empty loads defaults only
	Path string
	// Name and Entity seed the defaults
	Name   string
	Entity string
	// Overrides are dotted keys applied last, e.g. "runtime.limit"
	Overrides map[string]interface{}
}

// LoadPipeline builds a PipelineConfig from, in increasing precedence:
// built-in defaults, the YAML file (with ${VAR} substitution), BIOETL_*
// environment variables and explicit overrides. The result is validated.
func LoadPipeline(opts LoadOptions) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(NewPipelineConfig(opts.Name, opts.Entity))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to encode defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load defaults")
	}

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read config file").
				WithDetail("path", opts.Path)
		}
		content := substituteEnvVars(string(data))
		if err := v.MergeConfig(strings.NewReader(content)); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", opts.Path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	cfg := &PipelineConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	if opts.Name != "" && cfg.Name == "" {
		cfg.Name = opts.Name
	}
	if opts.Entity != "" && cfg.Entity == "" {
		cfg.Entity = opts.Entity
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// An unterminated reference is left as is.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
