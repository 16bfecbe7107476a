// Package config loads odoorpc settings from a YAML file, applies ODOO_*
// environment overrides, and validates the result against an embedded CUE
// schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/rpc"
	"github.com/roach88/odoorpc/internal/snapshot"
	"github.com/roach88/odoorpc/internal/value"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = rpc.DefaultTimeout

// Config is the complete configuration.
type Config struct {
	Odoo       OdooConfig                   `yaml:"odoo" json:"odoo"`
	Whitelists map[string][]string          `yaml:"whitelists" json:"whitelists"`
	Aliases    map[string]map[string]string `yaml:"aliases" json:"aliases"`
	Batch      BatchConfig                  `yaml:"batch" json:"batch"`
	Store      StoreConfig                  `yaml:"store" json:"store"`
	Output     OutputConfig                 `yaml:"output" json:"output"`
	Telemetry  TelemetryConfig              `yaml:"telemetry" json:"telemetry"`
	Updates    UpdatesConfig                `yaml:"updates" json:"updates"`
	Pickings   PickingsConfig               `yaml:"pickings" json:"pickings"`
}

// OdooConfig holds connection parameters.
type OdooConfig struct {
	URL      string        `yaml:"url" json:"url"`
	Database string        `yaml:"database" json:"database"`
	Username string        `yaml:"username" json:"username"`
	Password string        `yaml:"password" json:"password"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// BatchConfig controls update submission.
type BatchConfig struct {
	MultiID bool `yaml:"multi_id" json:"multi_id"`
	Verify  bool `yaml:"verify" json:"verify"`

	// Strict rejects fields that are neither aliases nor whitelisted for
	// their model.
	Strict bool `yaml:"strict" json:"strict"`
}

// StoreConfig locates the history database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// OutputConfig sets where snapshot files are written.
type OutputConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"service_name"`

	// Exporter is "otlp" to ship spans to an OTLP/HTTP collector or "none"
	// to keep them in process.
	Exporter string `yaml:"exporter" json:"exporter"`
	// Endpoint is the collector URL. Empty falls back to the standard
	// OTEL_EXPORTER_OTLP_ENDPOINT variable, then http://localhost:4318.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// UpdatesConfig is a bulk update: one request per record, each record
// carrying its id plus the fields to write.
type UpdatesConfig struct {
	Model   string           `yaml:"model" json:"model"`
	Records []map[string]any `yaml:"records" json:"records"`
}

// PickingsConfig drives the picking workflows.
type PickingsConfig struct {
	IDs    []int64        `yaml:"ids" json:"ids"`
	Fields map[string]any `yaml:"fields" json:"fields"`
	Hook   string         `yaml:"hook" json:"hook"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Odoo: OdooConfig{Timeout: DefaultTimeout},
		Whitelists: map[string][]string{
			snapshot.ModelPicking: snapshot.DefaultPickingFields,
			snapshot.ModelMove:    snapshot.DefaultMoveFields,
			snapshot.ModelStatus:  snapshot.DefaultStatusFields,
		},
		Aliases:   batch.DefaultAliases(),
		Batch:     BatchConfig{MultiID: true, Verify: true},
		Output:    OutputConfig{Dir: "."},
		Telemetry: TelemetryConfig{ServiceName: "odoorpc", Exporter: "otlp"},
		Updates:   UpdatesConfig{Records: []map[string]any{}},
		Pickings:  PickingsConfig{IDs: []int64{}, Fields: map[string]any{}},
	}
}

// Env looks up an environment variable.
type Env func(key string) (string, bool)

// Load reads path (if non-empty) over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, env Env) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result without
// consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Environment variables that override the file.
const (
	EnvURL      = "ODOO_URL"
	EnvDatabase = "ODOO_DB"
	EnvUsername = "ODOO_USERNAME"
	EnvPassword = "ODOO_PASSWORD"
	EnvTimeout  = "ODOO_TIMEOUT"
)

func (c *Config) applyEnv(env Env) error {
	if env == nil {
		return nil
	}
	for key, dst := range map[string]*string{
		EnvURL:      &c.Odoo.URL,
		EnvDatabase: &c.Odoo.Database,
		EnvUsername: &c.Odoo.Username,
		EnvPassword: &c.Odoo.Password,
	} {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := env(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Odoo.Timeout = d
	}
	return nil
}

// Whitelist returns the configured whitelist for model, or nil.
func (c *Config) Whitelist(model string) odoo.Whitelist {
	fields, ok := c.Whitelists[model]
	if !ok {
		return nil
	}
	return odoo.Fields(fields...)
}

// AliasTable returns the configured aliases.
func (c *Config) AliasTable() batch.AliasTable {
	return batch.AliasTable(c.Aliases)
}

// Known returns the whitelists keyed by model, for strict normalization.
func (c *Config) Known() map[string][]string {
	return c.Whitelists
}

// RPC returns the transport configuration.
func (c *Config) RPC() rpc.Config {
	return rpc.Config{
		URL:      c.Odoo.URL,
		Database: c.Odoo.Database,
		Username: c.Odoo.Username,
		Password: c.Odoo.Password,
		Timeout:  c.Odoo.Timeout,
	}
}

// UpdateRequests converts the configured bulk update into requests.
func (c *Config) UpdateRequests() ([]batch.UpdateRequest, error) {
	if len(c.Updates.Records) == 0 {
		return nil, nil
	}
	if c.Updates.Model == "" {
		return nil, errors.New("updates: model is required")
	}
	reqs := make([]batch.UpdateRequest, 0, len(c.Updates.Records))
	for i, rec := range c.Updates.Records {
		v, err := value.FromAny(rec)
		if err != nil {
			return nil, fmt.Errorf("updates.records[%d]: %w", i, err)
		}
		obj, _ := value.AsObject(v)
		id, ok := value.AsInt(obj["id"])
		if !ok {
			return nil, fmt.Errorf("updates.records[%d]: missing integer id", i)
		}
		reqs = append(reqs, batch.UpdateRequest{Model: c.Updates.Model, ID: id, Values: obj.Without("id")})
	}
	return reqs, nil
}

// PickingValues converts the configured picking status fields.
func (c *Config) PickingValues() (value.Object, error) {
	v, err := value.FromAny(c.Pickings.Fields)
	if err != nil {
		return nil, fmt.Errorf("pickings.fields: %w", err)
	}
	obj, _ := value.AsObject(v)
	return obj, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Odoo.Password != "" {
		out.Odoo.Password = "********"
	}
	return &out
}

// Models returns the models with a configured whitelist, sorted.
func (c *Config) Models() []string {
	out := make([]string, 0, len(c.Whitelists))
	for m := range c.Whitelists {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ValidationError lists every schema violation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Problems, "\n  ")
}
