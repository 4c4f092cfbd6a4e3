// Package config loads harvester settings from a YAML file and the
// environment.
//
// Every key can be set with an IRTS_ prefixed variable (dots become
// underscores, e.g. IRTS_ARXIV_DELAY). The legacy variables ARXIV_API,
// ARXIV_DELAY, CROSSREF_API, CROSSREF_DELAY, IR_EMAIL,
// INSTITUTION_ABBREVIATION and INSTITUTION_CITY are honoured as well.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/mapper"
)

// DefaultFileName is looked up in the working directory when no explicit
// config file is given.
const DefaultFileName = "irts"

// Config is the resolved configuration.
type Config struct {
	DB          string      `mapstructure:"db"`
	Workers     int         `mapstructure:"workers"`
	Unmapped    string      `mapstructure:"unmapped"`
	Rules       string      `mapstructure:"rules"`
	MetricsFile string      `mapstructure:"metrics_file"`
	Email       string      `mapstructure:"email"`
	Institution Institution `mapstructure:"institution"`
	Arxiv       Arxiv       `mapstructure:"arxiv"`
	Crossref    Crossref    `mapstructure:"crossref"`
}

// Institution names the harvesting institution for affiliation searches.
type Institution struct {
	Abbreviation string `mapstructure:"abbreviation"`
	City         string `mapstructure:"city"`
}

// Arxiv configures the arXiv source. Delay is in seconds.
type Arxiv struct {
	API        string   `mapstructure:"api"`
	Delay      int      `mapstructure:"delay"`
	MaxResults int      `mapstructure:"max_results"`
	Authors    []string `mapstructure:"authors"`
	SkipNames  []string `mapstructure:"skip_names"`
}

// Crossref configures the Crossref source. Delay is in seconds.
type Crossref struct {
	API          string   `mapstructure:"api"`
	Delay        int      `mapstructure:"delay"`
	Rows         int      `mapstructure:"rows"`
	WindowDays   int      `mapstructure:"window_days"`
	Affiliations []string `mapstructure:"affiliations"`
}

// ArxivDelay returns the politeness delay as a duration.
func (c *Config) ArxivDelay() time.Duration {
	return time.Duration(c.Arxiv.Delay) * time.Second
}

// CrossrefDelay returns the politeness delay as a duration.
func (c *Config) CrossrefDelay() time.Duration {
	return time.Duration(c.Crossref.Delay) * time.Second
}

// CrossrefWindow returns the discovery window as a duration.
func (c *Config) CrossrefWindow() time.Duration {
	return time.Duration(c.Crossref.WindowDays) * 24 * time.Hour
}

// Affiliations returns the configured affiliation terms, falling back to
// the institution abbreviation and city.
func (c *Config) Affiliations() []string {
	if len(c.Crossref.Affiliations) > 0 {
		return c.Crossref.Affiliations
	}
	var out []string
	for _, s := range []string{c.Institution.Abbreviation, c.Institution.City} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// UnmappedPolicy returns the parsed unmapped field policy.
func (c *Config) UnmappedPolicy() mapper.UnmappedPolicy {
	p, _ := mapper.ParseUnmappedPolicy(c.Unmapped)
	return p
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "irts.db")
	v.SetDefault("workers", 4)
	v.SetDefault("unmapped", string(mapper.UnmappedPassthrough))
	v.SetDefault("rules", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("email", "")
	v.SetDefault("institution.abbreviation", "KAUST")
	v.SetDefault("institution.city", "Thuwal")
	v.SetDefault("arxiv.api", "http://export.arxiv.org/api/query")
	v.SetDefault("arxiv.delay", 3)
	v.SetDefault("arxiv.max_results", 100)
	v.SetDefault("arxiv.authors", []string{})
	v.SetDefault("arxiv.skip_names", []string{})
	v.SetDefault("crossref.api", "https://api.crossref.org/")
	v.SetDefault("crossref.delay", 1)
	v.SetDefault("crossref.rows", 50)
	v.SetDefault("crossref.window_days", 7)
	v.SetDefault("crossref.affiliations", []string{})
}

var legacyEnv = map[string]string{
	"arxiv.api":                "ARXIV_API",
	"arxiv.delay":              "ARXIV_DELAY",
	"crossref.api":             "CROSSREF_API",
	"crossref.delay":           "CROSSREF_DELAY",
	"email":                    "IR_EMAIL",
	"institution.abbreviation": "INSTITUTION_ABBREVIATION",
	"institution.city":         "INSTITUTION_CITY",
}

// Load reads configuration. With an explicit path the file must exist;
// otherwise irts.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IRTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "IRTS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, ir.NewConfigurationError("load config", "bind env "+legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, ir.NewConfigurationError("load config", "read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ir.NewConfigurationError("load config", "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	if c.DB == "" {
		problems = append(problems, "db must not be empty")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if _, err := mapper.ParseUnmappedPolicy(c.Unmapped); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Arxiv.Delay < 0 || c.Crossref.Delay < 0 {
		problems = append(problems, "delays must not be negative")
	}
	if c.Crossref.WindowDays < 1 {
		problems = append(problems, "crossref.window_days must be at least 1")
	}
	if len(problems) > 0 {
		return ir.NewConfigurationError("validate config", strings.Join(problems, "; "), nil)
	}
	return nil
}

// String renders the configuration for --verbose logging.
func (c *Config) String() string {
	return fmt.Sprintf("db=%s workers=%d unmapped=%s arxiv=%s crossref=%s",
		c.DB, c.Workers, c.Unmapped, c.Arxiv.API, c.Crossref.API)
}
