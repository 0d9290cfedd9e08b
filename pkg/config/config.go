// Package config loads the pgapi configuration from a YAML file, PGAPI_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/pgapi/pkg/events"
	"github.com/edgeflare/pgapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgapi/pkg/pgx/schema"
	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/edgeflare/pgapi/pkg/rest"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X .../pkg/config.Version=...".
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	REST    RESTConfig    `mapstructure:"rest"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Events  EventsConfig  `mapstructure:"events"`
}

type RESTConfig struct {
	PG         PGConfig `mapstructure:"pg"`
	ListenAddr string   `mapstructure:"listenAddr"`
	BaseURL    string   `mapstructure:"baseURL"`
	// Introspect loads tables, views and foreign keys of Schemas at startup.
	Introspect bool     `mapstructure:"introspect"`
	Schemas    []string `mapstructure:"schemas"`
	// WatchSchema reloads the introspected entities on NOTIFY pgapi, 'reload schema'.
	WatchSchema     bool                    `mapstructure:"watchSchema"`
	BasicAuth       map[string]string       `mapstructure:"basicAuth"` // user: password
	Admins          []string                `mapstructure:"admins"`
	CORS            *middleware.CORSOptions `mapstructure:"cors"`
	Pagination      PaginationConfig        `mapstructure:"pagination"`
	MaxFilterDepth  int                     `mapstructure:"maxFilterDepth"`
	MaxIncludeDepth int                     `mapstructure:"maxIncludeDepth"`
	MergePolicy     string                  `mapstructure:"mergePolicy"` // lastWins or conjoin
	StrictOperators bool                    `mapstructure:"strictOperators"`
	Entities        []EntityConfig          `mapstructure:"entities"`
}

type PGConfig struct {
	ConnString  string        `mapstructure:"connString"`
	PingTimeout time.Duration `mapstructure:"pingTimeout"`
	MaxConns    int32         `mapstructure:"maxConns"`
	MinConns    int32         `mapstructure:"minConns"`
}

type PaginationConfig struct {
	MaxPageSize int `mapstructure:"maxPageSize"`
}

// EntityConfig declares an entity, or overrides an introspected one, together
// with the options of its endpoints.
type EntityConfig struct {
	schema.Entity `mapstructure:",squash"`
	rest.Options  `mapstructure:",squash"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

type EventsConfig struct {
	Kafka *events.KafkaConfig `mapstructure:"kafka"`
	NATS  *events.NATSConfig  `mapstructure:"nats"`
}

// Compiler returns the query compiler configured by c.
func (c RESTConfig) Compiler() (query.Compiler, error) {
	merge, err := query.ParseMergePolicy(c.MergePolicy)
	if err != nil {
		return query.Compiler{}, err
	}
	return query.Compiler{
		Merge:           merge,
		Strict:          c.StrictOperators,
		MaxFilterDepth:  c.MaxFilterDepth,
		MaxIncludeDepth: c.MaxIncludeDepth,
		MaxPageSize:     c.Pagination.MaxPageSize,
	}, nil
}

// Validate reports the first inconsistency of c.
func (c *Config) Validate() error {
	if c.REST.PG.ConnString == "" {
		return errors.New("rest.pg.connString is required")
	}
	if !c.REST.Introspect && len(c.REST.Entities) == 0 {
		return errors.New("no entities: enable rest.introspect or declare rest.entities")
	}
	if _, err := query.ParseMergePolicy(c.REST.MergePolicy); err != nil {
		return fmt.Errorf("rest.mergePolicy: %w", err)
	}
	for i, e := range c.REST.Entities {
		if e.Name == "" {
			return fmt.Errorf("rest.entities[%d]: name is required", i)
		}
	}
	if len(c.REST.Admins) > 0 && len(c.REST.BasicAuth) == 0 {
		return errors.New("rest.admins requires rest.basicAuth")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rest.pg.connString", "")
	v.SetDefault("rest.pg.pingTimeout", 30*time.Second)
	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.baseURL", "")
	v.SetDefault("rest.introspect", true)
	v.SetDefault("rest.schemas", []string{"public"})
	v.SetDefault("rest.watchSchema", true)
	v.SetDefault("rest.maxIncludeDepth", 1)
	v.SetDefault("rest.mergePolicy", "lastWins")
	v.SetDefault("rest.strictOperators", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config from file, environment and the given flags. Flags are
// named after the configuration keys, e.g. --rest.listenAddr.
func Load(cfgFile string, flags ...*pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgapi")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PGAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, fs := range flags {
		if fs == nil {
			continue
		}
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		zap.L().Info("using config file", zap.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
