package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Inputs     InputsConfig     `yaml:"inputs" mapstructure:"inputs"`
	OD         ODConfig         `yaml:"od" mapstructure:"od"`
	Features   FeaturesConfig   `yaml:"features" mapstructure:"features"`
	TravelTime TravelTimeConfig `yaml:"traveltime" mapstructure:"traveltime"`
	ORS        ORSConfig        `yaml:"ors" mapstructure:"ors"`
	Models     ModelsConfig     `yaml:"models" mapstructure:"models"`
	TripGen    TripGenConfig    `yaml:"tripgen" mapstructure:"tripgen"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	PostGIS    PostGISConfig    `yaml:"postgis" mapstructure:"postgis"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// InputsConfig locates the raw inputs. Paths may be local files or
// http(s):// and ftp:// URLs.
type InputsConfig struct {
	Zones         string   `yaml:"zones" mapstructure:"zones"`
	ZoneIDField   string   `yaml:"zone_id_field" mapstructure:"zone_id_field" validate:"required"`
	Attributes    string   `yaml:"attributes" mapstructure:"attributes"`
	CensusBlocks  string   `yaml:"census_blocks" mapstructure:"census_blocks"`
	CensusFields  []string `yaml:"census_fields" mapstructure:"census_fields"`
	DENUE         string   `yaml:"denue" mapstructure:"denue"`
	DENUEActivity string   `yaml:"denue_activity_field" mapstructure:"denue_activity_field"`
	MiBici        string   `yaml:"mibici" mapstructure:"mibici"`
	GTFS          string   `yaml:"gtfs" mapstructure:"gtfs"`
	ODSurvey      string   `yaml:"od_survey" mapstructure:"od_survey"`
	ODSheet       string   `yaml:"od_sheet" mapstructure:"od_sheet"`
	Encoding      string   `yaml:"encoding" mapstructure:"encoding"`
}

// ODConfig configures survey aggregation.
type ODConfig struct {
	OriginColumn      string `yaml:"origin_column" mapstructure:"origin_column" validate:"required"`
	DestinationColumn string `yaml:"destination_column" mapstructure:"destination_column" validate:"required"`
	DropTrailing      bool   `yaml:"drop_trailing" mapstructure:"drop_trailing"`
	FillMissingTotals bool   `yaml:"fill_missing_totals" mapstructure:"fill_missing_totals"`
}

// FeaturesConfig declares the zone feature schema.
type FeaturesConfig struct {
	Columns           []string `yaml:"columns" mapstructure:"columns" validate:"required,min=1,dive,required"`
	VehicleHouseholds string   `yaml:"vehicle_households" mapstructure:"vehicle_households" validate:"required"`
	Dwellings         string   `yaml:"dwellings" mapstructure:"dwellings" validate:"required"`
}

// TravelTimeConfig configures matrix batching and the quota window.
type TravelTimeConfig struct {
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size" validate:"gt=0"`
	QuotaBatches int           `yaml:"quota_batches" mapstructure:"quota_batches" validate:"gt=0"`
	Cooldown     time.Duration `yaml:"cooldown" mapstructure:"cooldown" validate:"gte=0"`
}

// ORSConfig holds openrouteservice settings.
type ORSConfig struct {
	Key       string        `yaml:"key" mapstructure:"key"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gt=0"`
}

// ModelsConfig locates the pretrained predictors. Each entry is a YAML
// model file (linear or remote) and may itself be a URL.
type ModelsConfig struct {
	Origin        string        `yaml:"origin" mapstructure:"origin"`
	Destination   string        `yaml:"destination" mapstructure:"destination"`
	ModeSplit     string        `yaml:"mode_split" mapstructure:"mode_split"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" mapstructure:"remote_timeout"`
}

// TripGenConfig configures trip generation.
type TripGenConfig struct {
	ClampNegative bool `yaml:"clamp_negative" mapstructure:"clamp_negative"`
}

// OutputConfig configures local exports.
type OutputConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir" validate:"required"`
	XLSX    bool   `yaml:"xlsx" mapstructure:"xlsx"`
	GeoJSON bool   `yaml:"geojson" mapstructure:"geojson"`
}

// PostGISConfig configures the optional PostGIS export.
type PostGISConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Enabled true"`
	Schema      string `yaml:"schema" mapstructure:"schema" validate:"required"`
	// Upsert replaces rows of a re-exported run instead of appending.
	Upsert bool `yaml:"upsert" mapstructure:"upsert"`
}

// CacheConfig configures the redis matrix batch cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr     string        `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// MetricsConfig configures prometheus metrics.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// ServerConfig configures the results server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// FetchConfig configures remote input downloads.
type FetchConfig struct {
	CacheDir  string        `yaml:"cache_dir" mapstructure:"cache_dir" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// DefaultFeatureColumns are the zone features forwarded by default.
var DefaultFeatureColumns = []string{
	"sum_POBTOT",
	"act_722515",
	"act_722514",
	"act_812110",
	"Unidades_Economicas",
	"Paradas_Camion",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ODFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "odflow.db")
	for _, key := range []string{
		"inputs.zones", "inputs.attributes", "inputs.census_blocks", "inputs.denue",
		"inputs.mibici", "inputs.gtfs", "inputs.od_survey", "ors.key",
		"models.origin", "models.destination", "models.mode_split",
		"postgis.database_url", "cache.password", "metrics.textfile_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("inputs.zone_id_field", "CODIGO_MZ")
	v.SetDefault("inputs.denue_activity_field", "codigo_act")
	v.SetDefault("inputs.census_fields", []string{"POBTOT", "VPH_AUTOM", "TVIVPARHAB"})
	v.SetDefault("inputs.od_sheet", "")
	v.SetDefault("inputs.encoding", "utf-8")
	v.SetDefault("od.origin_column", "Origen")
	v.SetDefault("od.destination_column", "Destino")
	v.SetDefault("od.drop_trailing", true)
	v.SetDefault("od.fill_missing_totals", true)
	v.SetDefault("features.columns", DefaultFeatureColumns)
	v.SetDefault("features.vehicle_households", "sum_VPH_AUTOM")
	v.SetDefault("features.dwellings", "sum_TVIVPARHAB")
	v.SetDefault("traveltime.batch_size", 7)
	v.SetDefault("traveltime.quota_batches", 40)
	v.SetDefault("traveltime.cooldown", 60*time.Second)
	v.SetDefault("ors.base_url", "https://api.openrouteservice.org")
	v.SetDefault("ors.timeout", 60*time.Second)
	v.SetDefault("ors.rate_limit", 1.0)
	v.SetDefault("models.remote_timeout", 30*time.Second)
	v.SetDefault("tripgen.clamp_negative", false)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.geojson", true)
	v.SetDefault("postgis.enabled", false)
	v.SetDefault("postgis.schema", "odflow")
	v.SetDefault("postgis.upsert", true)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("fetch.cache_dir", "/tmp/odflow")
	v.SetDefault("fetch.timeout", 5*time.Minute)
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("fetch.user_agent", "odflow/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the settings a command needs are present. Struct
// tag rules are checked once in Load.
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key+" is required")
		}
	}

	switch mode {
	case "run":
		require(c.Inputs.Zones != "", "inputs.zones")
		require(c.Inputs.ODSurvey != "", "inputs.od_survey")
		require(c.Inputs.Attributes != "" || c.Inputs.CensusBlocks != "", "inputs.attributes or inputs.census_blocks")
		require(c.Models.Origin != "", "models.origin")
		require(c.Models.Destination != "", "models.destination")
		require(c.Models.ModeSplit != "", "models.mode_split")
		require(c.ORS.Key != "", "ors.key")
	case "zones":
		require(c.Inputs.Zones != "", "inputs.zones")
		require(c.Inputs.CensusBlocks != "", "inputs.census_blocks")
	case "od-totals":
		require(c.Inputs.ODSurvey != "", "inputs.od_survey")
	case "traveltime":
		require(c.Inputs.Zones != "", "inputs.zones")
		require(c.ORS.Key != "", "ors.key")
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. When cfg.File is set, JSON
// entries are also written to a size-rotated file.
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

	if cfg.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
			}),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	return nil
}
