package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	MediaStorageFilesystem = "filesystem"
	MediaStorageS3         = "s3"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	Hostname                  string        `koanf:"hostname"`
	JWTSecret                 string        `koanf:"jwt_secret" validate:"required"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" default:"3689"`
	WorkerProcesses           int           `koanf:"worker_processes" default:"2" validate:"min=1"`

	// Media storage for covers, gallery images and QR codes.
	MediaStorage      string `koanf:"media_storage" default:"filesystem" validate:"oneof=filesystem s3"`
	MediaDir          string `koanf:"media_dir" default:"./media"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3Region          string `koanf:"s3_region" default:"us-east-1"`
	S3Bucket          string `koanf:"s3_bucket"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3UseSSL          bool   `koanf:"s3_use_ssl"`

	CoverFontPath string `koanf:"cover_font_path"`
	CoverWidth    int    `koanf:"cover_width" default:"620" validate:"min=1"`
	CoverHeight   int    `koanf:"cover_height" default:"877" validate:"min=1"`

	QRCodeEnabled bool `koanf:"qr_code_enabled" default:"true"`
	QRCodeSize    int  `koanf:"qr_code_size" default:"256" validate:"min=21"`

	// Max width that ingested covers and gallery images are scaled down to. 0
	// keeps the original files untouched.
	ImageMaxWidth int `koanf:"image_max_width" default:"1600" validate:"min=0"`

	DefaultLoanDays int `koanf:"default_loan_days" default:"7"`

	// Import sources can only be browsed below this directory.
	IngestRoot string `koanf:"ingest_root" default:"/"`
}

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/lendshelf.yaml"
)

// New builds the config from struct defaults, then the YAML config file (if it
// exists), then environment variables. Env vars are the upper-cased koanf keys,
// e.g. DATABASE_FILE_PATH.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	keys := knownKeys()
	err = k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := keys[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("koanf")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}

	fe := verrs[0]
	key := fe.Field()
	if fe.Tag() == "required" {
		return errors.Errorf("missing required config: set %s or %s in the config file", strings.ToUpper(key), key)
	}
	return errors.Errorf("invalid config %s (%s): failed %q check", strings.ToUpper(key), key, fmt.Sprintf("%s=%s", fe.Tag(), fe.Param()))
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("koanf"); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}

// NewForTest returns a config with defaults applied that doesn't read the
// environment or any config file.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.JWTSecret = "test-secret"
	cfg.ServerHost = "127.0.0.1"
	cfg.MediaDir = os.TempDir()
	return cfg
}
