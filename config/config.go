package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"athlo/internal/domain/constants"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"
	defaultServiceName        = "athlo"
	defaultVersion            = "0.1.0"
	defaultDataDir            = "data"
	defaultSigningAlgorithm   = "HS256"
	defaultAccessTokenTTL     = 15 * time.Minute
	defaultRefreshTokenTTL    = 7 * 24 * time.Hour
	defaultMinPasswordLength  = 8
	defaultGoogleTimeout      = 10 * time.Second
	defaultGoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	defaultMetricsPath        = "/metrics"
	generatedSecretBytes      = 32
)

var supportedSigningAlgorithms = []string{"HS256", "HS384", "HS512"}

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Version     string `json:"version" yaml:"version"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Storage *StorageConfig `json:"storage" yaml:"storage"`

	Postgres *PostgresConfig `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	GoogleOAuth *GoogleOAuthConfig `json:"googleOAuth" yaml:"googleOAuth"`

	// PubSub configuration for audit event publishing
	PubSub *PubSubConfig `json:"pubsub" yaml:"pubsub"`

	Metrics *MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StorageConfig selects the backend behind the repositories.
type StorageConfig struct {
	// Driver is "blob" (JSON collections in a gocloud bucket) or "postgres".
	Driver string `json:"driver" yaml:"driver"`

	// BucketURL is any gocloud.dev blob URL, e.g. file:///var/lib/athlo, mem:// or gs://bucket.
	// When empty, DataDir is opened as a local directory bucket.
	BucketURL string `json:"bucketUrl" yaml:"bucketUrl"`

	DataDir string `json:"dataDir" yaml:"dataDir"`
}

// PostgresConfig is the go-lib connection description plus the options the
// relational backend adds on top of it.
type PostgresConfig struct {
	postgres.DBConn `mapstructure:",squash"`

	// Migrate applies the embedded schema migrations on start-up.
	Migrate bool `json:"migrate" yaml:"migrate"`

	// SlowQueryThreshold marks slower statements as slow in the SQL log.
	SlowQueryThreshold time.Duration `json:"slowQueryThreshold" yaml:"slowQueryThreshold"`
}

// AuthConfig defines token and credential settings
type AuthConfig struct {
	SecretKey         string        `json:"secretKey" yaml:"secretKey"`
	SigningAlgorithm  string        `json:"signingAlgorithm" yaml:"signingAlgorithm"`
	AccessTokenTTL    time.Duration `json:"accessTokenTTL" yaml:"accessTokenTTL"`
	RefreshTokenTTL   time.Duration `json:"refreshTokenTTL" yaml:"refreshTokenTTL"`
	BcryptCost        int           `json:"bcryptCost" yaml:"bcryptCost"`
	MinPasswordLength int           `json:"minPasswordLength" yaml:"minPasswordLength"`

	// RevokeTokensOnDelete revokes every refresh token of a user when the
	// account is deleted. Off by default: orphaned tokens fail the
	// active-user check on refresh instead.
	RevokeTokensOnDelete bool `json:"revokeTokensOnDelete" yaml:"revokeTokensOnDelete"`
}

type GoogleOAuthConfig struct {
	// ClientID is the expected audience. The audience check is skipped when empty.
	ClientID string `json:"clientId" yaml:"clientId"`

	// Mode is "tokeninfo" (remote lookup) or "idtoken" (local signature check against Google's keys).
	Mode string `json:"mode" yaml:"mode"`

	TokenInfoURL string        `json:"tokenInfoUrl" yaml:"tokenInfoUrl"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`

	// RequireVerifiedEmail rejects identities whose email the provider has not verified.
	RequireVerifiedEmail bool `json:"requireVerifiedEmail" yaml:"requireVerifiedEmail"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// PubSubConfig defines Pub/Sub configuration for event publishing
type PubSubConfig struct {
	// Provider type: "local" for local HTTP or "google" for Google Pub/Sub
	Provider string `json:"provider" yaml:"provider"`

	ProjectID     string `json:"projectId" yaml:"projectId"`
	TopicID       string `json:"topicId" yaml:"topicId"`
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	var configFile string
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate

			break
		}
	}

	if configFile == "" {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Environment variables override YAML. Each segment is aligned with the
	// existing YAML key, so AUTH_ACCESSTOKENTTL lands on auth.accessTokenTTL.
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if cfg.Postgres != nil {
		// POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, ...
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	return cfg, nil
}

// applyDefaults fills every unset option and validates the ones that have a
// closed set of values.
func (cfg *Config) applyDefaults() error {
	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if cfg.Env.ServiceName == "" {
		cfg.Env.ServiceName = defaultServiceName
	}
	if cfg.Env.Version == "" {
		cfg.Env.Version = defaultVersion
	}
	if cfg.Env.Log.Level == "" {
		cfg.Env.Log.Level = "info"
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = constants.StorageDriverBlob
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	switch cfg.Storage.Driver {
	case constants.StorageDriverBlob:
	case constants.StorageDriverPostgres:
		if cfg.Postgres == nil {
			return errors.New("postgres storage driver requires a postgres section")
		}
	default:
		return errors.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	if err := cfg.applyAuthDefaults(); err != nil {
		return err
	}

	if cfg.GoogleOAuth == nil {
		cfg.GoogleOAuth = &GoogleOAuthConfig{}
	}
	if cfg.GoogleOAuth.Mode == "" {
		cfg.GoogleOAuth.Mode = constants.GoogleModeTokenInfo
	}
	if cfg.GoogleOAuth.Mode != constants.GoogleModeTokenInfo && cfg.GoogleOAuth.Mode != constants.GoogleModeIDToken {
		return errors.Errorf("unknown google verification mode: %s", cfg.GoogleOAuth.Mode)
	}
	if cfg.GoogleOAuth.TokenInfoURL == "" {
		cfg.GoogleOAuth.TokenInfoURL = defaultGoogleTokenInfoURL
	}
	if cfg.GoogleOAuth.Timeout <= 0 {
		cfg.GoogleOAuth.Timeout = defaultGoogleTimeout
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}

	return nil
}

func (cfg *Config) applyAuthDefaults() error {
	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}

	auth := cfg.Auth
	if auth.SigningAlgorithm == "" {
		auth.SigningAlgorithm = defaultSigningAlgorithm
	}
	auth.SigningAlgorithm = strings.ToUpper(auth.SigningAlgorithm)
	if !slices.Contains(supportedSigningAlgorithms, auth.SigningAlgorithm) {
		return errors.Errorf("unsupported signing algorithm: %s", auth.SigningAlgorithm)
	}
	if auth.AccessTokenTTL <= 0 {
		auth.AccessTokenTTL = defaultAccessTokenTTL
	}
	if auth.RefreshTokenTTL <= 0 {
		auth.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if auth.MinPasswordLength <= 0 {
		auth.MinPasswordLength = defaultMinPasswordLength
	}
	if auth.SecretKey == "" {
		// Tokens signed with a generated secret do not survive a restart.
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		auth.SecretKey = secret
	}

	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate signing secret")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv reads POSTGRES_REPLICAS_{index}_{HOST,PORT,USERNAME,PASSWORD}
// until the first index without a host or port.
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			break
		}

		replicas = append(replicas, postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		})
	}

	return replicas
}
