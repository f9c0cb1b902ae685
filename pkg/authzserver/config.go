package authzserver

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseDir            string           `yaml:"-"`
	Issuer             string           `yaml:"issuer" validate:"required,url"`
	SignPrivateKeyPath string           `yaml:"sign_private_key_path"`
	ScopesSupported    []string         `yaml:"scopes_supported"`
	RequirePAR         bool             `yaml:"require_par"`
	RequestTTLSeconds  int              `yaml:"request_ttl_seconds" validate:"omitempty,gt=0"`
	Clients            []ClientMetadata `yaml:"clients" validate:"omitempty,dive"`
	Endpoints          EndpointsConfig  `yaml:"endpoints" validate:"omitempty"`
	Store              StoreConfig      `yaml:"store"`
}

type StoreConfig struct {
	Kind     string          `yaml:"kind" validate:"omitempty,oneof=memory valkey postgres"`
	Valkey   *ValkeyConfig   `yaml:"valkey" validate:"omitempty"`
	Postgres *PostgresConfig `yaml:"postgres" validate:"omitempty"`
}

type ValkeyConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

type EndpointsConfig struct {
	AuthorizationServerMetadata string `yaml:"authorization_server_metadata"`
	Jwks                        string `yaml:"jwks"`
	Authorization               string `yaml:"authorization"`
	Token                       string `yaml:"token"`
	PushedAuthorizationRequest  string `yaml:"pushed_authorization_request"`
}

func (s *EndpointsConfig) applyDefaults(baseURI *url.URL) {
	basePath := strings.TrimRight(baseURI.Path, "/")
	if basePath == "/" {
		basePath = ""
	}

	if s.AuthorizationServerMetadata == "" {
		s.AuthorizationServerMetadata = basePath + "/.well-known/oauth-authorization-server"
	}
	if s.Jwks == "" {
		s.Jwks = basePath + "/jwks"
	}
	if s.Authorization == "" {
		s.Authorization = basePath + "/auth"
	}
	if s.Token == "" {
		s.Token = basePath + "/token"
	}
	if s.PushedAuthorizationRequest == "" {
		s.PushedAuthorizationRequest = basePath + "/par"
	}
}

// LoadConfigFile reads a YAML config, expanding ${ENV} references
// before parsing. Relative paths inside the config resolve against the
// config file's directory.
func LoadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := new(Config)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file '%s': %w", filename, err)
	}
	cfg.BaseDir = filepath.Dir(filename)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config file '%s': %w", filename, err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	return validate.Struct(cfg)
}

func absPath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
