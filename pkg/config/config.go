package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultWebhookURL = "https://vm.prod.platform.quantum.security/webhooks/ci"

// Environment variables read by ApplyEnv
const (
	EnvAPIToken      = "QS_API_TOKEN"
	EnvSoftFail      = "QS_COLLECTOR_SOFT_FAIL"
	EnvQuiet         = "QS_COLLECTOR_QUIET"
	EnvWebhookURL    = "QS_COLLECTOR_WEBHOOK_URL"
	EnvSonarLogin    = "SQ_LOGIN"
	EnvSonarKey      = "SQ_KEY"
	EnvSonarUsername = "SQ_USERNAME"
	EnvSonarPassword = "SQ_PASSWORD"
	EnvSonarHost     = "SQ_HOST"
)

type TrivyConfig struct {
	ImageNames []string `yaml:"image_names,omitempty"`
}

type ZapConfig struct {
	TargetName string `yaml:"target_name,omitempty"`
	ReportFile string `yaml:"report_file,omitempty"`
}

type SonarConfig struct {
	Host       string `yaml:"host,omitempty"`
	Login      string `yaml:"login,omitempty"`
	ProjectKey string `yaml:"project_key,omitempty"`
	ProjectDir string `yaml:"project_dir,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
}

// ArchiveConfig points at an S3-compatible bucket for run payloads.
// Archiving is disabled unless Endpoint and Bucket are set.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

// Config is built once per run and handed to every component by value.
type Config struct {
	Path       string `yaml:"-"`
	SarifFile  string `yaml:"-"`
	SoftFail   bool   `yaml:"soft_fail,omitempty"`
	Quiet      bool   `yaml:"quiet,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	APIToken   string `yaml:"api_token,omitempty"`

	Trivy   TrivyConfig   `yaml:"trivy,omitempty"`
	Zap     ZapConfig     `yaml:"zap,omitempty"`
	Sonar   SonarConfig   `yaml:"sonarqube,omitempty"`
	Archive ArchiveConfig `yaml:"archive,omitempty"`
}

// Default returns the configuration used when nothing else is supplied
func Default() Config {
	return Config{
		Path:       ".",
		LogLevel:   "info",
		WebhookURL: DefaultWebhookURL,
		Zap:        ZapConfig{ReportFile: "zapreport.json"},
	}
}

// GetConfigPath returns ~/.ci-collector/config.yaml. The directory is
// created by Save.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ci-collector", "config.yaml"), nil
}

// Load reads a config file on top of the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the persistent part of cfg to path.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: the file holds tokens and passwords
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overlays environment variables on cfg. Boolean toggles are set
// by any non-empty value that does not parse as false.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIToken); v != "" {
		cfg.APIToken = v
	}
	if envBool(getenv(EnvSoftFail)) {
		cfg.SoftFail = true
	}
	if envBool(getenv(EnvQuiet)) {
		cfg.Quiet = true
	}
	if v := getenv(EnvWebhookURL); v != "" {
		cfg.WebhookURL = v
	}

	setIf(&cfg.Sonar.Login, getenv(EnvSonarLogin))
	setIf(&cfg.Sonar.ProjectKey, getenv(EnvSonarKey))
	setIf(&cfg.Sonar.Username, getenv(EnvSonarUsername))
	setIf(&cfg.Sonar.Password, getenv(EnvSonarPassword))
	setIf(&cfg.Sonar.Host, getenv(EnvSonarHost))
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envBool(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}

// PathError reports a --path that does not exist
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("the supplied --path argument does not exist: %s could not be found", e.Path)
}

// ValidatePath checks that the scan path exists
func ValidatePath(path string) error {
	if _, err := os.Stat(path); err != nil {
		return &PathError{Path: path}
	}
	return nil
}

// Masked returns a copy with secrets replaced, for display
func (c Config) Masked() Config {
	c.APIToken = mask(c.APIToken)
	c.Sonar.Login = mask(c.Sonar.Login)
	c.Sonar.Password = mask(c.Sonar.Password)
	c.Archive.SecretKey = mask(c.Archive.SecretKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 8)
}
