// Package configuration loads the credential core's ambient
// configuration: trust anchor file paths, issuer/verifier identifiers
// and TTLs, and the PIN policy table, per the small amount of config
// §1 scopes in (no service-discovery, no Mongo, no HTTP listener
// config - those belong to the Non-goal HTTP/persistence layers).
//
// Grounded on the teacher's pkg/configuration (VC_CONFIG_YAML env var
// read via github.com/kelseyhightower/envconfig, defaults applied via
// github.com/creasty/defaults, body parsed via gopkg.in/yaml.v2).
// helpers.Check's generic JSON-schema-driven validation pass is not
// carried over: it depends on a teacher-wide jsonschema compiler
// wired against every microservice's config shape, which has no
// equivalent object here; Cfg's own Validate below checks exactly the
// handful of fields this package defines.
package configuration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MinBZK/nl-wallet-sub004/pkg/logger"
	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// IssuerConfig configures the OpenID4VCI issuance session of §4.8.
type IssuerConfig struct {
	Identifier    string        `yaml:"identifier"`
	TokenTTL      time.Duration `yaml:"token_ttl" default:"5m"`
	TrustAnchors  string        `yaml:"trust_anchors"`
}

// VerifierConfig configures the OpenID4VP/ISO-18013-7 presentation
// session of §4.9.
type VerifierConfig struct {
	LeafCertificate string        `yaml:"leaf_certificate"`
	LeafKey         string        `yaml:"leaf_key"`
	ResponseTTL     time.Duration `yaml:"response_ttl" default:"5m"`
	TrustAnchors    string        `yaml:"trust_anchors"`
}

// PinPolicyConfig configures the account-server PIN-attempt policy of
// §4.12, mirroring pin_policy.rs's PinPolicy construction parameters.
type PinPolicyConfig struct {
	Rounds           uint64        `yaml:"rounds" default:"4"`
	AttemptsPerRound uint64        `yaml:"attempts_per_round" default:"4"`
	Timeouts         []time.Duration `yaml:"timeouts"`
}

// StatusListConfig configures the issuer's status-list publication
// protocol of §4.5.
type StatusListConfig struct {
	PublishPath     string        `yaml:"publish_path"`
	ConsultationTTL time.Duration `yaml:"consultation_ttl" default:"1h"`
}

// Cfg is the credential core's top-level configuration.
type Cfg struct {
	Issuer     IssuerConfig     `yaml:"issuer"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	PinPolicy  PinPolicyConfig  `yaml:"pin_policy"`
	StatusList StatusListConfig `yaml:"status_list"`
}

// Validate checks the handful of fields that have no safe zero value.
func (c *Cfg) Validate() error {
	if c.Issuer.Identifier == "" {
		return fmt.Errorf("configuration: issuer.identifier is required")
	}
	if c.PinPolicy.Rounds == 0 {
		return fmt.Errorf("configuration: pin_policy.rounds must be positive")
	}
	if c.PinPolicy.AttemptsPerRound == 0 {
		return fmt.Errorf("configuration: pin_policy.attempts_per_round must be positive")
	}
	return nil
}

type envVars struct {
	ConfigYAML string `envconfig:"VC_CONFIG_YAML" required:"true"`
}

// New parses the configuration file named by the VC_CONFIG_YAML
// environment variable.
func New(ctx context.Context) (*Cfg, error) {
	log := logger.NewSimple("configuration")
	log.Info("reading environment variable")

	env := envVars{}
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}

	return Load(env.ConfigYAML)
}

// Load parses the configuration file at configPath.
func Load(configPath string) (*Cfg, error) {
	cfg := &Cfg{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return nil, err
	}
	if fileInfo.IsDir() {
		return nil, errors.New("configuration: config path is a directory")
	}

	configFile, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configFile, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
