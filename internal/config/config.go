// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/updraft/database/plugin"
	"github.com/blinklabs-io/updraft/keystore"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "updraft.config"

const (
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultAssetUrlExpiry     = time.Hour
	DefaultStatsRetentionDays = 90
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

// envPrefix is the prefix for all environment variables. Fields with an
// envconfig tag also fall back to the unprefixed name, so PORT and
// BASE_URL work as well
const envPrefix = "updraft"

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type SigningConfig struct {
	// Secret is the passphrase the aesgcm decryptor derives its key from
	Secret    string `yaml:"secret"    envconfig:"APP_PK_SECRET"`
	Decryptor string `yaml:"decryptor"`
	// FailClosed turns signing failures into server errors
	FailClosed bool `yaml:"failClosed" split_words:"true"`
}

type Config struct {
	BindAddr           string        `yaml:"bindAddr"           split_words:"true"`
	BaseUrl            string        `yaml:"baseUrl"            envconfig:"BASE_URL"`
	CorsOrigin         string        `yaml:"corsOrigin"         envconfig:"CORS_ORIGIN"`
	BlobPlugin         string        `yaml:"blobPlugin"         envconfig:"DATABASE_BLOB_PLUGIN"`
	MetadataPlugin     string        `yaml:"metadataPlugin"     envconfig:"DATABASE_METADATA_PLUGIN"`
	DatabasePath       string        `yaml:"databasePath"       split_words:"true"`
	TlsCertFilePath    string        `yaml:"tlsCertFilePath"    envconfig:"TLS_CERT_FILE_PATH"`
	TlsKeyFilePath     string        `yaml:"tlsKeyFilePath"     envconfig:"TLS_KEY_FILE_PATH"`
	Port               uint          `yaml:"port"               envconfig:"PORT"`
	MetricsPort        uint          `yaml:"metricsPort"        split_words:"true"`
	AssetUrlExpiry     time.Duration `yaml:"assetUrlExpiry"     split_words:"true"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"    split_words:"true"`
	StatsRetentionDays int           `yaml:"statsRetentionDays" split_words:"true"`
	Tracing            bool          `yaml:"tracing"`
	TracingStdout      bool          `yaml:"tracingStdout"      split_words:"true"`
	Signing            SigningConfig `yaml:"signing"`
}

// Validate checks settings that can't be checked by the decoders
func (c *Config) Validate() error {
	switch c.Signing.Decryptor {
	case "", keystore.DecryptorAesGcm, keystore.DecryptorSops:
	default:
		return fmt.Errorf(
			"invalid signing decryptor: %q (must be '%s' or '%s')",
			c.Signing.Decryptor,
			keystore.DecryptorAesGcm,
			keystore.DecryptorSops,
		)
	}
	if c.Port > 65535 || c.MetricsPort > 65535 {
		return errors.New("port numbers must be less than 65536")
	}
	if c.AssetUrlExpiry <= 0 {
		return fmt.Errorf("invalid assetUrlExpiry: %s", c.AssetUrlExpiry)
	}
	if c.StatsRetentionDays < 0 {
		return fmt.Errorf("invalid statsRetentionDays: %d", c.StatsRetentionDays)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:           "0.0.0.0",
		Port:               3000,
		MetricsPort:        12798,
		BlobPlugin:         DefaultBlobPlugin,
		MetadataPlugin:     DefaultMetadataPlugin,
		DatabasePath:       ".updraft",
		AssetUrlExpiry:     DefaultAssetUrlExpiry,
		ShutdownTimeout:    DefaultShutdownTimeout,
		StatsRetentionDays: DefaultStatsRetentionDays,
		Signing: SigningConfig{
			Decryptor: keystore.DecryptorAesGcm,
		},
	}
}

var globalConfig = defaultConfig()

// findConfigFile returns the first of ~/.updraft/updraft.yaml and
// /etc/updraft/updraft.yaml that exists
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".updraft", "updraft.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/updraft/updraft.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// LoadConfig builds the config from defaults, the config file, a .env file
// in the working directory and the environment, in increasing precedence
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	// A missing .env file is fine. Variables already set are not overridden
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(cfg, configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Process plugin environment variables
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func loadConfigFile(cfg *Config, configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if tempCfg.Config != nil {
		// Overlay config values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		if err := yaml.Unmarshal(configBytes, cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			if name, ok := tempCfg.Database.Blob["plugin"].(string); ok {
				cfg.BlobPlugin = name
			}
			mergePluginSection(pluginConfig, "blob", tempCfg.Database.Blob)
		}
		if tempCfg.Database.Metadata != nil {
			if name, ok := tempCfg.Database.Metadata["plugin"].(string); ok {
				cfg.MetadataPlugin = name
			}
			mergePluginSection(pluginConfig, "metadata", tempCfg.Database.Metadata)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// mergePluginSection adds the per-plugin maps of a database.blob or
// database.metadata section to pluginConfig. The plugin selector key is
// skipped
func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	typeName string,
	section map[string]any,
) {
	sectionConfig := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			sectionConfig[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			sectionConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				typeName,
				k,
				v,
			)
		}
	}
	if pluginConfig[typeName] == nil {
		pluginConfig[typeName] = sectionConfig
	} else {
		maps.Copy(pluginConfig[typeName], sectionConfig)
	}
}

func GetConfig() *Config {
	return globalConfig
}
