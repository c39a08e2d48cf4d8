package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

const EnvPrefix = "ACCOUNT_REGISTRY"

//go:embed config.yaml
var EmbeddedConfigYAML []byte

type ServerSettings struct {
	Host           string
	Port           string
	AllowedOrigins []string
	AdminSecret    string
	AdminTokenTTL  time.Duration
}

type ChainSettings struct {
	ChainID int64
	// Alloc maps hex addresses to genesis balances in wei.
	Alloc map[string]string
}

type RegistrySettings struct {
	Index            int64
	AuthorizationTTL time.Duration
}

type KeystoreSettings struct {
	Path        string
	PasswordEnv string
}

type StorageSettings struct {
	Path string
}

type Config struct {
	Server   *ServerSettings
	Chain    *ChainSettings
	Registry *RegistrySettings
	Keystore *KeystoreSettings
	Storage  *StorageSettings
}

func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".config", "account-registry"),
		filepath.Join(".", "config"),
		".",
	}
	return LoadFrom(paths)
}

// LoadFrom layers, lowest first: the embedded defaults, every config.yaml
// found in paths, then ACCOUNT_REGISTRY_* environment variables.
func LoadFrom(paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}

	for _, dir := range paths {
		file := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(file); err != nil {
			continue
		}
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server == nil || c.Chain == nil || c.Registry == nil || c.Keystore == nil || c.Storage == nil {
		return errors.New("config: missing section")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("config: Server.Port is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("config: invalid Chain.ChainID %d", c.Chain.ChainID)
	}
	if c.Registry.Index < 0 {
		return fmt.Errorf("config: invalid Registry.Index %d", c.Registry.Index)
	}
	if c.Registry.AuthorizationTTL < 0 {
		return errors.New("config: Registry.AuthorizationTTL must not be negative")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("config: Storage.Path is required")
	}
	if _, err := c.GenesisAlloc(); err != nil {
		return err
	}
	return nil
}

func (c *Config) ChainID() *big.Int {
	return big.NewInt(c.Chain.ChainID)
}

func (c *Config) RegistryIndex() *big.Int {
	return big.NewInt(c.Registry.Index)
}

func (c *Config) GenesisAlloc() (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(c.Chain.Alloc))
	for addr, bal := range c.Chain.Alloc {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("config: Chain.Alloc has invalid address %q", addr)
		}
		amount, err := uint256.FromDecimal(strings.TrimSpace(bal))
		if err != nil {
			return nil, fmt.Errorf("config: Chain.Alloc[%s]: %w", addr, err)
		}
		out[common.HexToAddress(addr)] = amount
	}
	return out, nil
}

// AdminSecret is the admin token signing key. It must be configured before
// the admin routes can be used.
func (c *Config) AdminSecret() ([]byte, error) {
	s := strings.TrimSpace(c.Server.AdminSecret)
	if len(s) < 16 {
		return nil, errors.New("config: Server.AdminSecret must be at least 16 characters")
	}
	return []byte(s), nil
}
