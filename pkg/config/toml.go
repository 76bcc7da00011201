package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/smartcontractkit/chainlink-common/pkg/config"
)

const DefaultListenAddr = ":8899"

type TOMLConfig struct {
	ChainID *string
	// Do not access directly, use [IsEnabled]
	Enabled    *bool
	ListenAddr *string
	Chain
	Nodes Nodes
}

// NewDecodedTOMLConfig decodes rawConfig, fills defaults and validates the result.
func NewDecodedTOMLConfig(rawConfig string) (*TOMLConfig, error) {
	d := toml.NewDecoder(strings.NewReader(rawConfig))
	d.DisallowUnknownFields()

	var cfg TOMLConfig
	if err := d.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config toml: %w:\n\t%s", err, rawConfig)
	}

	cfg.SetDefaults()
	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid solana config: %w", err)
	}

	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("cannot create new chain with ID %s: chain is disabled", *cfg.ChainID)
	}
	return &cfg, nil
}

// LoadFile reads and decodes a TOML config file.
func LoadFile(path string) (*TOMLConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return NewDecodedTOMLConfig(string(b))
}

func (c *TOMLConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *TOMLConfig) SetDefaults() {
	c.Chain.SetDefaults()
	if c.ListenAddr == nil {
		c.ListenAddr = ptr(DefaultListenAddr)
	}
}

func (c *TOMLConfig) SetFrom(f *TOMLConfig) {
	if f.ChainID != nil {
		c.ChainID = f.ChainID
	}
	if f.Enabled != nil {
		c.Enabled = f.Enabled
	}
	if f.ListenAddr != nil {
		c.ListenAddr = f.ListenAddr
	}
	c.Chain.SetFrom(&f.Chain)
	c.Nodes.SetFrom(&f.Nodes)
}

func (c *TOMLConfig) ValidateConfig() (err error) {
	if c.ChainID == nil {
		err = errors.Join(err, config.ErrMissing{Name: "ChainID", Msg: "required for all chains"})
	} else if *c.ChainID == "" {
		err = errors.Join(err, config.ErrEmpty{Name: "ChainID", Msg: "required for all chains"})
	}

	if len(c.Nodes) == 0 {
		err = errors.Join(err, config.ErrMissing{Name: "Nodes", Msg: "must have at least one node"})
	} else {
		for i, node := range c.Nodes {
			if nodeErr := node.ValidateConfig(); nodeErr != nil {
				err = errors.Join(err, fmt.Errorf("Nodes[%d]: %w", i, nodeErr))
			}
		}
	}

	if c.ClientTTL == nil {
		err = errors.Join(err, config.ErrMissing{Name: "ClientTTL", Msg: "required"})
	}
	return errors.Join(err, c.TxSender.ValidateConfig())
}

func (c *TOMLConfig) TOMLString() (string, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
