package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"moltcraft.dev/internal/protocol"
)

// Config is the server runtime configuration. Values load from an
// optional YAML file and may be overridden by environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"MOLTCRAFT_ADDR"`
	DataDir    string `yaml:"data_dir" env:"MOLTCRAFT_DATA_DIR"`

	Limits     Limits     `yaml:"limits"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

// Limits mirrors protocol.Limits for configuration purposes.
type Limits struct {
	BlockMaxDistance float64 `yaml:"block_max_distance" env:"MOLTCRAFT_BLOCK_MAX_DISTANCE"`
	BlockMinY        float64 `yaml:"block_min_y" env:"MOLTCRAFT_BLOCK_MIN_Y"`
	BlockMaxY        float64 `yaml:"block_max_y" env:"MOLTCRAFT_BLOCK_MAX_Y"`
	PosMaxDistance   float64 `yaml:"pos_max_distance" env:"MOLTCRAFT_POS_MAX_DISTANCE"`
	PosMinY          float64 `yaml:"pos_min_y" env:"MOLTCRAFT_POS_MIN_Y"`
	PosMaxY          float64 `yaml:"pos_max_y" env:"MOLTCRAFT_POS_MAX_Y"`
	NameMaxLen       int     `yaml:"name_max_len" env:"MOLTCRAFT_NAME_MAX_LEN"`
	MessageMaxLen    int     `yaml:"message_max_len" env:"MOLTCRAFT_MESSAGE_MAX_LEN"`
}

// RateLimits configures the per-origin sliding window. The block cap
// is enforced independently of the general cap.
type RateLimits struct {
	WindowMs   int `yaml:"window_ms" env:"MOLTCRAFT_RATE_WINDOW_MS"`
	GeneralMax int `yaml:"general_max" env:"MOLTCRAFT_RATE_GENERAL_MAX"`
	BlockMax   int `yaml:"block_max" env:"MOLTCRAFT_RATE_BLOCK_MAX"`
}

func Defaults() Config {
	l := protocol.DefaultLimits()
	return Config{
		ListenAddr: ":3005",
		DataDir:    "./data",
		Limits: Limits{
			BlockMaxDistance: l.BlockMaxDistance,
			BlockMinY:        l.BlockMinY,
			BlockMaxY:        l.BlockMaxY,
			PosMaxDistance:   l.PosMaxDistance,
			PosMinY:          l.PosMinY,
			PosMaxY:          l.PosMaxY,
			NameMaxLen:       l.NameMaxLen,
			MessageMaxLen:    l.MessageMaxLen,
		},
		RateLimits: RateLimits{
			WindowMs:   1000,
			GeneralMax: 20,
			BlockMax:   10,
		},
	}
}

// Load reads the config file at path (missing file falls back to
// defaults), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ProtocolLimits converts the configured bounds into the validation
// gate's Limits value.
func (c Config) ProtocolLimits() protocol.Limits {
	return protocol.Limits{
		BlockMaxDistance: c.Limits.BlockMaxDistance,
		BlockMinY:        c.Limits.BlockMinY,
		BlockMaxY:        c.Limits.BlockMaxY,
		PosMaxDistance:   c.Limits.PosMaxDistance,
		PosMinY:          c.Limits.PosMinY,
		PosMaxY:          c.Limits.PosMaxY,
		NameMaxLen:       c.Limits.NameMaxLen,
		MessageMaxLen:    c.Limits.MessageMaxLen,
	}
}
