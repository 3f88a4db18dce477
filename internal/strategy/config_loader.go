package strategy

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	TypeMartingale = "martingale"
	TypeSwapRSI    = "swap_rsi"
)

// Config selects a strategy and carries its parameters as raw YAML.
type Config struct {
	Type       string                 `yaml:"type"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// decodeParams re-encodes the loose parameter map into dst. Keys absent from
// the map keep the values already in dst.
func decodeParams(params map[string]interface{}, dst interface{}) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, dst)
}

// New builds the strategy named by cfg.Type.
func New(cfg Config, log *logrus.Entry) (Strategy, error) {
	switch cfg.Type {
	case TypeMartingale, "":
		p := DefaultMartingaleParams()
		if err := decodeParams(cfg.Parameters, &p); err != nil {
			return nil, fmt.Errorf("martingale parameters: %w", err)
		}
		s, err := NewMartingaleLong(p, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeSwapRSI:
		p := DefaultSwapRSIParams()
		if err := decodeParams(cfg.Parameters, &p); err != nil {
			return nil, fmt.Errorf("swap_rsi parameters: %w", err)
		}
		return NewSwapRSI(p, log), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", cfg.Type)
	}
}
