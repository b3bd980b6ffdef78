package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ListenAddr string `yaml:"listen_addr"`

	// Interaction range for trading, in blocks (Chebyshev).
	InteractionRange int `yaml:"interaction_range"`

	Inventory  Inventory  `yaml:"inventory"`
	RateLimits RateLimits `yaml:"rate_limits"`

	// Items granted to every agent on join, item id -> quantity.
	StarterItems map[string]int `yaml:"starter_items"`
}

type Inventory struct {
	BackpackSlots int `yaml:"backpack_slots"`
	StorageSlots  int `yaml:"storage_slots"`
	HotbarSlots   int `yaml:"hotbar_slots"`
	StackLimit    int `yaml:"stack_limit"`
}

type RateLimits struct {
	RequestWindowSeconds int `yaml:"request_window_seconds"`
	RequestMax           int `yaml:"request_max"`
}

func Defaults() Tuning {
	return Tuning{
		ListenAddr:       ":8080",
		InteractionRange: 5,
		Inventory: Inventory{
			BackpackSlots: 24,
			StorageSlots:  12,
			HotbarSlots:   8,
			StackLimit:    64,
		},
		RateLimits: RateLimits{
			RequestWindowSeconds: 10,
			RequestMax:           3,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
