package config

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Simplici0/merchcalc/internal/pricing"
)

//go:embed tariffs.default.yaml
var defaultTariffs []byte

// FactoryEntry is a supplier listed in the tariff file.
type FactoryEntry struct {
	Name            string  `mapstructure:"name"`
	Contact         string  `mapstructure:"contact"`
	SampleDays      int     `mapstructure:"sample_days"`
	ProductionDays  int     `mapstructure:"production_days"`
	SamplePriceYuan float64 `mapstructure:"sample_price_yuan"`
}

// Catalog is the static reference data: the rate table and the factory list.
type Catalog struct {
	Tariffs   pricing.Tariffs
	Factories []FactoryEntry
}

type tariffFile struct {
	FX         pricing.FX         `mapstructure:"fx"`
	Overheads  pricing.Overheads  `mapstructure:"overheads"`
	Categories []pricing.Category `mapstructure:"categories"`
	Factories  []FactoryEntry     `mapstructure:"factories"`
}

// LoadCatalog reads the built-in tariffs, overlays the file at path when
// given, and applies FX_YUAN_RUB / FX_USD_RUB from the environment.
// Top-level lists in the file replace the built-in ones.
func LoadCatalog(path string) (Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultTariffs)); err != nil {
		return Catalog{}, fmt.Errorf("read default tariffs: %w", err)
	}

	if path != "" {
		file := viper.New()
		file.SetConfigFile(path)
		if err := file.ReadInConfig(); err != nil {
			return Catalog{}, fmt.Errorf("read tariffs file %s: %w", path, err)
		}
		if err := v.MergeConfigMap(file.AllSettings()); err != nil {
			return Catalog{}, fmt.Errorf("merge tariffs file %s: %w", path, err)
		}
	}

	if err := v.BindEnv("fx.yuan_rub", "FX_YUAN_RUB"); err != nil {
		return Catalog{}, fmt.Errorf("bind FX_YUAN_RUB: %w", err)
	}
	if err := v.BindEnv("fx.usd_rub", "FX_USD_RUB"); err != nil {
		return Catalog{}, fmt.Errorf("bind FX_USD_RUB: %w", err)
	}

	var f tariffFile
	if err := v.Unmarshal(&f); err != nil {
		return Catalog{}, fmt.Errorf("decode tariffs: %w", err)
	}

	tariffs, err := pricing.NewTariffs(f.Categories, f.FX, f.Overheads)
	if err != nil {
		return Catalog{}, fmt.Errorf("build tariffs: %w", err)
	}
	return Catalog{Tariffs: tariffs, Factories: f.Factories}, nil
}
