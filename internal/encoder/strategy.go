package encoder

import (
	"github.com/amixaam/transcoder-win/pkg/models"
)

// StrategyConfig selects the encoder ids used to build the fallback chain.
type StrategyConfig struct {
	Hardware8Bit   string
	Hardware10Bit  string
	Software8Bit   string
	Software10Bit  string
	EnableHardware bool
	ExtraFlags     []string
}

// StrategiesFor builds the ordered fallback chain for one source file. The
// 8-bit vs 10-bit encoder variant is fixed here, once, from the color
// profile; the chain itself is always hardware with hardware decode, then
// hardware without it, then software.
func StrategiesFor(profile models.ColorProfile, cfg StrategyConfig) []models.EncoderStrategy {
	hw := cfg.Hardware10Bit
	sw := cfg.Software10Bit
	if profile.EightBit() {
		hw = cfg.Hardware8Bit
		sw = cfg.Software8Bit
	}

	return []models.EncoderStrategy{
		{
			Name:           "hardware",
			Encoder:        hw,
			HardwareDecode: true,
			ExtraFlags:     cfg.ExtraFlags,
			Enabled:        cfg.EnableHardware,
		},
		{
			Name:           "hardware-sw-decode",
			Encoder:        hw,
			HardwareDecode: false,
			ExtraFlags:     cfg.ExtraFlags,
			Enabled:        cfg.EnableHardware,
		},
		{
			Name:           "software",
			Encoder:        sw,
			HardwareDecode: false,
			ExtraFlags:     cfg.ExtraFlags,
			Enabled:        true,
		},
	}
}
