package uom

import (
	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
)

const gramsPerKilogram = 1000

// ConvertCrossFamily converts qty expressed in from into to. Mass and volume
// meet through density in grams per millilitre; a density that is not
// positive counts as 1.
func ConvertCrossFamily(qty float64, from domain.Unit, to domain.Unit, density float64) float64 {
	switch {
	case from.Type == to.Type:
		return qty * from.Conversion
	case from.Type == domain.UnitTypeMass && to.Type == domain.UnitTypeVolume:
		grams := qty * from.Conversion
		if from.Short == "kg" {
			grams = qty * gramsPerKilogram
		}
		return MassToVolume(grams, effectiveDensity(density, from, to))
	case from.Type == domain.UnitTypeVolume && to.Type == domain.UnitTypeMass:
		grams := VolumeToMass(qty, effectiveDensity(density, from, to))
		if to.Short == "kg" {
			return grams / gramsPerKilogram
		}
		return grams
	default:
		return qty
	}
}

func MassToVolume(grams float64, density float64) float64 {
	if density <= 0 {
		density = 1
	}
	return grams / density
}

func VolumeToMass(millilitres float64, density float64) float64 {
	if density <= 0 {
		density = 1
	}
	return millilitres * density
}

func effectiveDensity(density float64, from domain.Unit, to domain.Unit) float64 {
	if density > 0 {
		return density
	}
	log.Warn().
		Str("from_unit_id", from.ID).
		Str("to_unit_id", to.ID).
		Float64("density", density).
		Msg("density not set for cross-family conversion, using 1")
	return 1
}
