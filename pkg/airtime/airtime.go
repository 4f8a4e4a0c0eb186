// Package airtime implements the LoRa PHY time-on-air calculation used to
// attribute channel occupancy to received uplink frames.
package airtime

import (
	"fmt"
	"math"
)

// PHY constants from the LoRa modem designer's guide.
const (
	symbolDurationThresholdMs = 16
	fixedPreambleSymbols      = 4.25
	payloadCRCBits            = 16
	headerPlusCRCBits         = 20
	spreadingFactorLength     = 4
	codingRateLength          = 4
	bitsPerByte               = 8
)

// CalculationError indicates invalid physical-layer inputs.
type CalculationError struct {
	msg string
}

func (e *CalculationError) Error() string {
	return "airtime calculation: " + e.msg
}

// Params holds the radio parameters of one LoRa transmission.
type Params struct {
	PayloadSize     int     // PHY payload size in bytes
	SpreadingFactor int     // SF7..SF12
	BandwidthHz     float64 // e.g. 125000
	CodingRate      int     // coding rate index, 1 for 4/5
	PreambleSymbols int     // typically 8
	AutoLDRO        bool    // derive low-data-rate optimization from symbol time
	LDRO            bool    // explicit LDRO flag, used when AutoLDRO is false
	ExplicitHeader  bool
	CRCEnabled      bool
}

// DefaultParams returns the parameter set used for standard LoRaWAN uplinks:
// 125 kHz bandwidth, coding rate 4/5, 8 preamble symbols, explicit header,
// CRC on, automatic low-data-rate optimization.
func DefaultParams(payloadSize, spreadingFactor int) Params {
	return Params{
		PayloadSize:     payloadSize,
		SpreadingFactor: spreadingFactor,
		BandwidthHz:     125000,
		CodingRate:      1,
		PreambleSymbols: 8,
		AutoLDRO:        true,
		ExplicitHeader:  true,
		CRCEnabled:      true,
	}
}

// Compute returns the on-air duration of the transmission in milliseconds,
// rounded to three decimals.
func Compute(p Params) (float64, error) {
	if p.PayloadSize <= 0 {
		return 0, &CalculationError{msg: fmt.Sprintf("payload size must be positive, got %d", p.PayloadSize)}
	}
	if p.SpreadingFactor <= 0 {
		return 0, &CalculationError{msg: fmt.Sprintf("spreading factor must be positive, got %d", p.SpreadingFactor)}
	}

	symbolRate := p.BandwidthHz / math.Pow(2, float64(p.SpreadingFactor))
	symbolTime := 1000 / symbolRate
	preambleTime := (float64(p.PreambleSymbols) + fixedPreambleSymbols) * symbolTime

	ldro := 0
	if (p.AutoLDRO && symbolTime > symbolDurationThresholdMs) || (!p.AutoLDRO && p.LDRO) {
		ldro = 1
	}

	implicitHeader := 0
	if !p.ExplicitHeader {
		implicitHeader = 1
	}

	crc := 0
	if p.CRCEnabled {
		crc = 1
	}

	numerator := float64(bitsPerByte*p.PayloadSize -
		spreadingFactorLength*p.SpreadingFactor + 28 +
		payloadCRCBits*crc - headerPlusCRCBits*implicitHeader)
	denominator := spreadingFactorLength * (float64(p.SpreadingFactor) - 2*float64(ldro))

	payloadSymbols := 8 + math.Max(math.Ceil(numerator/denominator)*float64(p.CodingRate+codingRateLength), 0)
	payloadTime := payloadSymbols * symbolTime

	return math.Round((preambleTime+payloadTime)*1000) / 1000, nil
}
