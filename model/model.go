package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// ProviderAmount converts an amount held in minor currency units (e.g. cents)
// into the provider's native base units. Blockchain providers settle in
// integer base units with more decimal places than fiat minor units, so the
// conversion shifts the decimal point rather than multiplying floats.
//
// Example: 4500 cents with minorUnits=2 and providerDecimals=7 yields
// 450000000 native units.
func ProviderAmount(minor int64, minorUnits, providerDecimals int32) decimal.Decimal {
	return decimal.New(minor, -minorUnits).Shift(providerDecimals)
}

// MinorFromProvider is the inverse of ProviderAmount. It truncates toward
// zero; provider dust below one minor unit is never credited.
func MinorFromProvider(native decimal.Decimal, minorUnits, providerDecimals int32) int64 {
	return native.Shift(-providerDecimals).Shift(minorUnits).Truncate(0).IntPart()
}
