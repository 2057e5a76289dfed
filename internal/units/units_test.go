package units

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnergyConversions(t *testing.T) {
	e := Kilocalories(1)
	require.InDelta(t, 4184.0, e.InJoules(), 1e-9)
	require.InDelta(t, 1000.0, e.InCalories(), 1e-9)
	require.InDelta(t, 4.184, e.InKilojoules(), 1e-9)

	sum := Joules(74.0).Add(Joules(100.5)).Add(Joules(45.5))
	require.Equal(t, 220.0, sum.InJoules())
}

func TestLengthAndVelocityConversions(t *testing.T) {
	require.InDelta(t, 1609.344, Miles(1).InMeters(), 1e-9)
	require.InDelta(t, 12.0, Feet(1).InInches(), 1e-9)
	require.InDelta(t, 36.0, MetersPerSecond(10).InKilometersPerHour(), 1e-9)
	require.True(t, Meters(1).Less(Kilometers(1)))
}

func TestMassTemperatureGlucose(t *testing.T) {
	require.InDelta(t, 2.20462262, Kilograms(1).InPounds(), 1e-6)
	require.InDelta(t, 1000.0, Grams(1).InMilligrams(), 1e-9)
	require.InDelta(t, 37.0, Fahrenheit(98.6).InCelsius(), 1e-9)
	require.InDelta(t, 310.15, Celsius(37).InKelvin(), 1e-9)
	require.InDelta(t, 90.0, MillimolesPerLiter(5).InMilligramsPerDeciliter(), 1e-9)
	require.InDelta(t, 250.0, Milliliters(250).InMilliliters(), 1e-9)
}

func TestJSONUsesCanonicalNumber(t *testing.T) {
	payload := struct {
		Energy Energy `json:"energy"`
		Length Length `json:"length"`
	}{Energy: Kilojoules(1.5), Length: Kilometers(2)}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"energy":1500,"length":2000}`, string(raw))

	var decoded struct {
		Energy Energy `json:"energy"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"energy":45.5}`), &decoded))
	require.Equal(t, 45.5, decoded.Energy.InJoules())
}
