// Package units defines the physical quantity value types carried by health records.
//
// Every type stores a single canonical float64 (joules, meters, grams, ...) and
// exposes named factories and accessors for the other supported units. Values
// marshal to JSON as their canonical number.
package units

import (
	"encoding/json"
	"strconv"
)

const (
	joulesPerCalorie    = 4.184
	metersPerMile       = 1609.344
	metersPerInch       = 0.0254
	metersPerFoot       = 0.3048
	gramsPerPound       = 453.59237
	gramsPerOunce       = 28.349523125
	wattsPerKcalPerDay  = 0.0484259259
	mgdlPerMmol         = 18.0
	litersPerFluidOzUS  = 0.0295735295625
	metersPerSecPerKmh  = 1 / 3.6
	metersPerSecPerMph  = 0.44704
	kelvinOffsetCelsius = 273.15
)

func marshalCanonical(v float64) ([]byte, error) {
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func unmarshalCanonical(data []byte, dst *float64) error {
	return json.Unmarshal(data, dst)
}

func format(v float64, suffix string) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + suffix
}

// Energy is stored in joules.
type Energy struct{ joules float64 }

// Joules constructs an Energy from joules.
func Joules(v float64) Energy { return Energy{joules: v} }

// Kilojoules constructs an Energy from kilojoules.
func Kilojoules(v float64) Energy { return Energy{joules: v * 1000} }

// Calories constructs an Energy from small calories.
func Calories(v float64) Energy { return Energy{joules: v * joulesPerCalorie} }

// Kilocalories constructs an Energy from kilocalories.
func Kilocalories(v float64) Energy { return Energy{joules: v * 1000 * joulesPerCalorie} }

func (e Energy) InJoules() float64       { return e.joules }
func (e Energy) InKilojoules() float64   { return e.joules / 1000 }
func (e Energy) InCalories() float64     { return e.joules / joulesPerCalorie }
func (e Energy) InKilocalories() float64 { return e.joules / joulesPerCalorie / 1000 }
func (e Energy) Add(o Energy) Energy     { return Energy{joules: e.joules + o.joules} }
func (e Energy) Less(o Energy) bool      { return e.joules < o.joules }
func (e Energy) String() string          { return format(e.joules, "J") }

func (e Energy) MarshalJSON() ([]byte, error)     { return marshalCanonical(e.joules) }
func (e *Energy) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &e.joules) }

// Length is stored in meters.
type Length struct{ meters float64 }

func Meters(v float64) Length     { return Length{meters: v} }
func Kilometers(v float64) Length { return Length{meters: v * 1000} }
func Miles(v float64) Length      { return Length{meters: v * metersPerMile} }
func Inches(v float64) Length     { return Length{meters: v * metersPerInch} }
func Feet(v float64) Length       { return Length{meters: v * metersPerFoot} }

func (l Length) InMeters() float64     { return l.meters }
func (l Length) InKilometers() float64 { return l.meters / 1000 }
func (l Length) InMiles() float64      { return l.meters / metersPerMile }
func (l Length) InInches() float64     { return l.meters / metersPerInch }
func (l Length) InFeet() float64       { return l.meters / metersPerFoot }
func (l Length) Add(o Length) Length   { return Length{meters: l.meters + o.meters} }
func (l Length) Less(o Length) bool    { return l.meters < o.meters }
func (l Length) String() string        { return format(l.meters, "m") }

func (l Length) MarshalJSON() ([]byte, error)     { return marshalCanonical(l.meters) }
func (l *Length) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &l.meters) }

// Mass is stored in grams.
type Mass struct{ grams float64 }

func Grams(v float64) Mass      { return Mass{grams: v} }
func Kilograms(v float64) Mass  { return Mass{grams: v * 1000} }
func Milligrams(v float64) Mass { return Mass{grams: v / 1000} }
func Micrograms(v float64) Mass { return Mass{grams: v / 1_000_000} }
func Pounds(v float64) Mass     { return Mass{grams: v * gramsPerPound} }
func Ounces(v float64) Mass     { return Mass{grams: v * gramsPerOunce} }

func (m Mass) InGrams() float64      { return m.grams }
func (m Mass) InKilograms() float64  { return m.grams / 1000 }
func (m Mass) InMilligrams() float64 { return m.grams * 1000 }
func (m Mass) InMicrograms() float64 { return m.grams * 1_000_000 }
func (m Mass) InPounds() float64     { return m.grams / gramsPerPound }
func (m Mass) InOunces() float64     { return m.grams / gramsPerOunce }
func (m Mass) Add(o Mass) Mass       { return Mass{grams: m.grams + o.grams} }
func (m Mass) Less(o Mass) bool      { return m.grams < o.grams }
func (m Mass) String() string        { return format(m.grams, "g") }

func (m Mass) MarshalJSON() ([]byte, error)     { return marshalCanonical(m.grams) }
func (m *Mass) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &m.grams) }

// Power is stored in watts.
type Power struct{ watts float64 }

func Watts(v float64) Power              { return Power{watts: v} }
func KilocaloriesPerDay(v float64) Power { return Power{watts: v * wattsPerKcalPerDay} }

func (p Power) InWatts() float64              { return p.watts }
func (p Power) InKilocaloriesPerDay() float64 { return p.watts / wattsPerKcalPerDay }
func (p Power) Add(o Power) Power             { return Power{watts: p.watts + o.watts} }
func (p Power) Less(o Power) bool             { return p.watts < o.watts }
func (p Power) String() string                { return format(p.watts, "W") }

func (p Power) MarshalJSON() ([]byte, error)     { return marshalCanonical(p.watts) }
func (p *Power) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &p.watts) }

// Pressure is stored in millimeters of mercury.
type Pressure struct{ mmHg float64 }

func MillimetersOfMercury(v float64) Pressure { return Pressure{mmHg: v} }

func (p Pressure) InMillimetersOfMercury() float64 { return p.mmHg }
func (p Pressure) Add(o Pressure) Pressure         { return Pressure{mmHg: p.mmHg + o.mmHg} }
func (p Pressure) Less(o Pressure) bool            { return p.mmHg < o.mmHg }
func (p Pressure) String() string                  { return format(p.mmHg, "mmHg") }

func (p Pressure) MarshalJSON() ([]byte, error)     { return marshalCanonical(p.mmHg) }
func (p *Pressure) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &p.mmHg) }

// Temperature is stored in degrees Celsius.
type Temperature struct{ celsius float64 }

func Celsius(v float64) Temperature    { return Temperature{celsius: v} }
func Fahrenheit(v float64) Temperature { return Temperature{celsius: (v - 32) * 5 / 9} }
func Kelvin(v float64) Temperature     { return Temperature{celsius: v - kelvinOffsetCelsius} }

func (t Temperature) InCelsius() float64    { return t.celsius }
func (t Temperature) InFahrenheit() float64 { return t.celsius*9/5 + 32 }
func (t Temperature) InKelvin() float64     { return t.celsius + kelvinOffsetCelsius }
func (t Temperature) Less(o Temperature) bool {
	return t.celsius < o.celsius
}
func (t Temperature) String() string { return format(t.celsius, "°C") }

func (t Temperature) MarshalJSON() ([]byte, error)     { return marshalCanonical(t.celsius) }
func (t *Temperature) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &t.celsius) }

// Percentage is a value in the closed range 0..100 once validated by the owning record.
type Percentage struct{ percent float64 }

func Percent(v float64) Percentage { return Percentage{percent: v} }

func (p Percentage) Value() float64         { return p.percent }
func (p Percentage) Less(o Percentage) bool { return p.percent < o.percent }
func (p Percentage) String() string         { return format(p.percent, "%") }
func (p Percentage) MarshalJSON() ([]byte, error) {
	return marshalCanonical(p.percent)
}
func (p *Percentage) UnmarshalJSON(data []byte) error {
	return unmarshalCanonical(data, &p.percent)
}

// Velocity is stored in meters per second.
type Velocity struct{ mps float64 }

func MetersPerSecond(v float64) Velocity   { return Velocity{mps: v} }
func KilometersPerHour(v float64) Velocity { return Velocity{mps: v * metersPerSecPerKmh} }
func MilesPerHour(v float64) Velocity      { return Velocity{mps: v * metersPerSecPerMph} }

func (v Velocity) InMetersPerSecond() float64   { return v.mps }
func (v Velocity) InKilometersPerHour() float64 { return v.mps / metersPerSecPerKmh }
func (v Velocity) InMilesPerHour() float64      { return v.mps / metersPerSecPerMph }
func (v Velocity) Add(o Velocity) Velocity      { return Velocity{mps: v.mps + o.mps} }
func (v Velocity) Less(o Velocity) bool         { return v.mps < o.mps }
func (v Velocity) String() string               { return format(v.mps, "m/s") }

func (v Velocity) MarshalJSON() ([]byte, error)     { return marshalCanonical(v.mps) }
func (v *Velocity) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &v.mps) }

// BloodGlucose is stored in millimoles per liter.
type BloodGlucose struct{ mmolL float64 }

func MillimolesPerLiter(v float64) BloodGlucose     { return BloodGlucose{mmolL: v} }
func MilligramsPerDeciliter(v float64) BloodGlucose { return BloodGlucose{mmolL: v / mgdlPerMmol} }

func (b BloodGlucose) InMillimolesPerLiter() float64     { return b.mmolL }
func (b BloodGlucose) InMilligramsPerDeciliter() float64 { return b.mmolL * mgdlPerMmol }
func (b BloodGlucose) Less(o BloodGlucose) bool          { return b.mmolL < o.mmolL }
func (b BloodGlucose) String() string                    { return format(b.mmolL, "mmol/L") }

func (b BloodGlucose) MarshalJSON() ([]byte, error)     { return marshalCanonical(b.mmolL) }
func (b *BloodGlucose) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &b.mmolL) }

// Volume is stored in liters.
type Volume struct{ liters float64 }

func Liters(v float64) Volume        { return Volume{liters: v} }
func Milliliters(v float64) Volume   { return Volume{liters: v / 1000} }
func FluidOuncesUS(v float64) Volume { return Volume{liters: v * litersPerFluidOzUS} }

func (v Volume) InLiters() float64        { return v.liters }
func (v Volume) InMilliliters() float64   { return v.liters * 1000 }
func (v Volume) InFluidOuncesUS() float64 { return v.liters / litersPerFluidOzUS }
func (v Volume) Add(o Volume) Volume      { return Volume{liters: v.liters + o.liters} }
func (v Volume) Less(o Volume) bool       { return v.liters < o.liters }
func (v Volume) String() string           { return format(v.liters, "L") }

func (v Volume) MarshalJSON() ([]byte, error)     { return marshalCanonical(v.liters) }
func (v *Volume) UnmarshalJSON(data []byte) error { return unmarshalCanonical(data, &v.liters) }
