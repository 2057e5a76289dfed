package record

import (
	"math"
	"time"

	"example.com/healthconnect/internal/errs"
)

func inRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return errs.InvalidArgument("%s must be in [%g, %g], got %g", field, lo, hi, v)
	}
	return nil
}

func sampleInside(field string, i int, t, start, end time.Time) error {
	if t.IsZero() {
		return errs.InvalidArgument("%s[%d] has no time", field, i)
	}
	if t.Before(start) || t.After(end) {
		return errs.InvalidArgument("%s[%d] at %s is outside [%s, %s]", field, i,
			t.Format(time.RFC3339Nano), start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano))
	}
	return nil
}

func (d *StepsData) validate(time.Time, time.Time) error {
	return inRange("count", float64(d.Count), 1, 1_000_000)
}

func (d *DistanceData) validate(time.Time, time.Time) error {
	return inRange("distance (m)", d.Distance.InMeters(), 0, 1_000_000)
}

func (d *ActiveCaloriesBurnedData) validate(time.Time, time.Time) error {
	return inRange("energy (kcal)", d.Energy.InKilocalories(), 0, 1_000_000)
}

func (d *TotalCaloriesBurnedData) validate(time.Time, time.Time) error {
	return inRange("energy (kcal)", d.Energy.InKilocalories(), 0, 1_000_000)
}

func (d *SpeedData) validate(start, end time.Time) error {
	for i, s := range d.Samples {
		if err := sampleInside("samples", i, s.Time, start, end); err != nil {
			return err
		}
		v := s.Speed.InMetersPerSecond()
		if math.IsNaN(v) || v < 0 || v >= 1_000_000 {
			return errs.InvalidArgument("samples[%d] speed must be in [0, 1e+06) m/s, got %g", i, v)
		}
	}
	return nil
}

func (d *StepsCadenceData) validate(start, end time.Time) error {
	for i, s := range d.Samples {
		if err := sampleInside("samples", i, s.Time, start, end); err != nil {
			return err
		}
		if err := inRange("cadence (steps/min)", s.Rate, 0, 10_000); err != nil {
			return err
		}
	}
	return nil
}

func (d *PowerData) validate(start, end time.Time) error {
	for i, s := range d.Samples {
		if err := sampleInside("samples", i, s.Time, start, end); err != nil {
			return err
		}
		if err := inRange("power (W)", s.Power.InWatts(), 0, 100_000); err != nil {
			return err
		}
	}
	return nil
}

func (d *WeightData) validate(time.Time, time.Time) error {
	return inRange("weight (kg)", d.Weight.InKilograms(), 0, 1000)
}

func (d *HeightData) validate(time.Time, time.Time) error {
	return inRange("height (m)", d.Height.InMeters(), 0, 3)
}

func (d *BasalMetabolicRateData) validate(time.Time, time.Time) error {
	return inRange("basal metabolic rate (kcal/day)", d.Rate.InKilocaloriesPerDay(), 0, 10_000)
}

func (d *MenstruationFlowData) validate(time.Time, time.Time) error {
	if d.Flow < FlowUnknown || d.Flow > FlowHeavy {
		return errs.InvalidArgument("unknown flow %d", d.Flow)
	}
	return nil
}

func (*MenstruationPeriodData) validate(time.Time, time.Time) error { return nil }

func (d *HydrationData) validate(time.Time, time.Time) error {
	return inRange("volume (L)", d.Volume.InLiters(), 0, 100)
}

func (d *SleepSessionData) validate(start, end time.Time) error {
	for i, st := range d.Stages {
		if st.End.Before(st.Start) {
			return errs.InvalidArgument("stages[%d] ends before it starts", i)
		}
		if err := sampleInside("stages", i, st.Start, start, end); err != nil {
			return err
		}
		if err := sampleInside("stages", i, st.End, start, end); err != nil {
			return err
		}
	}
	return nil
}

func (d *HeartRateData) validate(start, end time.Time) error {
	for i, s := range d.Samples {
		if err := sampleInside("samples", i, s.Time, start, end); err != nil {
			return err
		}
		if err := inRange("heart rate (bpm)", float64(s.BeatsPerMinute), 1, 300); err != nil {
			return err
		}
	}
	return nil
}

func (d *RestingHeartRateData) validate(time.Time, time.Time) error {
	return inRange("resting heart rate (bpm)", float64(d.BeatsPerMinute), 0, 300)
}

func (d *BloodPressureData) validate(time.Time, time.Time) error {
	if err := inRange("systolic (mmHg)", d.Systolic.InMillimetersOfMercury(), 20, 200); err != nil {
		return err
	}
	return inRange("diastolic (mmHg)", d.Diastolic.InMillimetersOfMercury(), 10, 180)
}

func (d *BloodGlucoseData) validate(time.Time, time.Time) error {
	return inRange("blood glucose (mmol/L)", d.Level.InMillimolesPerLiter(), 0, 50)
}

func (d *BodyTemperatureData) validate(time.Time, time.Time) error {
	return inRange("body temperature (C)", d.Temperature.InCelsius(), 0, 100)
}

func (d *OxygenSaturationData) validate(time.Time, time.Time) error {
	return inRange("oxygen saturation (%)", d.Percentage.Value(), 0, 100)
}
