package record

import (
	"time"

	"example.com/healthconnect/internal/units"
)

// Data is the kind-specific payload of a record. The set of implementations
// is closed.
type Data interface {
	Kind() Kind
	validate(start, end time.Time) error
	normalize()
}

// StepsData counts steps taken over an interval.
type StepsData struct {
	Count int64 `json:"count"`
}

// DistanceData is the distance covered over an interval.
type DistanceData struct {
	Distance units.Length `json:"distance"`
}

// ActiveCaloriesBurnedData is energy burned by activity, excluding basal metabolism.
type ActiveCaloriesBurnedData struct {
	Energy units.Energy `json:"energy"`
}

// TotalCaloriesBurnedData is all energy burned over an interval.
type TotalCaloriesBurnedData struct {
	Energy units.Energy `json:"energy"`
}

// SpeedSample is one speed reading inside a SpeedData series.
type SpeedSample struct {
	Time  time.Time      `json:"time"`
	Speed units.Velocity `json:"speed"`
}

// SpeedData is a series of speed readings.
type SpeedData struct {
	Samples []SpeedSample `json:"samples"`
}

// StepsCadenceSample is one cadence reading in steps per minute.
type StepsCadenceSample struct {
	Time time.Time `json:"time"`
	Rate float64   `json:"rate"`
}

// StepsCadenceData is a series of step cadence readings.
type StepsCadenceData struct {
	Samples []StepsCadenceSample `json:"samples"`
}

// PowerSample is one power reading inside a PowerData series.
type PowerSample struct {
	Time  time.Time   `json:"time"`
	Power units.Power `json:"power"`
}

// PowerData is a series of power readings.
type PowerData struct {
	Samples []PowerSample `json:"samples"`
}

// WeightData is a body weight measurement.
type WeightData struct {
	Weight units.Mass `json:"weight"`
}

// HeightData is a body height measurement.
type HeightData struct {
	Height units.Length `json:"height"`
}

// BasalMetabolicRateData is the energy rate used at rest.
type BasalMetabolicRateData struct {
	Rate units.Power `json:"rate"`
}

// Flow is the menstruation flow intensity.
type Flow int

const (
	FlowUnknown Flow = iota
	FlowLight
	FlowMedium
	FlowHeavy
)

// MenstruationFlowData records flow intensity at an instant.
type MenstruationFlowData struct {
	Flow Flow `json:"flow"`
}

// MenstruationPeriodData marks an interval as a menstruation period.
type MenstruationPeriodData struct{}

// HydrationData is the volume of water drunk over an interval.
type HydrationData struct {
	Volume units.Volume `json:"volume"`
}

// SleepStageType classifies one span of a sleep session.
type SleepStageType int

const (
	SleepStageUnknown SleepStageType = iota
	SleepStageAwake
	SleepStageSleeping
	SleepStageOutOfBed
	SleepStageLight
	SleepStageDeep
	SleepStageREM
)

// SleepStage is one span of a sleep session.
type SleepStage struct {
	Start time.Time      `json:"start"`
	End   time.Time      `json:"end"`
	Stage SleepStageType `json:"stage"`
}

// SleepSessionData is a sleep session with optional stages.
type SleepSessionData struct {
	Title  string       `json:"title,omitempty"`
	Notes  string       `json:"notes,omitempty"`
	Stages []SleepStage `json:"stages"`
}

// HeartRateSample is one heart rate reading in beats per minute.
type HeartRateSample struct {
	Time           time.Time `json:"time"`
	BeatsPerMinute int64     `json:"bpm"`
}

// HeartRateData is a series of heart rate readings.
type HeartRateData struct {
	Samples []HeartRateSample `json:"samples"`
}

// RestingHeartRateData is a resting heart rate measurement.
type RestingHeartRateData struct {
	BeatsPerMinute int64 `json:"bpm"`
}

// BodyPosition is the posture during a blood pressure reading.
type BodyPosition int

const (
	BodyPositionUnknown BodyPosition = iota
	BodyPositionStandingUp
	BodyPositionSittingDown
	BodyPositionLyingDown
	BodyPositionReclining
)

// MeasurementLocation is where on the body a reading was taken.
type MeasurementLocation int

const (
	MeasurementLocationUnknown MeasurementLocation = iota
	MeasurementLocationLeftWrist
	MeasurementLocationRightWrist
	MeasurementLocationLeftUpperArm
	MeasurementLocationRightUpperArm
	MeasurementLocationMouth
	MeasurementLocationForehead
	MeasurementLocationArmpit
	MeasurementLocationFinger
	MeasurementLocationRectum
	MeasurementLocationEar
)

// BloodPressureData is a blood pressure reading.
type BloodPressureData struct {
	Systolic            units.Pressure      `json:"systolic"`
	Diastolic           units.Pressure      `json:"diastolic"`
	BodyPosition        BodyPosition        `json:"body_position"`
	MeasurementLocation MeasurementLocation `json:"measurement_location"`
}

// SpecimenSource is the fluid a glucose reading was taken from.
type SpecimenSource int

const (
	SpecimenSourceUnknown SpecimenSource = iota
	SpecimenSourceInterstitialFluid
	SpecimenSourceCapillaryBlood
	SpecimenSourcePlasma
	SpecimenSourceSerum
	SpecimenSourceTears
	SpecimenSourceWholeBlood
)

// RelationToMeal places a glucose reading relative to a meal.
type RelationToMeal int

const (
	RelationToMealUnknown RelationToMeal = iota
	RelationToMealGeneral
	RelationToMealFasting
	RelationToMealBeforeMeal
	RelationToMealAfterMeal
)

// MealType names the meal a reading relates to.
type MealType int

const (
	MealTypeUnknown MealType = iota
	MealTypeBreakfast
	MealTypeLunch
	MealTypeDinner
	MealTypeSnack
)

// BloodGlucoseData is a blood glucose reading.
type BloodGlucoseData struct {
	Level          units.BloodGlucose `json:"level"`
	SpecimenSource SpecimenSource     `json:"specimen_source"`
	RelationToMeal RelationToMeal     `json:"relation_to_meal"`
	MealType       MealType           `json:"meal_type"`
}

// BodyTemperatureData is a body temperature reading.
type BodyTemperatureData struct {
	Temperature         units.Temperature   `json:"temperature"`
	MeasurementLocation MeasurementLocation `json:"measurement_location"`
}

// OxygenSaturationData is a blood oxygen saturation reading.
type OxygenSaturationData struct {
	Percentage units.Percentage `json:"percentage"`
}

func (*StepsData) Kind() Kind                { return KindSteps }
func (*DistanceData) Kind() Kind             { return KindDistance }
func (*ActiveCaloriesBurnedData) Kind() Kind { return KindActiveCaloriesBurned }
func (*TotalCaloriesBurnedData) Kind() Kind  { return KindTotalCaloriesBurned }
func (*SpeedData) Kind() Kind                { return KindSpeed }
func (*StepsCadenceData) Kind() Kind         { return KindStepsCadence }
func (*PowerData) Kind() Kind                { return KindPower }
func (*WeightData) Kind() Kind               { return KindWeight }
func (*HeightData) Kind() Kind               { return KindHeight }
func (*BasalMetabolicRateData) Kind() Kind   { return KindBasalMetabolicRate }
func (*MenstruationFlowData) Kind() Kind     { return KindMenstruationFlow }
func (*MenstruationPeriodData) Kind() Kind   { return KindMenstruationPeriod }
func (*HydrationData) Kind() Kind            { return KindHydration }
func (*SleepSessionData) Kind() Kind         { return KindSleepSession }
func (*HeartRateData) Kind() Kind            { return KindHeartRate }
func (*RestingHeartRateData) Kind() Kind     { return KindRestingHeartRate }
func (*BloodPressureData) Kind() Kind        { return KindBloodPressure }
func (*BloodGlucoseData) Kind() Kind         { return KindBloodGlucose }
func (*BodyTemperatureData) Kind() Kind      { return KindBodyTemperature }
func (*OxygenSaturationData) Kind() Kind     { return KindOxygenSaturation }

func (*StepsData) normalize()                {}
func (*DistanceData) normalize()             {}
func (*ActiveCaloriesBurnedData) normalize() {}
func (*TotalCaloriesBurnedData) normalize()  {}
func (*WeightData) normalize()               {}
func (*HeightData) normalize()               {}
func (*BasalMetabolicRateData) normalize()   {}
func (*MenstruationFlowData) normalize()     {}
func (*MenstruationPeriodData) normalize()   {}
func (*HydrationData) normalize()            {}
func (*RestingHeartRateData) normalize()     {}
func (*BloodPressureData) normalize()        {}
func (*BloodGlucoseData) normalize()         {}
func (*BodyTemperatureData) normalize()      {}
func (*OxygenSaturationData) normalize()     {}

func (d *SpeedData) normalize() {
	if len(d.Samples) == 0 {
		d.Samples = nil
	}
	for i := range d.Samples {
		d.Samples[i].Time = canonicalTime(d.Samples[i].Time)
	}
}

func (d *StepsCadenceData) normalize() {
	if len(d.Samples) == 0 {
		d.Samples = nil
	}
	for i := range d.Samples {
		d.Samples[i].Time = canonicalTime(d.Samples[i].Time)
	}
}

func (d *PowerData) normalize() {
	if len(d.Samples) == 0 {
		d.Samples = nil
	}
	for i := range d.Samples {
		d.Samples[i].Time = canonicalTime(d.Samples[i].Time)
	}
}

func (d *HeartRateData) normalize() {
	if len(d.Samples) == 0 {
		d.Samples = nil
	}
	for i := range d.Samples {
		d.Samples[i].Time = canonicalTime(d.Samples[i].Time)
	}
}

func (d *SleepSessionData) normalize() {
	if len(d.Stages) == 0 {
		d.Stages = nil
	}
	for i := range d.Stages {
		d.Stages[i].Start = canonicalTime(d.Stages[i].Start)
		d.Stages[i].End = canonicalTime(d.Stages[i].End)
	}
}

// canonicalTime stores instants in UTC at millisecond precision.
func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// cloneData deep copies d so stored records never alias caller slices.
func cloneData(d Data) Data {
	switch v := d.(type) {
	case *SpeedData:
		cp := *v
		cp.Samples = append([]SpeedSample(nil), v.Samples...)
		return &cp
	case *StepsCadenceData:
		cp := *v
		cp.Samples = append([]StepsCadenceSample(nil), v.Samples...)
		return &cp
	case *PowerData:
		cp := *v
		cp.Samples = append([]PowerSample(nil), v.Samples...)
		return &cp
	case *HeartRateData:
		cp := *v
		cp.Samples = append([]HeartRateSample(nil), v.Samples...)
		return &cp
	case *SleepSessionData:
		cp := *v
		cp.Stages = append([]SleepStage(nil), v.Stages...)
		return &cp
	case *StepsData:
		cp := *v
		return &cp
	case *DistanceData:
		cp := *v
		return &cp
	case *ActiveCaloriesBurnedData:
		cp := *v
		return &cp
	case *TotalCaloriesBurnedData:
		cp := *v
		return &cp
	case *WeightData:
		cp := *v
		return &cp
	case *HeightData:
		cp := *v
		return &cp
	case *BasalMetabolicRateData:
		cp := *v
		return &cp
	case *MenstruationFlowData:
		cp := *v
		return &cp
	case *MenstruationPeriodData:
		return &MenstruationPeriodData{}
	case *HydrationData:
		cp := *v
		return &cp
	case *RestingHeartRateData:
		cp := *v
		return &cp
	case *BloodPressureData:
		cp := *v
		return &cp
	case *BloodGlucoseData:
		cp := *v
		return &cp
	case *BodyTemperatureData:
		cp := *v
		return &cp
	case *OxygenSaturationData:
		cp := *v
		return &cp
	default:
		return d
	}
}
