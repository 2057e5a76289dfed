package record

import (
	"sort"
	"strings"
)

// Kind names a record type.
type Kind string

const (
	KindSteps                Kind = "Steps"
	KindDistance             Kind = "Distance"
	KindActiveCaloriesBurned Kind = "ActiveCaloriesBurned"
	KindTotalCaloriesBurned  Kind = "TotalCaloriesBurned"
	KindSpeed                Kind = "Speed"
	KindStepsCadence         Kind = "StepsCadence"
	KindPower                Kind = "Power"
	KindWeight               Kind = "Weight"
	KindHeight               Kind = "Height"
	KindBasalMetabolicRate   Kind = "BasalMetabolicRate"
	KindMenstruationFlow     Kind = "MenstruationFlow"
	KindMenstruationPeriod   Kind = "MenstruationPeriod"
	KindHydration            Kind = "Hydration"
	KindSleepSession         Kind = "SleepSession"
	KindHeartRate            Kind = "HeartRate"
	KindRestingHeartRate     Kind = "RestingHeartRate"
	KindBloodPressure        Kind = "BloodPressure"
	KindBloodGlucose         Kind = "BloodGlucose"
	KindBodyTemperature      Kind = "BodyTemperature"
	KindOxygenSaturation     Kind = "OxygenSaturation"
)

// Shape describes how a kind places itself on the timeline.
type Shape int

const (
	ShapeInstant Shape = iota
	ShapeInterval
	ShapeSeries
)

// Category groups kinds for priority ordering.
type Category string

const (
	CategoryActivity         Category = "ACTIVITY"
	CategoryBodyMeasurements Category = "BODY_MEASUREMENTS"
	CategoryCycleTracking    Category = "CYCLE_TRACKING"
	CategoryNutrition        Category = "NUTRITION"
	CategorySleep            Category = "SLEEP"
	CategoryVitals           Category = "VITALS"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryActivity,
	CategoryBodyMeasurements,
	CategoryCycleTracking,
	CategoryNutrition,
	CategorySleep,
	CategoryVitals,
}

// ParseCategory accepts the category name in any case.
func ParseCategory(s string) (Category, bool) {
	upper := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range Categories {
		if c == upper {
			return c, true
		}
	}
	return "", false
}

type kindInfo struct {
	shape      Shape
	category   Category
	permission string
	singleton  bool
	newData    func() Data
}

var kinds = map[Kind]kindInfo{
	KindSteps:                {ShapeInterval, CategoryActivity, "STEPS", true, func() Data { return &StepsData{} }},
	KindDistance:             {ShapeInterval, CategoryActivity, "DISTANCE", true, func() Data { return &DistanceData{} }},
	KindActiveCaloriesBurned: {ShapeInterval, CategoryActivity, "ACTIVE_CALORIES_BURNED", true, func() Data { return &ActiveCaloriesBurnedData{} }},
	KindTotalCaloriesBurned:  {ShapeInterval, CategoryActivity, "TOTAL_CALORIES_BURNED", true, func() Data { return &TotalCaloriesBurnedData{} }},
	KindSpeed:                {ShapeSeries, CategoryActivity, "SPEED", false, func() Data { return &SpeedData{} }},
	KindStepsCadence:         {ShapeSeries, CategoryActivity, "STEPS", false, func() Data { return &StepsCadenceData{} }},
	KindPower:                {ShapeSeries, CategoryActivity, "POWER", false, func() Data { return &PowerData{} }},
	KindWeight:               {ShapeInstant, CategoryBodyMeasurements, "WEIGHT", true, func() Data { return &WeightData{} }},
	KindHeight:               {ShapeInstant, CategoryBodyMeasurements, "HEIGHT", true, func() Data { return &HeightData{} }},
	KindBasalMetabolicRate:   {ShapeInstant, CategoryBodyMeasurements, "BASAL_METABOLIC_RATE", true, func() Data { return &BasalMetabolicRateData{} }},
	KindMenstruationFlow:     {ShapeInstant, CategoryCycleTracking, "MENSTRUATION", true, func() Data { return &MenstruationFlowData{} }},
	KindMenstruationPeriod:   {ShapeInterval, CategoryCycleTracking, "MENSTRUATION", false, func() Data { return &MenstruationPeriodData{} }},
	KindHydration:            {ShapeInterval, CategoryNutrition, "HYDRATION", true, func() Data { return &HydrationData{} }},
	KindSleepSession:         {ShapeInterval, CategorySleep, "SLEEP", false, func() Data { return &SleepSessionData{} }},
	KindHeartRate:            {ShapeSeries, CategoryVitals, "HEART_RATE", false, func() Data { return &HeartRateData{} }},
	KindRestingHeartRate:     {ShapeInstant, CategoryVitals, "RESTING_HEART_RATE", true, func() Data { return &RestingHeartRateData{} }},
	KindBloodPressure:        {ShapeInstant, CategoryVitals, "BLOOD_PRESSURE", true, func() Data { return &BloodPressureData{} }},
	KindBloodGlucose:         {ShapeInstant, CategoryVitals, "BLOOD_GLUCOSE", true, func() Data { return &BloodGlucoseData{} }},
	KindBodyTemperature:      {ShapeInstant, CategoryVitals, "BODY_TEMPERATURE", true, func() Data { return &BodyTemperatureData{} }},
	KindOxygenSaturation:     {ShapeInstant, CategoryVitals, "OXYGEN_SATURATION", true, func() Data { return &OxygenSaturationData{} }},
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Shape returns the timeline shape of k.
func (k Kind) Shape() Shape { return kinds[k].shape }

// Category returns the health category k belongs to.
func (k Kind) Category() Category { return kinds[k].category }

// HasInterval reports whether records of k carry start and end times.
func (k Kind) HasInterval() bool { return k.Shape() != ShapeInstant }

// HasSamples reports whether records of k carry a sample series.
func (k Kind) HasSamples() bool { return k.Shape() == ShapeSeries }

// HasSingleValue reports whether records of k carry exactly one measured value.
func (k Kind) HasSingleValue() bool { return kinds[k].singleton }

// AllKinds returns every supported kind sorted by name.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KindsIn returns the kinds of a category sorted by name.
func KindsIn(c Category) []Kind {
	var out []Kind
	for _, k := range AllKinds() {
		if k.Category() == c {
			out = append(out, k)
		}
	}
	return out
}

const permissionPrefix = "android.permission.health."

const (
	// PermissionManageHealthData lets a caller see and delete every origin's records.
	PermissionManageHealthData = "android.permission.MANAGE_HEALTH_DATA"
	// PermissionMigrateHealthData lets a caller drive the migration pipeline.
	PermissionMigrateHealthData = "android.permission.MIGRATE_HEALTH_CONNECT_DATA"
)

// ReadPermission returns the permission string that grants reads of k.
func (k Kind) ReadPermission() string { return permissionPrefix + "READ_" + kinds[k].permission }

// WritePermission returns the permission string that grants writes of k.
func (k Kind) WritePermission() string { return permissionPrefix + "WRITE_" + kinds[k].permission }

// KnownPermission reports whether p is a permission the platform can grant.
func KnownPermission(p string) bool {
	if p == PermissionManageHealthData || p == PermissionMigrateHealthData {
		return true
	}
	for k := range kinds {
		if p == k.ReadPermission() || p == k.WritePermission() {
			return true
		}
	}
	return false
}
