package normalize

import (
	"sort"
	"strings"

	"sjsage522/bikecrawler/internal/model"
)

// Field is a canonical spec field
type Field int

const (
	FieldUnknown Field = iota
	FieldDisplacement
	FieldPower
	FieldTorque
	FieldDryWeight
	FieldWetWeight
	FieldWeight
	FieldSeatHeight
	FieldWheelbase
	FieldFuelCapacity
	FieldEngineType
	FieldPrice
	FieldCategory
)

// SpecField maps a raw spec label ("Max Power", "Seat height", "MSRP") to a canonical field.
// Order matters: "fuel capacity" must not read as displacement, "engine type" must not read as category.
func SpecField(label string) Field {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "fuel"), strings.Contains(l, "tank"):
		return FieldFuelCapacity
	case strings.Contains(l, "displacement"), strings.Contains(l, "cubic"), strings.Contains(l, "engine size"),
		strings.Contains(l, "capacity"):
		return FieldDisplacement
	case strings.Contains(l, "torque"):
		return FieldTorque
	case strings.Contains(l, "power"), strings.Contains(l, "output"):
		return FieldPower
	case strings.Contains(l, "dry weight"):
		return FieldDryWeight
	case strings.Contains(l, "wet weight"), strings.Contains(l, "curb weight"), strings.Contains(l, "kerb"):
		return FieldWetWeight
	case strings.Contains(l, "weight"):
		return FieldWeight
	case strings.Contains(l, "seat height"):
		return FieldSeatHeight
	case strings.Contains(l, "wheelbase"), strings.Contains(l, "wheel base"):
		return FieldWheelbase
	case strings.Contains(l, "engine"), strings.Contains(l, "motor"):
		return FieldEngineType
	case strings.Contains(l, "price"), strings.Contains(l, "msrp"):
		return FieldPrice
	case strings.Contains(l, "category"), l == "type", strings.Contains(l, "class"):
		return FieldCategory
	}
	return FieldUnknown
}

// Specs holds the measurements extracted from a record, in metric units
type Specs struct {
	EngineType     string
	DisplacementCC float64
	PowerHP        float64
	PowerRPM       int
	TorqueNM       float64
	TorqueRPM      int
	DryWeightKG    float64
	WetWeightKG    float64
	SeatHeightMM   float64
	WheelbaseMM    float64
	FuelCapacityL  float64
	Price          float64
	Currency       string
	Category       string
}

// HasEngine reports whether any engine measurement is present
func (s Specs) HasEngine() bool {
	return s.EngineType != "" || s.DisplacementCC > 0 || s.PowerHP > 0 || s.TorqueNM > 0
}

// HasPhysical reports whether any physical measurement is present
func (s Specs) HasPhysical() bool {
	return s.DryWeightKG > 0 || s.WetWeightKG > 0 || s.SeatHeightMM > 0 || s.WheelbaseMM > 0 || s.FuelCapacityL > 0
}

// ExtractSpecs reads the measurements of a record from its spec table, engine and price columns.
// The first parsable value per field wins; spec labels are visited in sorted order.
func ExtractSpecs(b model.Bike) Specs {
	var s Specs

	labels := make([]string, 0, len(b.Specs))
	for label := range b.Specs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		value := strings.TrimSpace(b.Specs[label])
		if value == "" {
			continue
		}

		switch SpecField(label) {
		case FieldDisplacement:
			if s.DisplacementCC == 0 {
				s.DisplacementCC, _ = Displacement(value)
			}
		case FieldPower:
			if s.PowerHP == 0 {
				if m, ok := Power(value); ok {
					s.PowerHP, s.PowerRPM = m.Value, m.RPM
				}
			}
		case FieldTorque:
			if s.TorqueNM == 0 {
				if m, ok := Torque(value); ok {
					s.TorqueNM, s.TorqueRPM = m.Value, m.RPM
				}
			}
		case FieldDryWeight, FieldWeight:
			if s.DryWeightKG == 0 {
				s.DryWeightKG, _ = Weight(value)
			}
		case FieldWetWeight:
			if s.WetWeightKG == 0 {
				s.WetWeightKG, _ = Weight(value)
			}
		case FieldSeatHeight:
			if s.SeatHeightMM == 0 {
				s.SeatHeightMM, _ = Length(value)
			}
		case FieldWheelbase:
			if s.WheelbaseMM == 0 {
				s.WheelbaseMM, _ = Length(value)
			}
		case FieldFuelCapacity:
			if s.FuelCapacityL == 0 {
				s.FuelCapacityL, _ = Volume(value)
			}
		case FieldEngineType:
			if s.EngineType == "" {
				s.EngineType = value
			}
			if s.DisplacementCC == 0 {
				s.DisplacementCC, _ = Displacement(value)
			}
		case FieldPrice:
			if s.Price == 0 {
				s.Price, s.Currency, _ = Price(value)
			}
		case FieldCategory:
			if s.Category == "" {
				s.Category = Name(value)
			}
		}
	}

	if b.Engine != "" {
		s.EngineType = strings.TrimSpace(b.Engine)
		if s.DisplacementCC == 0 {
			s.DisplacementCC, _ = Displacement(b.Engine)
		}
	}
	if b.Price != "" {
		if price, currency, ok := Price(b.Price); ok {
			s.Price, s.Currency = price, currency
		}
	}
	if b.Category != "" {
		s.Category = Name(b.Category)
	}

	return s
}

// QualityScore rates the completeness of a record from 0 to 100 with a fixed additive rule:
// year, make, model, price, displacement, power, weight and image 10 points each;
// category, torque, seat height and engine type 5 points each.
func QualityScore(b model.Bike, s Specs) int {
	score := 0
	add := func(present bool, points int) {
		if present {
			score += points
		}
	}

	add(b.Year > 0, 10)
	add(strings.TrimSpace(b.Make) != "", 10)
	add(strings.TrimSpace(b.Model) != "", 10)
	add(s.Category != "", 5)
	add(s.Price > 0, 10)
	add(s.DisplacementCC > 0, 10)
	add(s.PowerHP > 0, 10)
	add(s.TorqueNM > 0, 5)
	add(s.DryWeightKG > 0 || s.WetWeightKG > 0, 10)
	add(s.SeatHeightMM > 0, 5)
	add(b.ImageURL != "", 10)
	add(s.EngineType != "", 5)

	return score
}
