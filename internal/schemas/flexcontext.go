package schemas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
)

// powerUnits converts power units to MW.
var powerUnits = map[string]float64{
	"W":  1e-6,
	"kW": 1e-3,
	"MW": 1,
	"GW": 1e3,
}

// QuantityOrSensor is either a fixed power, given as a string like "500 kW"
// and kept in MW, or a reference to a sensor: {"sensor": 3}.
type QuantityOrSensor struct {
	MW       float64
	SensorID *int64
}

func (q *QuantityOrSensor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var ref struct {
			Sensor *int64 `json:"sensor"`
		}
		if err := decodeStrict(b, &ref); err != nil || ref.Sensor == nil {
			return &FieldError{Msg: "Sensor reference must look like {\"sensor\": <id>}."}
		}
		*q = QuantityOrSensor{SensorID: ref.Sensor}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &FieldError{Msg: "Not a valid quantity or sensor reference."}
	}
	mw, err := ParsePower(s)
	if err != nil {
		return &FieldError{Msg: "Invalid quantity: " + err.Error() + "."}
	}
	*q = QuantityOrSensor{MW: mw}
	return nil
}

func (q QuantityOrSensor) MarshalJSON() ([]byte, error) {
	if q.SensorID != nil {
		return json.Marshal(map[string]int64{"sensor": *q.SensorID})
	}
	return json.Marshal(strconv.FormatFloat(q.MW, 'f', -1, 64) + " MW")
}

// ParsePower parses a quantity such as "1.5 MW" or "500kW" into MW.
func ParsePower(s string) (float64, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsLetter)
	if i <= 0 {
		return 0, fmt.Errorf("cannot convert %q to a quantity", s)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to a quantity", s)
	}
	unit := strings.TrimSpace(s[i:])
	factor, ok := powerUnits[unit]
	if !ok {
		return 0, fmt.Errorf("cannot convert %q to MW", s)
	}
	return value * factor, nil
}

// FlexContext describes the site around a flexible asset: its grid limits,
// the prices it faces and the devices sharing its connection.
type FlexContext struct {
	SitePowerCapacity           *QuantityOrSensor `json:"site-power-capacity,omitempty"`
	SiteProductionCapacity      *QuantityOrSensor `json:"site-production-capacity,omitempty"`
	SiteConsumptionCapacity     *QuantityOrSensor `json:"site-consumption-capacity,omitempty"`
	SiteSoftProductionCapacity  *QuantityOrSensor `json:"site-soft-production-capacity,omitempty"`
	SiteSoftConsumptionCapacity *QuantityOrSensor `json:"site-soft-consumption-capacity,omitempty"`
	PowerLimitDeviationCost     *float64          `json:"power-limit-deviation-cost,omitempty"`
	SoftPowerLimitDeviationCost *float64          `json:"soft-power-limit-deviation-cost,omitempty"`
	ConsumptionPriceSensor      *int64            `json:"consumption-price-sensor,omitempty"`
	ProductionPriceSensor       *int64            `json:"production-price-sensor,omitempty"`
	CurtailableDeviceSensors    []int64           `json:"curtailable-device-sensors,omitempty"`
	InflexibleDeviceSensors     []int64           `json:"inflexible-device-sensors,omitempty"`
}

// SensorLookup finds sensors by id.
type SensorLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Sensor, error)
}

// LoadFlexContext decodes and validates a flex context. Referenced sensors
// are checked to exist when sensors is not nil.
func LoadFlexContext(ctx context.Context, data []byte, sensors SensorLookup) (*FlexContext, error) {
	verr := &ValidationError{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		verr.add("_schema", "Invalid input type.")
		return nil, verr
	}

	fc := &FlexContext{}
	quantities := map[string]**QuantityOrSensor{
		"site-power-capacity":            &fc.SitePowerCapacity,
		"site-production-capacity":       &fc.SiteProductionCapacity,
		"site-consumption-capacity":      &fc.SiteConsumptionCapacity,
		"site-soft-production-capacity":  &fc.SiteSoftProductionCapacity,
		"site-soft-consumption-capacity": &fc.SiteSoftConsumptionCapacity,
	}
	costs := map[string]**float64{
		"power-limit-deviation-cost":      &fc.PowerLimitDeviationCost,
		"soft-power-limit-deviation-cost": &fc.SoftPowerLimitDeviationCost,
	}
	sensorFields := map[string]**int64{
		"consumption-price-sensor": &fc.ConsumptionPriceSensor,
		"production-price-sensor":  &fc.ProductionPriceSensor,
	}
	sensorLists := map[string]*[]int64{
		"curtailable-device-sensors": &fc.CurtailableDeviceSensors,
		"inflexible-device-sensors":  &fc.InflexibleDeviceSensors,
	}

	type sensorRef struct {
		field string
		id    int64
	}
	var referenced []sensorRef
	refer := func(field string, id int64) {
		referenced = append(referenced, sensorRef{field, id})
	}

	for key, raw := range fields {
		switch {
		case quantities[key] != nil:
			q := &QuantityOrSensor{}
			if err := json.Unmarshal(raw, q); err != nil {
				verr.add(key, fieldMessage(err))
				continue
			}
			if q.SensorID != nil {
				refer(key, *q.SensorID)
			} else if q.MW < 0 {
				verr.add(key, "Must be greater than or equal to 0.")
				continue
			}
			*quantities[key] = q
		case costs[key] != nil:
			var v float64
			if err := json.Unmarshal(raw, &v); err != nil {
				verr.add(key, msgNotNumber)
				continue
			}
			*costs[key] = &v
		case sensorFields[key] != nil:
			var id int64
			if err := json.Unmarshal(raw, &id); err != nil {
				verr.add(key, "Not a valid integer.")
				continue
			}
			refer(key, id)
			*sensorFields[key] = &id
		case sensorLists[key] != nil:
			var ids []int64
			if err := json.Unmarshal(raw, &ids); err != nil {
				verr.add(key, "Not a valid list of sensor ids.")
				continue
			}
			for _, id := range ids {
				refer(key, id)
			}
			*sensorLists[key] = ids
		default:
			verr.add(key, "Unknown field.")
		}
	}

	if sensors != nil {
		for _, r := range referenced {
			if _, err := sensors.GetByID(ctx, r.id); err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("look up sensor %d: %w", r.id, err)
				}
				verr.add(r.field, fmt.Sprintf("No sensor found with id %d.", r.id))
			}
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return fc, nil
}
