package resources

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BloodGroups are the eight canonical blood-group labels used as bloodBank
// keys.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

var ErrUnknownField = errors.New("unknown resource field")

// Tally tracks a capacity-style resource: beds, ICU beds, ventilators.
type Tally struct {
	Total    int `json:"total"`
	Occupied int `json:"occupied"`
}

// AmbulanceTally mirrors the persisted ambulance shape. Legacy data does not
// always satisfy active+maintenance <= total, so consumers clamp.
type AmbulanceTally struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Maintenance int `json:"maintenance"`
}

// OxygenCylinders accepts both historical shapes on read: a bare integer and
// {"available": n}. The persisted shape is remembered so write-back never
// silently migrates the schema.
type OxygenCylinders struct {
	Available int
	Numeric   bool
}

func (o OxygenCylinders) MarshalJSON() ([]byte, error) {
	if o.Numeric {
		return json.Marshal(o.Available)
	}
	return json.Marshal(struct {
		Available int `json:"available"`
	}{o.Available})
}

func (o *OxygenCylinders) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		o.Available = n
		o.Numeric = true
		return nil
	}
	var obj struct {
		Available int `json:"available"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("oxygenCylinders: unrecognized shape: %w", err)
	}
	o.Available = obj.Available
	o.Numeric = false
	return nil
}

// Snapshot is the live resource-availability document for one hospital.
type Snapshot struct {
	Beds        Tally           `json:"beds"`
	ICUBeds     Tally           `json:"icuBeds"`
	Ventilators Tally           `json:"ventilators"`
	Oxygen      OxygenCylinders `json:"oxygenCylinders"`
	Ambulances  AmbulanceTally  `json:"ambulances"`
	BloodBank   map[string]int  `json:"bloodBank"`
}

// DefaultSnapshot is the all-zero document written on a hospital's first
// read.
func DefaultSnapshot() *Snapshot {
	blood := make(map[string]int, len(BloodGroups))
	for _, g := range BloodGroups {
		blood[g] = 0
	}
	return &Snapshot{BloodBank: blood}
}

func ParseSnapshot(doc []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, err
	}
	if s.BloodBank == nil {
		s.BloodBank = map[string]int{}
	}
	return &s, nil
}

func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// SetPath writes one field by dotted path, clamped at zero. Supported paths
// follow the persisted document shape, e.g. "beds.occupied",
// "ambulances.maintenance", "oxygenCylinders", "bloodBank.O+".
func (s *Snapshot) SetPath(path string, value int) error {
	if value < 0 {
		value = 0
	}

	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "beds":
		return setTally(&s.Beds, rest)(value)
	case "icuBeds":
		return setTally(&s.ICUBeds, rest)(value)
	case "ventilators":
		return setTally(&s.Ventilators, rest)(value)
	case "oxygenCylinders":
		if rest == "" || rest == "available" {
			s.Oxygen.Available = value
			return nil
		}
	case "ambulances":
		switch rest {
		case "total":
			s.Ambulances.Total = value
			return nil
		case "active":
			s.Ambulances.Active = value
			return nil
		case "maintenance":
			s.Ambulances.Maintenance = value
			return nil
		}
	case "bloodBank":
		if rest != "" {
			if s.BloodBank == nil {
				s.BloodBank = map[string]int{}
			}
			s.BloodBank[rest] = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, path)
}

func setTally(t *Tally, field string) func(int) error {
	return func(v int) error {
		switch field {
		case "total":
			t.Total = v
		case "occupied":
			t.Occupied = v
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		return nil
	}
}
