package resources

import "sort"

// Request is the resource allocation a referral asks for. Field names match
// the persisted resourcesRequested document.
type Request struct {
	Bed             int            `json:"bed"`
	ICUBeds         int            `json:"icuBeds"`
	Ventilator      int            `json:"ventilator"`
	OxygenCylinders int            `json:"oxygenCylinders"`
	Ambulances      int            `json:"ambulances"`
	BloodBank       map[string]int `json:"bloodBank"`
}

// IsZero reports whether nothing at all is requested.
func (r Request) IsZero() bool {
	if r.Bed > 0 || r.ICUBeds > 0 || r.Ventilator > 0 || r.OxygenCylinders > 0 || r.Ambulances > 0 {
		return false
	}
	for _, n := range r.BloodBank {
		if n > 0 {
			return false
		}
	}
	return true
}

// Valid reports whether every requested amount is non-negative.
func (r Request) Valid() bool {
	if r.Bed < 0 || r.ICUBeds < 0 || r.Ventilator < 0 || r.OxygenCylinders < 0 || r.Ambulances < 0 {
		return false
	}
	for _, n := range r.BloodBank {
		if n < 0 {
			return false
		}
	}
	return true
}

// Availability is the per-resource headroom computed from a snapshot.
type Availability struct {
	Beds        int            `json:"beds"`
	ICUBeds     int            `json:"icuBeds"`
	Ventilators int            `json:"ventilators"`
	Oxygen      int            `json:"oxygenCylinders"`
	Ambulances  int            `json:"ambulances"`
	BloodBank   map[string]int `json:"bloodBank"`
}

// Availability computes headroom per resource. Ambulance availability is
// total - active - maintenance, floored at zero: active units are out on
// dispatch and maintenance units are off the road, so neither can be sent.
func (s *Snapshot) Availability() Availability {
	a := Availability{
		Beds:        clamp0(s.Beds.Total - s.Beds.Occupied),
		ICUBeds:     clamp0(s.ICUBeds.Total - s.ICUBeds.Occupied),
		Ventilators: clamp0(s.Ventilators.Total - s.Ventilators.Occupied),
		Oxygen:      clamp0(s.Oxygen.Available),
		Ambulances:  clamp0(s.Ambulances.Total - s.Ambulances.Active - s.Ambulances.Maintenance),
		BloodBank:   make(map[string]int, len(s.BloodBank)),
	}
	for g, n := range s.BloodBank {
		a.BloodBank[g] = clamp0(n)
	}
	return a
}

// Shortage is one resource whose requested amount exceeds availability.
type Shortage struct {
	Resource  string `json:"resource"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// CheckSufficiency compares a request against the snapshot's availability. A
// request is sufficient iff every requested amount fits; each violation
// yields one shortage entry. Callers deciding an accept must re-run this
// against the transaction's own read, never a pre-fetched snapshot.
func CheckSufficiency(s *Snapshot, req Request) (bool, []Shortage) {
	avail := s.Availability()

	var shortages []Shortage
	add := func(name string, requested, available int) {
		if requested > available {
			shortages = append(shortages, Shortage{Resource: name, Requested: requested, Available: available})
		}
	}

	add("bed", req.Bed, avail.Beds)
	add("icuBeds", req.ICUBeds, avail.ICUBeds)
	add("ventilator", req.Ventilator, avail.Ventilators)
	add("oxygenCylinders", req.OxygenCylinders, avail.Oxygen)
	add("ambulances", req.Ambulances, avail.Ambulances)

	groups := make([]string, 0, len(req.BloodBank))
	for g := range req.BloodBank {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		if n := req.BloodBank[g]; n > 0 {
			add("bloodBank."+g, n, avail.BloodBank[g])
		}
	}

	return len(shortages) == 0, shortages
}

func clamp0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
