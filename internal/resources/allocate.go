package resources

import "fmt"

const ReasonMissingResourceDoc = "missing-resource-doc"

// AllocationError is a terminal reservation failure; the transaction that
// produced it was rolled back in full.
type AllocationError struct {
	Reason string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: %s", e.Reason)
}

// Allocate debits the snapshot in place. The debit uses the same availability
// semantics as the validator: occupancy counters go up for beds/ICU/vents,
// ambulances are marked active (dispatched), and consumables go down, floored
// at zero. Callers must have verified sufficiency on the same read.
func (s *Snapshot) Allocate(req Request) {
	s.Beds.Occupied += req.Bed
	s.ICUBeds.Occupied += req.ICUBeds
	s.Ventilators.Occupied += req.Ventilator
	s.Oxygen.Available = clamp0(s.Oxygen.Available - req.OxygenCylinders)
	s.Ambulances.Active += req.Ambulances
	for g, n := range req.BloodBank {
		if n <= 0 {
			continue
		}
		s.BloodBank[g] = clamp0(s.BloodBank[g] - n)
	}
}
