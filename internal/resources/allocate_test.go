package resources_test

import (
	"math/rand"
	"testing"

	"github.com/carebridge/referral-hub/internal/resources"
)

func TestAllocate_DebitsEveryResource(t *testing.T) {
	s := snapshotWith()
	s.Allocate(resources.Request{
		Bed:             2,
		Ventilator:      1,
		OxygenCylinders: 3,
		Ambulances:      1,
		BloodBank:       map[string]int{"O+": 2},
	})

	if s.Beds.Occupied != 6 {
		t.Errorf("beds occupied: expected 6, got %d", s.Beds.Occupied)
	}
	if s.Beds.Total != 10 {
		t.Errorf("beds total must not change, got %d", s.Beds.Total)
	}
	if s.Ventilators.Occupied != 2 {
		t.Errorf("ventilators occupied: expected 2, got %d", s.Ventilators.Occupied)
	}
	if s.Oxygen.Available != 5 {
		t.Errorf("oxygen: expected 5, got %d", s.Oxygen.Available)
	}
	// Allocated ambulances go on dispatch.
	if s.Ambulances.Active != 3 || s.Ambulances.Total != 5 {
		t.Errorf("ambulances: expected active=3 total=5, got %+v", s.Ambulances)
	}
	if s.BloodBank["O+"] != 1 {
		t.Errorf("O+: expected 1, got %d", s.BloodBank["O+"])
	}
}

func TestAllocate_ClampsAtZero(t *testing.T) {
	s := resources.DefaultSnapshot()
	s.Oxygen.Available = 1
	s.BloodBank["B+"] = 1

	s.Allocate(resources.Request{OxygenCylinders: 5, BloodBank: map[string]int{"B+": 3}})

	if s.Oxygen.Available != 0 {
		t.Errorf("oxygen should clamp at 0, got %d", s.Oxygen.Available)
	}
	if s.BloodBank["B+"] != 0 {
		t.Errorf("blood should clamp at 0, got %d", s.BloodBank["B+"])
	}
}

// Any sequence of accepts, each validated against the read it debits,
// must keep every counter inside its bounds.
func TestAllocate_RandomAcceptSequencesKeepCountersSane(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	s := resources.DefaultSnapshot()
	s.Beds = resources.Tally{Total: 20, Occupied: 5}
	s.ICUBeds = resources.Tally{Total: 8, Occupied: 2}
	s.Ventilators = resources.Tally{Total: 6, Occupied: 1}
	s.Oxygen.Available = 40
	s.Ambulances = resources.AmbulanceTally{Total: 6, Active: 1, Maintenance: 1}
	for _, g := range resources.BloodGroups {
		s.BloodBank[g] = 10
	}

	checkTally := func(step int, name string, ty resources.Tally) {
		if ty.Occupied < 0 || ty.Occupied > ty.Total {
			t.Fatalf("step %d: %s occupancy out of bounds: %+v", step, name, ty)
		}
	}

	accepted := 0
	for step := 0; step < 1000; step++ {
		req := resources.Request{
			Bed:             rng.Intn(4),
			ICUBeds:         rng.Intn(3),
			Ventilator:      rng.Intn(2),
			OxygenCylinders: rng.Intn(5),
			Ambulances:      rng.Intn(2),
			BloodBank: map[string]int{
				resources.BloodGroups[rng.Intn(len(resources.BloodGroups))]: rng.Intn(3),
			},
		}
		if req.IsZero() {
			continue
		}

		ok, _ := resources.CheckSufficiency(s, req)
		if !ok {
			continue
		}
		s.Allocate(req)
		accepted++

		checkTally(step, "beds", s.Beds)
		checkTally(step, "icuBeds", s.ICUBeds)
		checkTally(step, "ventilators", s.Ventilators)
		if s.Oxygen.Available < 0 {
			t.Fatalf("step %d: oxygen went negative: %d", step, s.Oxygen.Available)
		}
		if s.Ambulances.Active < 0 || s.Ambulances.Active+s.Ambulances.Maintenance > s.Ambulances.Total {
			t.Fatalf("step %d: ambulances out of bounds: %+v", step, s.Ambulances)
		}
		for g, n := range s.BloodBank {
			if n < 0 {
				t.Fatalf("step %d: blood %s went negative: %d", step, g, n)
			}
		}
	}
	if accepted == 0 {
		t.Fatal("sequence never accepted anything; starting capacity too small")
	}
}
