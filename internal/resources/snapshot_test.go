package resources_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/carebridge/referral-hub/internal/resources"
)

func TestParseSnapshot_LegacyNumericOxygen(t *testing.T) {
	doc := []byte(`{"beds":{"total":10,"occupied":3},"oxygenCylinders":42}`)

	snap, err := resources.ParseSnapshot(doc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if snap.Oxygen.Available != 42 {
		t.Errorf("expected 42 cylinders, got %d", snap.Oxygen.Available)
	}
	if !snap.Oxygen.Numeric {
		t.Error("expected legacy numeric shape to be flagged")
	}

	// Writing back keeps the bare-number shape.
	out, err := snap.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if string(m["oxygenCylinders"]) != "42" {
		t.Errorf("expected bare 42, got %s", m["oxygenCylinders"])
	}
}

func TestParseSnapshot_ObjectOxygen(t *testing.T) {
	doc := []byte(`{"oxygenCylinders":{"available":7}}`)

	snap, err := resources.ParseSnapshot(doc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if snap.Oxygen.Available != 7 || snap.Oxygen.Numeric {
		t.Errorf("expected object shape with 7, got %+v", snap.Oxygen)
	}

	out, _ := snap.Marshal()
	var m map[string]json.RawMessage
	json.Unmarshal(out, &m)
	var obj struct {
		Available int `json:"available"`
	}
	if err := json.Unmarshal(m["oxygenCylinders"], &obj); err != nil || obj.Available != 7 {
		t.Errorf("expected {available:7}, got %s", m["oxygenCylinders"])
	}
}

func TestDefaultSnapshot_AllBloodGroupsZero(t *testing.T) {
	snap := resources.DefaultSnapshot()
	if len(snap.BloodBank) != len(resources.BloodGroups) {
		t.Fatalf("expected %d groups, got %d", len(resources.BloodGroups), len(snap.BloodBank))
	}
	for _, g := range resources.BloodGroups {
		if n, ok := snap.BloodBank[g]; !ok || n != 0 {
			t.Errorf("group %s: expected present and zero, got %d (present=%v)", g, n, ok)
		}
	}
}

func TestSetPath(t *testing.T) {
	snap := resources.DefaultSnapshot()

	cases := []struct {
		path  string
		value int
	}{
		{"beds.total", 50},
		{"beds.occupied", 12},
		{"icuBeds.total", 8},
		{"ventilators.occupied", 3},
		{"oxygenCylinders", 20},
		{"ambulances.total", 6},
		{"ambulances.active", 2},
		{"ambulances.maintenance", 1},
		{"bloodBank.O+", 9},
	}
	for _, tc := range cases {
		if err := snap.SetPath(tc.path, tc.value); err != nil {
			t.Errorf("SetPath(%s): %v", tc.path, err)
		}
	}

	if snap.Beds.Total != 50 || snap.Beds.Occupied != 12 {
		t.Errorf("beds not updated: %+v", snap.Beds)
	}
	if snap.Oxygen.Available != 20 {
		t.Errorf("oxygen not updated: %+v", snap.Oxygen)
	}
	if snap.Ambulances.Active != 2 || snap.Ambulances.Maintenance != 1 {
		t.Errorf("ambulances not updated: %+v", snap.Ambulances)
	}
	if snap.BloodBank["O+"] != 9 {
		t.Errorf("blood bank not updated: %+v", snap.BloodBank)
	}
}

func TestSetPath_ClampsNegative(t *testing.T) {
	snap := resources.DefaultSnapshot()
	if err := snap.SetPath("beds.total", -5); err != nil {
		t.Fatal(err)
	}
	if snap.Beds.Total != 0 {
		t.Errorf("expected clamp to 0, got %d", snap.Beds.Total)
	}
}

func TestSetPath_UnknownField(t *testing.T) {
	snap := resources.DefaultSnapshot()
	for _, path := range []string{"helicopters", "beds.reserved", "bloodBank", "oxygenCylinders.total"} {
		if err := snap.SetPath(path, 1); !errors.Is(err, resources.ErrUnknownField) {
			t.Errorf("SetPath(%s): expected ErrUnknownField, got %v", path, err)
		}
	}
}
