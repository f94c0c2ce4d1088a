package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"

	_ "github.com/lib/pq"

	"github.com/carebridge/referral-hub/internal/auth"
	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/resources"
)

// Demo network used by local development and the end-to-end walkthrough.
var hospitals = []data.Hospital{
	{ID: "HOSP1", Name: "AIIMS Delhi", Location: "Delhi"},
	{ID: "HOSP2", Name: "Fortis Noida", Location: "Noida"},
	{ID: "HOSP3", Name: "Yashoda Ghaziabad", Location: "Ghaziabad"},
	{ID: "HOSP4", Name: "Max Saket", Location: "Delhi"},
	{ID: "HOSP5", Name: "Apollo Noida", Location: "Noida"},
	{ID: "HOSP6", Name: "GTB Hospital", Location: "Delhi"},
	{ID: "HOSP7", Name: "Jaypee Hospital", Location: "Noida"},
	{ID: "HOSP8", Name: "Columbia Asia", Location: "Ghaziabad"},
	{ID: "HOSP9", Name: "BLK Hospital", Location: "Delhi"},
	{ID: "HOSP10", Name: "Metro Hospital", Location: "Noida"},
}

func getRandom(min, max int) int {
	return rand.Intn(max-min+1) + min
}

func randomSnapshot() *resources.Snapshot {
	s := resources.DefaultSnapshot()
	s.Beds = resources.Tally{Total: getRandom(40, 200), Occupied: getRandom(0, 40)}
	s.ICUBeds = resources.Tally{Total: getRandom(5, 40), Occupied: getRandom(0, 5)}
	s.Ventilators = resources.Tally{Total: getRandom(2, 25), Occupied: getRandom(0, 2)}
	s.Oxygen = resources.OxygenCylinders{Available: getRandom(10, 120)}
	s.Ambulances = resources.AmbulanceTally{Total: getRandom(2, 12)}
	for _, g := range resources.BloodGroups {
		s.BloodBank[g] = getRandom(0, 25)
	}
	return s
}

func main() {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "referral_hub"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	for i := range hospitals {
		h := &hospitals[i]
		h.RegistrationNumber = h.ID
		h.Type = "General"

		_, err = db.ExecContext(ctx, `
			INSERT INTO hospitals (id, name, registration_number, type, location)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			h.ID, h.Name, h.RegistrationNumber, h.Type, h.Location)
		if err != nil {
			log.Fatalf("Hospital insert failed for %s: %v", h.ID, err)
		}

		doc, err := randomSnapshot().Marshal()
		if err != nil {
			log.Fatal(err)
		}
		if err := (data.ResourceModel{DB: db}).InsertDoc(ctx, h.ID, doc); err != nil {
			log.Fatalf("Resource insert failed for %s: %v", h.ID, err)
		}

		// One login per hospital, password "changeme123".
		hash, err := auth.HashPassword("changeme123")
		if err != nil {
			log.Fatal(err)
		}
		email := fmt.Sprintf("admin@%s.example.com", h.ID)
		_, err = db.ExecContext(ctx, `
			INSERT INTO users (email, password_hash, display_name, hospital_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING`,
			email, hash, h.Name+" Admin", h.ID)
		if err != nil {
			log.Fatalf("User insert failed for %s: %v", h.ID, err)
		}

		log.Printf("Seeded %s (%s), login %s", h.ID, h.Name, email)
	}

	log.Println("Seeding complete")
}
