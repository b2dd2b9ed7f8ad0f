package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/appointix/appointix/internal/clinic"
	"github.com/appointix/appointix/internal/db"
)

// Seeds the Postgres store with doctors and patients through the same
// repository the server uses, so every account gets a working login row.
// All seeded accounts share the -password value.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	doctors := flag.Int("doctors", 10, "number of doctors to create")
	patients := flag.Int("patients", 50, "number of patients to create")
	password := flag.String("password", "password123", "password for every seeded account")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())
	repo := clinic.NewPgRepository(pool)

	if err := seedDoctors(context.Background(), repo, *doctors, *password); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), repo, *patients, *password); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

var specializations = []string{
	"Cardiologia",
	"Dermatologia",
	"Neurologia",
	"Ortopedia",
	"Endocrinologia",
	"Pediatria",
	"Psichiatria",
	"Oculistica",
	"Otorinolaringoiatria",
	"Medicina Generale",
}

func seedDoctors(ctx context.Context, repo *clinic.PgRepository, count int, password string) error {
	log.Printf("seeding %d doctors", count)

	for i := 0; i < count; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		_, err := repo.CreateDoctor(ctx, clinic.NewDoctor{
			FirstName:           first,
			LastName:            last,
			Specialization:      specializations[gofakeit.Number(0, len(specializations)-1)],
			Email:               fmt.Sprintf("%s.%s.%d@clinica.test", first, last, i),
			Password:            password,
			Phone:               gofakeit.Phone(),
			City:                gofakeit.City(),
			AppointmentDuration: clinic.DefaultAppointmentDuration,
			WeekdaysAvailable:   "Mon,Tue,Wed,Thu,Fri",
			WorkStart:           9 * 60,
			WorkEnd:             17 * 60,
		})
		if err != nil && !errors.Is(err, clinic.ErrDuplicateEmail) {
			return err
		}
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, repo *clinic.PgRepository, count int, password string) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		_, err := repo.CreatePatient(ctx, clinic.NewPatient{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     fmt.Sprintf("paziente%d@test.com", i+1),
			Password:  password,
			Phone:     gofakeit.Phone(),
		})
		if err != nil && !errors.Is(err, clinic.ErrDuplicateEmail) {
			return err
		}
		if (i+1)%25 == 0 {
			log.Printf("patients seeded: %d/%d", i+1, count)
		}
	}

	log.Println("patients seeded")
	return nil
}
