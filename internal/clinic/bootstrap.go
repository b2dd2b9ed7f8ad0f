package clinic

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Embedded seed shipped with the client, replacing the patients asset the
// original loaded at startup.
//
//go:embed patients.json
var bootstrapPatientsJSON []byte

var demoSpecializations = []string{
	"Cardiologia",
	"Dermatologia",
	"Neurologia",
	"Ortopedia",
	"Pediatria",
	"Oculistica",
}

// SeedPatientsJSON loads a raw JSON array of patients in wire format,
// keeping the ids from the document.
func (r *MemoryRepository) SeedPatientsJSON(data []byte) error {
	var dtos []PatientDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return fmt.Errorf("decode bootstrap patients: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dto := range dtos {
		p := dto.Patient()
		if p.ID == 0 {
			p.ID = r.nextPatientID
		}
		r.patients = append(r.patients, p)
		if p.ID >= r.nextPatientID {
			r.nextPatientID = p.ID + 1
		}
	}
	return nil
}

// NewDemoRepository builds a memory backend preloaded with the embedded
// patients, a handful of doctors and one existing booking, so the app is
// usable without any server or database.
func NewDemoRepository() *MemoryRepository {
	r := NewMemoryRepository()
	if err := r.SeedPatientsJSON(bootstrapPatientsJSON); err != nil {
		// the embedded document is under our control
		panic(err)
	}

	r.mu.Lock()
	for i, spec := range demoSpecializations {
		d := Doctor{
			ID:                  r.nextDoctorID,
			FirstName:           gofakeit.FirstName(),
			LastName:            gofakeit.LastName(),
			Specialization:      spec,
			Email:               fmt.Sprintf("dottore%d@demo.test", i+1),
			Phone:               gofakeit.Phone(),
			City:                gofakeit.City(),
			AppointmentDuration: DefaultAppointmentDuration,
			WeekdaysAvailable:   "Mon,Tue,Wed,Thu,Fri",
			WorkStart:           9 * 60,
			WorkEnd:             17 * 60,
		}
		r.nextDoctorID++
		r.doctors = append(r.doctors, d)
	}

	start := nextWeekdayAt(time.Now(), 10, 0)
	r.appointments = append(r.appointments, Appointment{
		ID:        r.nextAppointmentID,
		PatientID: 1,
		DoctorID:  2,
		StartTime: start,
		EndTime:   start.Add(DefaultAppointmentDuration * time.Minute),
	})
	r.nextAppointmentID++
	r.mu.Unlock()

	return r
}

// nextWeekdayAt returns the next Monday-Friday day after t at the given
// local time of day.
func nextWeekdayAt(t time.Time, hour, minute int) time.Time {
	day := t.AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, t.Location())
}
