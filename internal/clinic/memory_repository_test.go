package clinic

import (
	"context"
	"errors"
	"testing"
	"time"
)

// 2026-03-02 is a Monday, inside every test doctor's Mon-Fri window.
var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*MemoryRepository, Patient, Doctor) {
	t.Helper()
	repo := NewMemoryRepository()
	ctx := context.Background()

	p, err := repo.CreatePatient(ctx, NewPatient{
		FirstName: "Fabio",
		LastName:  "Di Marco",
		Email:     "fabio@test.com",
		Password:  "segreta",
		Phone:     "333 1234567",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	d, err := repo.CreateDoctor(ctx, NewDoctor{
		FirstName:         "Laura",
		LastName:          "Bianchi",
		Specialization:    "Cardiologia",
		Email:             "laura@clinica.test",
		Password:          "segreta",
		WeekdaysAvailable: "Mon,Tue,Wed,Thu,Fri",
		WorkStart:         9 * 60,
		WorkEnd:           17 * 60,
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return repo, *p, *d
}

func TestCreatePatientRoundTrip(t *testing.T) {
	repo, p, _ := newTestRepo(t)
	ctx := context.Background()

	if p.ID != 1 {
		t.Fatalf("first patient id = %d, want 1", p.ID)
	}

	got, err := repo.PatientByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("patient by id: %v", err)
	}
	if *got != p {
		t.Errorf("read back %+v, want %+v", *got, p)
	}

	// reading twice must not change anything
	again, err := repo.PatientByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if *again != *got {
		t.Errorf("second read %+v differs from first %+v", *again, *got)
	}
}

func TestCreatePatientDuplicateEmail(t *testing.T) {
	repo, p, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreatePatient(ctx, NewPatient{
		FirstName: "Altro",
		LastName:  "Utente",
		Email:     "FABIO@test.com", // same address, different case
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate create err = %v, want ErrDuplicateEmail", err)
	}

	list, err := repo.Patients(ctx)
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("patients after rejected duplicate = %+v, want just %+v", list, p)
	}
}

func TestPatientByIDMissing(t *testing.T) {
	repo, _, _ := newTestRepo(t)

	_, err := repo.PatientByID(context.Background(), 999)
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("err = %v, want ErrPatientNotFound", err)
	}
}

func TestDeletePatient(t *testing.T) {
	repo, p, _ := newTestRepo(t)
	ctx := context.Background()

	other, err := repo.CreatePatient(ctx, NewPatient{FirstName: "Sara", LastName: "Conti", Email: "sara@test.com"})
	if err != nil {
		t.Fatalf("create second patient: %v", err)
	}

	if err := repo.DeletePatient(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	list, _ := repo.Patients(ctx)
	if len(list) != 1 || list[0].ID != other.ID {
		t.Fatalf("patients after delete = %+v, want just %+v", list, *other)
	}

	// second delete of the same id reports not found
	if err := repo.DeletePatient(ctx, p.ID); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("repeat delete err = %v, want ErrPatientNotFound", err)
	}
	if list, _ = repo.Patients(ctx); len(list) != 1 {
		t.Errorf("repeat delete changed the collection: %+v", list)
	}
}

func TestUpdatePatientReplacesRecord(t *testing.T) {
	repo, p, _ := newTestRepo(t)
	ctx := context.Background()

	updated, err := repo.UpdatePatient(ctx, p.ID, Patient{
		ID:        42, // caller-supplied id is ignored
		FirstName: "Fabio",
		LastName:  "Di Marco",
		Email:     "fabio.nuovo@test.com",
		Phone:     "",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != p.ID {
		t.Errorf("updated id = %d, want %d", updated.ID, p.ID)
	}
	if updated.Email != "fabio.nuovo@test.com" || updated.Phone != "" {
		t.Errorf("update is not a full replacement: %+v", updated)
	}

	if _, err := repo.UpdatePatient(ctx, 999, *updated); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("update missing id err = %v, want ErrPatientNotFound", err)
	}
}

func TestCreateAppointment(t *testing.T) {
	repo, p, d := newTestRepo(t)
	ctx := context.Background()

	appt, err := repo.CreateAppointment(ctx, d.ID, p.ID, monday10)
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	if got, want := appt.EndTime, monday10.Add(d.Duration()); !got.Equal(want) {
		t.Errorf("end time = %v, want %v", got, want)
	}

	t.Run("missing doctor", func(t *testing.T) {
		_, err := repo.CreateAppointment(ctx, 999, p.ID, monday10.Add(2*time.Hour))
		if !errors.Is(err, ErrDoctorNotFound) {
			t.Errorf("err = %v, want ErrDoctorNotFound", err)
		}
	})
	t.Run("missing patient", func(t *testing.T) {
		_, err := repo.CreateAppointment(ctx, d.ID, 999, monday10.Add(2*time.Hour))
		if !errors.Is(err, ErrPatientNotFound) {
			t.Errorf("err = %v, want ErrPatientNotFound", err)
		}
	})
	t.Run("overlapping slot", func(t *testing.T) {
		_, err := repo.CreateAppointment(ctx, d.ID, p.ID, monday10.Add(10*time.Minute))
		if !errors.Is(err, ErrSlotTaken) {
			t.Errorf("err = %v, want ErrSlotTaken", err)
		}
	})
	t.Run("adjacent slot is free", func(t *testing.T) {
		if _, err := repo.CreateAppointment(ctx, d.ID, p.ID, appt.EndTime); err != nil {
			t.Errorf("back-to-back booking rejected: %v", err)
		}
	})
	t.Run("outside working window", func(t *testing.T) {
		evening := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
		_, err := repo.CreateAppointment(ctx, d.ID, p.ID, evening)
		if !errors.Is(err, ErrOutsideWorkingHours) {
			t.Errorf("err = %v, want ErrOutsideWorkingHours", err)
		}
	})
	t.Run("unavailable weekday", func(t *testing.T) {
		sunday := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		_, err := repo.CreateAppointment(ctx, d.ID, p.ID, sunday)
		if !errors.Is(err, ErrOutsideWorkingHours) {
			t.Errorf("err = %v, want ErrOutsideWorkingHours", err)
		}
	})
}

func TestCreateAppointmentEndsInsideWindow(t *testing.T) {
	repo, p, _ := newTestRepo(t)
	ctx := context.Background()

	d, err := repo.CreateDoctor(ctx, NewDoctor{
		FirstName:           "Marco",
		LastName:            "Neri",
		Specialization:      "Medicina Generale",
		Email:               "marco@clinica.test",
		WeekdaysAvailable:   "Mon,Tue,Wed,Thu,Fri",
		AppointmentDuration: 20,
		WorkStart:           22 * 60,
		WorkEnd:             23*60 + 50,
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	// 23:45 + 20m ends at 00:05 the next day, past the 23:50 close
	late := time.Date(2026, 3, 2, 23, 45, 0, 0, time.UTC)
	if _, err := repo.CreateAppointment(ctx, d.ID, p.ID, late); !errors.Is(err, ErrOutsideWorkingHours) {
		t.Errorf("slot running past the window err = %v, want ErrOutsideWorkingHours", err)
	}

	// 23:30 + 20m ends exactly at 23:50, the last bookable slot
	closing := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	if _, err := repo.CreateAppointment(ctx, d.ID, p.ID, closing); err != nil {
		t.Errorf("last slot of the day rejected: %v", err)
	}
}

func TestAppointmentsFilters(t *testing.T) {
	repo, p, d := newTestRepo(t)
	ctx := context.Background()

	p2, err := repo.CreatePatient(ctx, NewPatient{FirstName: "Sara", LastName: "Conti", Email: "sara@test.com"})
	if err != nil {
		t.Fatalf("create second patient: %v", err)
	}

	first, _ := repo.CreateAppointment(ctx, d.ID, p.ID, monday10)
	second, _ := repo.CreateAppointment(ctx, d.ID, p2.ID, monday10.Add(time.Hour))
	third, _ := repo.CreateAppointment(ctx, d.ID, p.ID, monday10.Add(2*time.Hour))
	if first == nil || second == nil || third == nil {
		t.Fatal("fixture bookings failed")
	}

	byPatient, err := repo.AppointmentsByPatient(ctx, p.ID)
	if err != nil {
		t.Fatalf("by patient: %v", err)
	}
	if len(byPatient) != 2 || byPatient[0].ID != first.ID || byPatient[1].ID != third.ID {
		t.Errorf("by patient = %+v, want [%d %d] in insertion order", byPatient, first.ID, third.ID)
	}

	byDoctor, err := repo.AppointmentsByDoctor(ctx, d.ID)
	if err != nil {
		t.Fatalf("by doctor: %v", err)
	}
	if len(byDoctor) != 3 {
		t.Errorf("by doctor returned %d appointments, want 3", len(byDoctor))
	}

	none, err := repo.AppointmentsByPatient(ctx, 999)
	if err != nil {
		t.Fatalf("by unknown patient: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown patient filter = %+v, want empty", none)
	}
}

func TestDeleteAppointmentMissing(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	if err := repo.DeleteAppointment(context.Background(), 1); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestMemoryLogin(t *testing.T) {
	repo, p, d := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Login(ctx, "FABIO@test.com", "whatever", RolePatient)
	if err != nil {
		t.Fatalf("patient login: %v", err)
	}
	if id.Role != RolePatient || id.Patient == nil || id.Patient.ID != p.ID {
		t.Errorf("identity = %+v, want patient %d", id, p.ID)
	}

	id, err = repo.Login(ctx, d.Email, "whatever", RoleDoctor)
	if err != nil {
		t.Fatalf("doctor login: %v", err)
	}
	if id.Role != RoleDoctor || id.Doctor == nil || id.Doctor.ID != d.ID {
		t.Errorf("identity = %+v, want doctor %d", id, d.ID)
	}

	if _, err := repo.Login(ctx, "nessuno@test.com", "x", RolePatient); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("unknown email err = %v, want ErrAuthFailed", err)
	}
	// role selects the collection, a patient email cannot log in as doctor
	if _, err := repo.Login(ctx, p.Email, "x", RoleDoctor); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("wrong role err = %v, want ErrAuthFailed", err)
	}
	if _, err := repo.Login(ctx, p.Email, "x", Role("X")); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("bad role err = %v, want ErrUnknownRole", err)
	}
}

func TestMemoryAuthenticate(t *testing.T) {
	repo, p, d := newTestRepo(t)
	ctx := context.Background()

	role, id, err := repo.Authenticate(ctx, Username(p.Email), "x")
	if err != nil || role != RolePatient || id != p.ID {
		t.Errorf("authenticate patient = (%s, %d, %v), want (P, %d, nil)", role, id, err, p.ID)
	}

	role, id, err = repo.Authenticate(ctx, d.Email, "x")
	if err != nil || role != RoleDoctor || id != d.ID {
		t.Errorf("authenticate doctor = (%s, %d, %v), want (D, %d, nil)", role, id, err, d.ID)
	}

	if _, _, err := repo.Authenticate(ctx, "nessuno@test.com", "x"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("unknown username err = %v, want ErrAuthFailed", err)
	}
}

func TestDemoRepositorySeedsData(t *testing.T) {
	repo := NewDemoRepository()
	ctx := context.Background()

	patients, err := repo.Patients(ctx)
	if err != nil || len(patients) == 0 {
		t.Fatalf("demo patients = (%d, %v), want some", len(patients), err)
	}
	doctors, err := repo.Doctors(ctx)
	if err != nil || len(doctors) == 0 {
		t.Fatalf("demo doctors = (%d, %v), want some", len(doctors), err)
	}
	appts, err := repo.Appointments(ctx)
	if err != nil || len(appts) == 0 {
		t.Fatalf("demo appointments = (%d, %v), want some", len(appts), err)
	}

	// new accounts must not collide with seeded ids
	p, err := repo.CreatePatient(ctx, NewPatient{FirstName: "Nuovo", LastName: "Paziente", Email: "nuovo@test.com"})
	if err != nil {
		t.Fatalf("create after seed: %v", err)
	}
	for _, existing := range patients {
		if existing.ID == p.ID {
			t.Fatalf("new patient reused seeded id %d", p.ID)
		}
	}
}
