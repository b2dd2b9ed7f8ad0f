package clinic

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// MemoryRepository implements Repository over local slices. It is the
// fallback backend when the remote server cannot be reached, and doubles
// as the server's own store when Postgres is down. Nothing is persisted.
//
// Collections keep insertion order. A single mutex guards all three; the
// original ran on one logical thread, this port does not get to assume
// that.
type MemoryRepository struct {
	mu sync.RWMutex

	patients     []Patient
	doctors      []Doctor
	appointments []Appointment

	nextPatientID     int
	nextDoctorID      int
	nextAppointmentID int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextPatientID:     1,
		nextDoctorID:      1,
		nextAppointmentID: 1,
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.patients {
		if strings.EqualFold(p.Email, np.Email) {
			log.Printf("memory: duplicate patient email %s rejected", np.Email)
			return nil, ErrDuplicateEmail
		}
	}

	p := Patient{
		ID:        r.nextPatientID,
		FirstName: np.FirstName,
		LastName:  np.LastName,
		Email:     np.Email,
		Phone:     np.Phone,
	}
	r.nextPatientID++
	r.patients = append(r.patients, p)

	// Password intentionally dropped: the mock backend has no real
	// authentication and Login never verifies it.
	return &p, nil
}

func (r *MemoryRepository) CreateDoctor(ctx context.Context, nd NewDoctor) (*Doctor, error) {
	d := nd.Doctor()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.doctors {
		if strings.EqualFold(existing.Email, nd.Email) {
			log.Printf("memory: duplicate doctor email %s rejected", nd.Email)
			return nil, ErrDuplicateEmail
		}
	}

	d.ID = r.nextDoctorID
	r.nextDoctorID++
	r.doctors = append(r.doctors, d)
	return &d, nil
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, doctorID, patientID int, start time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doctor, ok := r.findDoctor(doctorID)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if _, ok := r.findPatient(patientID); !ok {
		return nil, ErrPatientNotFound
	}

	end := start.Add(doctor.Duration())
	if err := checkWorkingHours(doctor, start, end); err != nil {
		return nil, err
	}
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Overlaps(start, end) {
			return nil, ErrSlotTaken
		}
	}

	appt := Appointment{
		ID:        r.nextAppointmentID,
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
	}
	r.nextAppointmentID++
	r.appointments = append(r.appointments, appt)
	return &appt, nil
}

// checkWorkingHours enforces the window the original never did: the slot
// must fall on an available weekday and inside [WorkStart, WorkEnd].
func checkWorkingHours(d Doctor, start, end time.Time) error {
	if !d.WorksOn(start.Weekday()) {
		return ErrOutsideWorkingHours
	}
	if d.WorkStart == 0 && d.WorkEnd == 0 {
		return nil
	}
	// the end minute is counted from the start, so a slot running past
	// midnight cannot wrap back inside the window
	endMinute := MinuteOfDay(start) + ClockTime(end.Sub(start)/time.Minute)
	if MinuteOfDay(start) < d.WorkStart || endMinute > d.WorkEnd {
		return ErrOutsideWorkingHours
	}
	return nil
}

func (r *MemoryRepository) PatientByID(ctx context.Context, id int) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.findPatient(id); ok {
		return &p, nil
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) DoctorByID(ctx context.Context, id int) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.findDoctor(id); ok {
		return &d, nil
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) AppointmentByID(ctx context.Context, id int) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.appointments {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) Patients(ctx context.Context) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patient, len(r.patients))
	copy(out, r.patients)
	return out, nil
}

func (r *MemoryRepository) Doctors(ctx context.Context) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Doctor, len(r.doctors))
	copy(out, r.doctors)
	return out, nil
}

func (r *MemoryRepository) Appointments(ctx context.Context) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, len(r.appointments))
	copy(out, r.appointments)
	return out, nil
}

func (r *MemoryRepository) AppointmentsByPatient(ctx context.Context, patientID int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Appointment{}
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) AppointmentsByDoctor(ctx context.Context, doctorID int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Appointment{}
	for _, a := range r.appointments {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpdatePatient(ctx context.Context, id int, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.patients {
		if r.patients[i].ID == id {
			p.ID = id
			r.patients[i] = p
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) UpdateDoctor(ctx context.Context, id int, d Doctor) (*Doctor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.doctors {
		if r.doctors[i].ID == id {
			d.ID = id
			r.doctors[i] = d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) DeletePatient(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.patients {
		if r.patients[i].ID == id {
			r.patients = append(r.patients[:i], r.patients[i+1:]...)
			return nil
		}
	}
	return ErrPatientNotFound
}

func (r *MemoryRepository) DeleteDoctor(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.doctors {
		if r.doctors[i].ID == id {
			r.doctors = append(r.doctors[:i], r.doctors[i+1:]...)
			return nil
		}
	}
	return ErrDoctorNotFound
}

func (r *MemoryRepository) DeleteAppointment(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.appointments {
		if r.appointments[i].ID == id {
			r.appointments = append(r.appointments[:i], r.appointments[i+1:]...)
			return nil
		}
	}
	return ErrAppointmentNotFound
}

// Login matches by email only. The mock backend stores no credentials, so
// the password is accepted without verification.
func (r *MemoryRepository) Login(ctx context.Context, email, password string, role Role) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch role {
	case RolePatient:
		for _, p := range r.patients {
			if strings.EqualFold(p.Email, email) {
				found := p
				return &Identity{Role: RolePatient, Patient: &found}, nil
			}
		}
		return nil, ErrAuthFailed
	case RoleDoctor:
		for _, d := range r.doctors {
			if strings.EqualFold(d.Email, email) {
				found := d
				return &Identity{Role: RoleDoctor, Doctor: &found}, nil
			}
		}
		return nil, ErrAuthFailed
	default:
		return nil, ErrUnknownRole
	}
}

// Authenticate resolves a username to whichever account carries it,
// patients first. The mock stores no credentials so the password is not
// checked, same as Login.
func (r *MemoryRepository) Authenticate(ctx context.Context, username, password string) (Role, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if Username(p.Email) == Username(username) {
			return RolePatient, p.ID, nil
		}
	}
	for _, d := range r.doctors {
		if Username(d.Email) == Username(username) {
			return RoleDoctor, d.ID, nil
		}
	}
	return "", 0, ErrAuthFailed
}

// callers must hold the mutex
func (r *MemoryRepository) findPatient(id int) (Patient, bool) {
	for _, p := range r.patients {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

func (r *MemoryRepository) findDoctor(id int) (Doctor, bool) {
	for _, d := range r.doctors {
		if d.ID == id {
			return d, true
		}
	}
	return Doctor{}, false
}
