package clinic

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrDuplicateEmail rejects a create whose email already exists in
	// the collection. The email is the login identity, so this is a hard
	// conflict rather than a soft no-op.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrSlotTaken rejects an appointment that overlaps an existing
	// booking for the same doctor.
	ErrSlotTaken = errors.New("doctor already booked for that time")

	// ErrOutsideWorkingHours rejects an appointment starting outside the
	// doctor's working window or on a day the doctor is not available.
	ErrOutsideWorkingHours = errors.New("start time outside doctor working hours")

	ErrAuthFailed  = errors.New("invalid credentials")
	ErrUnknownRole = errors.New("unknown role token")
)

// NewPatient carries everything needed to register a patient. Password is
// forwarded to backends that store credentials and ignored by the mock.
type NewPatient struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
}

// NewDoctor carries everything needed to register a doctor.
type NewDoctor struct {
	FirstName           string
	LastName            string
	Specialization      string
	Email               string
	Password            string
	Phone               string
	City                string
	AppointmentDuration int
	WeekdaysAvailable   string
	WorkStart           ClockTime
	WorkEnd             ClockTime
}

func (nd NewDoctor) Doctor() Doctor {
	return Doctor{
		FirstName:           nd.FirstName,
		LastName:            nd.LastName,
		Specialization:      nd.Specialization,
		Email:               nd.Email,
		Phone:               nd.Phone,
		City:                nd.City,
		AppointmentDuration: nd.AppointmentDuration,
		WeekdaysAvailable:   nd.WeekdaysAvailable,
		WorkStart:           nd.WorkStart,
		WorkEnd:             nd.WorkEnd,
	}
}

// Repository is the contract every backend satisfies: the in-memory mock,
// the HTTP client talking to a remote server, and the Postgres store the
// server itself runs on. Callers never know which one they hold.
//
// List results preserve insertion order. Reads and deletes of a missing
// id return the kind's NotFound error; callers that want idempotent
// deletes ignore it (the session controller does, and emits no event).
type Repository interface {
	CreatePatient(ctx context.Context, np NewPatient) (*Patient, error)
	CreateDoctor(ctx context.Context, nd NewDoctor) (*Doctor, error)
	// CreateAppointment derives the end time from the doctor's
	// appointment duration and validates that both referenced records
	// exist and the slot is free.
	CreateAppointment(ctx context.Context, doctorID, patientID int, start time.Time) (*Appointment, error)

	PatientByID(ctx context.Context, id int) (*Patient, error)
	DoctorByID(ctx context.Context, id int) (*Doctor, error)
	AppointmentByID(ctx context.Context, id int) (*Appointment, error)

	Patients(ctx context.Context) ([]Patient, error)
	Doctors(ctx context.Context) ([]Doctor, error)
	Appointments(ctx context.Context) ([]Appointment, error)
	AppointmentsByPatient(ctx context.Context, patientID int) ([]Appointment, error)
	AppointmentsByDoctor(ctx context.Context, doctorID int) ([]Appointment, error)

	// UpdatePatient and UpdateDoctor replace every field of the record
	// identified by id, keeping the id itself.
	UpdatePatient(ctx context.Context, id int, p Patient) (*Patient, error)
	UpdateDoctor(ctx context.Context, id int, d Doctor) (*Doctor, error)

	DeletePatient(ctx context.Context, id int) error
	DeleteDoctor(ctx context.Context, id int) error
	DeleteAppointment(ctx context.Context, id int) error

	Login(ctx context.Context, email, password string, role Role) (*Identity, error)
}
