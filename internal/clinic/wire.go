package clinic

import (
	"fmt"
	"strings"
	"time"
)

// The wire protocol keeps the field names and date format of the original
// server (Italian, "YYYY-MM-DD hh:mm:ss" timestamps). Both the HTTP
// backend and the server handlers speak these shapes; the rest of the
// code only ever sees the model types.

const wireTimeLayout = "2006-01-02 15:04:05"

// WireTime marshals as "2006-01-02 15:04:05" instead of RFC 3339.
type WireTime struct {
	time.Time
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(wireTimeLayout) + `"`), nil
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(wireTimeLayout, s)
	if err != nil {
		// some producers send RFC 3339, accept it too
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse wire time %q: %w", s, err)
		}
	}
	t.Time = parsed
	return nil
}

type PatientDTO struct {
	ID        int    `json:"id"`
	FirstName string `json:"nome"`
	LastName  string `json:"cognome"`
	Email     string `json:"email"`
	Phone     string `json:"telefono"`
}

func ToPatientDTO(p Patient) PatientDTO {
	return PatientDTO{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
	}
}

func (d PatientDTO) Patient() Patient {
	return Patient{
		ID:        d.ID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Phone:     d.Phone,
	}
}

type DoctorDTO struct {
	ID                  int    `json:"id"`
	FirstName           string `json:"nome"`
	LastName            string `json:"cognome"`
	Specialization      string `json:"specializzazione"`
	Email               string `json:"email"`
	Phone               string `json:"telefono"`
	City                string `json:"citta"`
	AppointmentDuration int    `json:"durataAppuntamento,omitempty"`
	WeekdaysAvailable   string `json:"giorniDisponibili,omitempty"`
	WorkStart           string `json:"inizioOrario,omitempty"`
	WorkEnd             string `json:"fineOrario,omitempty"`
}

func ToDoctorDTO(d Doctor) DoctorDTO {
	dto := DoctorDTO{
		ID:                  d.ID,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Specialization:      d.Specialization,
		Email:               d.Email,
		Phone:               d.Phone,
		City:                d.City,
		AppointmentDuration: d.AppointmentDuration,
		WeekdaysAvailable:   d.WeekdaysAvailable,
	}
	if d.WorkStart != 0 || d.WorkEnd != 0 {
		dto.WorkStart = d.WorkStart.String()
		dto.WorkEnd = d.WorkEnd.String()
	}
	return dto
}

func (d DoctorDTO) Doctor() (Doctor, error) {
	doc := Doctor{
		ID:                  d.ID,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Specialization:      d.Specialization,
		Email:               d.Email,
		Phone:               d.Phone,
		City:                d.City,
		AppointmentDuration: d.AppointmentDuration,
		WeekdaysAvailable:   d.WeekdaysAvailable,
	}
	if d.WorkStart != "" {
		start, err := ParseClockTime(d.WorkStart)
		if err != nil {
			return Doctor{}, err
		}
		doc.WorkStart = start
	}
	if d.WorkEnd != "" {
		end, err := ParseClockTime(d.WorkEnd)
		if err != nil {
			return Doctor{}, err
		}
		doc.WorkEnd = end
	}
	return doc, nil
}

type AppointmentDTO struct {
	ID        int      `json:"id"`
	PatientID int      `json:"idPaziente"`
	DoctorID  int      `json:"idDottore"`
	StartTime WireTime `json:"inizioAppuntamento"`
	EndTime   WireTime `json:"fineAppuntamento"`
}

func ToAppointmentDTO(a Appointment) AppointmentDTO {
	return AppointmentDTO{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartTime: WireTime{a.StartTime},
		EndTime:   WireTime{a.EndTime},
	}
}

func (d AppointmentDTO) Appointment() Appointment {
	return Appointment{
		ID:        d.ID,
		PatientID: d.PatientID,
		DoctorID:  d.DoctorID,
		StartTime: d.StartTime.Time,
		EndTime:   d.EndTime.Time,
	}
}

// CreateAppointmentRequest is the body of POST /api/creaprenotazione.
type CreateAppointmentRequest struct {
	PatientID int      `json:"idPaziente"`
	DoctorID  int      `json:"idDottore"`
	StartTime WireTime `json:"inizioAppuntamento"`
}

// RegisterRequest is the body of POST /api/register. Doctor-only fields
// stay empty for patient registrations.
type RegisterRequest struct {
	Username            string `json:"username"`
	Password            string `json:"password"`
	Role                string `json:"ruolo"`
	FirstName           string `json:"nome"`
	LastName            string `json:"cognome"`
	Email               string `json:"email"`
	Phone               string `json:"telefono"`
	Specialization      string `json:"specializzazione,omitempty"`
	City                string `json:"citta,omitempty"`
	AppointmentDuration int    `json:"durataAppuntamento,omitempty"`
	WeekdaysAvailable   string `json:"giorniDisponibili,omitempty"`
	WorkStart           string `json:"inizioOrario,omitempty"`
	WorkEnd             string `json:"fineOrario,omitempty"`
}

type RegisterResponse struct {
	Message   string `json:"message"`
	PatientID int    `json:"idPaziente,omitempty"`
	DoctorID  int    `json:"idDottore,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Role    string `json:"ruolo"`
	ID      int    `json:"id"`
}
