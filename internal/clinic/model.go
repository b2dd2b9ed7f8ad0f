package clinic

import (
	"fmt"
	"strings"
	"time"
)

// Role selects which collection login and registration act on.
type Role string

const (
	RolePatient Role = "P"
	RoleDoctor  Role = "D"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// ClockTime is a time of day with minute resolution, rendered as "HH:MM".
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MinuteOfDay reports where t falls within its own day, ignoring the date.
func MinuteOfDay(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// Patient is a registered patient. ID 0 means not yet persisted.
type Patient struct {
	ID        int
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Doctor is a registered doctor with a weekly working window.
// Appointments last AppointmentDuration minutes and must start inside
// [WorkStart, WorkEnd) on one of the WeekdaysAvailable tokens.
type Doctor struct {
	ID                  int
	FirstName           string
	LastName            string
	Specialization      string
	Email               string
	Phone               string
	City                string
	AppointmentDuration int // minutes; 0 falls back to DefaultAppointmentDuration
	WeekdaysAvailable   string
	WorkStart           ClockTime
	WorkEnd             ClockTime
}

// DefaultAppointmentDuration is used when a doctor record carries no
// duration, matching the 20 minute bookings in the original seed data.
const DefaultAppointmentDuration = 20

// Duration returns the doctor's appointment length.
func (d Doctor) Duration() time.Duration {
	minutes := d.AppointmentDuration
	if minutes <= 0 {
		minutes = DefaultAppointmentDuration
	}
	return time.Duration(minutes) * time.Minute
}

// WorksOn reports whether the weekday token (e.g. "Mon") is in the
// doctor's availability set. An empty set means every day.
func (d Doctor) WorksOn(day time.Weekday) bool {
	if d.WeekdaysAvailable == "" {
		return true
	}
	token := day.String()[:3]
	for _, t := range strings.Split(d.WeekdaysAvailable, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}

// Validate checks the invariants a doctor record must hold before it can
// be persisted.
func (d Doctor) Validate() error {
	if d.AppointmentDuration < 0 {
		return fmt.Errorf("appointment duration cannot be negative, got %d", d.AppointmentDuration)
	}
	if d.WorkStart != 0 || d.WorkEnd != 0 {
		if d.WorkStart >= d.WorkEnd {
			return fmt.Errorf("work window %s-%s is empty", d.WorkStart, d.WorkEnd)
		}
	}
	return nil
}

// Appointment links a patient to a doctor for one time slot.
// EndTime is always derived from StartTime plus the doctor's duration.
type Appointment struct {
	ID        int
	PatientID int
	DoctorID  int
	StartTime time.Time
	EndTime   time.Time
}

// Overlaps reports whether two half-open time ranges intersect.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

// Identity is the outcome of a successful login: the role that matched
// and the record it matched against.
type Identity struct {
	Role    Role
	Patient *Patient
	Doctor  *Doctor
}

// DisplayName returns a short human readable name for logs.
func (id Identity) DisplayName() string {
	switch {
	case id.Patient != nil:
		return id.Patient.FirstName + " " + id.Patient.LastName
	case id.Doctor != nil:
		return id.Doctor.FirstName + " " + id.Doctor.LastName
	default:
		return "unknown"
	}
}

// Username derives the login username bundled with patient/doctor
// registration. The original client registered accounts under the
// lowercased email address.
func Username(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
