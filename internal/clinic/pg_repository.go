package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

// PgRepository is the server-side backend over Postgres. Unlike the mock
// it stores credentials (bcrypt) and verifies them at login.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var workStart, workEnd int
	err := row.Scan(
		&d.ID,
		&d.FirstName,
		&d.LastName,
		&d.Specialization,
		&d.Email,
		&d.Phone,
		&d.City,
		&d.AppointmentDuration,
		&d.WeekdaysAvailable,
		&workStart,
		&workEnd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	d.WorkStart = ClockTime(workStart)
	d.WorkEnd = ClockTime(workEnd)
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Interface methods

func (r *PgRepository) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(np.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p := Patient{
		FirstName: np.FirstName,
		LastName:  np.LastName,
		Email:     np.Email,
		Phone:     np.Phone,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO paziente (nome, cognome, email, telefono)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.FirstName, p.LastName, p.Email, p.Phone).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO login (username, password, ruolo, id_paziente)
		VALUES ($1, $2, $3, $4)
	`, Username(np.Email), string(hash), string(RolePatient), p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert patient login: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, nd NewDoctor) (*Doctor, error) {
	d := nd.Doctor()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO dottore (nome, cognome, specializzazione, email, telefono, citta,
		                     durata_appuntamento, giorni_disponibili, inizio_orario, fine_orario)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, d.FirstName, d.LastName, d.Specialization, d.Email, d.Phone, d.City,
		d.AppointmentDuration, d.WeekdaysAvailable, int(d.WorkStart), int(d.WorkEnd)).Scan(&d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO login (username, password, ruolo, id_dottore)
		VALUES ($1, $2, $3, $4)
	`, Username(nd.Email), string(hash), string(RoleDoctor), d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert doctor login: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, doctorID, patientID int, start time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	doctor, err := scanDoctor(tx.QueryRow(ctx, selectDoctor+` WHERE id = $1`, doctorID))
	if err != nil {
		return nil, err
	}
	if _, err := scanPatient(tx.QueryRow(ctx, selectPatient+` WHERE id = $1`, patientID)); err != nil {
		return nil, err
	}

	end := start.Add(doctor.Duration())
	if err := checkWorkingHours(*doctor, start, end); err != nil {
		return nil, err
	}

	var overlap bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM prenotazione
			WHERE id_dottore = $1
			  AND inizio < $3
			  AND fine > $2
		)
	`, doctorID, start, end).Scan(&overlap)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlap {
		return nil, ErrSlotTaken
	}

	appt := Appointment{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO prenotazione (id_paziente, id_dottore, inizio, fine)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, patientID, doctorID, start, end).Scan(&appt.ID)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &appt, nil
}

const (
	selectPatient = `SELECT id, nome, cognome, email, telefono FROM paziente`
	selectDoctor  = `SELECT id, nome, cognome, specializzazione, email, telefono, citta,
	                        durata_appuntamento, giorni_disponibili, inizio_orario, fine_orario
	                 FROM dottore`
	selectAppointment = `SELECT id, id_paziente, id_dottore, inizio, fine FROM prenotazione`
)

func (r *PgRepository) PatientByID(ctx context.Context, id int) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, selectPatient+` WHERE id = $1`, id))
}

func (r *PgRepository) DoctorByID(ctx context.Context, id int) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, selectDoctor+` WHERE id = $1`, id))
}

func (r *PgRepository) AppointmentByID(ctx context.Context, id int) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, selectAppointment+` WHERE id = $1`, id))
}

func (r *PgRepository) Patients(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, selectPatient+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Patient{}
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgRepository) Doctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, selectDoctor+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Doctor{}
	for rows.Next() {
		var d Doctor
		var workStart, workEnd int
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialization, &d.Email,
			&d.Phone, &d.City, &d.AppointmentDuration, &d.WeekdaysAvailable,
			&workStart, &workEnd); err != nil {
			return nil, err
		}
		d.WorkStart = ClockTime(workStart)
		d.WorkEnd = ClockTime(workEnd)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgRepository) Appointments(ctx context.Context) ([]Appointment, error) {
	return r.appointmentList(ctx, selectAppointment+` ORDER BY id`)
}

func (r *PgRepository) AppointmentsByPatient(ctx context.Context, patientID int) ([]Appointment, error) {
	return r.appointmentList(ctx, selectAppointment+` WHERE id_paziente = $1 ORDER BY id`, patientID)
}

func (r *PgRepository) AppointmentsByDoctor(ctx context.Context, doctorID int) ([]Appointment, error) {
	return r.appointmentList(ctx, selectAppointment+` WHERE id_dottore = $1 ORDER BY id`, doctorID)
}

func (r *PgRepository) appointmentList(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdatePatient(ctx context.Context, id int, p Patient) (*Patient, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE paziente SET nome = $2, cognome = $3, email = $4, telefono = $5
		WHERE id = $1
	`, id, p.FirstName, p.LastName, p.Email, p.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPatientNotFound
	}
	p.ID = id
	return &p, nil
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id int, d Doctor) (*Doctor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE dottore SET nome = $2, cognome = $3, specializzazione = $4, email = $5,
		                   telefono = $6, citta = $7, durata_appuntamento = $8,
		                   giorni_disponibili = $9, inizio_orario = $10, fine_orario = $11
		WHERE id = $1
	`, id, d.FirstName, d.LastName, d.Specialization, d.Email, d.Phone, d.City,
		d.AppointmentDuration, d.WeekdaysAvailable, int(d.WorkStart), int(d.WorkEnd))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDoctorNotFound
	}
	d.ID = id
	return &d, nil
}

func (r *PgRepository) DeletePatient(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM paziente WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) DeleteDoctor(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dottore WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM prenotazione WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Authenticate verifies the bcrypt hash stored for the username and
// returns the role and record id of the matching account.
func (r *PgRepository) Authenticate(ctx context.Context, username, password string) (Role, int, error) {
	var (
		hash      string
		ruolo     string
		patientID *int
		doctorID  *int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT password, ruolo, id_paziente, id_dottore
		FROM login
		WHERE username = $1
	`, Username(username)).Scan(&hash, &ruolo, &patientID, &doctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, fmt.Errorf("%w: user not found", ErrAuthFailed)
		}
		return "", 0, fmt.Errorf("load login row: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", 0, fmt.Errorf("%w: wrong password", ErrAuthFailed)
	}

	switch Role(ruolo) {
	case RolePatient:
		if patientID == nil {
			return "", 0, fmt.Errorf("%w: login row has no patient", ErrAuthFailed)
		}
		return RolePatient, *patientID, nil
	case RoleDoctor:
		if doctorID == nil {
			return "", 0, fmt.Errorf("%w: login row has no doctor", ErrAuthFailed)
		}
		return RoleDoctor, *doctorID, nil
	default:
		return "", 0, fmt.Errorf("%w: login row has role %q", ErrAuthFailed, ruolo)
	}
}

func (r *PgRepository) Login(ctx context.Context, email, password string, role Role) (*Identity, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}

	found, id, err := r.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if found != role {
		return nil, fmt.Errorf("%w: account registered with a different role", ErrAuthFailed)
	}

	switch role {
	case RolePatient:
		p, err := r.PatientByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Identity{Role: RolePatient, Patient: p}, nil
	default:
		d, err := r.DoctorByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Identity{Role: RoleDoctor, Doctor: d}, nil
	}
}
