package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores appointments in the appointments table. The partial
// unique index appointments_active_slot_idx keeps one live booking per slot.
type PostgresBackend struct {
	DB *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{DB: pool}
}

const appointmentColumns = `id, company_name, project_name, area,
	to_char(presentation_date, 'YYYY-MM-DD'), presentation_time, developer_representative, status`

func (b *PostgresBackend) ReadAllRows(ctx context.Context) ([]Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments ORDER BY created_at, id`
	rows, err := b.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *PostgresBackend) AppendRow(ctx context.Context, rec Appointment) (string, error) {
	date, err := time.Parse(DateLayout, rec.PresentationDate)
	if err != nil {
		return "", err
	}

	q := `INSERT INTO appointments
          (company_name, project_name, area, presentation_date, presentation_time, developer_representative, status)
          VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`

	var id string
	err = b.DB.QueryRow(ctx, q,
		rec.CompanyName, rec.ProjectName, rec.Area, date, rec.PresentationTime,
		rec.Representative, string(rec.Status)).Scan(&id)
	if isSlotConflict(err) {
		return "", &SlotTakenError{Slot: rec.Slot()}
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *PostgresBackend) UpdateRow(ctx context.Context, rec Appointment) error {
	date, err := time.Parse(DateLayout, rec.PresentationDate)
	if err != nil {
		return err
	}

	q := `UPDATE appointments
          SET company_name=$2, project_name=$3, area=$4, presentation_date=$5,
              presentation_time=$6, developer_representative=$7, status=$8, updated_at=now()
          WHERE id=$1`

	tag, err := b.DB.Exec(ctx, q,
		rec.ID, rec.CompanyName, rec.ProjectName, rec.Area, date,
		rec.PresentationTime, rec.Representative, string(rec.Status))
	if isSlotConflict(err) {
		return &SlotTakenError{Slot: rec.Slot()}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: rec.ID}
	}
	return nil
}

func (b *PostgresBackend) FindRow(ctx context.Context, id string) (Appointment, bool, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	a, err := scanAppointment(b.DB.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, false, nil
	}
	if err != nil {
		return Appointment{}, false, err
	}
	return a, true, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	if b.DB == nil {
		return errors.New("db not configured")
	}
	return b.DB.Ping(ctx)
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.CompanyName, &a.ProjectName, &a.Area,
		&a.PresentationDate, &a.PresentationTime, &a.Representative, &status); err != nil {
		return Appointment{}, err
	}
	a.Status = Status(status)
	if !a.Status.Valid() {
		return Appointment{}, fmt.Errorf("appointment %s has unknown status %q", a.ID, status)
	}
	return a, nil
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_active_slot_idx"
}

// OpenPool connects to Postgres with the pool limits the service runs with.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
