package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Backend is the persistence contract the store is written against. Any
// storage that keeps the appointment fields and offers read-your-writes
// consistency satisfies it.
type Backend interface {
	ReadAllRows(ctx context.Context) ([]Appointment, error)
	// AppendRow stores rec and returns the identifier the backend assigned.
	AppendRow(ctx context.Context, rec Appointment) (string, error)
	// UpdateRow overwrites every field of the record identified by rec.ID in one write.
	UpdateRow(ctx context.Context, rec Appointment) error
	FindRow(ctx context.Context, id string) (Appointment, bool, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Store is the appointment CRUD surface used by the handlers and the availability queries.
type Store struct {
	backend  Backend
	locker   SlotLocker
	schedule Schedule
	logger   *slog.Logger
	clock    func() time.Time
}

func NewStore(backend Backend, locker SlotLocker, schedule Schedule, logger *slog.Logger) *Store {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		locker:   locker,
		schedule: schedule,
		logger:   logger,
		clock:    time.Now,
	}
}

func (s *Store) Create(ctx context.Context, in NewAppointment) (Appointment, error) {
	rec := NewAppointmentChangesFrom(in).apply(Appointment{Status: StatusConfirmed})
	if rec.PresentationTime == "" {
		rec.PresentationTime = s.schedule.Time
	}
	if err := requireFields(rec); err != nil {
		return Appointment{}, err
	}
	slot, err := s.schedule.ValidateSlot(rec.Slot(), s.clock())
	if err != nil {
		return Appointment{}, err
	}
	rec.PresentationDate, rec.PresentationTime = slot.Date, slot.Time

	unlock, err := s.locker.Lock(ctx, slotKey(slot))
	if err != nil {
		return Appointment{}, persistErr("lock slot", err)
	}
	defer unlock()

	rows, err := s.backend.ReadAllRows(ctx)
	if err != nil {
		return Appointment{}, persistErr("read appointments", err)
	}
	if !IsSlotOpen(slot, rows) {
		return Appointment{}, &SlotTakenError{Slot: slot}
	}

	id, err := s.backend.AppendRow(ctx, rec)
	if err != nil {
		s.logger.Error("append appointment failed", "slot", slot.String(), "err", err)
		return Appointment{}, persistErr("append appointment", err)
	}
	if id == "" {
		return Appointment{}, &PersistenceError{Op: "append appointment", Err: errors.New("write not confirmed")}
	}
	rec.ID = id

	s.logger.Info("appointment booked", "id", rec.ID, "slot", slot.String(), "company", rec.CompanyName)
	return rec, nil
}

// ListAll returns every appointment, cancelled ones included, in storage order.
func (s *Store) ListAll(ctx context.Context) ([]Appointment, error) {
	rows, err := s.backend.ReadAllRows(ctx)
	if err != nil {
		return nil, persistErr("read appointments", err)
	}
	if rows == nil {
		rows = []Appointment{}
	}
	return rows, nil
}

// GetByID reports a missing id through the bool, never through the error.
func (s *Store) GetByID(ctx context.Context, id string) (Appointment, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Appointment{}, false, nil
	}
	rec, ok, err := s.backend.FindRow(ctx, id)
	if err != nil {
		return Appointment{}, false, persistErr("find appointment", err)
	}
	return rec, ok, nil
}

// Update applies changes to a live appointment. Moving it to another slot
// marks it Rescheduled; cancelled appointments are immutable.
func (s *Store) Update(ctx context.Context, id string, changes AppointmentChanges) (Appointment, error) {
	id = strings.TrimSpace(id)
	unlock, err := s.locker.Lock(ctx, recordKey(id))
	if err != nil {
		return Appointment{}, persistErr("lock appointment", err)
	}
	defer unlock()

	cur, err := s.mustFind(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if cur.Status == StatusCancelled {
		return Appointment{}, &InvalidStateError{ID: id, Status: cur.Status}
	}
	if changes.IsEmpty() {
		return cur, nil
	}

	next := changes.apply(cur)
	if err := requireFields(next); err != nil {
		return Appointment{}, err
	}

	if canonicalSlot(next.Slot()) != canonicalSlot(cur.Slot()) {
		slot, err := s.schedule.ValidateSlot(next.Slot(), s.clock())
		if err != nil {
			return Appointment{}, err
		}
		next.PresentationDate, next.PresentationTime = slot.Date, slot.Time
		next.Status = StatusRescheduled

		release, err := s.locker.Lock(ctx, slotKey(slot))
		if err != nil {
			return Appointment{}, persistErr("lock slot", err)
		}
		defer release()

		rows, err := s.backend.ReadAllRows(ctx)
		if err != nil {
			return Appointment{}, persistErr("read appointments", err)
		}
		if !IsSlotOpen(slot, Except(rows, id)) {
			return Appointment{}, &SlotTakenError{Slot: slot}
		}
	} else {
		next.PresentationDate, next.PresentationTime = cur.PresentationDate, cur.PresentationTime
	}

	if err := s.backend.UpdateRow(ctx, next); err != nil {
		s.logger.Error("update appointment failed", "id", id, "err", err)
		return Appointment{}, persistErr("update appointment", err)
	}

	if next.Status != cur.Status {
		s.logger.Info("appointment rescheduled", "id", id, "from", cur.Slot().String(), "to", next.Slot().String())
	} else {
		s.logger.Info("appointment updated", "id", id)
	}
	return next, nil
}

// Cancel marks an appointment Cancelled. Cancelling twice is not an error.
func (s *Store) Cancel(ctx context.Context, id string) (Appointment, error) {
	id = strings.TrimSpace(id)
	unlock, err := s.locker.Lock(ctx, recordKey(id))
	if err != nil {
		return Appointment{}, persistErr("lock appointment", err)
	}
	defer unlock()

	cur, err := s.mustFind(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if cur.Status == StatusCancelled {
		return cur, nil
	}

	cur.Status = StatusCancelled
	if err := s.backend.UpdateRow(ctx, cur); err != nil {
		s.logger.Error("cancel appointment failed", "id", id, "err", err)
		return Appointment{}, persistErr("cancel appointment", err)
	}
	s.logger.Info("appointment cancelled", "id", id, "slot", cur.Slot().String())
	return cur, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) mustFind(ctx context.Context, id string) (Appointment, error) {
	if id == "" {
		return Appointment{}, &NotFoundError{ID: id}
	}
	cur, ok, err := s.backend.FindRow(ctx, id)
	if err != nil {
		return Appointment{}, persistErr("find appointment", err)
	}
	if !ok {
		return Appointment{}, &NotFoundError{ID: id}
	}
	return cur, nil
}

// NewAppointmentChangesFrom expresses a booking request as a full change set.
func NewAppointmentChangesFrom(in NewAppointment) AppointmentChanges {
	return AppointmentChanges{
		CompanyName:      &in.CompanyName,
		ProjectName:      &in.ProjectName,
		Area:             &in.Area,
		PresentationDate: &in.PresentationDate,
		PresentationTime: &in.PresentationTime,
		Representative:   &in.Representative,
	}
}

func requireFields(a Appointment) error {
	required := []struct {
		field string
		value string
	}{
		{"company_name", a.CompanyName},
		{"project_name", a.ProjectName},
		{"area", a.Area},
		{"developer_representative", a.Representative},
		{"presentation_date", a.PresentationDate},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	return nil
}

// canonicalSlot normalizes well-formed values so "12:00:00" and "12:00" compare equal.
func canonicalSlot(s Slot) Slot {
	if d, err := time.Parse(DateLayout, s.Date); err == nil {
		s.Date = d.Format(DateLayout)
	}
	if t, err := parseHHMM(s.Time); err == nil {
		s.Time = t.Format("15:04")
	}
	return s
}

func slotKey(s Slot) string     { return "slot:" + s.Date + "T" + s.Time }
func recordKey(id string) string { return "appointment:" + id }
