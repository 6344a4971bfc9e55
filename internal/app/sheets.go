package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetHeader is the column layout of the booking spreadsheet, row 1.
var sheetHeader = []interface{}{
	"ID", "Company Name", "Project Name", "Area",
	"Presentation Date", "Time", "Developer Representative", "Status",
}

// SheetsBackend keeps one appointment per spreadsheet row, below a header row.
// Sheets has no uniqueness constraints, so slot exclusivity relies on the
// store's SlotLocker.
type SheetsBackend struct {
	srv           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsService authenticates with a service account key file.
func NewSheetsService(ctx context.Context, credentialsFile string) (*sheets.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
}

func NewSheetsBackend(srv *sheets.Service, spreadsheetID, sheet string) *SheetsBackend {
	if sheet == "" {
		sheet = "Appointments"
	}
	return &SheetsBackend{srv: srv, spreadsheetID: spreadsheetID, sheet: sheet}
}

// EnsureHeader writes the header row into an empty sheet.
func (b *SheetsBackend) EnsureHeader(ctx context.Context) error {
	resp, err := b.srv.Spreadsheets.Values.Get(b.spreadsheetID, b.rng("A1:H1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = b.srv.Spreadsheets.Values.Update(b.spreadsheetID, b.rng("A1:H1"), &sheets.ValueRange{
		Values: [][]interface{}{sheetHeader},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet header: %w", err)
	}
	return nil
}

func (b *SheetsBackend) ReadAllRows(ctx context.Context) ([]Appointment, error) {
	rows, err := b.readRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.appt)
	}
	return out, nil
}

func (b *SheetsBackend) AppendRow(ctx context.Context, rec Appointment) (string, error) {
	rec.ID = uuid.NewString()
	resp, err := b.srv.Spreadsheets.Values.Append(b.spreadsheetID, b.rng("A:H"), &sheets.ValueRange{
		Values: [][]interface{}{appointmentToRow(rec)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil || resp.Updates.UpdatedRows != 1 {
		return "", errors.New("sheet append not confirmed")
	}
	return rec.ID, nil
}

func (b *SheetsBackend) UpdateRow(ctx context.Context, rec Appointment) error {
	row, ok, err := b.find(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{ID: rec.ID}
	}
	rng := b.rng(fmt.Sprintf("A%d:H%d", row.number, row.number))
	resp, err := b.srv.Spreadsheets.Values.Update(b.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{appointmentToRow(rec)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}
	if resp.UpdatedRows != 1 {
		return errors.New("sheet update not confirmed")
	}
	return nil
}

func (b *SheetsBackend) FindRow(ctx context.Context, id string) (Appointment, bool, error) {
	row, ok, err := b.find(ctx, id)
	return row.appt, ok, err
}

func (b *SheetsBackend) Ping(ctx context.Context) error {
	_, err := b.srv.Spreadsheets.Get(b.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

type sheetRow struct {
	number int // 1-based sheet row
	appt   Appointment
}

func (b *SheetsBackend) readRows(ctx context.Context) ([]sheetRow, error) {
	resp, err := b.srv.Spreadsheets.Values.Get(b.spreadsheetID, b.rng("A2:H")).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	var out []sheetRow
	for i, values := range resp.Values {
		a := rowToAppointment(values)
		if a.ID == "" {
			continue
		}
		out = append(out, sheetRow{number: i + 2, appt: a})
	}
	return out, nil
}

func (b *SheetsBackend) find(ctx context.Context, id string) (sheetRow, bool, error) {
	rows, err := b.readRows(ctx)
	if err != nil {
		return sheetRow{}, false, err
	}
	for _, r := range rows {
		if r.appt.ID == id {
			return r, true, nil
		}
	}
	return sheetRow{}, false, nil
}

func (b *SheetsBackend) rng(cells string) string {
	return "'" + strings.ReplaceAll(b.sheet, "'", "''") + "'!" + cells
}

func appointmentToRow(a Appointment) []interface{} {
	return []interface{}{
		a.ID, a.CompanyName, a.ProjectName, a.Area,
		a.PresentationDate, a.PresentationTime, a.Representative, string(a.Status),
	}
}

func rowToAppointment(values []interface{}) Appointment {
	cell := func(i int) string {
		if i >= len(values) || values[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(values[i]))
	}
	return Appointment{
		ID:               cell(0),
		CompanyName:      cell(1),
		ProjectName:      cell(2),
		Area:             cell(3),
		PresentationDate: cell(4),
		PresentationTime: cell(5),
		Representative:   cell(6),
		Status:           Status(cell(7)),
	}
}
