package app

import "strings"

type Status string

const (
	StatusConfirmed   Status = "Confirmed"
	StatusRescheduled Status = "Rescheduled"
	StatusCancelled   Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusRescheduled, StatusCancelled:
		return true
	}
	return false
}

// Slot is a bookable (date, time) pair. Date is YYYY-MM-DD, Time is HH:MM.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s Slot) String() string {
	return s.Date + " " + s.Time
}

type Appointment struct {
	ID               string `json:"id"`
	CompanyName      string `json:"company_name"`
	ProjectName      string `json:"project_name"`
	Area             string `json:"area"`
	PresentationDate string `json:"presentation_date"`
	PresentationTime string `json:"presentation_time"`
	Representative   string `json:"developer_representative"`
	Status           Status `json:"status"`
}

func (a Appointment) Slot() Slot {
	return Slot{Date: a.PresentationDate, Time: a.PresentationTime}
}

// Occupies reports whether a claims slot s. Cancelled appointments never do.
func (a Appointment) Occupies(s Slot) bool {
	return a.Status != StatusCancelled && a.Slot() == s
}

// NewAppointment carries the fields supplied when booking.
type NewAppointment struct {
	CompanyName      string `json:"company_name"`
	ProjectName      string `json:"project_name"`
	Area             string `json:"area"`
	PresentationDate string `json:"presentation_date"`
	PresentationTime string `json:"presentation_time"`
	Representative   string `json:"developer_representative"`
}

// AppointmentChanges lists the fields an update may touch. Nil members are left as-is.
type AppointmentChanges struct {
	CompanyName      *string `json:"company_name,omitempty"`
	ProjectName      *string `json:"project_name,omitempty"`
	Area             *string `json:"area,omitempty"`
	PresentationDate *string `json:"presentation_date,omitempty"`
	PresentationTime *string `json:"presentation_time,omitempty"`
	Representative   *string `json:"developer_representative,omitempty"`
}

func (c AppointmentChanges) IsEmpty() bool {
	return c.CompanyName == nil && c.ProjectName == nil && c.Area == nil &&
		c.PresentationDate == nil && c.PresentationTime == nil && c.Representative == nil
}

// apply returns a copy of a with the changes applied. Text fields are trimmed.
func (c AppointmentChanges) apply(a Appointment) Appointment {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&a.CompanyName, c.CompanyName)
	set(&a.ProjectName, c.ProjectName)
	set(&a.Area, c.Area)
	set(&a.PresentationDate, c.PresentationDate)
	set(&a.PresentationTime, c.PresentationTime)
	set(&a.Representative, c.Representative)
	return a
}

// StatusGroups splits appointments the way the booking overview presents them.
type StatusGroups struct {
	Confirmed   []Appointment `json:"confirmed"`
	Rescheduled []Appointment `json:"rescheduled"`
	Cancelled   []Appointment `json:"cancelled"`
}

func GroupByStatus(list []Appointment) StatusGroups {
	g := StatusGroups{
		Confirmed:   []Appointment{},
		Rescheduled: []Appointment{},
		Cancelled:   []Appointment{},
	}
	for _, a := range list {
		switch a.Status {
		case StatusConfirmed:
			g.Confirmed = append(g.Confirmed, a)
		case StatusRescheduled:
			g.Rescheduled = append(g.Rescheduled, a)
		case StatusCancelled:
			g.Cancelled = append(g.Cancelled, a)
		}
	}
	return g
}
