package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Routes mounts the booking API on router.
func (a *App) Routes(router *gin.Engine, auth AuthConfig) {
	router.GET("/healthz", a.HealthHandler)
	router.GET("/readyz", a.ReadyHandler)

	api := router.Group("/api")
	api.Use(AuthMiddleware(auth))
	{
		api.GET("/dates", a.ListDatesHandler)
		api.GET("/slots/open", a.SlotOpenHandler)

		appointments := api.Group("/appointments")
		{
			appointments.POST("", a.CreateAppointmentHandler)
			appointments.GET("", a.ListAppointmentsHandler)
			appointments.GET("/:id", a.GetAppointmentHandler)
			appointments.PATCH("/:id", a.UpdateAppointmentHandler)
			appointments.DELETE("/:id", a.CancelAppointmentHandler)
		}

		api.GET("/calendar/feed.ics", a.CalendarFeedHandler)
	}
}

// GET /api/dates?weeks=N&from=YYYY-MM-DD&exclude=ID
func (a *App) ListDatesHandler(c *gin.Context) {
	weeks := a.Schedule.WindowWeeks
	if v := c.Query("weeks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 52 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "weeks must be between 1 and 52"})
			return
		}
		weeks = n
	}

	ref := a.now()
	if v := c.Query("from"); v != "" {
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		ref = d
	}

	dates, err := a.AvailableDates(c.Request.Context(), ref, weeks, c.Query("exclude"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dates)
}

// GET /api/slots/open?date=YYYY-MM-DD&time=HH:MM&exclude=ID
func (a *App) SlotOpenHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required"})
		return
	}
	slot := canonicalSlot(Slot{Date: date, Time: c.DefaultQuery("time", a.Schedule.Time)})
	if _, err := time.Parse(DateLayout, slot.Date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	if _, err := parseHHMM(slot.Time); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time"})
		return
	}

	open, err := a.SlotOpen(c.Request.Context(), slot, c.Query("exclude"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": slot.Date, "time": slot.Time, "open": open})
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var req NewAppointment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.Store.Create(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

// GET /api/appointments?status=Confirmed or ?group=status
func (a *App) ListAppointmentsHandler(c *gin.Context) {
	appts, err := a.Store.ListAll(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}

	if v := c.Query("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		filtered := []Appointment{}
		for _, appt := range appts {
			if appt.Status == status {
				filtered = append(filtered, appt)
			}
		}
		appts = filtered
	}

	if strings.EqualFold(c.Query("group"), "status") {
		c.JSON(http.StatusOK, GroupByStatus(appts))
		return
	}
	c.JSON(http.StatusOK, appts)
}

// GET /api/appointments/:id
func (a *App) GetAppointmentHandler(c *gin.Context) {
	appt, ok, err := a.Store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
		return
	}
	c.JSON(http.StatusOK, appt)
}

// PATCH /api/appointments/:id
func (a *App) UpdateAppointmentHandler(c *gin.Context) {
	var changes AppointmentChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.Store.Update(c.Request.Context(), c.Param("id"), changes)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// DELETE /api/appointments/:id
func (a *App) CancelAppointmentHandler(c *gin.Context) {
	appt, err := a.Store.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// GET /api/calendar/feed.ics
func (a *App) CalendarFeedHandler(c *gin.Context) {
	feed, err := a.CalendarFeed(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}

func (a *App) HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *App) ReadyHandler(c *gin.Context) {
	if err := a.Store.Ping(c.Request.Context()); err != nil {
		c.String(http.StatusServiceUnavailable, "store: "+err.Error())
		return
	}
	c.String(http.StatusOK, "ok")
}

func (a *App) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrPersistence):
		a.Logger.Error("store unavailable", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "appointment store unavailable"})
	default:
		a.Logger.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
