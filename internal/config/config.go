package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig is the weekly presentation pattern, optionally read from a YAML file.
type ScheduleConfig struct {
	// Weekdays lists the presentation days by English name, e.g. "tuesday".
	Weekdays []string `yaml:"weekdays"`
	// Time is the single bookable start time, HH:MM.
	Time string `yaml:"time"`
	// Duration is the presentation length, e.g. "30m".
	Duration string `yaml:"duration"`
	// WindowWeeks is how far ahead bookings are offered.
	WindowWeeks int `yaml:"window_weeks"`
}

func DefaultSchedule() ScheduleConfig {
	return ScheduleConfig{
		Weekdays:    []string{"tuesday", "saturday"},
		Time:        "12:00",
		Duration:    "30m",
		WindowWeeks: 4,
	}
}

// Normalize fills zero values with the defaults.
func (s *ScheduleConfig) Normalize() {
	def := DefaultSchedule()
	if len(s.Weekdays) == 0 {
		s.Weekdays = def.Weekdays
	}
	if s.Time == "" {
		s.Time = def.Time
	}
	if s.Duration == "" {
		s.Duration = def.Duration
	}
	if s.WindowWeeks <= 0 {
		s.WindowWeeks = def.WindowWeeks
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (s ScheduleConfig) ParsedWeekdays() ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(s.Weekdays))
	for _, name := range s.Weekdays {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, &configError{message: "invalid weekday in schedule: " + name}
		}
		out = append(out, wd)
	}
	return out, nil
}

func (s ScheduleConfig) ParsedTime() (string, error) {
	t, err := time.Parse("15:04", s.Time)
	if err != nil {
		return "", &configError{message: "invalid schedule time " + s.Time + ": expected HH:MM"}
	}
	return t.Format("15:04"), nil
}

func (s ScheduleConfig) ParsedDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.Duration)
	if err != nil || d <= 0 {
		return 0, &configError{message: "invalid schedule duration " + s.Duration}
	}
	return d, nil
}

// LoadSchedule reads a schedule file. A missing file yields the defaults.
func LoadSchedule(path string) (ScheduleConfig, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSchedule(), nil
		}
		return ScheduleConfig{}, err
	}
	var s ScheduleConfig
	if err := yaml.Unmarshal(data, &s); err != nil {
		return ScheduleConfig{}, &configError{message: "parse schedule file " + path + ": " + err.Error()}
	}
	s.Normalize()
	return s, nil
}

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Backend     string
	DatabaseURL string

	SheetsSpreadsheetID   string
	SheetsSheetName       string
	GoogleCredentialsFile string

	RedisAddr string

	StaticTokens []string
	JWTSecret    string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	ScheduleFile string
	Schedule     ScheduleConfig
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.Port = getEnv("PORT", "8080")
	if p, err := strconv.Atoi(cfg.Port); err != nil || p < 1 || p > 65535 {
		return cfg, &configError{message: "PORT must be a valid TCP port (got " + strconv.Quote(cfg.Port) + ")"}
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")

	cfg.Backend = strings.ToLower(getEnv("STORE_BACKEND", BackendMemory))
	switch cfg.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL, err = getRequiredEnv("DATABASE_URL"); err != nil {
			return cfg, err
		}
	case BackendSheets:
		if cfg.SheetsSpreadsheetID, err = getRequiredEnv("SHEETS_SPREADSHEET_ID"); err != nil {
			return cfg, err
		}
	default:
		return cfg, &configError{message: "unknown STORE_BACKEND: " + cfg.Backend}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	cfg.SheetsSheetName = getEnv("SHEETS_SHEET_NAME", "Appointments")
	cfg.GoogleCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "credentials.json")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	cfg.StaticTokens = splitList(os.Getenv("STATIC_TOKENS"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_HMAC_SECRET"))

	if cfg.OTelEnabled, err = getEnvBool("OTEL_ENABLED", false); err != nil {
		return cfg, err
	}
	cfg.OTelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	if cfg.OTelSampleRatio, err = getEnvFloat("OTEL_SAMPLING_RATIO", 1); err != nil {
		return cfg, err
	}
	if cfg.OTelSampleRatio < 0 || cfg.OTelSampleRatio > 1 {
		return cfg, &configError{message: "OTEL_SAMPLING_RATIO must be within [0, 1]"}
	}

	cfg.ScheduleFile = strings.TrimSpace(os.Getenv("SCHEDULE_FILE"))
	if cfg.Schedule, err = LoadSchedule(cfg.ScheduleFile); err != nil {
		return cfg, err
	}
	if _, err := cfg.Schedule.ParsedWeekdays(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Schedule.ParsedTime(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Schedule.ParsedDuration(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func getRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", &configError{message: "missing required environment variable: " + key}
	}
	return value, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, &configError{message: "invalid bool for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &configError{message: "invalid float for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type configError struct {
	message string
}

func (e *configError) Error() string {
	return e.message
}

var _ error = (*configError)(nil)
