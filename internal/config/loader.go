package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable the service reads.
const Prefix = "LIVECLASS_"

// LogConfig selects the process log handler.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

// DatabaseConfig selects the store driver and connection.
type DatabaseConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"data/liveclass.db"`
}

// JobsConfig holds the background job intervals and windows.
type JobsConfig struct {
	MaterializeWindowDays int           `env:"MATERIALIZE_WINDOW_DAYS" envDefault:"7"`
	MaterializeInterval   time.Duration `env:"MATERIALIZE_INTERVAL" envDefault:"1h"`
	MissedGrace           time.Duration `env:"MISSED_GRACE" envDefault:"15m"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	ExpiryInterval        time.Duration `env:"EXPIRY_INTERVAL" envDefault:"1h"`
	ReminderLead          time.Duration `env:"REMINDER_LEAD" envDefault:"1h"`
	ReminderInterval      time.Duration `env:"REMINDER_INTERVAL" envDefault:"10m"`
	RetentionWindow       time.Duration `env:"RETENTION_WINDOW" envDefault:"2160h"`
	CleanupInterval       time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
	ReportInterval        time.Duration `env:"REPORT_INTERVAL" envDefault:"24h"`
	OutboxInterval        time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	OutboxBatch           int           `env:"OUTBOX_BATCH" envDefault:"50"`
}

// IntegrationsConfig points at the external services. Empty values select
// the local or log-backed fallbacks.
type IntegrationsConfig struct {
	MeetingServiceURL    string `env:"MEETING_SERVICE_URL"`
	MeetingServiceToken  string `env:"MEETING_SERVICE_TOKEN"`
	MeetingWebhookSecret string `env:"MEETING_WEBHOOK_SECRET"`
	MeetingLocalBaseURL  string `env:"MEETING_LOCAL_BASE_URL" envDefault:"http://localhost:8080/meet"`
	NotifyWebhookURL     string `env:"NOTIFY_WEBHOOK_URL"`
	TelegramBotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID  int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`
	SMTPAddr             string `env:"SMTP_ADDR"`
	SMTPUsername         string `env:"SMTP_USERNAME"`
	SMTPPassword         string `env:"SMTP_PASSWORD"`
	SMTPFrom             string `env:"SMTP_FROM" envDefault:"classes@localhost"`
	// UserEmails maps user ids to addresses as "user=address" pairs.
	UserEmails string `env:"USER_EMAILS"`
}

// Config captures environment driven configuration values for the service.
type Config struct {
	HTTPPort  int           `env:"HTTP_PORT" envDefault:"8080"`
	Timezone  string        `env:"TIMEZONE" envDefault:"UTC"`
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"liveclass"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	AnalyticsCacheTTL  time.Duration `env:"ANALYTICS_CACHE_TTL" envDefault:"5m"`
	AnalyticsCacheSize int           `env:"ANALYTICS_CACHE_SIZE" envDefault:"256"`

	AdminIDs []string `env:"ADMIN_IDS" envSeparator:","`

	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Jobs         JobsConfig
	Integrations IntegrationsConfig
}

// Load parses configuration values from the current process environment.
//
// Defaults apply to optional fields. Missing required values and values that
// fail to parse or validate are reported together, each list naming the
// environment variables involved.
func Load() (Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix})

	missing, invalid := classify(err)
	if err != nil && len(missing) == 0 && len(invalid) == 0 {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	invalid = append(invalid, cfg.validate()...)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(dedupe(missing), ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(dedupe(invalid), ", "))
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env style file without overriding the
// process environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// classify splits parse errors into missing and invalid variable names.
func classify(err error) (missing, invalid []string) {
	if err == nil {
		return nil, nil
	}
	var aggregate env.AggregateError
	if !errors.As(err, &aggregate) {
		return nil, nil
	}
	keys := envKeys(reflect.TypeOf(Config{}), Prefix, nil)
	for _, e := range aggregate.Errors {
		var (
			notSet  env.VarIsNotSetError
			empty   env.EmptyVarError
			parseEr env.ParseError
		)
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		case errors.As(e, &parseEr):
			invalid = append(invalid, keys[parseEr.Name])
		default:
			invalid = append(invalid, e.Error())
		}
	}
	return missing, invalid
}

func (c *Config) validate() []string {
	var invalid []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, Prefix+"HTTP_PORT")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		invalid = append(invalid, Prefix+"TIMEZONE")
	}
	if c.JWTTTL <= 0 {
		invalid = append(invalid, Prefix+"JWT_TTL")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		invalid = append(invalid, Prefix+"DATABASE_DRIVER")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		invalid = append(invalid, Prefix+"DATABASE_DSN")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid = append(invalid, Prefix+"LOG_LEVEL")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		invalid = append(invalid, Prefix+"LOG_FORMAT")
	}

	positive := map[string]time.Duration{
		"MATERIALIZE_INTERVAL": c.Jobs.MaterializeInterval,
		"SWEEP_INTERVAL":       c.Jobs.SweepInterval,
		"EXPIRY_INTERVAL":      c.Jobs.ExpiryInterval,
		"REMINDER_LEAD":        c.Jobs.ReminderLead,
		"REMINDER_INTERVAL":    c.Jobs.ReminderInterval,
		"RETENTION_WINDOW":     c.Jobs.RetentionWindow,
		"CLEANUP_INTERVAL":     c.Jobs.CleanupInterval,
		"REPORT_INTERVAL":      c.Jobs.ReportInterval,
		"OUTBOX_INTERVAL":      c.Jobs.OutboxInterval,
	}
	for key, value := range positive {
		if value <= 0 {
			invalid = append(invalid, Prefix+key)
		}
	}
	if c.Jobs.MissedGrace < 0 {
		invalid = append(invalid, Prefix+"MISSED_GRACE")
	}
	if c.Jobs.MaterializeWindowDays <= 0 {
		invalid = append(invalid, Prefix+"MATERIALIZE_WINDOW_DAYS")
	}
	if c.Jobs.OutboxBatch <= 0 {
		invalid = append(invalid, Prefix+"OUTBOX_BATCH")
	}
	if c.AnalyticsCacheTTL < 0 {
		invalid = append(invalid, Prefix+"ANALYTICS_CACHE_TTL")
	}
	if c.AnalyticsCacheSize < 0 {
		invalid = append(invalid, Prefix+"ANALYTICS_CACHE_SIZE")
	}
	for i, id := range c.AdminIDs {
		c.AdminIDs[i] = strings.TrimSpace(id)
		if c.AdminIDs[i] == "" {
			invalid = append(invalid, Prefix+"ADMIN_IDS")
			break
		}
	}
	if c.Integrations.TelegramBotToken != "" && c.Integrations.TelegramAdminChatID == 0 {
		invalid = append(invalid, Prefix+"TELEGRAM_ADMIN_CHAT_ID")
	}
	return invalid
}

// Location resolves Timezone; Load has already rejected unknown zones.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ListenAddr returns the HTTP listen address.
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

// envKeys maps Go field names to their full variable names, following the
// env and envPrefix tags.
func envKeys(t reflect.Type, prefix string, keys map[string]string) map[string]string {
	if keys == nil {
		keys = make(map[string]string)
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			envKeys(field.Type, prefix+field.Tag.Get("envPrefix"), keys)
			continue
		}
		key, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		if key != "" {
			keys[field.Name] = prefix + key
		}
	}
	return keys
}

func dedupe(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}
