package config

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// Load reads configuration from environment variables, applies defaults and
// validates the result. Every missing or invalid setting is reported at once.
func Load() (*Config, error) {
	cfg := &Config{}

	var errs []string
	loadStruct(reflect.ValueOf(cfg).Elem(), &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadStruct populates tagged fields of v, descending into nested structs.
// Tags:
//
//	env      primary variable name
//	envAlt   fallback variable name
//	default  value used when both are unset
//	required "true" if the variable must be set
func loadStruct(v reflect.Value, errs *[]string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != timeType {
			loadStruct(fieldVal, errs)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		value := lookup(name, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				*errs = append(*errs, fmt.Sprintf("required environment variable %s is not set", name))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid value for %s=%q: %v", name, value, err))
		}
	}
}

func lookup(name, alt string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if alt != "" {
		return os.Getenv(alt)
	}
	return ""
}

// setField parses value into field according to the field's type.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks cross-field rules and value ranges.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.URL == "" {
			add("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if c.Store.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			add("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.Store.MinConns, c.Store.MaxConns)
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			add("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case DriverMemory:
	default:
		add("STORE_DRIVER (%q) must be one of: postgres, sqlite, memory", c.Store.Driver)
	}
	if c.Store.StartSlot < 0 {
		add("JURY_START_SLOT must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Import.MaxBodySize <= 0 {
		add("IMPORT_MAX_BODY_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		add("IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		add("IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		add("IMPORT_TIMEOUT must be positive")
	}

	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.ImportLimit <= 0) {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	for _, cidr := range c.Security.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			add("TRUSTED_PROXIES entry %q is not a CIDR", cidr)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a representation safe for logs. Secrets are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {Addr: %q}, Store: {Driver: %q, URL: [MASKED], SQLitePath: %q}, "+
			"Import: {MaxBodySize: %d, MaxConcurrent: %d, Timeout: %s}, "+
			"Rate: {Enabled: %v, RequestsPerMinute: %d}, Security: {AdminPassword: [MASKED]}, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), c.Store.Driver, c.Store.SQLitePath,
		c.Import.MaxBodySize, c.Import.MaxConcurrent, c.Import.Timeout,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Logging.Level, c.Logging.Format,
	)
}
