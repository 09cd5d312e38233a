package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator collects validation errors across chained checks.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) fail(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.fail(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.fail(field, "value must be positive, got %d", value)
	}
	return v
}

// RequireNonNegative validates that an integer field is not below 0
func (v *Validator) RequireNonNegative(field string, value int) *Validator {
	if value < 0 {
		return v.fail(field, "value must not be negative, got %d", value)
	}
	return v
}

// RequirePositiveDuration validates that a duration is greater than 0
func (v *Validator) RequirePositiveDuration(field string, d time.Duration) *Validator {
	if d <= 0 {
		return v.fail(field, "duration must be positive, got %s", d)
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.fail(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.fail(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.fail(field, "value must be one of %v, got %q", allowed, value)
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for _, e := range v.errors {
		fmt.Fprintf(&b, "  - %s: %s\n", e.Field, e.Message)
	}
	return fmt.Errorf("%s", b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ValidatePostgresConfig validates PostgreSQL configuration
func ValidatePostgresConfig(c PostgresConfig) error {
	v := NewValidator()
	v.RequireNonEmpty("store.postgres.host", c.Host)
	v.ValidatePort("store.postgres.port", c.Port)
	v.RequireNonEmpty("store.postgres.user", c.User)
	v.RequireNonEmpty("store.postgres.db_name", c.DBName)
	v.ValidateOneOf("store.postgres.ssl_mode", c.SSLMode, "disable", "require", "verify-ca", "verify-full")
	v.RequireNonEmpty("store.postgres.table", c.Table)
	return v.Error()
}

// ValidateRedisConfig validates Redis configuration
func ValidateRedisConfig(c RedisConfig) error {
	v := NewValidator()
	v.RequireNonEmpty("store.redis.addr", c.Addr)
	v.ValidateDBNumber("store.redis.db", c.DB)
	v.RequireNonEmpty("store.redis.prefix", c.Prefix)
	return v.Error()
}

// ValidateMongoDBConfig validates MongoDB configuration
func ValidateMongoDBConfig(c MongoConfig) error {
	v := NewValidator()
	v.RequireNonEmpty("store.mongo.uri", c.URI)
	v.RequireNonEmpty("store.mongo.database", c.Database)
	v.RequireNonEmpty("store.mongo.collection", c.Collection)
	return v.Error()
}

// ValidateProviderConfig validates text-generation provider configuration
func ValidateProviderConfig(c ProviderConfig) error {
	v := NewValidator()
	v.ValidateOneOf("provider.name", strings.ToLower(c.Name), Providers...)
	v.RequireNonEmpty("provider.api_key", c.APIKey)
	v.ValidateFloatRange("provider.temperature", c.Temperature, 0.0, 2.0)
	v.RequireNonNegative("provider.max_tokens", c.MaxTokens)
	return v.Error()
}
