package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Drivers lists the driver names with a built-in pool opener.
var Drivers = []string{"mysql", "pgx", "postgresql", "oracle", "sqlite"}

// Dialects lists the pagination dialects understood by the rewrite engine.
var Dialects = []string{"mysql", "sqlite", "hsqldb", "oracle", "postgresql"}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct-level constraints first and then the cross-field rules.
// The first violation is reported as a *ConfigError.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return translate(err)
	}
	if err := validateDataSource(&cfg.DataSource); err != nil {
		return err
	}
	return validatePagination(&cfg.Pagination)
}

func validateDataSource(cfg *DataSourceConfig) error {
	if !slices.Contains(Drivers, cfg.Driver) {
		return NewInvalidFieldError("datasource.driver", fmt.Sprintf("unknown driver %q", cfg.Driver), Drivers)
	}
	if cfg.Pool.MaxOpen > 0 && cfg.Pool.MaxIdle > cfg.Pool.MaxOpen {
		return NewInvalidFieldError("datasource.pool.maxidle",
			fmt.Sprintf("%d exceeds maxopen %d", cfg.Pool.MaxIdle, cfg.Pool.MaxOpen), nil)
	}
	return nil
}

func validatePagination(cfg *PaginationConfig) error {
	dialect := strings.ToLower(cfg.Dialect)
	if !slices.Contains(Dialects, dialect) {
		return NewInvalidFieldError("pagination.dialect", fmt.Sprintf("unsupported dialect %q", cfg.Dialect), Dialects)
	}
	return nil
}

// translate converts the first validator failure into a ConfigError whose
// field path matches the koanf key.
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := keyPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fe.Value()), strings.Fields(fe.Param()))
	case "gte":
		return NewInvalidFieldError(field, fmt.Sprintf("must be >= %s", fe.Param()), nil)
	default:
		return NewInvalidFieldError(field, fmt.Sprintf("failed %q check", fe.Tag()), nil)
	}
}

// keyPath turns "Config.DataSource.Pool.MaxOpen" into "datasource.pool.maxopen".
func keyPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
