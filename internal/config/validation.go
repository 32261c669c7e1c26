package config

import (
	"fmt"
	"net"
	"strings"

	"capsunlocked/internal/keys"
	"capsunlocked/internal/mapping"
)

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateSettings checks every section of s and returns all problems found.
func ValidateSettings(s *Settings) error {
	var errs ValidationErrors

	if s.Version < 1 || s.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", s.Version, Version),
		})
	}

	errs = append(errs, validateLogging(&s.Logging)...)
	errs = append(errs, validateMetrics(&s.Metrics)...)
	errs = append(errs, validatePlatform(&s.Platform)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLogging(l *LoggingSettings) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file_path is required when output is " + l.Output,
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "must not be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsSettings) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		return ValidationErrors{{
			Field:   "metrics.addr",
			Message: fmt.Sprintf("invalid listen address %q: %v", m.Addr, err),
		}}
	}
	return nil
}

func validatePlatform(p *PlatformSettings) ValidationErrors {
	var errs ValidationErrors
	if p.PollAppMS <= 0 {
		errs = append(errs, ValidationError{Field: "platform.poll_app_ms", Message: "must be positive"})
	}
	if p.DoubleTapMS < 0 {
		errs = append(errs, ValidationError{Field: "platform.double_tap_ms", Message: "must not be negative"})
	}
	return errs
}

// rowRef points back at the source of a mapping row for error messages.
type rowRef struct {
	app string
	def mapping.Definition
	// line is the text line number, 0 for structured keymaps.
	line int
	// pos is the row index in a structured keymap.
	pos int
}

func (r rowRef) field() string {
	if r.line > 0 {
		return fmt.Sprintf("line %d", r.line)
	}
	return fmt.Sprintf("map[%d]", r.pos)
}

// validateRows cross-checks mapping rows against the declared modifier
// registry and returns every violation.
func validateRows(rows []rowRef, registry mapping.Registry) ValidationErrors {
	var errs ValidationErrors
	for _, r := range rows {
		if registry.Has(r.def.Source) {
			errs = append(errs, ValidationError{
				Field:   r.field(),
				Message: fmt.Sprintf("source key '%s' is declared as a modifier and cannot be used as a source key", r.def.Source),
			})
		}
		for _, k := range keys.SplitTargetKeys(r.def.Target) {
			if registry.Has(k) {
				errs = append(errs, ValidationError{
					Field:   r.field(),
					Message: fmt.Sprintf("target key '%s' is declared as a modifier and cannot be used as a target key", k),
				})
			}
		}
		for _, m := range r.def.RequiredMods {
			if !registry.Has(m) {
				errs = append(errs, ValidationError{
					Field:   r.field(),
					Message: fmt.Sprintf("modifier '%s' used in mapping but not declared in [modifiers] section", m),
				})
			}
		}
	}
	return errs
}
