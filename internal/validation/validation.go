// Package validation checks client package registrations before they reach
// the registry.
package validation

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

const (
	MaxDisplayNameLength = 100
	MaxCommandLength     = 1024
	MaxArgLength         = 4096
	MaxActions           = 64
)

var (
	// ErrInputTooLong indicates input exceeds maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
	// ErrInputInvalid indicates input contains invalid characters.
	ErrInputInvalid = errors.New("input contains invalid characters")
)

var (
	// Dotted identifiers as used for package ids and intent actions,
	// e.g. org.ros.teleop or com.github.ros_java.android_apps.teleop.MainActivity.
	dottedID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	htmlTag  = regexp.MustCompile(`<[^>]*>`)
)

// FieldError names the registration field that failed.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidatePackageID validates a client package id.
func ValidatePackageID(id string) error {
	if len(id) > MaxCommandLength {
		return ErrInputTooLong
	}
	if !dottedID.MatchString(id) {
		return ErrInputInvalid
	}
	return nil
}

// ValidateAction validates an intent action a client handles.
func ValidateAction(action string) error {
	return ValidatePackageID(action)
}

// ValidateCommand validates the executable of a client. It must be a bare
// program name or an absolute path without traversal.
func ValidateCommand(command string) error {
	if len(command) > MaxCommandLength {
		return ErrInputTooLong
	}
	if command == "" || strings.ContainsAny(command, "\x00\n\r") || strings.TrimSpace(command) != command {
		return ErrInputInvalid
	}
	if strings.Contains(command, "/") {
		if !strings.HasPrefix(command, "/") || strings.Contains(command, "..") {
			return ErrInputInvalid
		}
	}
	return nil
}

// ValidateDisplayName validates a display name.
func ValidateDisplayName(name string) error {
	if len(name) > MaxDisplayNameLength {
		return ErrInputTooLong
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return ErrInputInvalid
	}
	return nil
}

func validateArgs(args []string) error {
	for _, a := range args {
		if len(a) > MaxArgLength {
			return ErrInputTooLong
		}
		if strings.Contains(a, "\x00") {
			return ErrInputInvalid
		}
	}
	return nil
}

func validateActions(actions []string) error {
	if len(actions) > MaxActions {
		return ErrInputTooLong
	}
	for _, a := range actions {
		if err := ValidateAction(a); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCreate checks a new client registration.
func ValidateCreate(req *models.CreateClientRequest) error {
	if err := ValidatePackageID(req.PackageID); err != nil {
		return &FieldError{Field: "package_id", Err: err}
	}
	if err := ValidateCommand(req.Command); err != nil {
		return &FieldError{Field: "command", Err: err}
	}
	return validateCommon(req.DisplayName, req.Args, req.Actions)
}

// ValidateUpdate checks a client update. Empty fields are left unchanged and
// not validated.
func ValidateUpdate(req *models.UpdateClientRequest) error {
	if req.Command != "" {
		if err := ValidateCommand(req.Command); err != nil {
			return &FieldError{Field: "command", Err: err}
		}
	}
	return validateCommon(req.DisplayName, req.Args, req.Actions)
}

func validateCommon(displayName string, args, actions []string) error {
	if err := ValidateDisplayName(displayName); err != nil {
		return &FieldError{Field: "display_name", Err: err}
	}
	if err := validateArgs(args); err != nil {
		return &FieldError{Field: "args", Err: err}
	}
	if err := validateActions(actions); err != nil {
		return &FieldError{Field: "actions", Err: err}
	}
	return nil
}

// SanitizeString strips markup from a display string and trims it.
func SanitizeString(input string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTag.ReplaceAllString(input, "")))
}
