package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAppExists       = errors.New("app already exists")
	ErrAppMissing      = errors.New("app does not exist")
	ErrOnboardInFlight = errors.New("onboarding already in progress for this app")
)

// UnsupportedSourceError is returned when a request declares datasource
// kinds outside the configured allow-list. It is raised before any
// network I/O so bad requests fail cheaply.
type UnsupportedSourceError struct {
	Kinds []string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported data sources found: %s", strings.Join(e.Kinds, ", "))
}

// ConnectivityError aggregates probe failures for a whole verification
// run. One resource's failure never suppresses the others; the request
// is rejected as a whole.
type ConnectivityError struct {
	Errors []string
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity check failed: %s", strings.Join(e.Errors, "; "))
}
