package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrForbidden          = errors.New("admin privileges required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("record not found")
	ErrInvalidName        = errors.New("name must not be empty")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidReference   = errors.New("referenced record does not exist")
	ErrInternalError      = errors.New("internal server error")
	ErrStore              = errors.New("remote store error")
	ErrLoadFailed         = errors.New("initial load failed")
	ErrUnknownTable       = errors.New("unknown table")
	ErrInvalidChange      = errors.New("invalid change event")
)

// StoreError wraps any failure of a remote store call
type StoreError struct {
	Op    string
	Table Table
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStore
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// LoadError reports the tables whose initial fetch failed
type LoadError struct {
	Failures map[Table]error
}

func (e *LoadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, table := range Tables {
		if err, ok := e.Failures[table]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", table, err))
		}
	}
	return "initial load failed: " + strings.Join(parts, "; ")
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, table := range Tables {
		if err, ok := e.Failures[table]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}

// Is makes every LoadError match ErrLoadFailed
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
