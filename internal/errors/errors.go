// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUnparsedSymbol  = errors.New("unparsed symbol")
	ErrMissingField    = errors.New("missing critical field")
	ErrInvalidPairing  = errors.New("invalid entry/exit pairing")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrDataNotFound    = errors.New("data not found")
	ErrDatabaseError   = errors.New("database error")
	ErrInputValidation = errors.New("input validation failed")
)

// ParseError reports a symbol that matched neither the monthly nor the weekly grammar.
type ParseError struct {
	Symbol string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %q: %v", e.Symbol, ErrUnparsedSymbol)
}

func (e *ParseError) Unwrap() error {
	return ErrUnparsedSymbol
}

// NewParseError creates a new ParseError.
func NewParseError(symbol string) *ParseError {
	return &ParseError{Symbol: symbol}
}

// MissingFieldError reports a raw row lacking a critical field after normalization.
type MissingFieldError struct {
	Row    int
	Symbol string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d (%s): %v: %s", e.Row, e.Symbol, ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// NewMissingFieldError creates a new MissingFieldError.
func NewMissingFieldError(row int, symbol, field string) *MissingFieldError {
	return &MissingFieldError{Row: row, Symbol: symbol, Field: field}
}

// PairingError reports an entry and exit that cannot close each other,
// such as a buy entry matched by a buy exit.
type PairingError struct {
	Contract       string
	EntryTradeID   string
	ExitTradeID    string
	EntryDirection string
	ExitDirection  string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("%v on %s: entry %s (%s) vs exit %s (%s)",
		ErrInvalidPairing, e.Contract, e.EntryTradeID, e.EntryDirection, e.ExitTradeID, e.ExitDirection)
}

func (e *PairingError) Unwrap() error {
	return ErrInvalidPairing
}

// NewPairingError creates a new PairingError.
func NewPairingError(contract, entryID, entryDir, exitID, exitDir string) *PairingError {
	return &PairingError{
		Contract:       contract,
		EntryTradeID:   entryID,
		ExitTradeID:    exitID,
		EntryDirection: entryDir,
		ExitDirection:  exitDir,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Source   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Source, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, source, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Source:   source,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
