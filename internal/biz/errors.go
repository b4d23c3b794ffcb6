package biz

import (
	"fmt"
	"strings"

	pkgerrors "github.com/arithgrey/service-whatsapp/pkg/errors"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons surfaced on the HTTP API.
const (
	ReasonValidation       = "VALIDATION_ERROR"
	ReasonMissingVariables = "MISSING_VARIABLES"
	ReasonTemplateNotFound = "TEMPLATE_NOT_FOUND"
	ReasonMessageNotFound  = "MESSAGE_NOT_FOUND"
	ReasonCircuitOpen      = "CIRCUIT_OPEN"
	ReasonProviderError    = "PROVIDER_ERROR"
	ReasonPersistence      = "PERSISTENCE_ERROR"
	ReasonInvalidState     = "INVALID_STATE"
)

// MissingVariablesError reports template variables the caller did not
// supply. It occurs before the guard is engaged and never counts against
// circuit health.
type MissingVariablesError struct {
	TemplateName string
	Missing      []string
}

// Error implements the error interface.
func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing variables for template %s: %s",
		e.TemplateName, strings.Join(e.Missing, ", "))
}

func newValidationError(format string, args ...interface{}) error {
	return errors.New(400, ReasonValidation, fmt.Sprintf(format, args...))
}

func newMissingVariablesError(e *MissingVariablesError) error {
	return errors.New(400, ReasonMissingVariables, e.Error())
}

func newTemplateNotFoundError(key string) error {
	return errors.New(404, ReasonTemplateNotFound, fmt.Sprintf("template %q not found or inactive", key))
}

func newMessageNotFoundError(id int64) error {
	return errors.New(404, ReasonMessageNotFound, fmt.Sprintf("message %d not found", id))
}

func newCircuitOpenError() error {
	return errors.New(503, ReasonCircuitOpen, "WhatsApp service temporarily unavailable (circuit open)")
}

func newProviderError(err error) error {
	return errors.New(502, ReasonProviderError, fmt.Sprintf("provider dispatch failed: %v", err))
}

func newPersistenceError(providerMessageID string, err error) error {
	return errors.New(500, ReasonPersistence,
		fmt.Sprintf("message accepted by provider (id=%s) but record update failed: %v", providerMessageID, err))
}

func newInvalidStateError(format string, args ...interface{}) error {
	return errors.New(409, ReasonInvalidState, fmt.Sprintf(format, args...))
}

// IsCircuitOpen reports whether err is the circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Reason(err) == ReasonCircuitOpen
}

// pkgIsNotFound reports whether err classifies as a missing record in the
// data layer.
func pkgIsNotFound(err error) bool {
	return pkgerrors.IsNotFound(err)
}

