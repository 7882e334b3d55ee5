// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateAuth(cfg, errs)
	v.validateSandbox(cfg, errs)
	v.validateSession(cfg, errs)
	v.validateRateLimit(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
	if cfg.Server.PortProbeStep < 0 {
		errs.Add("server.portProbeStep", "must not be negative")
	}
}

func (v *Validator) validateAuth(cfg *Config, errs *ValidationError) {
	if cfg.JWTSecret == "" && cfg.FirebaseAdminKey == "" && !cfg.AllowDevTokens {
		errs.Add("jwtSecret", "at least one of JWT_SECRET, FIREBASE_ADMIN_KEY, or dev tokens must be configured")
	}
}

func (v *Validator) validateSandbox(cfg *Config, errs *ValidationError) {
	if cfg.PistonAPIURL == "" {
		errs.Add("pistonApiUrl", "is required")
	}
}

func (v *Validator) validateSession(cfg *Config, errs *ValidationError) {
	if cfg.MaxUsersPerSession <= 0 {
		errs.Add("maxUsersPerSession", "must be positive")
	}
}

func (v *Validator) validateRateLimit(cfg *Config, errs *ValidationError) {
	if cfg.RateLimit.MaxConnections == 0 {
		errs.Add("rateLimit.maxConnections", "must be positive")
	}
	if cfg.RateLimit.Window <= 0 {
		errs.Add("rateLimit.window", "must be positive")
	}
}
