package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "stream.reconnect_max")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStream()...)
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateStages()...)
	return errs
}

func (c *Config) validateServer() []ValidationError {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Host == "" {
		return []ValidationError{{
			Field:   "server.base_url",
			Value:   c.Server.BaseURL,
			Message: "must be an absolute URL",
		}}
	}
	if !slices.Contains([]string{"http", "https", "ws", "wss"}, u.Scheme) {
		return []ValidationError{{
			Field:   "server.base_url",
			Value:   c.Server.BaseURL,
			Message: "scheme must be http, https, ws or wss",
		}}
	}
	return nil
}

func (c *Config) validateStream() []ValidationError {
	var errs []ValidationError
	s := c.Stream
	if s.ReconnectBase <= 0 {
		errs = append(errs, ValidationError{Field: "stream.reconnect_base", Value: s.ReconnectBase, Message: "must be positive"})
	}
	if s.ReconnectMax < s.ReconnectBase {
		errs = append(errs, ValidationError{Field: "stream.reconnect_max", Value: s.ReconnectMax, Message: "must not be below reconnect_base"})
	}
	if s.PingInterval <= 0 {
		errs = append(errs, ValidationError{Field: "stream.ping_interval", Value: s.PingInterval, Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateLog() []ValidationError {
	if c.Log.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		return []ValidationError{{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateStages() []ValidationError {
	var errs []ValidationError
	if len(c.Stages.Default) > 0 {
		if err := c.Stages.Default.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: "stages.default", Value: len(c.Stages.Default), Message: err.Error()})
		}
	}
	for target, table := range c.Stages.Targets {
		if err := table.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: "stages.targets." + target, Value: len(table), Message: err.Error()})
		}
	}
	return errs
}
