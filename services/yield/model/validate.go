// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// configValidate is the validator instance for experiment configs.
// Field names in problems use the JSON tag so they match request bodies.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// paramNames maps struct field names used in cross-field tags to their JSON names.
var paramNames = map[string]string{
	"AMin":  "a_min",
	"Beta1": "beta1",
}

// Validate checks the config and reports every problem at once.
//
// Description:
//
//	Tag-driven checks come from go-playground/validator. Rules that depend
//	on several fields or on enumerated float sets are checked here. The
//	returned error is a *ValidationError wrapping ErrInvalidConfig.
//
// Outputs:
//
//	error - nil when valid, otherwise *ValidationError.
func (c ExperimentConfig) Validate() error {
	var problems []string

	if err := configValidate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validating experiment config: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if c.EnableRipening {
		if c.V < 2 || c.V > c.N/2 {
			problems = append(problems, fmt.Sprintf("v must be within [2, %d] when ripening is enabled, got %d", c.N/2, c.V))
		}
		if c.BetaMax != nil && *c.BetaMax <= 1 {
			problems = append(problems, fmt.Sprintf("beta_max must be greater than 1, got %g", *c.BetaMax))
		}
	}

	if !isAllowedGrowthBase(c.GrowthBase) {
		problems = append(problems, fmt.Sprintf("growth_base must be one of %v, got %g", GrowthBases, c.GrowthBase))
	}

	for _, r := range []struct {
		name string
		rng  Range
	}{
		{"k_range", c.K},
		{"na_range", c.Na},
		{"n_content_range", c.Nitrogen},
		{"i0_range", c.I0},
	} {
		if r.rng.Min > r.rng.Max {
			problems = append(problems, fmt.Sprintf("%s min %g exceeds max %g", r.name, r.rng.Min, r.rng.Max))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("%s must be less than %s, got %v", field, fe.Param(), fe.Value())
	case "gtfield":
		other := fe.Param()
		if name, ok := paramNames[other]; ok {
			other = name
		}
		return fmt.Sprintf("%s must be greater than %s, got %v", field, other, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
