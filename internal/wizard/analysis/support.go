// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/condition"
	"github.com/kusari-oss/deploymate/internal/core/models"
)

// UnsupportedMessage heads the error shown when nothing can be generated
const UnsupportedMessage = "Unsupported project. Only Spring Boot (Maven/Gradle) and Node.js are supported."

// ErrUnsupported matches every *UnsupportedError
var ErrUnsupported = errors.New("unsupported project")

// UnsupportedError carries the reason each service was rejected
type UnsupportedError struct {
	Reasons []string
}

func (e *UnsupportedError) Error() string {
	if len(e.Reasons) == 0 {
		return UnsupportedMessage
	}
	return UnsupportedMessage + "\n• " + strings.Join(e.Reasons, "\n• ")
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// Rule is one supported-stack check. The first rule whose When matches decides.
type Rule struct {
	When      string
	Supported bool
	Reason    string
}

// DefaultRules accept Spring Boot built with Maven or Gradle, and Node.js
var DefaultRules = []Rule{
	{
		When:      `string(service.stackType).contains("SPRING_BOOT") && string(service.buildTool).upperAscii() in ["MAVEN", "GRADLE"]`,
		Supported: true,
	},
	{
		When:   `string(service.stackType).contains("SPRING_BOOT")`,
		Reason: "Spring Boot detected but build tool not supported (Maven/Gradle required).",
	},
	{
		When:      `string(service.stackType) == "NODE_JS"`,
		Supported: true,
	},
}

// Checker evaluates rules against services
type Checker struct {
	eval  *condition.CELEvaluator
	rules []Rule
}

// NewChecker compiles rules lazily through a CEL evaluator; nil rules means DefaultRules
func NewChecker(rules []Rule) (*Checker, error) {
	eval, err := condition.NewCELEvaluator()
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Checker{eval: eval, rules: rules}, nil
}

// Check returns whether s is supported and, when not, why
func (c *Checker) Check(s models.ServiceDescriptor) (bool, string, error) {
	data := map[string]interface{}{
		"service": map[string]interface{}{
			"id":               s.ID,
			"stackType":        s.StackType,
			"buildTool":        s.BuildTool,
			"workingDirectory": s.WorkingDirectory,
			"language":         s.Language,
			"javaVersion":      s.JavaVersion,
		},
	}
	for _, r := range c.rules {
		ok, err := c.eval.EvaluateExpression(r.When, data)
		if err != nil {
			return false, "", fmt.Errorf("error evaluating rule %q: %w", r.When, err)
		}
		if ok {
			return r.Supported, r.Reason, nil
		}
	}
	return false, fmt.Sprintf("Unsupported stack: %s.", orND(s.StackType)), nil
}

// Validate normalizes raw and drops unsupported services. In multi mode the
// result keeps only supported services; it is an *UnsupportedError when none
// remain. The returned reasons list every rejection.
func (c *Checker) Validate(raw *models.AnalysisResult) (*models.AnalysisResult, []string, error) {
	if raw == nil {
		return nil, nil, &UnsupportedError{Reasons: []string{"Unexpected analysis format."}}
	}
	out := *raw
	var reasons []string

	switch {
	case raw.Mode == models.ModeMulti && raw.Services != nil:
		out.Services = make([]models.ServiceDescriptor, 0, len(raw.Services))
		for _, svc := range raw.Services {
			n := NormalizeService(svc)
			ok, reason, err := c.Check(n)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				out.Services = append(out.Services, n)
			} else {
				reasons = append(reasons, reason)
			}
		}
		if len(out.Services) == 0 {
			return nil, reasons, &UnsupportedError{Reasons: reasons}
		}
		return &out, reasons, nil

	case raw.Mode == models.ModeSingle && raw.Analysis != nil:
		n := NormalizeService(*raw.Analysis)
		ok, reason, err := c.Check(n)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			reasons = append(reasons, reason)
			return nil, reasons, &UnsupportedError{Reasons: reasons}
		}
		out.Analysis = &n
		return &out, nil, nil
	}

	reasons = append(reasons, "Unexpected analysis format.")
	return nil, reasons, &UnsupportedError{Reasons: reasons}
}
