package enums

import (
	"fmt"
	"strings"
)

// CheckoutCase is the plan mix purchased in a single checkout.
type CheckoutCase string

const (
	// CheckoutCaseWebOnly is a web subscription without production plans.
	CheckoutCaseWebOnly CheckoutCase = "A"
	// CheckoutCaseProductionOnly covers one-off production plans only.
	CheckoutCaseProductionOnly CheckoutCase = "B"
	// CheckoutCaseMixed combines a web subscription with production plans.
	CheckoutCaseMixed CheckoutCase = "C"
)

func (c CheckoutCase) String() string {
	return string(c)
}

func (c CheckoutCase) IsValid() bool {
	switch c {
	case CheckoutCaseWebOnly, CheckoutCaseProductionOnly, CheckoutCaseMixed:
		return true
	default:
		return false
	}
}

// HasRecurring reports whether the case includes a subscription component.
func (c CheckoutCase) HasRecurring() bool {
	return c == CheckoutCaseWebOnly || c == CheckoutCaseMixed
}

func ParseCheckoutCase(value string) (CheckoutCase, error) {
	c := CheckoutCase(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid checkout case %q", value)
	}
	return c, nil
}

// ModuleType distinguishes recurring web plans from one-off production plans.
type ModuleType string

const (
	ModuleTypeWeb        ModuleType = "web"
	ModuleTypeProduction ModuleType = "production"
)

func (m ModuleType) IsValid() bool {
	return m == ModuleTypeWeb || m == ModuleTypeProduction
}
