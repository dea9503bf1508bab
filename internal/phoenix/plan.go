package phoenix

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/phoenix-backend/pkg/enums"
)

var moduleValidator = validator.New()

// Module is one purchased plan carried in modulesJson.
type Module struct {
	PlanID     string           `json:"planId" validate:"required"`
	PlanName   string           `json:"planName" validate:"required"`
	PriceCents int64            `json:"priceCents" validate:"gte=0"`
	Type       enums.ModuleType `json:"type" validate:"required,oneof=web production"`
}

// RequestShape selects the downstream project creation call.
type RequestShape int

const (
	ShapeSingle RequestShape = iota
	ShapeModules
	ShapeLegacyDual
)

func (s RequestShape) String() string {
	switch s {
	case ShapeModules:
		return "modules"
	case ShapeLegacyDual:
		return "legacy_dual"
	default:
		return "single"
	}
}

// LegacyPlans are the plan fields predating modulesJson.
type LegacyPlans struct {
	WebPlanID           string
	WebPlanName         string
	ProductionPlanIDs   []string
	ProductionPlanNames []string
}

// PlanSelection is the invoice plan and provisioning request derived from checkout metadata.
type PlanSelection struct {
	Case        enums.CheckoutCase
	PlanID      string
	PlanName    string
	Modules     []Module
	Legacy      LegacyPlans
	Shape       RequestShape
	TotalAmount decimal.Decimal
}

// Empty reports whether no plan could be derived.
func (p PlanSelection) Empty() bool {
	return p.PlanID == "" && p.PlanName == ""
}

// Recurring reports whether the purchase includes a subscription component.
func (p PlanSelection) Recurring() bool {
	if p.Case != "" {
		return p.Case.HasRecurring()
	}
	for _, m := range p.Modules {
		if m.Type == enums.ModuleTypeWeb {
			return true
		}
	}
	return p.Legacy.WebPlanID != ""
}

// ParseModules decodes and validates modulesJson. Blank input yields no modules.
func ParseModules(raw string) ([]Module, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var modules []Module
	if err := json.Unmarshal([]byte(raw), &modules); err != nil {
		return nil, fmt.Errorf("%w: modulesJson: %v", ErrInvalidIntent, err)
	}
	for i := range modules {
		modules[i].Type = enums.ModuleType(strings.ToLower(strings.TrimSpace(string(modules[i].Type))))
		if err := moduleValidator.Struct(modules[i]); err != nil {
			return nil, fmt.Errorf("%w: module %d: %v", ErrInvalidIntent, i, err)
		}
	}
	return modules, nil
}

// DerivePlan computes the invoice plan id and name. A non-empty module list is
// authoritative; the legacy web/production fields are used otherwise.
func DerivePlan(c enums.CheckoutCase, modules []Module, legacy LegacyPlans) PlanSelection {
	sel := PlanSelection{Case: c, Modules: modules, Legacy: legacy}

	if len(modules) > 0 {
		sel.Shape = ShapeModules
		ordered := orderModules(modules)
		ids := make([]string, 0, len(ordered))
		names := make([]string, 0, len(ordered))
		for _, m := range ordered {
			ids = append(ids, m.PlanID)
			names = append(names, m.PlanName)
		}
		sel.PlanID = strings.Join(ids, ",")
		sel.PlanName = strings.Join(names, " + ")
		return sel
	}

	webName := firstNonEmpty(legacy.WebPlanName, legacy.WebPlanID)
	prodNames := legacy.ProductionPlanNames
	if len(prodNames) == 0 {
		prodNames = legacy.ProductionPlanIDs
	}
	prodName := strings.Join(prodNames, " + ")

	switch c {
	case enums.CheckoutCaseWebOnly:
		sel.PlanID, sel.PlanName = legacy.WebPlanID, webName
	case enums.CheckoutCaseProductionOnly:
		sel.PlanID, sel.PlanName = strings.Join(legacy.ProductionPlanIDs, ","), prodName
	case enums.CheckoutCaseMixed:
		sel.PlanID = firstNonEmpty(legacy.WebPlanID, strings.Join(legacy.ProductionPlanIDs, ","))
		sel.PlanName = joinNonEmpty(" + ", webName, prodName)
	default:
		sel.PlanID = firstNonEmpty(legacy.WebPlanID, strings.Join(legacy.ProductionPlanIDs, ","))
		sel.PlanName = joinNonEmpty(" + ", webName, prodName)
	}

	if legacy.WebPlanID != "" && len(legacy.ProductionPlanIDs) > 0 {
		sel.Shape = ShapeLegacyDual
	} else {
		sel.Shape = ShapeSingle
	}
	return sel
}

// LegacyModules expands the legacy dual shape into a web and a production module.
func (p PlanSelection) LegacyModules() []Module {
	out := []Module{{
		PlanID:   p.Legacy.WebPlanID,
		PlanName: firstNonEmpty(p.Legacy.WebPlanName, p.Legacy.WebPlanID),
		Type:     enums.ModuleTypeWeb,
	}}
	for i, id := range p.Legacy.ProductionPlanIDs {
		name := id
		if i < len(p.Legacy.ProductionPlanNames) && p.Legacy.ProductionPlanNames[i] != "" {
			name = p.Legacy.ProductionPlanNames[i]
		}
		out = append(out, Module{PlanID: id, PlanName: name, Type: enums.ModuleTypeProduction})
	}
	return out
}

func planFromMetadata(meta map[string]string, sessionTotalCents int64) (PlanSelection, error) {
	var c enums.CheckoutCase
	if raw := strings.TrimSpace(meta[MetaCase]); raw != "" {
		parsed, err := enums.ParseCheckoutCase(raw)
		if err != nil {
			return PlanSelection{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
		}
		c = parsed
	}

	modules, err := ParseModules(meta[MetaModulesJSON])
	if err != nil {
		return PlanSelection{}, err
	}
	if count, convErr := strconv.Atoi(strings.TrimSpace(meta[MetaModuleCount])); convErr == nil && count > 0 && len(modules) == 0 {
		return PlanSelection{}, fmt.Errorf("%w: moduleCount=%d without modulesJson", ErrInvalidIntent, count)
	}

	sel := DerivePlan(c, modules, LegacyPlans{
		WebPlanID:           strings.TrimSpace(meta[MetaWebPlanID]),
		WebPlanName:         strings.TrimSpace(meta[MetaWebPlanName]),
		ProductionPlanIDs:   splitList(meta[MetaProductionPlanID]),
		ProductionPlanNames: splitList(meta[MetaProductionPlanNames]),
	})
	sel.TotalAmount = totalAmount(meta, modules, sessionTotalCents)
	return sel, nil
}

// totalAmount prefers explicit metadata, then the module prices, then the session total.
func totalAmount(meta map[string]string, modules []Module, sessionTotalCents int64) decimal.Decimal {
	if raw := strings.TrimSpace(meta[MetaTotalAmount]); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d.Round(2)
		}
	}
	if raw := strings.TrimSpace(meta[MetaTotalAmountCents]); raw != "" {
		if cents, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return decimal.New(cents, -2)
		}
	}
	if len(modules) > 0 {
		var cents int64
		for _, m := range modules {
			cents += m.PriceCents
		}
		if cents > 0 {
			return decimal.New(cents, -2)
		}
	}
	return decimal.New(sessionTotalCents, -2)
}

func orderModules(modules []Module) []Module {
	out := make([]Module, 0, len(modules))
	for _, m := range modules {
		if m.Type == enums.ModuleTypeWeb {
			out = append(out, m)
		}
	}
	for _, m := range modules {
		if m.Type != enums.ModuleTypeWeb {
			out = append(out, m)
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	var parts []string
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
