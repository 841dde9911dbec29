package rates

import "strings"

// =============================================================================
// CHARGE CODES AND CATEGORIES
// =============================================================================

type Category string

const (
	CategoryFreight     Category = "freight"
	CategoryFuel        Category = "fuel"
	CategoryAccessorial Category = "accessorial"
	CategorySurcharge   Category = "surcharge"
	CategoryTax         Category = "tax"
	CategoryOther       Category = "other"
)

const (
	CodeFreight     = "FRT"
	CodeFuel        = "FUE"
	CodeFuelSur     = "FSC"
	CodeAccessorial = "ACC"
	CodeSurcharge   = "SUR"
	CodeTax         = "TAX"
	CodeOther       = "OTHER"
)

const (
	UnnamedCharge = "Unnamed Charge"
	GenericCharge = "Charge"
)

var codeCategories = map[string]Category{
	"FRT": CategoryFreight,
	"FUE": CategoryFuel,
	"FSC": CategoryFuel,
	"ACC": CategoryAccessorial,
	"SUR": CategorySurcharge,
	"TAX": CategoryTax,
	"GST": CategoryTax,
	"HST": CategoryTax,
	"PST": CategoryTax,
}

// NormalizeCode trims and upper-cases a code, defaulting to FRT.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return CodeFreight
	}
	return code
}

// CategoryForCode never fails; unknown codes are CategoryOther.
func CategoryForCode(code string) Category {
	if c, ok := codeCategories[NormalizeCode(code)]; ok {
		return c
	}
	return CategoryOther
}

// CodeForName approximates the inverse mapping by substring match.
func CodeForName(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "fuel"):
		return CodeFuelSur
	case strings.Contains(n, "freight"):
		return CodeFreight
	case strings.Contains(n, "tax"):
		return CodeTax
	case strings.Contains(n, "surcharge"):
		return CodeSurcharge
	default:
		return CodeOther
	}
}
