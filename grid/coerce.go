/*
coerce.go - Value coercion rules per column type

PURPOSE:
  Cell values arrive from four writers in wildly different shapes: "$5,000,000"
  from a user, 0.35 from a valuation service, {"value": 4.2e6} from document
  extraction. Coercion turns all of them into the canonical stored form for
  the target column type, or fails closed to an empty string. A stringified
  object must never end up in a cell.

RULES:
  currency/number: strings stripped of [$, ] then decimal-parsed
  percentage:      stored as decimal fraction; values > 1 divided by 100
  boolean:         common truthy/falsy strings recognized
  objects:         probed for value|displayValue|display_value|fair_value in
                   that order, then coerced recursively; residue becomes ""

PRECISION:
  All numeric parsing goes through shopspring/decimal. Floats only appear at
  the storage boundary, never in arithmetic.

SEE ALSO:
  - model.go: SetCell calls Coerce before committing
*/
package grid

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyStripper removes the characters users type into money fields.
var currencyStripper = strings.NewReplacer("$", "", ",", "", " ", "")

// Coerce converts an incoming value into the canonical stored form for the
// column type. The second return is false when the value could not be
// interpreted; the caller stores "" in that case (fail closed).
func Coerce(t ColumnType, v any) (any, bool) {
	if v == nil {
		return "", false
	}

	// Objects are flattened by probing the conventional wrapper fields
	// before any type-specific handling.
	if m, ok := v.(map[string]any); ok {
		for _, k := range []string{"value", "displayValue", "display_value", "fair_value"} {
			if inner, ok := m[k]; ok && inner != nil {
				return Coerce(t, inner)
			}
		}
		return "", false
	}

	switch t {
	case ColumnCurrency, ColumnNumber:
		d, ok := parseDecimal(v)
		if !ok {
			return "", false
		}
		f, _ := d.Float64()
		return f, true

	case ColumnPercentage:
		d, ok := parseDecimal(v)
		if !ok {
			return "", false
		}
		// Percentages are stored as fractions: 35 means 35%, store 0.35.
		if d.GreaterThan(decimal.NewFromInt(1)) {
			d = d.Div(decimal.NewFromInt(100))
		}
		f, _ := d.Float64()
		return f, true

	case ColumnBoolean:
		switch x := v.(type) {
		case bool:
			return x, true
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			}
			return "", false
		}
		return "", false

	case ColumnSparkline:
		// Sparkline cells store their series separately; the value is a label.
		return fmt.Sprintf("%v", v), true

	default: // text, date, formula
		switch x := v.(type) {
		case string:
			return x, true
		case float64, float32, int, int32, int64, bool:
			return fmt.Sprintf("%v", x), true
		}
		// Residual non-scalar: fail closed, never a stringified object.
		return "", false
	}
}

func parseDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case string:
		s := currencyStripper.Replace(strings.TrimSpace(x))
		s = strings.TrimSuffix(s, "%")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// FormatDisplay renders a stored value for the given column type. Used by the
// action gateway to derive display values from service results.
func FormatDisplay(t ColumnType, v any) string {
	if v == nil {
		return ""
	}
	switch t {
	case ColumnCurrency:
		if d, ok := parseDecimal(v); ok {
			return "$" + groupThousands(d)
		}
	case ColumnPercentage:
		if d, ok := parseDecimal(v); ok {
			return d.Mul(decimal.NewFromInt(100)).Round(2).String() + "%"
		}
	case ColumnNumber:
		if d, ok := parseDecimal(v); ok {
			return groupThousands(d)
		}
	}
	return fmt.Sprintf("%v", v)
}

// groupThousands formats a decimal with comma separators, preserving up to
// two fractional digits.
func groupThousands(d decimal.Decimal) string {
	s := d.Round(2).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
