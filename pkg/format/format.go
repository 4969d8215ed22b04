package format

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Flt coerces loosely typed numeric input into a float64. Anything that is not
// a finite number (nil, empty strings, garbage, NaN, Inf) becomes zero.
func Flt(value interface{}) float64 {
	var f float64

	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case decimal.Decimal:
		f = v.InexactFloat64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Round rounds half away from zero to the given number of decimal places.
func Round(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Quantity renders a quantity with a fixed number of decimals and comma grouping.
func Quantity(value float64, places int32) string {
	return group(decimal.NewFromFloat(Flt(value)).StringFixed(places), ",", ".")
}

// Percent renders a percentage with one decimal, e.g. "60.0%".
func Percent(value float64) string {
	return decimal.NewFromFloat(Flt(value)).StringFixed(1) + "%"
}

// Currency renders an amount for the given ISO currency code. IDR follows the
// Indonesian convention of dot grouping and no minor units ("Rp 1.250.000").
func Currency(value float64, code string) string {
	amount := decimal.NewFromFloat(Flt(value))
	code = strings.ToUpper(strings.TrimSpace(code))

	if code == "" || code == "IDR" {
		return "Rp " + group(amount.StringFixed(0), ".", ",")
	}
	return code + " " + group(amount.StringFixed(2), ",", ".")
}

// group inserts sep between thousands of a plain decimal string ("-1234.50")
// and swaps the decimal point for point.
func group(fixed, sep, point string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(intPart[i : i+3])
	}

	out := sign + b.String()
	if hasFrac {
		out += point + fracPart
	}
	return out
}
