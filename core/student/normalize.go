package student

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IDWidth is the fixed width of a normalized student identifier.
const IDWidth = 9

// NormalizeID canonicalizes a raw spreadsheet identifier into IDWidth digits, left-padded with zeros.
// Missing values, values without digits and values with more than IDWidth digits yield "".
func NormalizeID(raw interface{}) string {
	s := strings.TrimSpace(stringify(raw))
	s = strings.TrimSuffix(s, ".0") // numeric-typed cell artifact

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" || len(digits) > IDWidth {
		return ""
	}
	return strings.Repeat("0", IDWidth-len(digits)) + digits
}

// NormalizeText trims surrounding whitespace and applies Unicode NFC; missing values yield "".
func NormalizeText(raw interface{}) string {
	return norm.NFC.String(strings.TrimSpace(stringify(raw)))
}

// NormalizeUsername is NormalizeText minus the trailing ".0" numeric usernames pick up in spreadsheets.
func NormalizeUsername(raw interface{}) string {
	return strings.TrimSuffix(NormalizeText(raw), ".0")
}

func stringify(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return stringify(float64(v))
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
