package student

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalizeID(t *testing.T) {
	str := "  42 "
	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"nil", nil, ""},
		{"empty", "", ""},
		{"spreadsheet float string", "12345678.0", "012345678"},
		{"float", 12345678.0, "012345678"},
		{"json number", json.Number("123456789"), "123456789"},
		{"int", 7, "000000007"},
		{"string pointer", &str, "000000042"},
		{"nil string pointer", (*string)(nil), ""},
		{"dashes and spaces", " 03-456 789 ", "003456789"},
		{"no digits", "abc", ""},
		{"nan", math.NaN(), ""},
		{"too long", "1234567890", ""},
		{"already normalized", "000000001", "000000001"},
		{"hebrew label", "ת.ז 123", "000000123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeID(tt.raw); got != tt.want {
				t.Errorf("NormalizeID(%#v) = %q; want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"nil", nil, ""},
		{"trim", "  דנה \t", "דנה"},
		{"nfc", "Jose\u0301", "Jos\u00e9"},
		{"number", 3.5, "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.raw); got != tt.want {
				t.Errorf("NormalizeText(%#v) = %q; want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername(" 2024001.0 "); got != "2024001" {
		t.Errorf("NormalizeUsername() = %q; want %q", got, "2024001")
	}
	if got := NormalizeUsername("dana.0x"); got != "dana.0x" {
		t.Errorf("NormalizeUsername() = %q; want %q", got, "dana.0x")
	}
}

var nineDigits = regexp.MustCompile(`^\d{9}$`)

func TestNormalizeID_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.OneOf(
			rapid.String(),
			rapid.StringMatching(`[0-9 .\-]{0,14}`),
			rapid.Map(rapid.IntRange(0, 1999999999), func(n int) string { return strconv.Itoa(n) + ".0" }),
		).Draw(t, "raw")

		got := NormalizeID(raw)
		if got != "" && !nineDigits.MatchString(got) {
			t.Fatalf("NormalizeID(%q) = %q; want 9 digits or empty", raw, got)
		}
		if again := NormalizeID(got); again != got {
			t.Fatalf("NormalizeID not idempotent: %q -> %q -> %q", raw, got, again)
		}
	})
}

func TestNormalizeText_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		once := NormalizeText(raw)
		if twice := NormalizeText(once); twice != once {
			t.Fatalf("NormalizeText not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	})
}
