// Package labs defines the lab report submitted through the intake form and
// the fixed catalog of fields it carries. It has no dependencies on the rest of
// internal/ so both the scoring and ai packages can import it freely.
package labs

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Report is one submission of lab values. Numeric fields are nil when the
// submitted text did not parse as a number; text fields hold the raw input.
// A Report is built once by Parse or FromForm and never mutated afterwards.
type Report struct {
	Hemoglobin    *float64 `json:"hemoglobin"`
	WBC           *float64 `json:"wbc"`
	Platelets     *float64 `json:"platelets"`
	LDL           *float64 `json:"ldl"`
	HDL           *float64 `json:"hdl"`
	Triglycerides *float64 `json:"triglycerides"`
	Creatinine    *float64 `json:"creatinine"`
	UricAcid      *float64 `json:"uric_acid"`
	TSH           *float64 `json:"tsh"`
	T3            *float64 `json:"t3"`
	T4            *float64 `json:"t4"`
	ALT           *float64 `json:"alt"`
	AST           *float64 `json:"ast"`
	Bilirubin     *float64 `json:"bilirubin"`

	Protein string `json:"protein"` // "", "Present" or "Absent" from the form select
	RBC     string `json:"rbc"`     // free text, e.g. "0-1/hpf"
}

// Parse builds a Report from raw string values keyed by field key. Keys not in
// the catalog are ignored.
func Parse(values map[string]string) Report {
	var r Report
	for _, f := range fields {
		raw, ok := values[f.Key]
		if !ok {
			continue
		}
		f.set(&r, raw)
	}
	return r
}

// FromForm builds a Report from a submitted HTML form, reading the first value
// of every catalog key.
func FromForm(form url.Values) Report {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		if form.Has(f.Key) {
			values[f.Key] = form.Get(f.Key)
		}
	}
	return Parse(values)
}

// Number returns the value of a numeric field and whether it is present.
// Unknown keys and text fields report false.
func (r Report) Number(key string) (float64, bool) {
	f, ok := Lookup(key)
	if !ok || f.Kind != KindNumeric {
		return 0, false
	}
	p := *f.number(&r)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Text returns the raw value of a text field, or "" for unknown keys and
// numeric fields.
func (r Report) Text(key string) string {
	f, ok := Lookup(key)
	if !ok || f.Kind != KindText {
		return ""
	}
	return *f.text(&r)
}

// Value is one catalog field paired with its submitted value, formatted for
// display. Present is false when the field was left empty or did not parse.
type Value struct {
	Field   Field
	Display string
	Present bool
}

// Values lists every catalog field in form order together with its value.
func (r Report) Values() []Value {
	out := make([]Value, 0, len(fields))
	for _, f := range fields {
		v := Value{Field: f}
		switch f.Kind {
		case KindNumeric:
			if n, ok := r.Number(f.Key); ok {
				v.Display = strconv.FormatFloat(n, 'g', -1, 64)
				v.Present = true
			}
		case KindText:
			if t := strings.TrimSpace(r.Text(f.Key)); t != "" {
				v.Display = t
				v.Present = true
			}
		}
		out = append(out, v)
	}
	return out
}

// PresentCount returns the number of fields that carry a value.
func (r Report) PresentCount() int {
	n := 0
	for _, v := range r.Values() {
		if v.Present {
			n++
		}
	}
	return n
}

// parseNumber mirrors a lenient float conversion: surrounding whitespace is
// ignored, overflow saturates to ±Inf, and anything else that fails to parse is
// treated as absent. Single underscores between digits are accepted as
// separators ("1_000"); hexadecimal forms such as "0x1p3" are not numbers here.
func parseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if isHex(s) {
		return nil
	}
	s, ok := stripDigitUnderscores(s)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil
	}
	return &v
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// stripDigitUnderscores drops every underscore that sits between two digits
// and reports false if any other underscore is present.
func stripDigitUnderscores(s string) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
