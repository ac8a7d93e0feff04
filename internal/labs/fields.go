package labs

// Kind separates numeric measurements from the two free-text urine fields.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindText    Kind = "text"
)

// Field describes one input on the intake form.
type Field struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Unit    string   `json:"unit,omitempty"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"` // fixed choices for select inputs
	Hint    string   `json:"hint,omitempty"`

	number func(*Report) **float64
	text   func(*Report) *string
}

func (f Field) set(r *Report, raw string) {
	switch f.Kind {
	case KindNumeric:
		*f.number(r) = parseNumber(raw)
	case KindText:
		*f.text(r) = raw
	}
}

func numeric(key, label, unit string, get func(*Report) **float64) Field {
	return Field{Key: key, Label: label, Unit: unit, Kind: KindNumeric, number: get}
}

// fields is the form catalog in display order: first column, then second.
var fields = []Field{
	numeric("hemoglobin", "Hemoglobin", "g/dL", func(r *Report) **float64 { return &r.Hemoglobin }),
	numeric("wbc", "WBC", "/µL", func(r *Report) **float64 { return &r.WBC }),
	numeric("platelets", "Platelets", "/µL", func(r *Report) **float64 { return &r.Platelets }),
	numeric("ldl", "LDL", "mg/dL", func(r *Report) **float64 { return &r.LDL }),
	numeric("hdl", "HDL", "mg/dL", func(r *Report) **float64 { return &r.HDL }),
	numeric("triglycerides", "Triglycerides", "mg/dL", func(r *Report) **float64 { return &r.Triglycerides }),
	numeric("creatinine", "Creatinine", "mg/dL", func(r *Report) **float64 { return &r.Creatinine }),
	numeric("uric_acid", "Uric Acid", "mg/dL", func(r *Report) **float64 { return &r.UricAcid }),
	numeric("tsh", "TSH", "µIU/mL", func(r *Report) **float64 { return &r.TSH }),
	numeric("t3", "T3", "ng/mL", func(r *Report) **float64 { return &r.T3 }),
	numeric("t4", "T4", "µg/dL", func(r *Report) **float64 { return &r.T4 }),
	numeric("alt", "ALT", "U/L", func(r *Report) **float64 { return &r.ALT }),
	numeric("ast", "AST", "U/L", func(r *Report) **float64 { return &r.AST }),
	numeric("bilirubin", "Bilirubin", "mg/dL", func(r *Report) **float64 { return &r.Bilirubin }),
	{
		Key: "protein", Label: "Protein in Urine", Kind: KindText,
		Options: []string{"", "Present", "Absent"},
		text:    func(r *Report) *string { return &r.Protein },
	},
	{
		Key: "rbc", Label: "RBC in Urine", Kind: KindText,
		Hint: "e.g. 0-1/hpf",
		text: func(r *Report) *string { return &r.RBC },
	},
}

var fieldIndex = func() map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}()

// Fields returns a copy of the catalog in form order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Lookup returns the catalog entry for key.
func Lookup(key string) (Field, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}
