package labs_test

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
)

func TestParse_NumericFields(t *testing.T) {
	r := labs.Parse(map[string]string{
		"hemoglobin": "11.5",
		"wbc":        " 12000 ",
		"platelets":  "1.5e5",
		"uric_acid":  "7.2",
	})

	require.NotNil(t, r.Hemoglobin)
	assert.Equal(t, 11.5, *r.Hemoglobin)
	require.NotNil(t, r.WBC)
	assert.Equal(t, 12000.0, *r.WBC)
	require.NotNil(t, r.Platelets)
	assert.Equal(t, 150000.0, *r.Platelets)
	require.NotNil(t, r.UricAcid)
	assert.Equal(t, 7.2, *r.UricAcid)

	assert.Nil(t, r.LDL, "unsubmitted field must be absent")
}

func TestParse_UnparseableNumbersAreAbsent(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "12 g/dL", "1,200", "--"} {
		t.Run(raw, func(t *testing.T) {
			r := labs.Parse(map[string]string{"hemoglobin": raw})
			assert.Nil(t, r.Hemoglobin)
			_, ok := r.Number("hemoglobin")
			assert.False(t, ok)
		})
	}
}

func TestParse_NumberSyntax(t *testing.T) {
	cases := []struct {
		raw  string
		want *float64
	}{
		{"1_000", ptr(1000)},
		{"1_000.5", ptr(1000.5)},
		{"1e1_0", ptr(1e10)},
		{" .5 ", ptr(0.5)},
		{"0x1p3", nil},
		{"0X10", nil},
		{"-0x1", nil},
		{"1__000", nil},
		{"_1", nil},
		{"1_", nil},
		{"1_.5", nil},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			r := labs.Parse(map[string]string{"ldl": tc.raw})
			if tc.want == nil {
				assert.Nil(t, r.LDL)
				return
			}
			require.NotNil(t, r.LDL)
			assert.Equal(t, *tc.want, *r.LDL)
		})
	}
}

func TestParse_OverflowSaturates(t *testing.T) {
	r := labs.Parse(map[string]string{"wbc": "1e400"})
	require.NotNil(t, r.WBC)
	assert.True(t, math.IsInf(*r.WBC, 1))
}

func TestParse_TextFieldsKeepRawInput(t *testing.T) {
	r := labs.Parse(map[string]string{
		"protein": "Present",
		"rbc":     " 2-3/hpf ",
	})
	assert.Equal(t, "Present", r.Protein)
	assert.Equal(t, " 2-3/hpf ", r.RBC)
	assert.Equal(t, "Present", r.Text("protein"))
}

func TestParse_IgnoresUnknownKeys(t *testing.T) {
	r := labs.Parse(map[string]string{"cholesterol": "250"})
	assert.Equal(t, 0, r.PresentCount())
}

func TestFromForm(t *testing.T) {
	form := url.Values{}
	form.Set("tsh", "0.2")
	form.Set("rbc", "0-1/hpf")
	form.Add("alt", "60")
	form.Add("alt", "10") // only the first value counts

	r := labs.FromForm(form)

	tsh, ok := r.Number("tsh")
	require.True(t, ok)
	assert.Equal(t, 0.2, tsh)

	alt, ok := r.Number("alt")
	require.True(t, ok)
	assert.Equal(t, 60.0, alt)

	assert.Equal(t, "0-1/hpf", r.RBC)
	assert.Equal(t, 3, r.PresentCount())
}

func TestNumberAndText_KindMismatch(t *testing.T) {
	r := labs.Parse(map[string]string{"protein": "Present", "hdl": "35"})

	_, ok := r.Number("protein")
	assert.False(t, ok)
	assert.Empty(t, r.Text("hdl"))

	_, ok = r.Number("nope")
	assert.False(t, ok)
}

func TestValues_FormOrderAndDisplay(t *testing.T) {
	r := labs.Parse(map[string]string{"hemoglobin": "13", "bilirubin": "1.25", "protein": "Absent"})
	values := r.Values()

	require.Len(t, values, len(labs.Fields()))
	assert.Equal(t, "hemoglobin", values[0].Field.Key)
	assert.Equal(t, "13", values[0].Display)
	assert.True(t, values[0].Present)
	assert.Equal(t, "rbc", values[len(values)-1].Field.Key)
	assert.False(t, values[len(values)-1].Present)

	for _, v := range values {
		if v.Field.Key == "bilirubin" {
			assert.Equal(t, "1.25", v.Display)
		}
		if v.Field.Key == "protein" {
			assert.Equal(t, "Absent", v.Display)
		}
	}
}

func TestLookup(t *testing.T) {
	f, ok := labs.Lookup("uric_acid")
	require.True(t, ok)
	assert.Equal(t, "Uric Acid", f.Label)
	assert.Equal(t, labs.KindNumeric, f.Kind)

	f, ok = labs.Lookup("protein")
	require.True(t, ok)
	assert.Equal(t, []string{"", "Present", "Absent"}, f.Options)

	_, ok = labs.Lookup("glucose")
	assert.False(t, ok)
}

func ptr(v float64) *float64 { return &v }
