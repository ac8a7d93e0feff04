package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
)

// labValue is one submitted lab value. JSON clients may send a string, a
// number, or null; booleans, arrays and objects are rejected.
type labValue struct {
	raw string
	set bool
}

func (v *labValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = labValue{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = labValue{raw: s, set: true}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.New("lab values must be strings, numbers or null")
		}
		*v = labValue{raw: n.String(), set: true}
		return nil
	}
}

// decodeReport reads a lab report from either a JSON object keyed by field key
// or a submitted HTML form. Returns false and writes 400 on bad input.
// Callers should return immediately on false.
func decodeReport(w http.ResponseWriter, r *http.Request) (labs.Report, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid form body: "+err.Error())
			return labs.Report{}, false
		}
		// Forms carry extra inputs such as the submit button, so keys outside
		// the catalog are ignored here.
		return labs.FromForm(r.PostForm), true

	default:
		var input map[string]labValue
		if !decode(w, r, &input) {
			return labs.Report{}, false
		}
		if unknown := unknownKeys(input); len(unknown) > 0 {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("unknown lab fields: %q", unknown))
			return labs.Report{}, false
		}

		values := make(map[string]string, len(input))
		for k, v := range input {
			if v.set {
				values[k] = v.raw
			}
		}
		return labs.Parse(values), true
	}
}

func unknownKeys(input map[string]labValue) []string {
	var out []string
	for k := range input {
		if _, ok := labs.Lookup(k); !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// reportView maps each present field key to its display value. Numeric values
// are formatted rather than encoded as JSON numbers so out-of-range input such
// as 1e400 still serializes.
func reportView(r labs.Report) map[string]string {
	out := make(map[string]string)
	for _, v := range r.Values() {
		if v.Present {
			out[v.Field.Key] = v.Display
		}
	}
	return out
}
