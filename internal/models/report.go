package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ReportFromFields builds a report from loosely typed caller input, as posted
// by a form or a JSON body. The whole input is kept as Raw. Coordinates that
// are missing, unparseable, non-finite or out of range are left nil.
func ReportFromFields(fields map[string]any, defaultReporter string) Report {
	r := Report{
		Reporter:  stringField(fields, "reporter"),
		Text:      stringField(fields, "text"),
		PlaceText: stringField(fields, "place_text"),
		Lat:       boundedFloat(fields["lat"], validLatitude),
		Lon:       boundedFloat(fields["lon"], validLongitude),
		Raw:       fields,
	}
	if r.Reporter == "" {
		r.Reporter = defaultReporter
	}
	return r
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func boundedFloat(v any, ok func(float64) bool) *float64 {
	f := LooseFloat(v)
	if f == nil || !ok(*f) {
		return nil
	}
	return f
}

// LooseFloat converts a number or numeric string to a float pointer. NaN and
// infinities are rejected.
func LooseFloat(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if !finite(f) {
		return nil
	}
	return &f
}
