package sos

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type Coordinates struct {
	Lat float64
	Lon float64
}

type locationObject struct {
	Lat json.RawMessage `json:"lat"`
	Lon json.RawMessage `json:"lon"`
}

// ParseLocation reads the 'location' field of an SOS payload. It accepts
// {"lat": 12.9, "lon": 77.6}, "12.9,77.6" or nothing at all. Anything that
// doesn't yield both coordinates returns nil.
func ParseLocation(raw json.RawMessage) *Coordinates {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return parseLocationString(text)
	}

	obj := locationObject{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	lat, ok := parseCoordinate(obj.Lat)
	if !ok {
		return nil
	}

	lon, ok := parseCoordinate(obj.Lon)
	if !ok {
		return nil
	}

	return &Coordinates{Lat: lat, Lon: lon}
}

func parseLocationString(text string) *Coordinates {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return nil
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil
	}

	return &Coordinates{Lat: lat, Lon: lon}
}

// parseCoordinate accepts a json number or a numeric string.
func parseCoordinate(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}

	return value, true
}
