package sos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocation(t *testing.T) {
	testCases := []struct {
		description string
		raw         string
		expected    *Coordinates
	}{
		{"Should parse an object", `{"lat": 12.9, "lon": 77.6}`, &Coordinates{12.9, 77.6}},
		{"Should parse an object with string values", `{"lat": "12.9", "lon": " 77.6"}`, &Coordinates{12.9, 77.6}},
		{"Should parse a 'lat,lon' string", `"12.9, 77.6"`, &Coordinates{12.9, 77.6}},
		{"Should parse negative coordinates", `"-33.8688,151.2093"`, &Coordinates{-33.8688, 151.2093}},
		{"Should ignore a missing location", ``, nil},
		{"Should ignore a null location", `null`, nil},
		{"Should ignore an empty object", `{}`, nil},
		{"Should ignore a missing lon", `{"lat": 12.9}`, nil},
		{"Should ignore a null lat", `{"lat": null, "lon": 77.6}`, nil},
		{"Should ignore a string without a comma", `"12.9"`, nil},
		{"Should ignore a string with too many parts", `"12.9,77.6,3"`, nil},
		{"Should ignore a non numeric string", `"here,there"`, nil},
		{"Should ignore other json types", `[12.9, 77.6]`, nil},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			assert.Equal(t, tcase.expected, ParseLocation(json.RawMessage(tcase.raw)))
		})
	}
}
