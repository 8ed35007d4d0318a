package ingest

import "testing"

// Scenario 6: off-exchange inference.
func TestInferOffExchange(t *testing.T) {
	venueMap := map[string]string{
		"D": "FINRA / Nasdaq TRF",
		"Q": "NASDAQ",
	}

	cases := []struct {
		code     string
		venueMap map[string]string
		want     bool
	}{
		{"D", venueMap, true},
		{"Q", venueMap, false},
		{"Z", venueMap, false},
		{"D", map[string]string{}, true},
		{"N", map[string]string{}, false},
	}

	for _, tc := range cases {
		if got := InferOffExchange(tc.code, tc.venueMap); got != tc.want {
			t.Errorf("InferOffExchange(%q, %v) = %v, want %v", tc.code, tc.venueMap, got, tc.want)
		}
	}
}
