package ingest

import "strings"

// offExchangeSubstrings are the venue-name fragments that mark a print as
// off-exchange, per §4.2.
var offExchangeSubstrings = []string{
	"FINRA",
	"TRF",
	"ADF",
	"OTC",
	"TRADE REPORTING FACILITY",
	"ALTERNATIVE DISPLAY FACILITY",
}

// conservativeFallbackCode is the single venue code treated as
// off-exchange when the code->name map has no entries at all.
const conservativeFallbackCode = "D"

// InferOffExchange resolves code to a venue name via venueMap and
// pattern-matches the upper-cased name against offExchangeSubstrings. If
// venueMap is empty, only the literal code "D" is treated as off-exchange;
// an empty or missing code is never off-exchange.
func InferOffExchange(code string, venueMap map[string]string) bool {
	if len(venueMap) == 0 {
		return code == conservativeFallbackCode
	}

	name, ok := venueMap[code]
	if !ok {
		return false
	}

	upper := strings.ToUpper(name)
	for _, substr := range offExchangeSubstrings {
		if strings.Contains(upper, substr) {
			return true
		}
	}
	return false
}
