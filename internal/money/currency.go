// Package money implements fixed-point monetary arithmetic over
// formatted currency strings. All computation happens on integer
// minor units (cents); floating point never touches the hot path.
// Conversion to and from display strings happens only at the
// formatting boundary.
package money

// Currency describes how a currency's amounts are parsed and
// rendered. Precision is the number of decimal digits of the minor
// unit: 0 for zero-decimal currencies such as JPY, 2 otherwise.
// SymbolAfter selects whether the symbol renders before or after
// the amount.
type Currency struct {
	Code         string
	Symbol       string
	DecimalSep   string
	ThousandsSep string
	Precision    int
	SymbolAfter  bool
}

// currencies is the static descriptor table. Conversion rates are
// not modelled; the table only carries formatting metadata.
var currencies = map[string]Currency{
	"USD": {Code: "USD", Symbol: "$", DecimalSep: ".", ThousandsSep: ",", Precision: 2},
	"EUR": {Code: "EUR", Symbol: "€", DecimalSep: ",", ThousandsSep: ".", Precision: 2, SymbolAfter: true},
	"GBP": {Code: "GBP", Symbol: "£", DecimalSep: ".", ThousandsSep: ",", Precision: 2},
	"IDR": {Code: "IDR", Symbol: "Rp", DecimalSep: ",", ThousandsSep: ".", Precision: 0},
	"JPY": {Code: "JPY", Symbol: "¥", DecimalSep: ".", ThousandsSep: ",", Precision: 0},
}

// ByCode returns the descriptor for an ISO 4217 code. The second
// return value reports whether the code is known.
func ByCode(code string) (Currency, bool) {
	c, ok := currencies[code]
	return c, ok
}

// Default returns the descriptor used when no currency is
// configured.
func Default() Currency {
	return currencies["USD"]
}
