package features

import "strings"

// KnownBanks is the fixed, ordered list of bank names shared with the
// serving runtime's one-hot encoder. Matching is first-match-wins, so
// the order is significant and must not be changed independently.
var KnownBanks = []string{
	"NUBANK", "MERCADO PAGO", "C6", "ITAU", "SANTANDER",
	"PICPAY", "XP", "RENNER", "BRADESCO", "INTER", "CAIXA",
}

// unknownBank is the placeholder used when a record carries no bank name.
const unknownBank = "desconhecido"

// EncodeBank one-hot encodes a bank string against KnownBanks. The bank
// name is uppercased and accent-stripped, then scanned against the list
// in order; the first entry found as a substring sets its indicator and
// the scan stops. No match yields the all-zero vector.
func EncodeBank(bank string) []float64 {
	if bank == "" {
		bank = unknownBank
	}
	normalized := stripAccents(strings.ToUpper(bank))

	vec := make([]float64, len(KnownBanks))
	for i, name := range KnownBanks {
		if strings.Contains(normalized, name) {
			vec[i] = 1
			break
		}
	}
	return vec
}
