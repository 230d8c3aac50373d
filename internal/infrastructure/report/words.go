package report

import (
	"fmt"
	"strings"

	"github.com/garyjia/viaticos/internal/domain/valueobject"
)

var (
	unitWords = []string{"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve",
		"diez", "once", "doce", "trece", "catorce", "quince", "dieciséis", "diecisiete", "dieciocho", "diecinueve",
		"veinte", "veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco", "veintiséis", "veintisiete",
		"veintiocho", "veintinueve"}
	tensWords     = []string{"", "", "", "treinta", "cuarenta", "cincuenta", "sesenta", "setenta", "ochenta", "noventa"}
	hundredsWords = []string{"", "ciento", "doscientos", "trescientos", "cuatrocientos", "quinientos",
		"seiscientos", "setecientos", "ochocientos", "novecientos"}
)

// AmountInWords spells an amount the way Mexican forms print it,
// e.g. "NOVECIENTOS 00/100 MXN"
func AmountInWords(m valueobject.Money) string {
	abs := m.Amount().Abs()
	whole := abs.Truncate(0)
	exp := m.Currency().Exponent()

	words := apocope(integerWords(whole.IntPart()))
	if m.IsNegative() {
		words = "menos " + words
	}
	out := words
	if exp > 0 {
		cents := abs.Sub(whole).Shift(exp).Round(0).IntPart()
		out = fmt.Sprintf("%s %0*d/1%s", words, int(exp), cents, strings.Repeat("0", int(exp)))
	}
	return strings.ToUpper(fmt.Sprintf("%s %s", out, m.Currency()))
}

func integerWords(n int64) string {
	if n == 0 {
		return unitWords[0]
	}

	var parts []string
	if millions := n / 1_000_000; millions > 0 {
		if millions == 1 {
			parts = append(parts, "un millón")
		} else {
			parts = append(parts, apocope(integerWords(millions))+" millones")
		}
	}
	rest := n % 1_000_000
	if thousands := rest / 1000; thousands > 0 {
		if thousands == 1 {
			parts = append(parts, "mil")
		} else {
			parts = append(parts, apocope(below1000(thousands))+" mil")
		}
	}
	if last := rest % 1000; last > 0 {
		parts = append(parts, below1000(last))
	}
	return strings.Join(parts, " ")
}

func below1000(n int64) string {
	if n == 100 {
		return "cien"
	}
	h, r := n/100, n%100
	switch {
	case h == 0:
		return below100(r)
	case r == 0:
		return hundredsWords[h]
	default:
		return hundredsWords[h] + " " + below100(r)
	}
}

func below100(n int64) string {
	if n < int64(len(unitWords)) {
		return unitWords[n]
	}
	if n%10 == 0 {
		return tensWords[n/10]
	}
	return tensWords[n/10] + " y " + unitWords[n%10]
}

// apocope shortens a trailing "uno" before a noun: veintiún mil, treinta y un pesos
func apocope(s string) string {
	switch {
	case strings.HasSuffix(s, "veintiuno"):
		return strings.TrimSuffix(s, "veintiuno") + "veintiún"
	case strings.HasSuffix(s, "uno"):
		return strings.TrimSuffix(s, "o")
	}
	return s
}
