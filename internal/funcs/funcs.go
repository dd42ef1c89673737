package funcs

import (
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var TemplateFuncs = template.FuncMap{
	"formatAmount": FormatAmount,
	"formatTime":   FormatTime,
}

var amountPrinter = message.NewPrinter(language.French)

// FormatAmount renders an integer minor-unit amount for display.
// FCFA has no fractional unit, so the value is printed as-is with
// French digit grouping.
func FormatAmount(amount int64) string {
	return amountPrinter.Sprintf("%d FCFA", amount)
}

func FormatTime(t time.Time) string {
	return t.Format("2 Jan 2006 at 15:04")
}
