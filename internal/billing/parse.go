package billing

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Statement is what conservative parsing extracts from one billing mail.
// Every field may be absent; the parser never guesses.
type Statement struct {
	// Amount is nil when no money figure was found.
	Amount   *float64
	Currency string
	// DueDate is nil when no date-shaped due date was found.
	DueDate *time.Time
	// Period is "YYYY-MM"; falls back to the month of the mail date.
	Period string
	// Failed reports payment-failure language anywhere in subject or body.
	Failed bool
}

var (
	// currencyAmountRe matches "$12.34", "USD 1,234.56", "¥128", "CNY 99".
	currencyAmountRe = regexp.MustCompile(`(?i)(USD|CNY|RMB|EUR|GBP|JPY|[$¥€£])\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	// amountCurrencyRe matches "12.34 USD", "1,234.56 元".
	amountCurrencyRe = regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s*(USD|CNY|RMB|EUR|GBP|JPY|元)`)

	dueDateISORe  = regexp.MustCompile(`(?i)(?:due|pay(?:ment)?\s+(?:by|before)|截止|到期)[^0-9]{0,20}(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})`)
	dueDateLongRe = regexp.MustCompile(`(?i)due\s+(?:date[:\s]+|on\s+|by\s+)?(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})`)

	// periodRe only fires next to an explicit bill keyword, so a due date
	// is never mistaken for the billing period.
	periodRe = regexp.MustCompile(`(?i)(\d{4})[-/年](\d{1,2})月?\s*(?:账单|bill|statement|invoice)`)
)

var currencyNames = map[string]string{
	"$": "USD", "usd": "USD",
	"¥": "CNY", "cny": "CNY", "rmb": "CNY", "元": "CNY",
	"€": "EUR", "eur": "EUR",
	"£": "GBP", "gbp": "GBP",
	"jpy": "JPY",
}

// failureMarkers flag a failed or declined payment. Matched case-insensitively.
var failureMarkers = []string{
	"payment failed",
	"payment was declined",
	"payment declined",
	"unable to process your payment",
	"could not process your payment",
	"payment unsuccessful",
	"insufficient funds",
	"card was declined",
	"扣款失败",
	"支付失败",
	"余额不足",
}

// ParseStatement extracts billing facts from one mail. mailDate anchors the
// period fallback.
func ParseStatement(subject, body string, mailDate time.Time) Statement {
	text := subject + "\n" + body
	st := Statement{}

	if m := currencyAmountRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[2]); ok {
			st.Amount = &v
			st.Currency = canonicalCurrency(m[1])
		}
	} else if m := amountCurrencyRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			st.Amount = &v
			st.Currency = canonicalCurrency(m[2])
		}
	}

	if m := dueDateISORe.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			st.DueDate = &d
		}
	} else if m := dueDateLongRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("January 2 2006", m[1]+" "+m[2]+" "+m[3]); err == nil {
			st.DueDate = &t
		}
	}

	if m := periodRe.FindStringSubmatch(text); m != nil {
		if month, err := strconv.Atoi(m[2]); err == nil && month >= 1 && month <= 12 {
			st.Period = m[1] + "-" + pad2(month)
		}
	}
	if st.Period == "" {
		if mailDate.IsZero() {
			mailDate = time.Now()
		}
		st.Period = mailDate.Format("2006-01")
	}

	lower := strings.ToLower(text)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			st.Failed = true
			break
		}
	}

	return st
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func canonicalCurrency(s string) string {
	if c, ok := currencyNames[strings.ToLower(s)]; ok {
		return c
	}
	return strings.ToUpper(s)
}

func makeDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
