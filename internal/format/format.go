package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"AIBank-Agent/internal/banking"
)

const (
	isoDate     = "2006-01-02"
	displayDate = "02 Jan"
	currency    = "£"
)

// Fields is a template data payload.
type Fields = map[string]any

// NetWorth sums the account balances with exact decimal arithmetic and
// renders the total with two decimals. Unparsable balances count as zero.
func NetWorth(accounts []banking.Account) string {
	total := decimal.Zero
	for _, account := range accounts {
		balance, err := decimal.NewFromString(strings.TrimSpace(account.Balance))
		if err != nil {
			continue
		}
		total = total.Add(balance)
	}
	return total.StringFixed(2)
}

// AmountDisplay signs an unsigned amount by direction: "-£12.00" for debits,
// "+£12.00" otherwise.
func AmountDisplay(tx banking.Transaction) string {
	if tx.Type == banking.Debit {
		return "-" + currency + tx.Amount
	}
	return "+" + currency + tx.Amount
}

// DisplayDate renders an ISO date as "DD Mon". Anything else is returned
// unchanged.
func DisplayDate(value string) string {
	parsed, err := time.Parse(isoDate, value)
	if err != nil {
		return value
	}
	return parsed.Format(displayDate)
}

// BalanceDisplay moves a leading minus sign in front of the currency symbol.
func BalanceDisplay(balance string) string {
	if rest, ok := strings.CutPrefix(balance, "-"); ok {
		return "-" + currency + rest
	}
	return currency + balance
}

// CreditUtilization returns round(|balance| / limit * 100) using half-to-even
// rounding. A missing, unparsable or zero limit yields 0.
func CreditUtilization(balance, limit string) int {
	lim, err := decimal.NewFromString(strings.TrimSpace(limit))
	if err != nil || lim.IsZero() {
		return 0
	}
	bal, err := decimal.NewFromString(strings.TrimSpace(balance))
	if err != nil {
		return 0
	}
	return int(bal.Abs().Div(lim).Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart())
}

// UtilizationDisplay renders a utilisation percentage.
func UtilizationDisplay(percent int) string {
	return strconv.Itoa(percent) + "% of limit used"
}

// RateDisplay renders an interest rate such as "4.10" as "4.10%".
func RateDisplay(rate string) string {
	if rate == "" {
		return ""
	}
	return rate + "%"
}

// IndexedMap turns a list into a map keyed "0", "1", ... so templates can
// bind it through a map path.
func IndexedMap(items []Fields) Fields {
	out := make(Fields, len(items))
	for i, item := range items {
		out[strconv.Itoa(i)] = item
	}
	return out
}

// Transaction returns the transaction fields enriched with amountDisplay and
// formattedDate.
func Transaction(tx banking.Transaction) Fields {
	return Fields{
		"id":             tx.ID,
		"date":           tx.Date,
		"description":    tx.Description,
		"amount":         tx.Amount,
		"currency":       tx.Currency,
		"type":           tx.Type,
		"runningBalance": tx.RunningBalance,
		"amountDisplay":  AmountDisplay(tx),
		"formattedDate":  DisplayDate(tx.Date),
	}
}

// Transactions formats a list and converts it to an indexed map.
func Transactions(txs []banking.Transaction) Fields {
	items := make([]Fields, 0, len(txs))
	for _, tx := range txs {
		items = append(items, Transaction(tx))
	}
	return IndexedMap(items)
}

// Account returns the summary fields plus balanceDisplay.
func Account(a banking.Account) Fields {
	return Fields{
		"id":             a.ID,
		"type":           a.Type,
		"name":           a.Name,
		"balance":        a.Balance,
		"currency":       a.Currency,
		"balanceDisplay": BalanceDisplay(a.Balance),
	}
}

// Overview builds the account_overview payload.
func Overview(accounts []banking.Account) Fields {
	items := make([]Fields, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, Account(account))
	}
	net := NetWorth(accounts)
	return Fields{
		"accounts":   IndexedMap(items),
		"netWorth":   net,
		"headerText": "Net Worth: " + BalanceDisplay(net),
	}
}

// AccountDetail flattens a detail record, its display fields and its
// formatted transactions.
func AccountDetail(detail banking.AccountDetail, txs []banking.Transaction) Fields {
	out := Account(detail.Account)
	out["customer"] = Fields{"id": detail.Customer.ID, "name": detail.Customer.Name}
	optional := map[string]string{
		"accountNumber":      detail.AccountNumber,
		"sortCode":           detail.SortCode,
		"overdraftLimit":     detail.OverdraftLimit,
		"interestRate":       detail.InterestRate,
		"interestEarned":     detail.InterestEarned,
		"cardNumberMasked":   detail.CardNumberMasked,
		"creditLimit":        detail.CreditLimit,
		"availableCredit":    detail.AvailableCredit,
		"minimumPayment":     detail.MinimumPayment,
		"paymentDueDate":     detail.PaymentDueDate,
		"propertyAddress":    detail.PropertyAddress,
		"originalAmount":     detail.OriginalAmount,
		"outstandingBalance": detail.OutstandingBalance,
		"monthlyPayment":     detail.MonthlyPayment,
		"rateType":           detail.RateType,
		"termEndDate":        detail.TermEndDate,
		"nextPaymentDate":    detail.NextPaymentDate,
	}
	for key, value := range optional {
		if value != "" {
			out[key] = value
		}
	}
	if detail.OverdraftLimit != "" {
		out["overdraftLimitDisplay"] = BalanceDisplay(detail.OverdraftLimit)
	}
	out["transactions"] = Transactions(txs)
	out["transactionCount"] = len(txs)
	return out
}

// Savings builds the savings_summary payload.
func Savings(detail banking.AccountDetail) Fields {
	return Fields{
		"id":                    detail.ID,
		"name":                  detail.Name,
		"accountNumber":         detail.AccountNumber,
		"balance":               detail.Balance,
		"balanceDisplay":        BalanceDisplay(detail.Balance),
		"interestRate":          detail.InterestRate,
		"interestRateDisplay":   RateDisplay(detail.InterestRate),
		"interestEarned":        detail.InterestEarned,
		"interestEarnedDisplay": BalanceDisplay(detail.InterestEarned),
	}
}

// Mortgage builds the mortgage_summary payload.
func Mortgage(m banking.MortgageSummary) Fields {
	return Fields{
		"id":                        m.ID,
		"propertyAddress":           m.PropertyAddress,
		"originalAmount":            m.OriginalAmount,
		"originalAmountDisplay":     BalanceDisplay(m.OriginalAmount),
		"outstandingBalance":        m.OutstandingBalance,
		"outstandingBalanceDisplay": BalanceDisplay(m.OutstandingBalance),
		"monthlyPayment":            m.MonthlyPayment,
		"monthlyPaymentDisplay":     BalanceDisplay(m.MonthlyPayment),
		"interestRate":              m.InterestRate,
		"interestRateDisplay":       RateDisplay(m.InterestRate),
		"rateType":                  m.RateType,
		"rateTypeDisplay":           titleCase(m.RateType),
		"termEndDate":               m.TermEndDate,
		"termEndDateDisplay":        DisplayDate(m.TermEndDate),
		"nextPaymentDate":           m.NextPaymentDate,
		"nextPaymentDateDisplay":    DisplayDate(m.NextPaymentDate),
		"repaidPercentage":          repaidPercentage(m.OriginalAmount, m.OutstandingBalance),
	}
}

// CreditCard builds the credit_card_statement payload.
func CreditCard(s banking.CreditCardStatement) Fields {
	utilization := CreditUtilization(s.CurrentBalance, s.CreditLimit)
	return Fields{
		"id":                     s.ID,
		"cardNumber":             s.CardNumber,
		"creditLimit":            s.CreditLimit,
		"creditLimitDisplay":     BalanceDisplay(s.CreditLimit),
		"currentBalance":         s.CurrentBalance,
		"currentBalanceDisplay":  BalanceDisplay(s.CurrentBalance),
		"availableCredit":        s.AvailableCredit,
		"availableCreditDisplay": BalanceDisplay(s.AvailableCredit),
		"minimumPayment":         s.MinimumPayment,
		"minimumPaymentDisplay":  BalanceDisplay(s.MinimumPayment),
		"paymentDueDate":         s.PaymentDueDate,
		"paymentDueDateDisplay":  DisplayDate(s.PaymentDueDate),
		"utilization":            utilization,
		"utilizationDisplay":     UtilizationDisplay(utilization),
		"recentTransactions":     Transactions(s.RecentTransactions),
	}
}

func repaidPercentage(original, outstanding string) int {
	orig, err := decimal.NewFromString(original)
	if err != nil || orig.IsZero() {
		return 0
	}
	out, err := decimal.NewFromString(outstanding)
	if err != nil {
		return 0
	}
	return int(orig.Sub(out).Div(orig).Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart())
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
