package intent

import "strings"

// Tag names a routing decision.
type Tag string

const (
	TransactionLocation Tag = "transaction_location"
	Mortgage            Tag = "mortgage"
	Credit              Tag = "credit"
	Savings             Tag = "savings"
	Transactions        Tag = "transactions"
	AccountDetail       Tag = "account_detail"
	Overview            Tag = "overview"
	// SelectTransaction is only produced by structured actions.
	SelectTransaction Tag = "select_transaction"
)

type rule struct {
	tag   Tag
	match func(m string) bool
}

func containsAny(m string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{TransactionLocation, func(m string) bool { return containsAny(m, "where", "location", "map") }},
	{TransactionLocation, func(m string) bool {
		return strings.Contains(m, "show me") && containsAny(m, "shopped", "spent", "purchase")
	}},
	{Mortgage, func(m string) bool { return strings.Contains(m, "mortgage") }},
	{Credit, func(m string) bool { return containsAny(m, "credit", "card") }},
	{Savings, func(m string) bool { return strings.Contains(m, "savings") }},
	{Transactions, func(m string) bool { return strings.Contains(m, "transaction") }},
	{AccountDetail, func(m string) bool { return containsAny(m, "detail", "show details") }},
	{Overview, func(m string) bool { return containsAny(m, "all account", "my account", "accounts", "overview") }},
	{AccountDetail, func(m string) bool { return strings.Contains(m, "account") }},
}

// Classify maps free text onto an intent. It never fails: text that matches
// no rule is an overview request.
func Classify(message string) Tag {
	m := strings.ToLower(message)
	for _, r := range rules {
		if r.match(m) {
			return r.tag
		}
	}
	return Overview
}
