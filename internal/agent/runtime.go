package agent

import (
	"context"
	"strings"
)

// Template names understood by the renderer.
const (
	TemplateAccountOverview     = "account_overview"
	TemplateAccountDetail       = "account_detail"
	TemplateTransactionList     = "transaction_list"
	TemplateMortgageSummary     = "mortgage_summary"
	TemplateCreditCardStatement = "credit_card_statement"
	TemplateSavingsSummary      = "savings_summary"
	TemplateTransactionLocation = "transaction_location"
)

// Templates lists every template a runtime may select.
var Templates = []string{
	TemplateAccountOverview,
	TemplateAccountDetail,
	TemplateTransactionList,
	TemplateMortgageSummary,
	TemplateCreditCardStatement,
	TemplateSavingsSummary,
	TemplateTransactionLocation,
}

// Response is the runtime's answer to one message.
type Response struct {
	Text         string         `json:"text"`
	TemplateName string         `json:"template_name"`
	Data         map[string]any `json:"data"`
}

// Runtime answers chat messages.
type Runtime interface {
	Run(ctx context.Context, message string) (*Response, error)
}

// Observer receives routing decisions.
type Observer interface {
	ObserveIntent(intent string)
	ObserveFallback(reason string)
}

// Fallback reasons reported to the Observer.
const (
	FallbackNoMerchant    = "no_merchant"
	FallbackNoDescription = "no_description"
	FallbackGeocodeFailed = "geocode_failed"
)

// NormalizeTemplate strips an optional ".json" suffix and reports whether
// the result is a known template.
func NormalizeTemplate(name string) (string, bool) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".json")
	for _, known := range Templates {
		if known == name {
			return name, true
		}
	}
	return name, false
}
