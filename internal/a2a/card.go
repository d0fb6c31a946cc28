package a2a

import "strings"

// A2UI extension identifiers advertised on the agent card.
const (
	ExtensionA2UI          = "https://a2ui.org/a2a-extension/a2ui/v0.8"
	CatalogStandard        = "https://a2ui.org/specification/v0_8/standard_catalog_definition.json"
	CatalogBanking         = "https://aibank.local/catalogs/banking-v1.json"
	agentName              = "aibank-agent"
	agentDescription       = "Mock banking assistant with A2UI output"
	agentVersion           = "0.1.0"
	defaultProtocolVersion = "0.3.0"
)

// Extension declares a protocol extension.
type Extension struct {
	URI      string         `json:"uri"`
	Required bool           `json:"required"`
	Params   map[string]any `json:"params,omitempty"`
}

// Capabilities lists optional agent features.
type Capabilities struct {
	Streaming  bool        `json:"streaming"`
	Extensions []Extension `json:"extensions"`
}

// Skill describes one thing the agent can do.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is the discovery document served to A2A clients.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url,omitempty"`
	Version            string       `json:"version"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []Skill      `json:"skills"`
}

// Card returns the agent card. publicURL may be empty.
func Card(publicURL string) AgentCard {
	return AgentCard{
		Name:            agentName,
		Description:     agentDescription,
		URL:             strings.TrimRight(strings.TrimSpace(publicURL), "/"),
		Version:         agentVersion,
		ProtocolVersion: defaultProtocolVersion,
		Capabilities: Capabilities{
			Streaming: true,
			Extensions: []Extension{{
				URI:      ExtensionA2UI,
				Required: false,
				Params: map[string]any{
					"supportedCatalogIds":   []string{CatalogStandard, CatalogBanking},
					"acceptsInlineCatalogs": false,
				},
			}},
		},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain", MimeTypeA2UI},
		Skills: []Skill{{
			ID:          "banking-overview",
			Name:        "Banking assistant",
			Description: "Answers questions about accounts, transactions, savings, credit cards and mortgages.",
			Tags:        []string{"banking", "a2ui"},
			Examples:    []string{"show my accounts", "where was my Tesco transaction?"},
		}},
	}
}
