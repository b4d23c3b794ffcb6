package whatsapp

// Message type discriminators on the Cloud API messages endpoint.
const (
	TypeText     = "text"
	TypeTemplate = "template"
)

// MessagePayload is the request body for POST /{phone_number_id}/messages.
// Exactly one of Text or Template is set, matching the Type field.
type MessagePayload struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *Text     `json:"text,omitempty"`
	Template         *Template `json:"template,omitempty"`
}

// Text is a free-text message body.
type Text struct {
	Body string `json:"body"`
}

// Template references a pre-approved template plus its body parameters.
type Template struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

// Language selects the template translation.
type Language struct {
	Code string `json:"code"`
}

// Component carries ordered parameters for one template section.
type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter is a single positional template value.
type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextPayload builds a free-text message payload.
func NewTextPayload(to, body string) *MessagePayload {
	return &MessagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             TypeText,
		Text:             &Text{Body: body},
	}
}

// NewTemplatePayload builds a templated message payload. params must already
// be ordered by the template's declared variable order.
func NewTemplatePayload(to, name, langCode string, params []string) *MessagePayload {
	tpl := &Template{
		Name:     name,
		Language: Language{Code: langCode},
	}
	if len(params) > 0 {
		component := Component{Type: "body"}
		for _, p := range params {
			component.Parameters = append(component.Parameters, Parameter{Type: "text", Text: p})
		}
		tpl.Components = []Component{component}
	}

	return &MessagePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             TypeTemplate,
		Template:         tpl,
	}
}
