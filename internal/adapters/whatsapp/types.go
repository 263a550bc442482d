package whatsapp

// MessageType enumerates the outbound shapes the transport supports.
type MessageType string

const (
	TypeText    MessageType = "text"
	TypeButtons MessageType = "buttons"
	TypeList    MessageType = "list"
	TypeCatalog MessageType = "catalog"
	TypeImage   MessageType = "image"
)

// Button is one interactive reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListRow is one selectable row of an interactive list.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups list rows under a title.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// Message is a composed outbound message. It carries no transport state;
// the client serializes it into the Cloud API wire format.
type Message struct {
	Type       MessageType   `json:"type"`
	Header     string        `json:"header,omitempty"`
	Body       string        `json:"body,omitempty"`
	Footer     string        `json:"footer,omitempty"`
	Buttons    []Button      `json:"buttons,omitempty"`
	ButtonText string        `json:"button_text,omitempty"`
	Sections   []ListSection `json:"sections,omitempty"`
	CatalogID  string        `json:"catalog_id,omitempty"`
	ProductIDs []string      `json:"product_ids,omitempty"`
	ImageURL   string        `json:"image_url,omitempty"`
	Caption    string        `json:"caption,omitempty"`
}

// InboundType classifies a webhook message event.
type InboundType string

const (
	InboundText        InboundType = "text"
	InboundInteractive InboundType = "interactive"
	InboundLocation    InboundType = "location"
	InboundMedia       InboundType = "media"
)

// Inbound is one normalized webhook message event.
type Inbound struct {
	MessageID        string
	From             string
	Type             InboundType
	Text             string
	InteractiveID    string
	InteractiveTitle string
	Latitude         float64
	Longitude        float64
	MediaID          string
	MediaMIME        string
}
