package whatsapp

// NewText builds a plain text message.
func NewText(body string) Message {
	return Message{Type: TypeText, Body: Truncate(body, BodyLimit)}
}

// NewButtons builds an interactive button message. At most MaxButtons
// buttons survive; all fields are clamped to the transport limits.
func NewButtons(body string, buttons []Button, opts ...Option) Message {
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	clamped := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		if b.ID == "" || b.Title == "" {
			continue
		}
		clamped = append(clamped, Button{ID: b.ID, Title: Truncate(b.Title, ButtonTitleLimit)})
	}
	msg := Message{Type: TypeButtons, Body: Truncate(body, BodyLimit), Buttons: clamped}
	return applyOptions(msg, opts)
}

// NewList builds an interactive list message.
func NewList(body, buttonText string, sections []ListSection, opts ...Option) Message {
	clamped := make([]ListSection, 0, len(sections))
	for _, sec := range sections {
		rows := make([]ListRow, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			if row.ID == "" || row.Title == "" {
				continue
			}
			rows = append(rows, ListRow{
				ID:          row.ID,
				Title:       Truncate(row.Title, RowTitleLimit),
				Description: Truncate(row.Description, RowDescLimit),
			})
		}
		if len(rows) == 0 {
			continue
		}
		clamped = append(clamped, ListSection{Title: Truncate(sec.Title, RowTitleLimit), Rows: rows})
	}
	msg := Message{
		Type:       TypeList,
		Body:       Truncate(body, BodyLimit),
		ButtonText: Truncate(buttonText, ButtonTitleLimit),
		Sections:   clamped,
	}
	return applyOptions(msg, opts)
}

// NewCatalog builds a product-list message from pre-provisioned catalog
// product handles.
func NewCatalog(body, catalogID string, productIDs []string, opts ...Option) Message {
	msg := Message{
		Type:       TypeCatalog,
		Body:       Truncate(body, BodyLimit),
		CatalogID:  catalogID,
		ProductIDs: productIDs,
	}
	return applyOptions(msg, opts)
}

// NewImage builds an image message with an optional caption.
func NewImage(url, caption string) Message {
	return Message{Type: TypeImage, ImageURL: url, Caption: Truncate(caption, BodyLimit)}
}

// Option mutates a message during composition.
type Option func(*Message)

// WithHeader sets a clamped header.
func WithHeader(header string) Option {
	return func(m *Message) { m.Header = Truncate(header, HeaderLimit) }
}

// WithFooter sets a clamped footer.
func WithFooter(footer string) Option {
	return func(m *Message) { m.Footer = Truncate(footer, FooterLimit) }
}

func applyOptions(msg Message, opts []Option) Message {
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}
