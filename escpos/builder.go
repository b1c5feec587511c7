package escpos

const (
	// DefaultHeader is printed when the receipt has no header
	DefaultHeader = "Receipt"
	// Separator is the rule printed under the header and above the footer
	Separator = "------------------------"
	// BlankLine is the text written for an empty spacer line
	BlankLine = "\n"
)

// Body is the middle section of a receipt
type Body struct {
	Header string `json:"header,omitempty"`
	Main   string `json:"main,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// Receipt is the structured document accepted for printing. An empty
// string is treated the same as an absent field.
type Receipt struct {
	Header string `json:"header,omitempty"`
	Body   *Body  `json:"body,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// IsEmpty reports whether the receipt carries no text at all
func (r *Receipt) IsEmpty() bool {
	if r == nil {
		return true
	}
	if r.Header != "" || r.Footer != "" {
		return false
	}
	if r.Body == nil {
		return true
	}
	return r.Body.Header == "" && r.Body.Main == "" && r.Body.Footer == ""
}

// Build translates a receipt into the command sequence that prints it.
// It is a pure function: the same receipt always yields the same sequence.
func Build(r Receipt) Sequence {
	header := r.Header
	if header == "" {
		header = DefaultHeader
	}

	seq := Sequence{
		SetFont(FontA),
		SetAlign(AlignCenter),
		SetStyle(StyleBold),
		SetSize(1, 1),
		WriteText(header),
		WriteText(Separator),
		SetAlign(AlignCenter),
		SetStyle(StyleNormal),
		WriteText(BlankLine),
	}

	if r.Body != nil {
		for _, text := range []string{r.Body.Header, r.Body.Main, r.Body.Footer} {
			if text != "" {
				seq = append(seq, WriteText(text))
			}
		}
	}

	if r.Footer != "" {
		seq = append(seq,
			WriteText(BlankLine),
			WriteText(Separator),
			SetAlign(AlignCenter),
			WriteText(r.Footer),
		)
	}

	return append(seq, Cut())
}
