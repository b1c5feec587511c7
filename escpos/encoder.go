package escpos

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Control bytes
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// DefaultCodePage is the character table most receipt printers boot with
const DefaultCodePage = "cp437"

// cutFeedLines is how far paper is advanced before cutting so the last
// line clears the blade.
const cutFeedLines = 3

var codePages = map[string]*charmap.Charmap{
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp858":        charmap.CodePage858,
	"cp866":        charmap.CodePage866,
	"windows-1252": charmap.Windows1252,
	"iso-8859-15":  charmap.ISO8859_15,
}

// CodePages lists the supported code page names
func CodePages() []string {
	names := make([]string, 0, len(codePages))
	for name := range codePages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encoder translates commands into ESC/POS bytes. It holds no mutable
// state and may be shared between sessions.
type Encoder struct {
	codePage string
	charmap  *charmap.Charmap
}

// NewEncoder creates an encoder writing text in the named code page
func NewEncoder(codePage string) (*Encoder, error) {
	name := strings.ToLower(strings.TrimSpace(codePage))
	if name == "" {
		name = DefaultCodePage
	}
	cm, ok := codePages[name]
	if !ok {
		return nil, fmt.Errorf("unsupported code page %q (valid: %s)", codePage, strings.Join(CodePages(), ", "))
	}
	return &Encoder{
		codePage: name,
		charmap:  cm,
	}, nil
}

// DefaultEncoder returns an encoder for DefaultCodePage
func DefaultEncoder() *Encoder {
	enc, _ := NewEncoder(DefaultCodePage)
	return enc
}

// CodePage returns the name of the encoder's code page
func (e *Encoder) CodePage() string {
	return e.codePage
}

// Encode returns the device bytes for a single command
func (e *Encoder) Encode(cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case KindSetFont:
		if cmd.Font < FontA || cmd.Font > FontC {
			return nil, fmt.Errorf("invalid font %d", cmd.Font)
		}
		return []byte{ESC, 'M', byte(cmd.Font)}, nil

	case KindSetAlign:
		if cmd.Align < AlignLeft || cmd.Align > AlignRight {
			return nil, fmt.Errorf("invalid alignment %d", cmd.Align)
		}
		return []byte{ESC, 'a', byte(cmd.Align)}, nil

	case KindSetStyle:
		var bold, underline byte
		switch cmd.Style {
		case StyleNormal:
		case StyleBold:
			bold = 1
		case StyleUnderline:
			underline = 1
		case StyleBoldUnderline:
			bold, underline = 1, 1
		default:
			return nil, fmt.Errorf("invalid style %d", cmd.Style)
		}
		return []byte{ESC, 'E', bold, ESC, '-', underline}, nil

	case KindSetSize:
		w, h := clampSize(cmd.Width), clampSize(cmd.Height)
		return []byte{GS, '!', byte((w-1)<<4 | (h - 1))}, nil

	case KindWriteText:
		out, err := encoding.ReplaceUnsupported(e.charmap.NewEncoder()).Bytes([]byte(cmd.Text))
		if err != nil {
			return nil, fmt.Errorf("failed to encode text: %w", err)
		}
		return append(out, LF), nil

	case KindCut:
		mode := byte(0)
		if cmd.Partial {
			mode = 1
		}
		return []byte{ESC, 'd', cutFeedLines, GS, 'V', mode}, nil

	case KindWriteRaw:
		return cmd.Raw, nil

	default:
		return nil, fmt.Errorf("unknown command kind %s", cmd.Kind)
	}
}

// EncodeAll concatenates the bytes of every command in order
func (e *Encoder) EncodeAll(seq Sequence) ([]byte, error) {
	var out []byte
	for i, cmd := range seq {
		b, err := e.Encode(cmd)
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func clampSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
