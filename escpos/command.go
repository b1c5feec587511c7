package escpos

import "fmt"

// Kind identifies a printer instruction
type Kind int

const (
	KindSetFont Kind = iota
	KindSetAlign
	KindSetStyle
	KindSetSize
	KindWriteText
	KindCut
	KindWriteRaw
)

func (k Kind) String() string {
	switch k {
	case KindSetFont:
		return "SET_FONT"
	case KindSetAlign:
		return "SET_ALIGN"
	case KindSetStyle:
		return "SET_STYLE"
	case KindSetSize:
		return "SET_SIZE"
	case KindWriteText:
		return "WRITE_TEXT"
	case KindCut:
		return "CUT"
	case KindWriteRaw:
		return "WRITE_RAW"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Font selects one of the printer's built-in character fonts
type Font int

const (
	FontA Font = iota
	FontB
	FontC
)

// Align is the horizontal justification applied to following text
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Style is the emphasis applied to following text
type Style int

const (
	StyleNormal Style = iota
	StyleBold
	StyleUnderline
	StyleBoldUnderline
)

// Command is one atomic printer instruction. Only the fields relevant to
// Kind are meaningful.
type Command struct {
	Kind    Kind
	Font    Font
	Align   Align
	Style   Style
	Width   int
	Height  int
	Text    string
	Partial bool
	Raw     []byte
}

func (c Command) String() string {
	switch c.Kind {
	case KindSetFont:
		return fmt.Sprintf("SET_FONT(%c)", 'A'+rune(c.Font))
	case KindSetAlign:
		return fmt.Sprintf("SET_ALIGN(%d)", c.Align)
	case KindSetStyle:
		return fmt.Sprintf("SET_STYLE(%d)", c.Style)
	case KindSetSize:
		return fmt.Sprintf("SET_SIZE(%d,%d)", c.Width, c.Height)
	case KindWriteText:
		return fmt.Sprintf("WRITE_TEXT(%q)", c.Text)
	case KindCut:
		return "CUT"
	case KindWriteRaw:
		return fmt.Sprintf("WRITE_RAW(%d bytes)", len(c.Raw))
	default:
		return c.Kind.String()
	}
}

// Sequence is an ordered list of commands. Order matters: every command
// mutates printer state consumed by the WriteText commands after it.
type Sequence []Command

func SetFont(f Font) Command { return Command{Kind: KindSetFont, Font: f} }

func SetAlign(a Align) Command { return Command{Kind: KindSetAlign, Align: a} }

func SetStyle(s Style) Command { return Command{Kind: KindSetStyle, Style: s} }

func SetSize(width, height int) Command {
	return Command{Kind: KindSetSize, Width: width, Height: height}
}

func WriteText(text string) Command { return Command{Kind: KindWriteText, Text: text} }

func Cut() Command { return Command{Kind: KindCut} }

func WriteRaw(data []byte) Command { return Command{Kind: KindWriteRaw, Raw: data} }
