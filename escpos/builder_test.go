package escpos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScenario(t *testing.T) {
	seq := Build(Receipt{Header: "Hi", Body: &Body{Main: "Thanks!"}})

	expected := Sequence{
		SetFont(FontA),
		SetAlign(AlignCenter),
		SetStyle(StyleBold),
		SetSize(1, 1),
		WriteText("Hi"),
		WriteText("------------------------"),
		SetAlign(AlignCenter),
		SetStyle(StyleNormal),
		WriteText("\n"),
		WriteText("Thanks!"),
		Cut(),
	}
	assert.Equal(t, expected, seq)
}

func TestBuildDefaultHeader(t *testing.T) {
	seq := Build(Receipt{Footer: "bye"})

	require.True(t, len(seq) > 4)
	assert.Equal(t, WriteText(DefaultHeader), seq[4])
}

func TestBuildFullReceipt(t *testing.T) {
	seq := Build(Receipt{
		Header: "Shop",
		Body:   &Body{Header: "Order 12", Main: "1x Coffee", Footer: "Total 3.00"},
		Footer: "Thank you",
	})

	tail := seq[9:]
	expected := Sequence{
		WriteText("Order 12"),
		WriteText("1x Coffee"),
		WriteText("Total 3.00"),
		WriteText(BlankLine),
		WriteText(Separator),
		SetAlign(AlignCenter),
		WriteText("Thank you"),
		Cut(),
	}
	assert.Equal(t, expected, tail)
}

func TestBuildSkipsEmptyBodyFields(t *testing.T) {
	testCases := []struct {
		name string
		body *Body
		want []string
	}{
		{"NilBody", nil, nil},
		{"EmptyBody", &Body{}, nil},
		{"OnlyHeader", &Body{Header: "h"}, []string{"h"}},
		{"OnlyFooter", &Body{Footer: "f"}, []string{"f"}},
		{"HeaderAndFooter", &Body{Header: "h", Footer: "f"}, []string{"h", "f"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seq := Build(Receipt{Header: "x", Body: tc.body})

			var texts []string
			for _, cmd := range seq[9:] {
				if cmd.Kind == KindWriteText {
					texts = append(texts, cmd.Text)
				}
			}
			assert.Equal(t, tc.want, texts)
		})
	}
}

func TestBuildNeverEmitsEmptyText(t *testing.T) {
	seq := Build(Receipt{Body: &Body{Header: "", Main: "", Footer: ""}, Footer: ""})

	for _, cmd := range seq {
		if cmd.Kind == KindWriteText {
			assert.NotEmpty(t, cmd.Text)
		}
	}
}

func TestBuildCutAlwaysLast(t *testing.T) {
	receipts := []Receipt{
		{},
		{Header: "a"},
		{Footer: "b"},
		{Body: &Body{Main: "c"}},
		{Header: "a", Body: &Body{Header: "1", Main: "2", Footer: "3"}, Footer: "b"},
	}

	for _, r := range receipts {
		seq := Build(r)
		require.NotEmpty(t, seq)
		assert.Equal(t, KindCut, seq[len(seq)-1].Kind)

		cuts := 0
		for _, cmd := range seq {
			if cmd.Kind == KindCut {
				cuts++
			}
		}
		assert.Equal(t, 1, cuts)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	r := Receipt{Header: "Hi", Body: &Body{Main: "Thanks!"}, Footer: "See you"}

	first := Build(r)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Build(r))
	}

	enc := DefaultEncoder()
	a, err := enc.EncodeAll(first)
	require.NoError(t, err)
	b, err := enc.EncodeAll(Build(r))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReceiptIsEmpty(t *testing.T) {
	var nilReceipt *Receipt
	assert.True(t, nilReceipt.IsEmpty())
	assert.True(t, (&Receipt{}).IsEmpty())
	assert.True(t, (&Receipt{Body: &Body{}}).IsEmpty())
	assert.False(t, (&Receipt{Header: "x"}).IsEmpty())
	assert.False(t, (&Receipt{Footer: "x"}).IsEmpty())
	assert.False(t, (&Receipt{Body: &Body{Main: "x"}}).IsEmpty())
}
