// Package canvas renders Rock-Paper-Scissors panel states into App Canvas
// blocks.
//
// A panel is an ordered list of Elements. Headings and result text encode as
// MARKDOWN blocks, triggers as BUTTON blocks whose id comes back in the
// userInteracted webhook when clicked.
package canvas

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MJE43/rps-canvas/internal/games"
)

// Kind tags an Element.
type Kind uint8

const (
	KindHeading Kind = iota + 1
	KindText
	KindTrigger
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindText:
		return "text"
	case KindTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Vendor block types.
const (
	BlockTypeMarkdown = "MARKDOWN"
	BlockTypeButton   = "BUTTON"
)

// Stable element ids.
const (
	HeaderID = "md_header"
	ResultID = "md_result"
)

const headerMarkdown = "### Rock-Paper-Scissors\nPick one of the moves below. The app will counter with a random choice."

var triggers = map[games.Choice]struct {
	id    string
	label string
}{
	games.Rock:     {id: "btn_rock", label: "🪨 Rock"},
	games.Paper:    {id: "btn_paper", label: "📄 Paper"},
	games.Scissors: {id: "btn_scissors", label: "✂️ Scissors"},
}

// Element is one UI element of a panel.
type Element struct {
	Kind Kind
	ID   string
	// Text is the markdown for headings and text blocks and the label for triggers.
	Text string
}

type block struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
}

// MarshalJSON encodes the element as a vendor block.
func (e Element) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindHeading, KindText:
		return json.Marshal(block{ID: e.ID, Type: BlockTypeMarkdown, Value: e.Text})
	case KindTrigger:
		return json.Marshal(block{ID: e.ID, Type: BlockTypeButton, Text: e.Text})
	default:
		return nil, fmt.Errorf("canvas: element %q has unknown kind %d", e.ID, e.Kind)
	}
}

// UnmarshalJSON decodes a vendor block. A MARKDOWN block with the header id
// decodes as a heading.
func (e *Element) UnmarshalJSON(data []byte) error {
	var b block
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	switch b.Type {
	case BlockTypeMarkdown:
		kind := KindText
		if b.ID == HeaderID {
			kind = KindHeading
		}
		*e = Element{Kind: kind, ID: b.ID, Text: b.Value}
	case BlockTypeButton:
		*e = Element{Kind: KindTrigger, ID: b.ID, Text: b.Text}
	default:
		return fmt.Errorf("canvas: unsupported block type %q", b.Type)
	}
	return nil
}

// State is a panel state: Initial or Resolved.
type State interface {
	isState()
}

// Initial is the panel before any interaction.
type Initial struct{}

// Resolved is the panel after a round has been played.
type Resolved struct {
	Result games.Result
}

func (Initial) isState()  {}
func (Resolved) isState() {}

// Render maps a state to its ordered elements.
func Render(state State) []Element {
	out := []Element{Heading()}
	if r, ok := state.(Resolved); ok {
		out = append(out, ResultText(r.Result))
	}
	return append(out, Triggers()...)
}

// Heading returns the panel heading.
func Heading() Element {
	return Element{Kind: KindHeading, ID: HeaderID, Text: headerMarkdown}
}

// ResultText summarizes a round. The text always contains both moves and the
// upper-case outcome.
func ResultText(r games.Result) Element {
	md := fmt.Sprintf(
		"**You:** `%s`\n\n**AI:** `%s`\n\n### Result: **%s**\n\n_Click a button to play again._",
		r.User, r.Counter, strings.ToUpper(r.Outcome.String()),
	)
	return Element{Kind: KindText, ID: ResultID, Text: md}
}

// Triggers returns one button per move in display order.
func Triggers() []Element {
	out := make([]Element, 0, len(triggers))
	for _, c := range games.Choices() {
		t := triggers[c]
		out = append(out, Element{Kind: KindTrigger, ID: t.id, Text: t.label})
	}
	return out
}

// TriggerID returns the button id for a move.
func TriggerID(c games.Choice) string {
	return triggers[c].id
}

// ChoiceForTrigger maps a button id back to its move.
func ChoiceForTrigger(id string) (games.Choice, bool) {
	for c, t := range triggers {
		if t.id == id {
			return c, true
		}
	}
	return 0, false
}
