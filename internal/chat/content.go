package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type contentKind int

const (
	contentAbsent contentKind = iota
	contentText
	contentParts
)

// Content is message content: absent, a plain string, or structured parts
// (an OpenAI content-part array or any other non-string JSON value).
type Content struct {
	kind  contentKind
	text  string
	parts json.RawMessage
}

// Text builds string content.
func Text(s string) Content {
	return Content{kind: contentText, text: s}
}

// Parts builds structured content from raw JSON.
func Parts(raw json.RawMessage) Content {
	return Content{kind: contentParts, parts: raw}
}

func (c Content) IsAbsent() bool { return c.kind == contentAbsent }
func (c Content) IsText() bool   { return c.kind == contentText }
func (c Content) IsParts() bool  { return c.kind == contentParts }

// String returns the text for string content and "" otherwise.
func (c Content) String() string {
	return c.text
}

// Part is one element of an OpenAI content-part array. Raw holds the
// original element.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// PartList decodes parts content as a content-part array. A single object is
// treated as a one-element array; any other value yields one untyped part
// carrying the raw value.
func (c Content) PartList() []Part {
	if c.kind != contentParts {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(c.parts, &elems); err != nil {
		var p Part
		if err := json.Unmarshal(c.parts, &p); err != nil {
			p = Part{}
		}
		p.Raw = c.parts
		return []Part{p}
	}

	parts := make([]Part, 0, len(elems))
	for _, elem := range elems {
		var p Part
		if err := json.Unmarshal(elem, &p); err != nil {
			p = Part{}
		}
		p.Raw = elem
		parts = append(parts, p)
	}

	return parts
}

// FlattenText joins the text of string content or of every text part.
func (c Content) FlattenText() string {
	switch c.kind {
	case contentText:
		return c.text
	case contentParts:
		var sb strings.Builder
		for _, p := range c.PartList() {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// JSON returns the content as a JSON value: a string, the raw parts, or null.
func (c Content) JSON() json.RawMessage {
	data, _ := c.MarshalJSON()
	return data
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		*c = Text(s)
	default:
		*c = Parts(append(json.RawMessage(nil), trimmed...))
	}

	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case contentText:
		return json.Marshal(c.text)
	case contentParts:
		return c.parts, nil
	default:
		return []byte("null"), nil
	}
}
