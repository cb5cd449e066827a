package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const fence = "```"

// stripFence returns the text between the first pair of code fences, dropping
// an optional language tag after the opening fence. Without a fence the
// trimmed input is returned.
func stripFence(text string) string {
	start := strings.Index(text, fence)
	if start == -1 {
		return strings.TrimSpace(text)
	}
	body := stripFenceTag(strings.TrimLeft(text[start+len(fence):], " \t"))

	if end := strings.Index(body, fence); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// stripFenceTag drops a leading tag such as "json" when it ends at
// whitespace, an opening brace or the closing fence
func stripFenceTag(body string) string {
	n := 0
	for n < len(body) && isTagByte(body[n]) {
		n++
	}
	if n == 0 {
		return body
	}
	if n == len(body) || strings.IndexByte(" \t\r\n{[`", body[n]) != -1 {
		return body[n:]
	}
	return body
}

func isTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}

// Normalize parses the model reply into an InvoiceRecord. Missing keys become
// empty strings; only an unparseable document is an error.
func Normalize(text string) (InvoiceRecord, error) {
	body := stripFence(text)

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return InvoiceRecord{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if dec.More() {
		return InvoiceRecord{}, fmt.Errorf("unmarshaling json: trailing data after object")
	}
	if fields == nil {
		return InvoiceRecord{}, fmt.Errorf("unmarshaling json: expected an object, got null")
	}

	return InvoiceRecord{
		Date:         fieldString(fields["date"]),
		ABN:          fieldString(fields["abn"]),
		AmountIncGST: fieldString(fields["amount_inc_gst"]),
		GST:          fieldString(fields["gst"]),
		Description:  fieldString(fields["description"]),
		Category:     fieldString(fields["category"]),
	}, nil
}

// fieldString renders a decoded JSON value as the string kept in the record.
// Models occasionally answer 110.0 instead of "$110.00".
func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}
