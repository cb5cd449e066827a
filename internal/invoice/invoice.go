package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zombor/gst-invoice-extractor/internal/gst"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// ErrUnknownField is returned when an update names a field that cannot be edited
var ErrUnknownField = errors.New("unknown field")

// Invoice is an extracted invoice row, editable after extraction
type Invoice struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	scanning.InvoiceRecord
	GSTCheck  gst.Status `json:"gst_check"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SetField updates one editable field by its JSON name
func (i *Invoice) SetField(field, value string) error {
	switch field {
	case "date":
		i.Date = value
	case "abn":
		i.ABN = value
	case "amount_inc_gst":
		i.AmountIncGST = value
	case "gst":
		i.GST = value
	case "description":
		i.Description = value
	case "category":
		i.Category = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	i.GSTCheck = gst.Check(i.AmountIncGST, i.GST)
	return nil
}

// URL returns the path the uploaded image is served from
func (i *Invoice) URL() string {
	return uploadURL(i.Filename)
}

// MarshalJSON adds the image URL to the stored fields
func (i Invoice) MarshalJSON() ([]byte, error) {
	type stored Invoice
	return json.Marshal(struct {
		stored
		URL string `json:"url"`
	}{stored(i), i.URL()})
}

func uploadURL(filename string) string {
	return "/uploaded_files/" + filename
}
