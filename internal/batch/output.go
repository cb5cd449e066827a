package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// DefaultOutputFile is where the CLI writes batch results
const DefaultOutputFile = "invoice_extraction_results.json"

type entry struct {
	Status      string                  `json:"status"`
	File        string                  `json:"file"`
	Data        *scanning.InvoiceRecord `json:"data,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Reason      scanning.Reason         `json:"reason,omitempty"`
	RawResponse string                  `json:"raw_response,omitempty"`
}

// WriteJSON writes the result as an indented JSON array with one entry per file
func WriteJSON(w io.Writer, result Result) error {
	entries := make([]entry, 0, len(result))
	for _, outcome := range result {
		switch o := outcome.(type) {
		case *scanning.Success:
			record := o.Record
			entries = append(entries, entry{Status: "success", File: o.File(), Data: &record})
		case *scanning.Failure:
			entries = append(entries, entry{
				Status:      "error",
				File:        o.File(),
				Message:     o.Detail(),
				Reason:      o.Reason,
				RawResponse: o.Raw,
			})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

// WriteJSONFile writes the result to path
func WriteJSONFile(path string, result Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// WriteSummary writes a human-readable report of every outcome. Empty fields print as N/A.
func WriteSummary(w io.Writer, result Result) error {
	rule := strings.Repeat("=", 60)
	for i, outcome := range result {
		fmt.Fprintf(w, "\n%s\nInvoice %d/%d: %s\n%s\n", rule, i+1, len(result), outcome.File(), rule)
		switch o := outcome.(type) {
		case *scanning.Success:
			r := o.Record
			fmt.Fprintln(w, "Extraction successful")
			fmt.Fprintf(w, "  Date:             %s\n", orNA(r.Date))
			fmt.Fprintf(w, "  ABN:              %s\n", orNA(r.ABN))
			fmt.Fprintf(w, "  Amount (inc GST): %s\n", orNA(r.AmountIncGST))
			fmt.Fprintf(w, "  GST:              %s\n", orNA(r.GST))
			fmt.Fprintf(w, "  Description:      %s\n", orNA(r.Description))
			fmt.Fprintf(w, "  Category:         %s\n", orNA(r.Category))
		case *scanning.Failure:
			fmt.Fprintf(w, "Extraction failed (%s): %s\n", o.Reason, o.Detail())
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n%d invoices processed: %d succeeded, %d failed\n%s\n",
		rule, len(result), result.Succeeded(), result.Failed(), rule)
	return err
}
