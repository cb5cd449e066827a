package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// maxUploadSize bounds a multipart upload; phone photos can be large
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an {"error": message} response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleUpload stores one or more files from the multipart field "file"
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		jsonError(w, "No file uploaded", http.StatusBadRequest)
		return
	}

	uploads := make([]*Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			jsonError(w, "Failed to upload file", http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, "Failed to upload file", http.StatusInternalServerError)
			return
		}

		upload, err := s.service.Upload(header.Filename, data)
		if err != nil {
			slog.Error("Error saving upload", "error", err, "filename", header.Filename)
			jsonError(w, "Failed to upload file", http.StatusInternalServerError)
			return
		}
		uploads = append(uploads, upload)
	}

	writeJSON(w, http.StatusOK, uploads)
}

// handleProcess extracts a single uploaded file
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" {
		jsonError(w, "Filename is required", http.StatusBadRequest)
		return
	}

	invoice, err := s.service.Process(r.Context(), req.Filename)
	if err != nil {
		var failure *scanning.Failure
		switch {
		case errors.Is(err, ErrInvalidFilename):
			jsonError(w, "Invalid filename", http.StatusBadRequest)
		case errors.As(err, &failure):
			jsonError(w, failure.Detail(), http.StatusInternalServerError)
		default:
			slog.Error("Error processing invoice", "filename", req.Filename, "error", err)
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    invoice,
	})
}

// handleStartBatch starts a background batch over uploaded files
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.service.StartBatch(req.Filenames)
	if err != nil {
		slog.Error("Error starting batch", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

// handleGetBatch returns the current state of a batch
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, ok := s.service.GetJob(r.PathValue("id"))
	if !ok {
		jsonError(w, "Batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleListInvoices returns all invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if invoices == nil {
		invoices = []*Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleUpdateInvoice changes a single field of an invoice
func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invoice, err := s.service.UpdateField(r.PathValue("id"), req.Field, req.Value)
	switch {
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Invoice not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrUnknownField):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("Error updating invoice", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

// handleDeleteInvoice deletes an invoice and its file
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Invoice not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting invoice", "error", err)
		jsonError(w, "Error deleting invoice", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearInvoices deletes every invoice and uploaded file
func (s *Server) handleClearInvoices(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.Clear()
	if err != nil {
		slog.Error("Error clearing invoices", "error", err)
		jsonError(w, "Failed to delete files", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Deleted %d files", deleted),
	})
}

// handleExportCSV downloads all invoices as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		jsonError(w, "Failed to export CSV", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices-%d.csv"`, s.service.timeSource.Now().Unix()))
	if err := WriteCSV(w, Records(invoices)); err != nil {
		slog.Error("Error writing CSV", "error", err)
	}
}

// handleExportXLSX downloads all invoices as a spreadsheet
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		jsonError(w, "Failed to export spreadsheet", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices-%d.xlsx"`, s.service.timeSource.Now().Unix()))
	if err := WriteXLSX(w, Records(invoices)); err != nil {
		slog.Error("Error writing spreadsheet", "error", err)
	}
}

// handleGetFile serves an uploaded image
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetFile(r.PathValue("filename"))
	if err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}
