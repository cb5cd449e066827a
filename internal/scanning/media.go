package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// mediaTypes maps file extensions to the image types the API accepts
var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Media is an image ready to be sent to a model
type Media struct {
	// Data is the standard base64 encoding of the image bytes
	Data      string
	MediaType string

	raw []byte
}

// Bytes returns the image bytes behind Data
func (m *Media) Bytes() []byte {
	return m.raw
}

// MediaTypeFor returns the media type for a file name. Unknown extensions
// are treated as JPEG.
func MediaTypeFor(path string) string {
	if t, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "image/jpeg"
}

// Encode reads the whole file at path and encodes it for transport.
// HEIC/HEIF photos and PDFs are rasterised to PNG first.
func Encode(path string) (*Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	mediaType := MediaTypeFor(path)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		data, err = pdfToPNG(data)
		mediaType = "image/png"
	case ext == ".heic" || ext == ".heif" || isHEICFormat(data):
		data, err = heicToPNG(data)
		mediaType = "image/png"
	}
	if err != nil {
		return nil, err
	}

	return &Media{
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
		raw:       data,
	}, nil
}

// pdfToPNG renders the first page of a PDF as PNG
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Invoices are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// heicToPNG converts an iPhone HEIC/HEIF photo to PNG
func heicToPNG(imageData []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
