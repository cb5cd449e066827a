package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/gst-invoice-extractor/internal/batch"
	"github.com/zombor/gst-invoice-extractor/internal/gst"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// ErrNoFiles is returned when a batch is started without files
var ErrNoFiles = errors.New("at least one file is required")

// IDGenerator generates unique IDs for invoices, uploads and jobs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Upload describes a stored upload
type Upload struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Path         string `json:"path"`
}

// Service handles invoice operations
type Service struct {
	db          DB
	extractor   scanning.Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	jobs        *JobStore
	limit       int
	logger      *slog.Logger

	// cancels running batches on Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new Service with a uuid ID generator and the wall clock
func NewService(db DB, extractor scanning.Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		jobs:        NewJobStore(),
		limit:       batch.DefaultLimit,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetConcurrency sets the in-flight limit used for batch jobs
func (s *Service) SetConcurrency(n int) {
	s.limit = n
}

// SetLogger replaces the service logger
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]`)
	hexChars    = regexp.MustCompile(`[^0-9a-f]`)
)

// sanitizeFilename replaces characters outside [a-zA-Z0-9.-] and truncates long names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeChars.ReplaceAllString(base, "_")
	ext = unsafeChars.ReplaceAllString(ext, "_")

	// phone cameras produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if strings.Trim(base, "_.") == "" {
		base = "invoice"
	}

	return base + ext
}

// uploadPrefix returns eight hex characters taken from a generated ID
func (s *Service) uploadPrefix() string {
	id := hexChars.ReplaceAllString(strings.ToLower(s.idGenerator.Generate()), "")
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

// Upload stores an uploaded file under a unique name
func (s *Service) Upload(originalName string, data []byte) (*Upload, error) {
	name := fmt.Sprintf("%s_%s", s.uploadPrefix(), sanitizeFilename(originalName))

	saved, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	s.logger.Info("File uploaded", "filename", saved, "original_name", originalName, "file_size", len(data))
	return &Upload{
		Filename:     saved,
		OriginalName: originalName,
		Path:         uploadURL(saved),
	}, nil
}

// Process extracts a single stored file and saves the resulting invoice.
// A failed extraction is returned as a *scanning.Failure error.
func (s *Service) Process(ctx context.Context, filename string) (*Invoice, error) {
	path, err := s.storage.Path(filename)
	if err != nil {
		return nil, err
	}

	outcome := s.extractor.Extract(ctx, path)
	success, ok := outcome.(*scanning.Success)
	if !ok {
		failure := outcome.(*scanning.Failure)
		s.logger.Error("Failed to extract invoice",
			"filename", filename,
			"reason", failure.Reason,
			"error", failure.Detail(),
		)
		return nil, failure
	}

	invoice, err := s.saveRecord(filename, success.Record)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// saveRecord stores a new invoice row for an extracted record
func (s *Service) saveRecord(filename string, record scanning.InvoiceRecord) (*Invoice, error) {
	now := s.timeSource.Now()
	invoice := &Invoice{
		ID:            s.idGenerator.Generate(),
		Filename:      filename,
		InvoiceRecord: record,
		GSTCheck:      gst.Check(record.AmountIncGST, record.GST),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveInvoice(invoice); err != nil {
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}
	return invoice, nil
}

// StartBatch extracts the stored files in the background and returns the job
// tracking them. Each success is saved as an invoice as soon as it finishes.
func (s *Service) StartBatch(filenames []string) (*Job, error) {
	if len(filenames) == 0 {
		return nil, ErrNoFiles
	}
	if s.limit < 0 {
		return nil, fmt.Errorf("%w: %d", batch.ErrNegativeLimit, s.limit)
	}

	paths := make([]string, len(filenames))
	for i, name := range filenames {
		path, err := s.storage.Path(name)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}

	job := newJob(s.idGenerator.Generate(), filenames, s.timeSource.Now())
	s.jobs.add(job)

	orchestrator := batch.New(s.extractor,
		batch.WithLimit(s.limit),
		batch.WithObserver(job.tracker.Observe),
		batch.WithObserver(s.observe(job)),
		batch.WithLogger(s.logger.With("job_id", job.ID)),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer job.finish()
		if _, err := orchestrator.Run(s.ctx, paths); err != nil {
			s.logger.Error("Batch failed to run", "job_id", job.ID, "error", err)
		}
	}()

	return job, nil
}

// observe saves finished successes and forwards every event to the job's subscribers
func (s *Service) observe(job *Job) batch.Observer {
	return func(e batch.Event) {
		event := JobEvent{
			JobID:      job.ID,
			Index:      e.Index,
			Filename:   job.Filenames[e.Index],
			Checkpoint: e.Checkpoint,
			State:      e.State,
		}

		if e.Checkpoint == batch.Finished {
			switch o := e.Outcome.(type) {
			case *scanning.Success:
				invoice, err := s.saveRecord(event.Filename, o.Record)
				if err != nil {
					s.logger.Error("Failed to save invoice", "job_id", job.ID, "filename", event.Filename, "error", err)
					event.Error = err.Error()
				} else {
					job.setInvoice(e.Index, invoice.ID)
					event.Invoice = invoice
				}
			case *scanning.Failure:
				event.Error = o.Detail()
				event.Reason = o.Reason
			}
		}

		job.publish(event)
	}
}

// GetJob returns a batch job by ID
func (s *Service) GetJob(id string) (*Job, bool) {
	return s.jobs.Get(id)
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns all invoices
func (s *Service) ListInvoices() ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// UpdateField changes one field of an invoice
func (s *Service) UpdateField(id, field, value string) (*Invoice, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice for update: %w", err)
	}

	if err := invoice.SetField(field, value); err != nil {
		return nil, err
	}
	invoice.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveInvoice(invoice); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}
	return invoice, nil
}

// DeleteInvoice removes an invoice and its file
func (s *Service) DeleteInvoice(id string) error {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if err := s.storage.Delete(invoice.Filename); err != nil {
		// Log error but continue with database deletion
		s.logger.Warn("Failed to delete file", "filename", invoice.Filename, "error", err)
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// Clear removes every invoice and every stored file. It returns the number of files deleted.
func (s *Service) Clear() (int, error) {
	deleted, err := s.storage.DeleteAll()
	if err != nil {
		s.logger.Warn("Failed to delete stored files", "deleted", deleted, "error", err)
	}

	if err := s.db.DeleteAllInvoices(); err != nil {
		return deleted, fmt.Errorf("clearing invoices: %w", err)
	}
	return deleted, nil
}

// GetFile returns a stored file and its content type
func (s *Service) GetFile(filename string) ([]byte, string, error) {
	data, err := s.storage.Get(filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting file: %w", err)
	}
	return data, contentTypeFor(filename), nil
}

// Close cancels running batches and waits for them to stop
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return scanning.MediaTypeFor(filename)
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
