package invoice

import (
	"sync"
	"time"

	"github.com/zombor/gst-invoice-extractor/internal/batch"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// JobEvent is a progress notification for one file of a batch job
type JobEvent struct {
	JobID      string           `json:"job_id"`
	Index      int              `json:"index"`
	Filename   string           `json:"filename"`
	Checkpoint batch.Checkpoint `json:"checkpoint"`
	State      batch.State      `json:"state"`
	Invoice    *Invoice         `json:"invoice,omitempty"`
	Error      string           `json:"error,omitempty"`
	Reason     scanning.Reason  `json:"reason,omitempty"`
}

// FileStatus is the polled state of one file in a job
type FileStatus struct {
	Filename  string          `json:"filename"`
	State     batch.State     `json:"state"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Reason    scanning.Reason `json:"reason,omitempty"`
}

// JobSnapshot is a point-in-time view of a job
type JobSnapshot struct {
	ID        string       `json:"id"`
	Done      bool         `json:"done"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Files     []FileStatus `json:"files"`
	CreatedAt time.Time    `json:"created_at"`
}

// Job is a batch extraction running in the background
type Job struct {
	ID        string
	Filenames []string
	CreatedAt time.Time

	tracker *batch.Tracker
	done    chan struct{}

	mu          sync.Mutex
	invoiceIDs  []string
	subscribers map[chan JobEvent]struct{}
	finished    bool
}

func newJob(id string, filenames []string, now time.Time) *Job {
	return &Job{
		ID:          id,
		Filenames:   filenames,
		CreatedAt:   now,
		tracker:     batch.NewTracker(len(filenames)),
		done:        make(chan struct{}),
		invoiceIDs:  make([]string, len(filenames)),
		subscribers: make(map[chan JobEvent]struct{}),
	}
}

// Done is closed once every file has reached a terminal state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns the current state of every file
func (j *Job) Snapshot() JobSnapshot {
	states := j.tracker.States()
	outcomes := j.tracker.Outcomes()

	j.mu.Lock()
	defer j.mu.Unlock()

	snap := JobSnapshot{
		ID:        j.ID,
		Done:      j.finished,
		Files:     make([]FileStatus, len(j.Filenames)),
		CreatedAt: j.CreatedAt,
	}
	for i, name := range j.Filenames {
		status := FileStatus{Filename: name, State: states[i], InvoiceID: j.invoiceIDs[i]}
		if f, ok := outcomes[i].(*scanning.Failure); ok {
			status.Error = f.Detail()
			status.Reason = f.Reason
		}
		switch states[i] {
		case batch.Succeeded:
			snap.Succeeded++
		case batch.Failed:
			snap.Failed++
		}
		snap.Files[i] = status
	}
	return snap
}

// Subscribe returns a channel of events for this job and a function that
// ends the subscription. The channel is closed when the job finishes.
func (j *Job) Subscribe() (<-chan JobEvent, func()) {
	// three events per file, so a subscriber can never block the batch
	ch := make(chan JobEvent, 3*len(j.Filenames)+1)

	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	j.subscribers[ch] = struct{}{}
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if _, ok := j.subscribers[ch]; ok {
				delete(j.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (j *Job) setInvoice(index int, id string) {
	j.mu.Lock()
	j.invoiceIDs[index] = id
	j.mu.Unlock()
}

func (j *Job) publish(e JobEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for ch := range j.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.finished = true
	for ch := range j.subscribers {
		close(ch)
		delete(j.subscribers, ch)
	}
	close(j.done)
}

// JobStore keeps batch jobs in memory
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty JobStore
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func (s *JobStore) add(job *Job) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}

// Get returns the job with the given ID
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}
