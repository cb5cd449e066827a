package invoice

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/gst-invoice-extractor/internal/batch"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

var _ = Describe("Job", func() {
	var job *Job

	BeforeEach(func() {
		job = newJob("job-1", []string{"a.jpg", "b.jpg"}, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	})

	It("should start with every file queued", func() {
		snap := job.Snapshot()
		Expect(snap.Done).To(BeFalse())
		Expect(snap.Files).To(HaveLen(2))
		Expect(snap.Files[0]).To(Equal(FileStatus{Filename: "a.jpg", State: batch.Queued}))
	})

	It("should report failures from the tracker", func() {
		failure := scanning.NewFailure("/uploads/b.jpg", scanning.EmptyResponse, "no content in response", nil)
		job.tracker.Observe(batch.Event{Index: 1, Checkpoint: batch.Finished, State: batch.Failed, Outcome: failure})

		snap := job.Snapshot()
		Expect(snap.Failed).To(Equal(1))
		Expect(snap.Files[1].Error).To(Equal("no content in response"))
		Expect(snap.Files[1].Reason).To(Equal(scanning.EmptyResponse))
	})

	It("should deliver published events to subscribers", func() {
		events, unsubscribe := job.Subscribe()
		defer unsubscribe()

		job.publish(JobEvent{JobID: job.ID, Index: 0, Checkpoint: batch.Started, State: batch.InFlight})
		Expect(events).To(Receive(HaveField("Checkpoint", batch.Started)))
	})

	It("should close subscriptions when the job finishes", func() {
		events, unsubscribe := job.Subscribe()
		defer unsubscribe()

		job.finish()
		Expect(events).To(BeClosed())
		Expect(job.Done()).To(BeClosed())
		Expect(job.Snapshot().Done).To(BeTrue())
	})

	It("should hand late subscribers a closed channel", func() {
		job.finish()
		events, unsubscribe := job.Subscribe()
		defer unsubscribe()
		Expect(events).To(BeClosed())
	})

	It("should stop delivering after unsubscribe", func() {
		events, unsubscribe := job.Subscribe()
		unsubscribe()
		unsubscribe()

		job.publish(JobEvent{Index: 0})
		Expect(events).To(BeClosed())
	})
})

var _ = Describe("JobStore", func() {
	It("should find added jobs", func() {
		store := NewJobStore()
		job := newJob("job-1", []string{"a.jpg"}, time.Now())
		store.add(job)

		found, ok := store.Get("job-1")
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(job))

		_, ok = store.Get("job-2")
		Expect(ok).To(BeFalse())
	})
})
