package batch

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// fakeExtractor answers from a per-file table and records how many calls overlap
type fakeExtractor struct {
	outcomes map[string]func(path string) scanning.Outcome
	delay    func(path string) time.Duration
	block    chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) scanning.Outcome {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return scanning.NewFailure(path, scanning.TransportError, "API request failed", ctx.Err())
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(path))
	}

	if fn, ok := f.outcomes[filepath.Base(path)]; ok {
		return fn(path)
	}
	return &scanning.Success{Path: path, Record: scanning.InvoiceRecord{Description: filepath.Base(path)}}
}

func malformed(path string) scanning.Outcome {
	f := scanning.NewFailure(path, scanning.MalformedJSON, "failed to parse JSON response", nil)
	f.Raw = "not json"
	return f
}

func missingKey(path string) scanning.Outcome {
	return scanning.NewFailure(path, scanning.MissingCredential, "API key not configured", nil)
}

var _ = Describe("Orchestrator", func() {
	var (
		extractor *fakeExtractor
		opts      []Option
		paths     []string
		ctx       context.Context
		result    Result
		err       error
	)

	BeforeEach(func() {
		extractor = &fakeExtractor{}
		opts = nil
		ctx = context.Background()
		paths = []string{"/in/a.jpg", "/in/b.jpg", "/in/c.jpg"}
	})

	JustBeforeEach(func() {
		result, err = New(extractor, opts...).Run(ctx, paths)
	})

	When("one file in the middle fails", func() {
		BeforeEach(func() {
			opts = []Option{WithLimit(2)}
			extractor.outcomes = map[string]func(string) scanning.Outcome{"b.jpg": malformed}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep the siblings successful", func() {
			Expect(result).To(HaveLen(3))
			Expect(result[0]).To(BeAssignableToTypeOf(&scanning.Success{}))
			Expect(result[2]).To(BeAssignableToTypeOf(&scanning.Success{}))
		})

		It("should report the failure in its own slot", func() {
			failure, ok := result[1].(*scanning.Failure)
			Expect(ok).To(BeTrue())
			Expect(failure.Reason).To(Equal(scanning.MalformedJSON))
			Expect(failure.File()).To(Equal("b.jpg"))
		})

		It("should count outcomes", func() {
			Expect(result.Succeeded()).To(Equal(2))
			Expect(result.Failed()).To(Equal(1))
		})
	})

	When("later files finish first", func() {
		BeforeEach(func() {
			paths = []string{"/in/1.jpg", "/in/2.jpg", "/in/3.jpg", "/in/4.jpg", "/in/5.jpg"}
			opts = []Option{WithLimit(5)}
			extractor.delay = func(path string) time.Duration {
				switch filepath.Base(path) {
				case "1.jpg":
					return 50 * time.Millisecond
				case "2.jpg":
					return 30 * time.Millisecond
				default:
					return time.Millisecond
				}
			}
		})

		It("should preserve input order", func() {
			for i, path := range paths {
				Expect(result[i].File()).To(Equal(filepath.Base(path)))
			}
		})
	})

	When("there are more files than the limit", func() {
		BeforeEach(func() {
			paths = nil
			for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
				paths = append(paths, "/in/"+name+".jpg")
			}
			opts = []Option{WithLimit(3)}
			extractor.delay = func(string) time.Duration { return 10 * time.Millisecond }
		})

		It("should never exceed the limit", func() {
			Expect(extractor.maxInFlight.Load()).To(BeNumerically("<=", 3))
		})

		It("should extract every file once", func() {
			Expect(extractor.calls.Load()).To(BeNumerically("==", 10))
			Expect(result.Succeeded()).To(Equal(10))
		})
	})

	When("the limit is one", func() {
		BeforeEach(func() {
			opts = []Option{WithLimit(1)}
			extractor.delay = func(string) time.Duration { return 5 * time.Millisecond }
		})

		It("should run the files one at a time", func() {
			Expect(extractor.maxInFlight.Load()).To(BeNumerically("==", 1))
		})
	})

	When("no limit is given", func() {
		It("should use the default limit", func() {
			Expect(New(extractor).Limit()).To(Equal(DefaultLimit))
		})
	})

	When("the limit is negative", func() {
		BeforeEach(func() {
			opts = []Option{WithLimit(-1)}
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrNegativeLimit))
		})

		It("should not call the extractor", func() {
			Expect(extractor.calls.Load()).To(BeZero())
		})
	})

	When("no paths are given", func() {
		BeforeEach(func() {
			paths = nil
		})

		It("should return an empty result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})
	})

	When("every file fails with MissingCredential", func() {
		BeforeEach(func() {
			extractor.outcomes = map[string]func(string) scanning.Outcome{
				"a.jpg": missingKey,
				"b.jpg": missingKey,
				"c.jpg": missingKey,
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return a failure per file", func() {
			Expect(result).To(HaveLen(3))
			for _, outcome := range result {
				Expect(outcome.(*scanning.Failure).Reason).To(Equal(scanning.MissingCredential))
			}
		})
	})

	When("observing progress", func() {
		var events map[int][]Event

		BeforeEach(func() {
			events = map[int][]Event{}
			opts = []Option{WithLimit(2), WithObserver(func(e Event) {
				events[e.Index] = append(events[e.Index], e)
			})}
			extractor.outcomes = map[string]func(string) scanning.Outcome{"b.jpg": malformed}
		})

		It("should emit three checkpoints per file", func() {
			for i := range paths {
				Expect(events[i]).To(HaveLen(3))
				Expect(events[i][0].Checkpoint).To(Equal(Started))
				Expect(events[i][1].Checkpoint).To(Equal(Extracted))
				Expect(events[i][2].Checkpoint).To(Equal(Finished))
			}
		})

		It("should move each file forward through its states", func() {
			Expect(events[0][0].State).To(Equal(InFlight))
			Expect(events[0][1].State).To(Equal(InFlight))
			Expect(events[0][2].State).To(Equal(Succeeded))
			Expect(events[1][2].State).To(Equal(Failed))
		})

		It("should carry the outcome once it is available", func() {
			Expect(events[1][0].Outcome).To(BeNil())
			Expect(events[1][1].Outcome).To(Equal(result[1]))
			Expect(events[1][2].Outcome).To(Equal(result[1]))
			Expect(events[1][2].Path).To(Equal("/in/b.jpg"))
		})
	})

	When("the context is cancelled while files are queued", func() {
		var (
			cancel  context.CancelFunc
			tracker *Tracker
			started chan struct{}
		)

		BeforeEach(func() {
			ctx, cancel = context.WithCancel(context.Background())
			extractor.block = make(chan struct{})
			tracker = NewTracker(len(paths))
			started = make(chan struct{}, len(paths))
			opts = []Option{
				WithLimit(1),
				WithObserver(tracker.Observe),
				WithObserver(func(e Event) {
					if e.Checkpoint == Started {
						started <- struct{}{}
						cancel()
					}
				}),
			}
		})

		It("should fail every file with TransportError", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))
			for _, outcome := range result {
				Expect(outcome.(*scanning.Failure).Reason).To(Equal(scanning.TransportError))
			}
		})

		It("should only start the admitted file", func() {
			Expect(started).To(HaveLen(1))
			Expect(extractor.calls.Load()).To(BeNumerically("==", 1))
		})

		It("should leave every file terminal", func() {
			Expect(tracker.Done()).To(BeTrue())
			Expect(tracker.Counts()[Failed]).To(Equal(3))
		})
	})
})
