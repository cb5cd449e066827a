package invoice

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/gst-invoice-extractor/internal/batch"
	"github.com/zombor/gst-invoice-extractor/internal/gst"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

var _ = Describe("Service", func() {
	var (
		db        *mockDB
		storage   *mockStorage
		extractor *mockExtractor
		idGen     *mockIDGenerator
		timeSrc   *mockTimeSource
		service   *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		idGen = &mockIDGenerator{prefix: "abcdef12"}
		timeSrc = &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, extractor, storage, idGen, timeSrc)
	})

	AfterEach(func() {
		service.Close()
	})

	Describe("sanitizeFilename", func() {
		DescribeTable("cleans uploaded names",
			func(in, expected string) {
				Expect(sanitizeFilename(in)).To(Equal(expected))
			},
			Entry("plain name", "invoice.jpg", "invoice.jpg"),
			Entry("spaces and symbols", "my invoice (1).jpg", "my_invoice__1_.jpg"),
			Entry("path components", "../../etc/passwd", "passwd"),
			Entry("windows path", `C:\photos\IMG 01.HEIC`, "IMG_01.HEIC"),
			Entry("only symbols", "###.png", "invoice.png"),
			Entry("long names", "IMG_20240102_123456789_HDR_PORTRAIT_MODE_ENHANCED_FINAL_v2.jpg", "IMG_20240102_123456789_HDR_PORTRAIT_MODE_ENHANCED_.jpg"),
		)
	})

	Describe("Upload", func() {
		var (
			upload *Upload
			err    error
		)

		JustBeforeEach(func() {
			upload, err = service.Upload("my receipt.jpg", []byte("image bytes"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should prefix the sanitized name with eight hex characters", func() {
				Expect(upload.Filename).To(Equal("abcdef12_my_receipt.jpg"))
			})

			It("should keep the original name", func() {
				Expect(upload.OriginalName).To(Equal("my receipt.jpg"))
			})

			It("should return the serving path", func() {
				Expect(upload.Path).To(Equal("/uploaded_files/abcdef12_my_receipt.jpg"))
			})

			It("should store the bytes", func() {
				Expect(storage.files).To(HaveKeyWithValue("abcdef12_my_receipt.jpg", []byte("image bytes")))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("disk full")))
				Expect(upload).To(BeNil())
			})
		})
	})

	Describe("Process", func() {
		var (
			filename string
			invoice  *Invoice
			err      error
		)

		BeforeEach(func() {
			filename = "abcdef12_a.jpg"
		})

		JustBeforeEach(func() {
			invoice, err = service.Process(context.Background(), filename)
		})

		When("extraction succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should extract the stored file", func() {
				Expect(extractor.extracted()).To(Equal([]string{"/uploads/abcdef12_a.jpg"}))
			})

			It("should save the invoice", func() {
				Expect(db.invoices).To(HaveKey(invoice.ID))
				Expect(invoice.InvoiceRecord).To(Equal(testRecord))
				Expect(invoice.Filename).To(Equal(filename))
			})

			It("should record the GST check", func() {
				Expect(invoice.GSTCheck).To(Equal(gst.OK))
			})

			It("should set the timestamps", func() {
				Expect(invoice.CreatedAt).To(Equal(timeSrc.now))
				Expect(invoice.UpdatedAt).To(Equal(timeSrc.now))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.failures["abcdef12_a.jpg"] = scanning.MalformedJSON
			})

			It("returns the failure", func() {
				var failure *scanning.Failure
				Expect(errors.As(err, &failure)).To(BeTrue())
				Expect(failure.Reason).To(Equal(scanning.MalformedJSON))
			})

			It("should not save an invoice", func() {
				Expect(db.invoices).To(BeEmpty())
			})
		})

		When("the filename escapes the storage directory", func() {
			BeforeEach(func() {
				filename = "../secret.jpg"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ErrInvalidFilename))
			})

			It("should not call the extractor", func() {
				Expect(extractor.extracted()).To(BeEmpty())
			})
		})

		When("saving fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("database error")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("database error")))
			})
		})
	})

	Describe("StartBatch", func() {
		var (
			filenames []string
			job       *Job
			err       error
		)

		BeforeEach(func() {
			filenames = []string{"a.jpg", "b.jpg", "c.jpg"}
		})

		JustBeforeEach(func() {
			job, err = service.StartBatch(filenames)
		})

		When("every file is valid", func() {
			BeforeEach(func() {
				extractor.failures["b.jpg"] = scanning.EmptyResponse
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should register the job", func() {
				found, ok := service.GetJob(job.ID)
				Expect(ok).To(BeTrue())
				Expect(found).To(BeIdenticalTo(job))
			})

			It("should finish with a state per file", func() {
				Eventually(job.Done()).Should(BeClosed())
				snap := job.Snapshot()
				Expect(snap.Done).To(BeTrue())
				Expect(snap.Succeeded).To(Equal(2))
				Expect(snap.Failed).To(Equal(1))
				Expect(snap.Files[1].State).To(Equal(batch.Failed))
				Expect(snap.Files[1].Reason).To(Equal(scanning.EmptyResponse))
				Expect(snap.Files[1].Error).To(Equal("extraction failed"))
			})

			It("should save an invoice for each success", func() {
				Eventually(job.Done()).Should(BeClosed())
				Expect(db.count()).To(Equal(2))

				snap := job.Snapshot()
				Expect(snap.Files[0].InvoiceID).NotTo(BeEmpty())
				Expect(snap.Files[1].InvoiceID).To(BeEmpty())
				Expect(snap.Files[2].InvoiceID).NotTo(BeEmpty())
			})
		})

		When("subscribed before the batch runs", func() {
			var events <-chan JobEvent

			BeforeEach(func() {
				extractor.block = make(chan struct{})
			})

			JustBeforeEach(func() {
				events, _ = job.Subscribe()
				close(extractor.block)
			})

			It("should deliver the finished event with the saved invoice", func() {
				var finished []JobEvent
				for e := range events {
					if e.Checkpoint == batch.Finished {
						finished = append(finished, e)
					}
				}
				Expect(finished).To(HaveLen(3))
				for _, e := range finished {
					Expect(e.State).To(Equal(batch.Succeeded))
					Expect(e.Invoice).NotTo(BeNil())
					Expect(e.JobID).To(Equal(job.ID))
				}
			})
		})

		When("no files are given", func() {
			BeforeEach(func() {
				filenames = nil
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ErrNoFiles))
			})
		})

		When("a filename is invalid", func() {
			BeforeEach(func() {
				filenames = []string{"a.jpg", "../b.jpg"}
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ErrInvalidFilename))
			})

			It("should not start extracting", func() {
				Expect(extractor.extracted()).To(BeEmpty())
			})
		})

		When("the concurrency limit is negative", func() {
			BeforeEach(func() {
				service.SetConcurrency(-1)
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(batch.ErrNegativeLimit))
			})
		})

		When("the service is closed mid-batch", func() {
			BeforeEach(func() {
				extractor.block = make(chan struct{})
			})

			It("should fail the remaining files", func() {
				service.Close()
				Expect(job.Done()).To(BeClosed())
				snap := job.Snapshot()
				Expect(snap.Failed).To(Equal(3))
				for _, f := range snap.Files {
					Expect(f.Reason).To(Equal(scanning.TransportError))
				}
			})
		})
	})

	Describe("UpdateField", func() {
		var (
			field   string
			value   string
			invoice *Invoice
			err     error
		)

		BeforeEach(func() {
			db.invoices["inv-1"] = &Invoice{ID: "inv-1", InvoiceRecord: testRecord, GSTCheck: gst.OK}
			field = "gst"
			value = "$11.00"
			timeSrc.now = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		})

		JustBeforeEach(func() {
			invoice, err = service.UpdateField("inv-1", field, value)
		})

		When("the field is editable", func() {
			It("should update the value", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(invoice.GST).To(Equal("$11.00"))
				Expect(db.invoices["inv-1"].GST).To(Equal("$11.00"))
			})

			It("should recompute the GST check", func() {
				Expect(invoice.GSTCheck).To(Equal(gst.Mismatch))
			})

			It("should bump the update time", func() {
				Expect(invoice.UpdatedAt).To(Equal(timeSrc.now))
			})
		})

		When("the field is unknown", func() {
			BeforeEach(func() {
				field = "merchant"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ErrUnknownField))
			})
		})

		When("the invoice does not exist", func() {
			JustBeforeEach(func() {
				_, err = service.UpdateField("missing", field, value)
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("DeleteInvoice", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &Invoice{ID: "inv-1", Filename: "abcdef12_a.jpg"}
			storage.files["abcdef12_a.jpg"] = []byte("image")
		})

		It("should delete the row and the file", func() {
			Expect(service.DeleteInvoice("inv-1")).To(Succeed())
			Expect(db.invoices).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		When("the file is already gone", func() {
			BeforeEach(func() {
				storage.deleteErr = errors.New("file not found")
			})

			It("should still delete the row", func() {
				Expect(service.DeleteInvoice("inv-1")).To(Succeed())
				Expect(db.invoices).To(BeEmpty())
			})
		})

		When("the invoice does not exist", func() {
			It("returns the error", func() {
				Expect(service.DeleteInvoice("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("Clear", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &Invoice{ID: "inv-1"}
			db.invoices["inv-2"] = &Invoice{ID: "inv-2"}
			storage.files["a.jpg"] = []byte("a")
			storage.files["b.jpg"] = []byte("b")
		})

		It("should remove every invoice and file", func() {
			deleted, err := service.Clear()
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(2))
			Expect(db.invoices).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.clearErr = errors.New("database error")
			})

			It("returns the error", func() {
				_, err := service.Clear()
				Expect(err).To(MatchError(ContainSubstring("database error")))
			})
		})
	})

	Describe("GetFile", func() {
		BeforeEach(func() {
			storage.files["abcdef12_a.png"] = []byte("png")
		})

		It("should return the bytes and content type", func() {
			data, contentType, err := service.GetFile("abcdef12_a.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png")))
			Expect(contentType).To(Equal("image/png"))
		})

		It("returns the error for unknown files", func() {
			_, _, err := service.GetFile("missing.png")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("contentTypeFor", func() {
	DescribeTable("maps extensions to content types",
		func(name, expected string) {
			Expect(contentTypeFor(name)).To(Equal(expected))
		},
		Entry("jpeg", "a.JPG", "image/jpeg"),
		Entry("webp", "a.webp", "image/webp"),
		Entry("pdf", "a.pdf", "application/pdf"),
		Entry("heic", "a.heic", "image/heic"),
		Entry("unknown", "a.txt", "application/octet-stream"),
	)
})
