package scanning

import (
	"encoding/base64"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MediaTypeFor", func() {
	DescribeTable("maps extensions to media types",
		func(name, expected string) {
			Expect(MediaTypeFor(name)).To(Equal(expected))
		},
		Entry("jpg", "receipt.jpg", "image/jpeg"),
		Entry("upper-case JPEG", "RECEIPT.JPEG", "image/jpeg"),
		Entry("png", "receipt.png", "image/png"),
		Entry("gif", "receipt.gif", "image/gif"),
		Entry("webp", "receipt.webp", "image/webp"),
		Entry("unknown extension", "receipt.bmp", "image/jpeg"),
		Entry("no extension", "receipt", "image/jpeg"),
	)
})

var _ = Describe("Encode", func() {
	var (
		dir   string
		path  string
		media *Media
		err   error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	JustBeforeEach(func() {
		media, err = Encode(path)
	})

	When("the file is a PNG", func() {
		BeforeEach(func() {
			path = filepath.Join(dir, "invoice.png")
			Expect(os.WriteFile(path, []byte("fake png bytes"), 0644)).To(Succeed())
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should detect the media type from the extension", func() {
			Expect(media.MediaType).To(Equal("image/png"))
		})

		It("should base64 encode the whole file", func() {
			decoded, decodeErr := base64.StdEncoding.DecodeString(media.Data)
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(string(decoded)).To(Equal("fake png bytes"))
			Expect(media.Bytes()).To(Equal([]byte("fake png bytes")))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(dir, "missing.jpg")
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(media).To(BeNil())
		})
	})

	When("a HEIC file cannot be decoded", func() {
		BeforeEach(func() {
			path = filepath.Join(dir, "photo.heic")
			Expect(os.WriteFile(path, []byte("not really heic"), 0644)).To(Succeed())
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("HEIC")))
		})
	})

	When("a PDF cannot be opened", func() {
		BeforeEach(func() {
			path = filepath.Join(dir, "invoice.pdf")
			Expect(os.WriteFile(path, []byte("not really a pdf"), 0644)).To(Succeed())
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect a heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should reject other data", func() {
		Expect(isHEICFormat([]byte("\xff\xd8\xff\xe0 jpeg data"))).To(BeFalse())
	})

	It("should reject short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
