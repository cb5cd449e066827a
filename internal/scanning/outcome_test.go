package scanning

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Failure", func() {
	var (
		cause   error
		failure *Failure
	)

	BeforeEach(func() {
		cause = errors.New("connection refused")
		failure = NewFailure("/tmp/uploads/b.jpg", TransportError, "API request failed", cause)
	})

	It("should identify the file by base name", func() {
		Expect(failure.File()).To(Equal("b.jpg"))
	})

	It("should wrap the cause", func() {
		Expect(errors.Is(failure, cause)).To(BeTrue())
	})

	It("should include the cause in the detail message", func() {
		Expect(failure.Detail()).To(Equal("API request failed: connection refused"))
	})

	It("should render the reason as text", func() {
		text, err := failure.Reason.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("transport_error"))
	})
})
