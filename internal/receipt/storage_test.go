package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			data      []byte
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "test-id_cupom.pdf"
			data = []byte("%PDF-1.4 content")
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, data)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the stored name", func() {
				Expect(savedPath).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				content, readErr := os.ReadFile(filepath.Join(tmpDir, filename))
				Expect(readErr).NotTo(HaveOccurred())
				Expect(content).To(Equal(data))
			})

			It("leaves no temporary files behind", func() {
				entries, readErr := os.ReadDir(tmpDir)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the name tries to leave the storage directory", func() {
			BeforeEach(func() {
				filename = "../../escape.txt"
			})

			It("keeps the file inside it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal("escape.txt"))
				Expect(filepath.Join(tmpDir, "escape.txt")).To(BeAnExistingFile())
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				filename = ""
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Get", func() {
		BeforeEach(func() {
			_, err := storage.Save("a.txt", []byte("hello"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the file content", func() {
			data, err := storage.Get("a.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("hello")))
		})

		It("returns ErrNotFound for a missing file", func() {
			_, err := storage.Get("missing.txt")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := storage.Save("a.txt", []byte("hello"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the file", func() {
			Expect(storage.Delete("a.txt")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.txt")).NotTo(BeAnExistingFile())
		})

		It("returns ErrNotFound for a missing file", func() {
			Expect(storage.Delete("missing.txt")).To(MatchError(ErrNotFound))
		})
	})
})
