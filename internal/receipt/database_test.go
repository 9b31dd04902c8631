package receipt

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"

	"github.com/zombor/nfce-ingest/internal/nfce"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newSubmission := func(id, key string) *Submission {
		total := decimal.RequireFromString("25.90")
		count := 1
		return &Submission{
			ID:        id,
			Source:    nfce.SourceQR,
			RawText:   keyText,
			AccessKey: key,
			Status:    StatusPending,
			Outcome: nfce.ParseOutcome{
				Status: nfce.StatusPartial,
				Key:    &nfce.AccessKey{Digits: keyValue, Confidence: nfce.High},
				Receipt: &nfce.ParsedReceipt{
					Merchant: nfce.Merchant{CNPJ: "09634089000201", TradeName: "MERCADO BOM PRECO LTDA", Confidence: nfce.High},
					Items: []nfce.LineItem{{
						Seq:         1,
						Description: "ARROZ TIPO 1 5KG",
						ProductCode: "1001",
						Quantity:    nfce.Number{Value: decimal.NewFromInt(1), Confidence: nfce.High},
						Unit:        "UN",
						UnitPrice:   nfce.Number{Value: total, Confidence: nfce.High},
						TotalPrice:  nfce.Number{Value: total, Confidence: nfce.High},
					}},
					Totals: nfce.Totals{
						DeclaredItemCount:    &count,
						DeclaredTotal:        &total,
						ComputedItemCount:    1,
						ComputedTotal:        total,
						ReconciliationStatus: nfce.ReconciliationOK,
					},
				},
			},
			SubmittedAt: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
			UpdatedAt:   time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveSubmission", func() {
		var (
			submission *Submission
			err        error
		)

		BeforeEach(func() {
			submission = newSubmission("test-id", keyValue)
		})

		JustBeforeEach(func() {
			err = db.SaveSubmission(submission)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("round trips the parse outcome", func() {
				saved, getErr := db.GetSubmission("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Outcome.Key.Digits).To(Equal(keyValue))
				Expect(saved.Outcome.Receipt.Items).To(HaveLen(1))
				Expect(saved.Outcome.Receipt.Items[0].TotalPrice.Value.Equal(decimal.RequireFromString("25.9"))).To(BeTrue())
				Expect(*saved.Outcome.Receipt.DeclaredItemCount).To(Equal(1))
				Expect(saved.Outcome.Receipt.ReconciliationStatus).To(Equal(nfce.ReconciliationOK))
				Expect(saved.SubmittedAt.Equal(submission.SubmittedAt)).To(BeTrue())
			})

			It("indexes the access key", func() {
				found, findErr := db.FindByAccessKey(keyValue)
				Expect(findErr).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("test-id"))
			})
		})

		When("the submission has no access key", func() {
			BeforeEach(func() {
				submission.AccessKey = ""
			})

			It("does not index it", func() {
				_, findErr := db.FindByAccessKey(keyValue)
				Expect(findErr).To(MatchError(ErrNotFound))
			})
		})

		When("a saved submission loses its key", func() {
			BeforeEach(func() {
				Expect(db.SaveSubmission(newSubmission("test-id", keyValue))).To(Succeed())
				submission.AccessKey = otherKey
			})

			It("moves the index entry", func() {
				_, findErr := db.FindByAccessKey(keyValue)
				Expect(findErr).To(MatchError(ErrNotFound))

				found, findErr := db.FindByAccessKey(otherKey)
				Expect(findErr).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("test-id"))
			})
		})
	})

	Describe("GetSubmission", func() {
		It("returns ErrNotFound for an unknown id", func() {
			_, err := db.GetSubmission("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListSubmissions", func() {
		When("the database is empty", func() {
			It("returns an empty slice", func() {
				subs, err := db.ListSubmissions()
				Expect(err).NotTo(HaveOccurred())
				Expect(subs).NotTo(BeNil())
				Expect(subs).To(BeEmpty())
			})
		})

		When("submissions exist", func() {
			BeforeEach(func() {
				Expect(db.SaveSubmission(newSubmission("id1", keyValue))).To(Succeed())
				Expect(db.SaveSubmission(newSubmission("id2", ""))).To(Succeed())
			})

			It("returns all of them", func() {
				subs, err := db.ListSubmissions()
				Expect(err).NotTo(HaveOccurred())
				Expect(subs).To(HaveLen(2))
			})
		})
	})

	Describe("DeleteSubmission", func() {
		BeforeEach(func() {
			Expect(db.SaveSubmission(newSubmission("id1", keyValue))).To(Succeed())
		})

		It("removes the submission and its index entry", func() {
			Expect(db.DeleteSubmission("id1")).To(Succeed())

			_, err := db.GetSubmission("id1")
			Expect(err).To(MatchError(ErrNotFound))
			_, err = db.FindByAccessKey(keyValue)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("returns ErrNotFound for an unknown id", func() {
			Expect(db.DeleteSubmission("missing")).To(MatchError(ErrNotFound))
		})

		When("the key index points at another submission", func() {
			BeforeEach(func() {
				Expect(db.SaveSubmission(newSubmission("id2", keyValue))).To(Succeed())
			})

			It("leaves the other entry alone", func() {
				Expect(db.DeleteSubmission("id1")).To(Succeed())

				found, err := db.FindByAccessKey(keyValue)
				Expect(err).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("id2"))
			})
		})
	})

	Describe("SaveIfKeyFree", func() {
		It("saves a submission whose key is free", func() {
			existing, err := db.SaveIfKeyFree(newSubmission("id1", keyValue))
			Expect(err).NotTo(HaveOccurred())
			Expect(existing).To(BeNil())

			found, err := db.FindByAccessKey(keyValue)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("id1"))
		})

		It("returns the owner of a taken key and writes nothing", func() {
			Expect(db.SaveSubmission(newSubmission("id1", keyValue))).To(Succeed())

			existing, err := db.SaveIfKeyFree(newSubmission("id2", keyValue))
			Expect(err).NotTo(HaveOccurred())
			Expect(existing.ID).To(Equal("id1"))

			_, err = db.GetSubmission("id2")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("lets a submission save again under its own key", func() {
			Expect(db.SaveSubmission(newSubmission("id1", keyValue))).To(Succeed())

			updated := newSubmission("id1", keyValue)
			updated.Notes = "conferido"
			existing, err := db.SaveIfKeyFree(updated)
			Expect(err).NotTo(HaveOccurred())
			Expect(existing).To(BeNil())

			found, err := db.GetSubmission("id1")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Notes).To(Equal("conferido"))
		})

		It("treats an index entry without a submission as free", func() {
			Expect(db.db.Update(func(tx *bbolt.Tx) error {
				return tx.Bucket([]byte(accessKeyBucketName)).Put([]byte(keyValue), []byte("gone"))
			})).To(Succeed())

			existing, err := db.SaveIfKeyFree(newSubmission("id1", keyValue))
			Expect(err).NotTo(HaveOccurred())
			Expect(existing).To(BeNil())

			found, err := db.FindByAccessKey(keyValue)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("id1"))
		})

		It("stores one submission when the same key races", func() {
			const writers = 8
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				stored int
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(id string) {
					defer GinkgoRecover()
					defer wg.Done()
					existing, err := db.SaveIfKeyFree(newSubmission(id, keyValue))
					Expect(err).NotTo(HaveOccurred())
					if existing == nil {
						mu.Lock()
						stored++
						mu.Unlock()
					}
				}(fmt.Sprintf("id%d", i))
			}
			wg.Wait()

			Expect(stored).To(Equal(1))
			all, err := db.ListSubmissions()
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})

	Describe("persistence", func() {
		It("keeps data across reopen", func() {
			Expect(db.SaveSubmission(newSubmission("id1", keyValue))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			found, err := db.FindByAccessKey(keyValue)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("id1"))
		})
	})
})
