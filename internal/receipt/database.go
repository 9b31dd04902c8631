package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	submissionBucketName = "submissions"
	accessKeyBucketName  = "access_keys"
)

// ErrNotFound is returned when a submission does not exist
var ErrNotFound = errors.New("submission not found")

// DB defines the interface for database operations
type DB interface {
	// SaveSubmission saves a submission and keeps the access key index in step
	SaveSubmission(submission *Submission) error

	// SaveIfKeyFree saves a submission unless its access key already belongs
	// to another one, in which case nothing is written and that one is returned
	SaveIfKeyFree(submission *Submission) (*Submission, error)

	// GetSubmission retrieves a submission by ID
	GetSubmission(id string) (*Submission, error)

	// ListSubmissions returns all submissions
	ListSubmissions() ([]*Submission, error)

	// DeleteSubmission removes a submission and its index entry
	DeleteSubmission(id string) error

	// FindByAccessKey returns the submission indexed under a 44-digit key
	FindByAccessKey(key string) (*Submission, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{submissionBucketName, accessKeyBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func getSubmission(tx *bbolt.Tx, id string) (*Submission, error) {
	data := tx.Bucket([]byte(submissionBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var submission Submission
	if err := json.Unmarshal(data, &submission); err != nil {
		return nil, fmt.Errorf("unmarshaling submission: %w", err)
	}
	return &submission, nil
}

func putSubmission(tx *bbolt.Tx, submission *Submission) error {
	bucket := tx.Bucket([]byte(submissionBucketName))
	keys := tx.Bucket([]byte(accessKeyBucketName))

	// Drop the index entry of a previous version whose key changed
	if old := bucket.Get([]byte(submission.ID)); old != nil {
		var previous Submission
		if err := json.Unmarshal(old, &previous); err == nil &&
			previous.AccessKey != "" && previous.AccessKey != submission.AccessKey {
			if err := keys.Delete([]byte(previous.AccessKey)); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}
	if err := bucket.Put([]byte(submission.ID), data); err != nil {
		return err
	}
	if submission.AccessKey != "" {
		return keys.Put([]byte(submission.AccessKey), []byte(submission.ID))
	}
	return nil
}

// SaveSubmission saves a submission to the database
func (b *BoltDB) SaveSubmission(submission *Submission) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putSubmission(tx, submission)
	})
}

// SaveIfKeyFree checks the access key index and writes in the same
// transaction, so two submissions of one receipt cannot both be stored.
func (b *BoltDB) SaveIfKeyFree(submission *Submission) (*Submission, error) {
	var existing *Submission
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if submission.AccessKey != "" {
			id := tx.Bucket([]byte(accessKeyBucketName)).Get([]byte(submission.AccessKey))
			if id != nil && string(id) != submission.ID {
				found, err := getSubmission(tx, string(id))
				switch {
				case err == nil:
					existing = found
					return nil
				case !errors.Is(err, ErrNotFound):
					return err
				}
				// A stale entry whose submission is gone leaves the key free
			}
		}
		return putSubmission(tx, submission)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// GetSubmission retrieves a submission by ID
func (b *BoltDB) GetSubmission(id string) (*Submission, error) {
	var submission *Submission
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		submission, err = getSubmission(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// ListSubmissions returns all submissions
func (b *BoltDB) ListSubmissions() ([]*Submission, error) {
	submissions := make([]*Submission, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(submissionBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var submission Submission
			if err := json.Unmarshal(v, &submission); err != nil {
				return fmt.Errorf("unmarshaling submission: %w", err)
			}
			submissions = append(submissions, &submission)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

// DeleteSubmission removes a submission from the database
func (b *BoltDB) DeleteSubmission(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		submission, err := getSubmission(tx, id)
		if err != nil {
			return err
		}
		if submission.AccessKey != "" {
			keys := tx.Bucket([]byte(accessKeyBucketName))
			// Only remove the entry if it still points at this submission
			if string(keys.Get([]byte(submission.AccessKey))) == id {
				if err := keys.Delete([]byte(submission.AccessKey)); err != nil {
					return err
				}
			}
		}
		return tx.Bucket([]byte(submissionBucketName)).Delete([]byte(id))
	})
}

// FindByAccessKey returns the submission indexed under key
func (b *BoltDB) FindByAccessKey(key string) (*Submission, error) {
	var submission *Submission
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(accessKeyBucketName)).Get([]byte(key))
		if id == nil {
			return fmt.Errorf("%w: access key %s", ErrNotFound, key)
		}
		var err error
		submission, err = getSubmission(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
