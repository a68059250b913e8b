package storage

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// RunSummary records the outcome of one tracking run
type RunSummary struct {
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Accounts int            `json:"accounts"`
	Dates    int            `json:"dates"`
	Head     uint64         `json:"head"`
	Methods  map[string]int `json:"methods"`
	Failed   int            `json:"failed"`
}

// RecordRun appends the summary; the bucket's sequence is the run counter
func (s *Storage) RecordRun(run RunSummary) (uint64, error) {

	raw, err := json.Marshal(run)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to marshal run summary")
	}

	var id uint64

	err = s.Update(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, RUNS_BUCKET)
		if err != nil {
			return err
		}

		if id, err = b.NextSequence(); err != nil {
			return err
		}

		return b.Put(Itob(id), raw)
	})

	return id, err
}

// GetLastRun returns the most recent summary; ok is false before the first run
func (s *Storage) GetLastRun() (RunSummary, bool, error) {

	var (
		run RunSummary
		ok  bool
	)

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, RUNS_BUCKET)
		if err != nil {
			return err
		}

		raw := b.Get(Itob(b.Sequence()))
		if raw == nil {
			return nil
		}

		if err := json.Unmarshal(raw, &run); err != nil {
			return errors.Wrap(err, "Unable to unmarshal run summary")
		}
		ok = true

		return nil
	})

	return run, ok, err
}
