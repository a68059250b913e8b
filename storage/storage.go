package storage

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DATABASE_FILE = "ctcbalance.db"

	BLOCKS_BUCKET   = "blocks"
	BALANCES_BUCKET = "balances"
	REWARDS_BUCKET  = "rewards"
	METHODS_BUCKET  = "methods"
	RUNS_BUCKET     = "runs"
)

// Storage keeps one top level bucket per network so a single database file can
// hold mainnet and local history side by side
type Storage struct {
	*bolt.DB
	network string
}

// BlockRecord is the block found for a date's midnight UTC
type BlockRecord struct {
	Block uint64 `json:"block"`
	Hash  string `json:"hash"`
}

// History maps date to account name to amount
type History map[string]map[string]decimal.Decimal

func InitStorage(dataDir, network string) (*Storage, error) {

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "Unable to create data directory")
	}

	dbFile := filepath.Join(dataDir, DATABASE_FILE)

	db, err := bolt.Open(dbFile, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to init db")
	}

	// Ensure the network's buckets exist
	err = db.Update(func(tx *bolt.Tx) error {

		nb, err := tx.CreateBucketIfNotExists([]byte(network))
		if err != nil {
			return errors.Wrap(err, "Cannot create network bucket")
		}

		for _, name := range []string{BLOCKS_BUCKET, BALANCES_BUCKET, REWARDS_BUCKET, METHODS_BUCKET, RUNS_BUCKET} {
			if _, err := nb.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "Cannot create %s bucket", name)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"File": dbFile, "Network": network}).Debug("Database opened")

	return &Storage{DB: db, network: network}, nil
}

func (s *Storage) Close() {
	if err := s.DB.Close(); err != nil {
		log.WithError(err).Error("Unable to close database")
		return
	}
	log.Info("Database closed")
}

// bucket returns a sub-bucket of the network bucket
func (s *Storage) bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {

	nb := tx.Bucket([]byte(s.network))
	if nb == nil {
		return nil, errors.Errorf("Unable to locate %s network bucket", s.network)
	}

	b := nb.Bucket([]byte(name))
	if b == nil {
		return nil, errors.Errorf("Unable to locate %s bucket", name)
	}

	return b, nil
}

// GetBlock returns the cached block for date; ok is false when none is stored
func (s *Storage) GetBlock(date string) (BlockRecord, bool, error) {

	var (
		rec BlockRecord
		ok  bool
	)

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, BLOCKS_BUCKET)
		if err != nil {
			return err
		}

		raw := b.Get([]byte(date))
		if raw == nil {
			return nil
		}

		if err := json.Unmarshal(raw, &rec); err != nil {
			return errors.Wrapf(err, "Unable to unmarshal block for %s", date)
		}
		ok = true

		return nil
	})

	return rec, ok, err
}

func (s *Storage) SaveBlock(date string, rec BlockRecord) error {

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal block")
	}

	return s.Update(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, BLOCKS_BUCKET)
		if err != nil {
			return err
		}

		return b.Put([]byte(date), raw)
	})
}

func (s *Storage) GetAllBlocks() (map[string]BlockRecord, error) {

	blocks := make(map[string]BlockRecord)

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, BLOCKS_BUCKET)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var rec BlockRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				log.WithError(err).WithField("Date", string(k)).Warn("Skipping unreadable block record")
				return nil
			}
			blocks[string(k)] = rec
			return nil
		})
	})

	return blocks, err
}

func (s *Storage) SaveBalances(date string, balances map[string]decimal.Decimal) error {
	return s.saveAmounts(BALANCES_BUCKET, date, balances)
}

func (s *Storage) GetBalanceHistory() (History, error) {
	return s.getAmounts(BALANCES_BUCKET)
}

// HasBalances reports whether every name has a balance stored for date
func (s *Storage) HasBalances(date string, names []string) bool {
	return s.hasAmounts(BALANCES_BUCKET, date, names)
}

// SaveRewards stores a window's per-account rewards along with the method that
// produced them
func (s *Storage) SaveRewards(date, method string, rewards map[string]decimal.Decimal) error {

	if err := s.saveAmounts(REWARDS_BUCKET, date, rewards); err != nil {
		return err
	}

	return s.Update(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, METHODS_BUCKET)
		if err != nil {
			return err
		}

		return b.Put([]byte(date), []byte(method))
	})
}

func (s *Storage) GetRewardHistory() (History, error) {
	return s.getAmounts(REWARDS_BUCKET)
}

// GetRewardMethods returns the method recorded for every stored reward date
func (s *Storage) GetRewardMethods() (map[string]string, error) {

	methods := make(map[string]string)

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, METHODS_BUCKET)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			methods[string(k)] = string(v)
			return nil
		})
	})

	return methods, err
}

// HasRewards reports whether every name has a reward stored for date
func (s *Storage) HasRewards(date string, names []string) bool {
	return s.hasAmounts(REWARDS_BUCKET, date, names)
}

// saveAmounts writes into one sub-bucket per account, keyed by date
func (s *Storage) saveAmounts(bucket, date string, amounts map[string]decimal.Decimal) error {

	return s.Update(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, bucket)
		if err != nil {
			return err
		}

		for name, amount := range amounts {

			ab, err := b.CreateBucketIfNotExists([]byte(name))
			if err != nil {
				return errors.Wrapf(err, "Unable to create bucket for %s", name)
			}

			if err := ab.Put([]byte(date), []byte(amount.String())); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Storage) getAmounts(bucket string) (History, error) {

	history := make(History)

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, bucket)
		if err != nil {
			return err
		}

		c := b.Cursor()

		// keys are account names, which are buckets of dates
		for k, v := c.First(); k != nil; k, v = c.Next() {

			if v != nil {
				continue
			}

			name := string(k)

			if err := b.Bucket(k).ForEach(func(date, raw []byte) error {

				amount, err := decimal.NewFromString(string(raw))
				if err != nil {
					log.WithError(err).WithFields(log.Fields{
						"Account": name, "Date": string(date),
					}).Warn("Skipping unreadable amount")
					return nil
				}

				d := string(date)
				if history[d] == nil {
					history[d] = make(map[string]decimal.Decimal)
				}
				history[d][name] = amount

				return nil
			}); err != nil {
				return err
			}
		}

		return nil
	})

	return history, err
}

func (s *Storage) hasAmounts(bucket, date string, names []string) bool {

	found := true

	err := s.View(func(tx *bolt.Tx) error {

		b, err := s.bucket(tx, bucket)
		if err != nil {
			return err
		}

		for _, name := range names {
			ab := b.Bucket([]byte(name))
			if ab == nil || ab.Get([]byte(date)) == nil {
				found = false
				return nil
			}
		}

		return nil
	})

	return found && err == nil
}

// Itob returns an 8-byte big endian representation of v
func Itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func Btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
