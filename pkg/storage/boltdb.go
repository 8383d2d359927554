package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/corral/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks      = []byte("tasks")
	bucketJobUpdates = []byte("job_updates")
	bucketQuota      = []byte("quota")
	bucketAttributes = []byte("attributes")
	bucketScheduler  = []byte("scheduler")
)

const schedulerDriverIdKey = "driver_id"

// BoltStore is the bbolt-backed Store. bbolt itself serializes writes
// within a process; writeMu only protects the Transaction buffers
// built around a single db.Update call from concurrent Go-level
// callers racing to start one.
type BoltStore struct {
	db      *bolt.DB
	writeMu sync.Mutex
}

// NewBoltStore opens (creating if necessary) the bbolt database file
// under dataDir and ensures every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "corral.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTasks, bucketJobUpdates, bucketQuota, bucketAttributes, bucketScheduler} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) DoInReadTransaction(fn func(sp StoreProvider) error) error {
	return s.db.View(func(boltTx *bolt.Tx) error {
		return fn(boltStoreProvider{tx: boltTx})
	})
}

func (s *BoltStore) DoInWriteTransaction(fn func(tx *Transaction) error) ([]Event, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var tx *Transaction
	err := s.db.Update(func(boltTx *bolt.Tx) error {
		tx = newTransaction(boltStoreProvider{tx: boltTx})
		return fn(tx)
	})
	if err != nil {
		return nil, err
	}

	for _, cb := range tx.deferred {
		cb()
	}
	return tx.events, nil
}

// boltStoreProvider binds a *bolt.Tx (view or update) to per-entity
// store handles. It is cheap to construct and carries no state of its
// own beyond the transaction it wraps.
type boltStoreProvider struct {
	tx *bolt.Tx
}

func (p boltStoreProvider) Tasks() TaskStore           { return taskStore{p.tx} }
func (p boltStoreProvider) Updates() UpdateStore       { return updateStore{p.tx} }
func (p boltStoreProvider) Quota() QuotaStore          { return quotaStore{p.tx} }
func (p boltStoreProvider) Attributes() AttributeStore { return attributeStore{p.tx} }
func (p boltStoreProvider) Scheduler() SchedulerStore  { return schedulerStore{p.tx} }

type taskStore struct{ tx *bolt.Tx }

func (s taskStore) Save(task *types.ScheduledTask) error {
	b := s.tx.Bucket(bucketTasks)
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.Put([]byte(task.TaskId), data)
}

func (s taskStore) SaveAll(tasks []*types.ScheduledTask) error {
	for _, t := range tasks {
		if err := s.Save(t); err != nil {
			return err
		}
	}
	return nil
}

func (s taskStore) Get(taskId string) (*types.ScheduledTask, bool, error) {
	b := s.tx.Bucket(bucketTasks)
	data := b.Get([]byte(taskId))
	if data == nil {
		return nil, false, nil
	}
	var task types.ScheduledTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, false, err
	}
	return &task, true, nil
}

func (s taskStore) Fetch(query types.TaskQuery) ([]*types.ScheduledTask, error) {
	var out []*types.ScheduledTask
	b := s.tx.Bucket(bucketTasks)
	err := b.ForEach(func(k, v []byte) error {
		var task types.ScheduledTask
		if err := json.Unmarshal(v, &task); err != nil {
			return err
		}
		if query.Matches(&task) {
			out = append(out, &task)
		}
		return nil
	})
	return out, err
}

func (s taskStore) Delete(taskId string) error {
	return s.tx.Bucket(bucketTasks).Delete([]byte(taskId))
}

func (s taskStore) DeleteAll(taskIds []string) error {
	b := s.tx.Bucket(bucketTasks)
	for _, id := range taskIds {
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return nil
}

type updateStore struct{ tx *bolt.Tx }

func jobUpdateKey(key types.JobKey) []byte {
	return []byte(key.Role + "/" + key.Environment + "/" + key.Name)
}

func (s updateStore) Get(key types.JobKey) (*types.JobUpdateConfiguration, bool, error) {
	b := s.tx.Bucket(bucketJobUpdates)
	data := b.Get(jobUpdateKey(key))
	if data == nil {
		return nil, false, nil
	}
	var cfg types.JobUpdateConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (s updateStore) FetchByRole(role string) ([]*types.JobUpdateConfiguration, error) {
	var out []*types.JobUpdateConfiguration
	b := s.tx.Bucket(bucketJobUpdates)
	err := b.ForEach(func(k, v []byte) error {
		var cfg types.JobUpdateConfiguration
		if err := json.Unmarshal(v, &cfg); err != nil {
			return err
		}
		if cfg.JobKey.Role == role {
			out = append(out, &cfg)
		}
		return nil
	})
	return out, err
}

func (s updateStore) FetchAll() ([]*types.JobUpdateConfiguration, error) {
	var out []*types.JobUpdateConfiguration
	b := s.tx.Bucket(bucketJobUpdates)
	err := b.ForEach(func(k, v []byte) error {
		var cfg types.JobUpdateConfiguration
		if err := json.Unmarshal(v, &cfg); err != nil {
			return err
		}
		out = append(out, &cfg)
		return nil
	})
	return out, err
}

func (s updateStore) Save(cfg *types.JobUpdateConfiguration) error {
	b := s.tx.Bucket(bucketJobUpdates)
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return b.Put(jobUpdateKey(cfg.JobKey), data)
}

func (s updateStore) Delete(key types.JobKey) error {
	return s.tx.Bucket(bucketJobUpdates).Delete(jobUpdateKey(key))
}

type quotaStore struct{ tx *bolt.Tx }

func (s quotaStore) Get(role string) (Quota, bool, error) {
	b := s.tx.Bucket(bucketQuota)
	data := b.Get([]byte(role))
	if data == nil {
		return Quota{}, false, nil
	}
	var q Quota
	if err := json.Unmarshal(data, &q); err != nil {
		return Quota{}, false, err
	}
	return q, true, nil
}

func (s quotaStore) Save(q Quota) error {
	b := s.tx.Bucket(bucketQuota)
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return b.Put([]byte(q.Role), data)
}

func (s quotaStore) Delete(role string) error {
	return s.tx.Bucket(bucketQuota).Delete([]byte(role))
}

type attributeStore struct{ tx *bolt.Tx }

func (s attributeStore) Get(host string) ([]types.Attribute, bool, error) {
	b := s.tx.Bucket(bucketAttributes)
	data := b.Get([]byte(host))
	if data == nil {
		return nil, false, nil
	}
	var attrs []types.Attribute
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, false, err
	}
	return attrs, true, nil
}

func (s attributeStore) Save(host string, attrs []types.Attribute) error {
	b := s.tx.Bucket(bucketAttributes)
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return b.Put([]byte(host), data)
}

func (s attributeStore) FetchAll() (map[string][]types.Attribute, error) {
	out := make(map[string][]types.Attribute)
	b := s.tx.Bucket(bucketAttributes)
	err := b.ForEach(func(k, v []byte) error {
		var attrs []types.Attribute
		if err := json.Unmarshal(v, &attrs); err != nil {
			return err
		}
		out[string(k)] = attrs
		return nil
	})
	return out, err
}

type schedulerStore struct{ tx *bolt.Tx }

func (s schedulerStore) GetDriverId() (string, bool, error) {
	b := s.tx.Bucket(bucketScheduler)
	data := b.Get([]byte(schedulerDriverIdKey))
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (s schedulerStore) SaveDriverId(id string) error {
	return s.tx.Bucket(bucketScheduler).Put([]byte(schedulerDriverIdKey), []byte(id))
}
