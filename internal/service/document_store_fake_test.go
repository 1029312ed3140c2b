package service

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// memDoc is a flattened document keyed by snapshot field path; absent keys are null.
type memDoc map[string]interface{}

// memStore is an in-memory DocumentStore honouring filters and patches.
type memStore struct {
	mu    sync.Mutex
	docs  map[models.Collection]map[string]memDoc
	fail  map[models.Collection]error
	calls int
}

func newMemStore() *memStore {
	return &memStore{docs: map[models.Collection]map[string]memDoc{}, fail: map[models.Collection]error{}}
}

func (s *memStore) put(collection models.Collection, doc memDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]memDoc{}
	}
	s.docs[collection][doc[models.FieldID].(string)] = doc
}

func (s *memStore) get(collection models.Collection, id string) memDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := memDoc{}
	for k, v := range s.docs[collection][id] {
		out[k] = v
	}
	return out
}

// snapshot returns a deep copy of every document for state comparisons.
func (s *memStore) snapshot() map[models.Collection]map[string]memDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[models.Collection]map[string]memDoc{}
	for coll, docs := range s.docs {
		out[coll] = map[string]memDoc{}
		for id, doc := range docs {
			cp := memDoc{}
			for k, v := range doc {
				cp[k] = v
			}
			out[coll][id] = cp
		}
	}
	return out
}

func (s *memStore) UpdateOne(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error) {
	return s.update(collection, filter, patch, true)
}

func (s *memStore) UpdateMany(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error) {
	return s.update(collection, filter, patch, false)
}

func (s *memStore) update(collection models.Collection, filter models.Filter, patch models.Patch, single bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.fail[collection]; err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(s.docs[collection]))
	for id := range s.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var n int64
	for _, id := range ids {
		doc := s.docs[collection][id]
		if !matches(doc, filter) {
			continue
		}
		for _, a := range patch {
			if a.Value == nil {
				delete(doc, a.Field)
			} else {
				doc[a.Field] = a.Value
			}
		}
		n++
		if single {
			break
		}
	}
	return n, nil
}

func matches(doc memDoc, filter models.Filter) bool {
	for _, p := range filter {
		v, present := doc[p.Field]
		switch p.Op {
		case models.OpEq:
			if !present || !reflect.DeepEqual(v, p.Value) {
				return false
			}
		case models.OpNe:
			if present && reflect.DeepEqual(v, p.Value) {
				return false
			}
		case models.OpIsNull:
			if present {
				return false
			}
		case models.OpNotNull:
			if !present {
				return false
			}
		default:
			return false
		}
	}
	return true
}
