package testutil

import (
	"fmt"
	"sort"

	"github.com/roach88/odoorpc/internal/value"
)

// Store holds the fake server's records. Handlers receive it with the
// server lock held.
type Store struct {
	records map[string]map[int64]value.Object
	fields  map[string]map[string]string
	nextID  map[string]int64
}

func newStore() *Store {
	return &Store{
		records: make(map[string]map[int64]value.Object),
		fields:  make(map[string]map[string]string),
		nextID:  make(map[string]int64),
	}
}

func (s *Store) put(model string, rec value.Object) {
	id, ok := value.AsInt(rec["id"])
	if !ok {
		panic(fmt.Sprintf("testutil: seeded %s record without integer id", model))
	}
	if s.records[model] == nil {
		s.records[model] = make(map[int64]value.Object)
	}
	s.records[model][id] = rec.Clone()
	if id >= s.nextID[model] {
		s.nextID[model] = id + 1
	}
}

// Get returns a copy of a record.
func (s *Store) Get(model string, id int64) (value.Object, bool) {
	rec, ok := s.records[model][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// All returns copies of every record of model in id order.
func (s *Store) All(model string) []value.Object {
	ids := make([]int64, 0, len(s.records[model]))
	for id := range s.records[model] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]value.Object, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[model][id].Clone())
	}
	return out
}

// Update merges vals into an existing record. Integer writes to fields
// declared many2one are stored as [id, display name] pairs, the way the
// server reads them back.
func (s *Store) Update(model string, id int64, vals value.Object) bool {
	rec, ok := s.records[model][id]
	if !ok {
		return false
	}
	for k, v := range vals {
		if s.fields[model][k] == "many2one" {
			if ref, ok := value.AsInt(v); ok {
				v = value.Array{value.Int(ref), value.String(fmt.Sprintf("%s,%d", k, ref))}
			}
		}
		rec[k] = v
	}
	return true
}

// Create inserts a record with the next free id and returns that id.
func (s *Store) Create(model string, vals value.Object) int64 {
	id := s.nextID[model]
	if id == 0 {
		id = 1
	}
	rec := vals.Clone()
	rec["id"] = value.Int(id)
	s.put(model, rec)
	return id
}
