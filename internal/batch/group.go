package batch

import (
	"fmt"

	"github.com/roach88/odoorpc/internal/value"
)

// UpdateGroup is a set of records of one model that receive identical
// values.
type UpdateGroup struct {
	Model   string       `json:"model"`
	Values  value.Object `json:"values"`
	Members []int64      `json:"members"`

	// Digest is the content hash of Values.
	Digest string `json:"digest"`
}

// Group partitions normalized requests by model and exactly identical
// values. Strings are compared byte for byte and numbers keep their kind,
// so two requests share a group only when one write can serve both.
// Groups appear in first-seen order; members keep input order.
//
// A record repeated with identical values is listed once. A record
// repeated with different values is an error.
func Group(reqs []UpdateRequest) ([]UpdateGroup, error) {
	var groups []UpdateGroup
	index := make(map[string]int)
	seen := make(map[RecordRef]string)
	for _, req := range reqs {
		digest, err := value.DigestExact(value.DomainUpdateValues, req.Values)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", req.Ref(), err)
		}
		if prev, ok := seen[req.Ref()]; ok {
			if prev != digest {
				return nil, &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: "conflicting duplicate request"}
			}
			continue
		}
		seen[req.Ref()] = digest

		key := req.Model + "\x00" + digest
		if i, ok := index[key]; ok {
			groups[i].Members = append(groups[i].Members, req.ID)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, UpdateGroup{
			Model:   req.Model,
			Values:  req.Values.Clone(),
			Members: []int64{req.ID},
			Digest:  digest,
		})
	}
	return groups, nil
}
