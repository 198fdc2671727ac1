// Package store provides the object store the pipeline reads applicants and
// networks from and writes results to. Objects are JSON documents keyed by
// objectId inside a class, in the style of Parse Server.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultPageSize is the page size used when a query does not set one
const DefaultPageSize = 1000

// Object is a stored JSON document. The objectId field carries its id.
type Object map[string]any

// ID returns the object's id or "" when it has none
func (o Object) ID() string {
	id, _ := o["objectId"].(string)
	return id
}

// Decode unmarshals the object into out
func (o Object) Decode(out any) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode object: %w", err)
	}
	return nil
}

// Encode converts any JSON-serialisable value into an Object
func Encode(v any) (Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return obj, nil
}

// In matches a field against a set of values
type In []any

// MarshalJSON renders the set as a Parse $in constraint
func (in In) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]any{"$in": []any(in)})
}

// InStrings builds an In filter from string ids
func InStrings(values []string) In {
	in := make(In, len(values))
	for i, v := range values {
		in[i] = v
	}
	return in
}

// Filter maps field names to a scalar (equality) or an In set
type Filter map[string]any

// Query describes a filtered, paginated read of one class
type Query struct {
	Where Filter
	Limit int    // 0 means the backend default
	Skip  int    // offset into the filtered result set
	Order string // field name, "-" prefix for descending
}

// QueryResult is one page of a query
type QueryResult struct {
	Results []Object
	Count   int // total matches, independent of Limit/Skip
}

// Store is the persistence contract shared by all backends
type Store interface {
	// Get returns the object and true, or false when it does not exist
	Get(ctx context.Context, class, id string) (Object, bool, error)
	Query(ctx context.Context, class string, q Query) (*QueryResult, error)
	// Save creates an object when id is empty and updates it otherwise.
	// It returns the object id.
	Save(ctx context.Context, class, id string, fields Object) (string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, class, id string) error
}

// Paginate walks every page of a query. The offset advances by the number
// of rows actually returned and the walk stops on the first page shorter
// than pageSize, so a result set that is an exact multiple of pageSize costs
// one extra empty round-trip.
func Paginate(ctx context.Context, s Store, class string, where Filter, pageSize int, fn func(page []Object) error) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	skip := 0
	for {
		res, err := s.Query(ctx, class, Query{Where: where, Limit: pageSize, Skip: skip})
		if err != nil {
			return fmt.Errorf("failed to query %s at offset %d: %w", class, skip, err)
		}

		if len(res.Results) > 0 {
			if err := fn(res.Results); err != nil {
				return err
			}
		}

		skip += len(res.Results)
		if len(res.Results) < pageSize {
			return nil
		}
	}
}

// QueryAll collects every object matching where
func QueryAll(ctx context.Context, s Store, class string, where Filter, pageSize int) ([]Object, error) {
	var all []Object
	err := Paginate(ctx, s, class, where, pageSize, func(page []Object) error {
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
