package neat

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/neatrank/internal/store"
)

// Repository reads and writes the domain objects through an object store
type Repository struct {
	store    store.Store
	pageSize int
}

// NewRepository creates a repository; pageSize <= 0 uses store.DefaultPageSize
func NewRepository(s store.Store, pageSize int) *Repository {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	return &Repository{store: s, pageSize: pageSize}
}

// GetNetwork loads a network; found is false when it does not exist
func (r *Repository) GetNetwork(ctx context.Context, id string) (*Network, bool, error) {
	var network Network
	found, err := r.get(ctx, ClassNetworks, id, &network)
	if err != nil || !found {
		return nil, found, err
	}
	return &network, true, nil
}

// SaveNetwork creates or updates a network and returns its id
func (r *Repository) SaveNetwork(ctx context.Context, network *Network) (string, error) {
	id, err := r.save(ctx, ClassNetworks, network.ObjectID, network)
	if err != nil {
		return "", err
	}
	network.ObjectID = id
	return id, nil
}

// GetApplicant loads an applicant; found is false when it does not exist
func (r *Repository) GetApplicant(ctx context.Context, id string) (*Applicant, bool, error) {
	var applicant Applicant
	found, err := r.get(ctx, ClassApplicants, id, &applicant)
	if err != nil || !found {
		return nil, found, err
	}
	return &applicant, true, nil
}

// CreateApplicant persists a new applicant and sets its id
func (r *Repository) CreateApplicant(ctx context.Context, applicant *Applicant) (string, error) {
	if err := applicant.Validate(); err != nil {
		return "", fmt.Errorf("invalid applicant: %w", err)
	}
	id, err := r.save(ctx, ClassApplicants, "", applicant)
	if err != nil {
		return "", err
	}
	applicant.ObjectID = id
	return id, nil
}

// ApplicantsFor returns every applicant with the given dimensions in store
// order
func (r *Repository) ApplicantsFor(ctx context.Context, inputs, outputs int) ([]Applicant, error) {
	var applicants []Applicant
	where := store.Filter{"inputs": inputs, "outputs": outputs}

	err := store.Paginate(ctx, r.store, ClassApplicants, where, r.pageSize, func(page []store.Object) error {
		for _, obj := range page {
			var a Applicant
			if err := obj.Decode(&a); err != nil {
				return fmt.Errorf("failed to decode applicant %s: %w", obj.ID(), err)
			}
			applicants = append(applicants, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load applicants: %w", err)
	}
	return applicants, nil
}

// EachResultPage walks all results whose applicantId is in applicantIDs,
// one page at a time
func (r *Repository) EachResultPage(ctx context.Context, applicantIDs []string, pageSize int, fn func([]Result) error) error {
	if len(applicantIDs) == 0 {
		return nil
	}
	where := store.Filter{"applicantId": store.InStrings(applicantIDs)}
	return r.eachResultPage(ctx, where, pageSize, fn)
}

// ResultsFor returns every stored result of one applicant in store order
func (r *Repository) ResultsFor(ctx context.Context, applicantID string) ([]Result, error) {
	var results []Result
	where := store.Filter{"applicantId": applicantID}

	err := r.eachResultPage(ctx, where, r.pageSize, func(page []Result) error {
		results = append(results, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SaveResult persists a result and sets its id
func (r *Repository) SaveResult(ctx context.Context, result *Result) (string, error) {
	id, err := r.save(ctx, ClassResults, result.ObjectID, result)
	if err != nil {
		return "", err
	}
	result.ObjectID = id
	return id, nil
}

// DeleteResult removes a result; deleting a missing result is not an error
func (r *Repository) DeleteResult(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, ClassResults, id); err != nil {
		return fmt.Errorf("failed to delete result %s: %w", id, err)
	}
	return nil
}

func (r *Repository) eachResultPage(ctx context.Context, where store.Filter, pageSize int, fn func([]Result) error) error {
	return store.Paginate(ctx, r.store, ClassResults, where, pageSize, func(page []store.Object) error {
		results := make([]Result, 0, len(page))
		for _, obj := range page {
			var res Result
			if err := obj.Decode(&res); err != nil {
				return fmt.Errorf("failed to decode result %s: %w", obj.ID(), err)
			}
			results = append(results, res)
		}
		return fn(results)
	})
}

func (r *Repository) get(ctx context.Context, class, id string, out any) (bool, error) {
	obj, found, err := r.store.Get(ctx, class, id)
	if err != nil {
		return false, fmt.Errorf("failed to load %s %s: %w", class, id, err)
	}
	if !found {
		return false, nil
	}
	if err := obj.Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", class, id, err)
	}
	return true, nil
}

func (r *Repository) save(ctx context.Context, class, id string, v any) (string, error) {
	fields, err := store.Encode(v)
	if err != nil {
		return "", err
	}
	saved, err := r.store.Save(ctx, class, id, fields)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", class, err)
	}
	return saved, nil
}
