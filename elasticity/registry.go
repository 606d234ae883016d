package elasticity

import (
	"sort"
	"sync"

	"github.com/aouyang1/go-demandcast/venue"
)

// Registry holds one estimator per tenant. Tenants never share posteriors.
type Registry struct {
	opt *Options

	mu         sync.Mutex
	estimators map[venue.TenantID]*Estimator
}

// NewRegistry creates an empty registry whose estimators all use the options
func NewRegistry(opt *Options) (*Registry, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Registry{
		opt:        opt,
		estimators: make(map[venue.TenantID]*Estimator),
	}, nil
}

// For returns the estimator of the tenant, creating it on first use
func (r *Registry) For(tenant venue.TenantID) (*Estimator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if est, exists := r.estimators[tenant]; exists {
		return est, nil
	}
	est, err := NewEstimator(tenant, r.opt)
	if err != nil {
		return nil, err
	}
	r.estimators[tenant] = est
	return est, nil
}

// Tenants returns the sorted tenants with an estimator
func (r *Registry) Tenants() []venue.TenantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]venue.TenantID, 0, len(r.estimators))
	for t := range r.estimators {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Options returns the shared estimator options
func (r *Registry) Options() *Options {
	return r.opt
}
