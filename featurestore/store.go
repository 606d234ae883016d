package featurestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/labor"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/aouyang1/go-demandcast/promotion"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/goccy/go-json"
)

var (
	ErrUnknownTenant   = errors.New("unknown tenant")
	ErrDuplicateTenant = errors.New("duplicate tenant snapshot")
)

// CoverWindow is a daily service window receiving a share of the day's forecast covers, e.g.
// lunch from 11 to 14 with 0.4 of the covers
type CoverWindow struct {
	StartHour float64 `json:"start_hour"`
	EndHour   float64 `json:"end_hour"`
	Share     float64 `json:"share"`
}

// Snapshot is every record of a tenant the decision core reads for one planning run
type Snapshot struct {
	Tenant venue.TenantID `json:"tenant"`

	Observations []DemandObservation `json:"observations"`
	Horizon      []DayContext        `json:"horizon"`
	Priors       *forecast.Priors    `json:"priors,omitempty"`

	Catalog   profit.Catalog    `json:"catalog"`
	Inventory []InventoryRecord `json:"inventory"`
	Overhead  profit.Overhead   `json:"overhead"`

	// SalesPeriod bounds the observations counted as units sold by the profitability report,
	// the whole history when nil
	SalesPeriod *venue.Period `json:"sales_period,omitempty"`

	Promotions  []promotion.Item      `json:"promotion_items"`
	Constraints promotion.Constraints `json:"promotion_constraints"`

	CoverWindows []CoverWindow                       `json:"cover_windows"`
	Employees    []labor.Employee                    `json:"employees"`
	Shifts       []labor.Shift                       `json:"shifts"`
	Availability map[venue.EmployeeID][]labor.Window `json:"availability"`
	Locks        []labor.Lock                        `json:"locks"`
	Conflicts    []labor.Conflict                    `json:"conflicts"`
	Previous     []labor.ShiftAssignment             `json:"previous"`
}

// Store is the read only source of tenant records. Implementations never write back into the
// transaction history.
type Store interface {
	Tenants(ctx context.Context) ([]venue.TenantID, error)
	Snapshot(ctx context.Context, tenant venue.TenantID) (*Snapshot, error)
	Observations(ctx context.Context, tenant venue.TenantID, item venue.ItemID) ([]DemandObservation, error)
	Items(ctx context.Context, tenant venue.TenantID) ([]profit.MenuItem, error)
	Inventory(ctx context.Context, tenant venue.TenantID) ([]InventoryRecord, error)
	Employees(ctx context.Context, tenant venue.TenantID) ([]labor.Employee, error)
	Shifts(ctx context.Context, tenant venue.TenantID) ([]labor.Shift, error)
	Availability(ctx context.Context, tenant venue.TenantID) (map[venue.EmployeeID][]labor.Window, error)
	Locks(ctx context.Context, tenant venue.TenantID) ([]labor.Lock, error)
	Conflicts(ctx context.Context, tenant venue.TenantID) ([]labor.Conflict, error)
}

// MemoryStore is a tenant partitioned in memory Store
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[venue.TenantID]*Snapshot
}

// NewMemoryStore creates a store holding the snapshots
func NewMemoryStore(snapshots ...*Snapshot) (*MemoryStore, error) {
	m := &MemoryStore{snapshots: make(map[venue.TenantID]*Snapshot, len(snapshots))}
	for _, s := range snapshots {
		if err := m.Put(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadSnapshot reads a JSON array of tenant snapshots from the file at path
func LoadSnapshot(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot decodes a JSON array of tenant snapshots
func ReadSnapshot(r io.Reader) (*MemoryStore, error) {
	var snapshots []*Snapshot
	if err := json.NewDecoder(r).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("unable to decode snapshot, %w", err)
	}
	return NewMemoryStore(snapshots...)
}

// Put adds the snapshot of a tenant not yet in the store
func (m *MemoryStore) Put(s *Snapshot) error {
	if s == nil {
		return venue.ErrEmptyTenant
	}
	if err := s.Tenant.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.snapshots[s.Tenant]; exists {
		return fmt.Errorf("tenant %s, %w", s.Tenant, ErrDuplicateTenant)
	}
	m.snapshots[s.Tenant] = s
	return nil
}

func (m *MemoryStore) get(ctx context.Context, tenant venue.TenantID) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, exists := m.snapshots[tenant]
	if !exists {
		return nil, fmt.Errorf("tenant %s, %w", tenant, ErrUnknownTenant)
	}
	return s, nil
}

func (m *MemoryStore) Tenants(ctx context.Context) ([]venue.TenantID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]venue.TenantID, 0, len(m.snapshots))
	for t := range m.snapshots {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

// Snapshot returns the complete snapshot of the tenant. Callers must treat it as read only.
func (m *MemoryStore) Snapshot(ctx context.Context, tenant venue.TenantID) (*Snapshot, error) {
	return m.get(ctx, tenant)
}

// Observations returns the raw demand rows of the item, all items when item is empty
func (m *MemoryStore) Observations(ctx context.Context, tenant venue.TenantID, item venue.ItemID) ([]DemandObservation, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	var res []DemandObservation
	for _, o := range s.Observations {
		if item == "" || o.Item == item {
			res = append(res, o)
		}
	}
	return res, nil
}

func (m *MemoryStore) Items(ctx context.Context, tenant venue.TenantID) ([]profit.MenuItem, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]profit.MenuItem(nil), s.Catalog.Items...), nil
}

func (m *MemoryStore) Inventory(ctx context.Context, tenant venue.TenantID) ([]InventoryRecord, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]InventoryRecord(nil), s.Inventory...), nil
}

func (m *MemoryStore) Employees(ctx context.Context, tenant venue.TenantID) ([]labor.Employee, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]labor.Employee(nil), s.Employees...), nil
}

func (m *MemoryStore) Shifts(ctx context.Context, tenant venue.TenantID) ([]labor.Shift, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]labor.Shift(nil), s.Shifts...), nil
}

func (m *MemoryStore) Availability(ctx context.Context, tenant venue.TenantID) (map[venue.EmployeeID][]labor.Window, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	res := make(map[venue.EmployeeID][]labor.Window, len(s.Availability))
	for e, w := range s.Availability {
		res[e] = append([]labor.Window(nil), w...)
	}
	return res, nil
}

func (m *MemoryStore) Locks(ctx context.Context, tenant venue.TenantID) ([]labor.Lock, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]labor.Lock(nil), s.Locks...), nil
}

func (m *MemoryStore) Conflicts(ctx context.Context, tenant venue.TenantID) ([]labor.Conflict, error) {
	s, err := m.get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return append([]labor.Conflict(nil), s.Conflicts...), nil
}
