package memory

import (
	"context"
	"sort"
	"sync"

	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/shared/events"
	domainvehicle "carrental/internal/domain/vehicle"
)

// BookingRepository stores bookings in memory.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrNotFound
	}
	return cloneBooking(b), nil
}

// Save stores the booking, rejecting writes based on a stale version.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.items[b.ID]; ok && current.Version != b.Version {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version++
	r.items[b.ID] = cloneBooking(b)
	return nil
}

func (r *BookingRepository) List(ctx context.Context, filter domainbooking.Filter) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if matchesFilter(b, filter) {
			matches = append(matches, cloneBooking(b))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Period.Start.Equal(matches[j].Period.Start) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Period.Start.Before(matches[j].Period.Start)
	})
	return matches, nil
}

func matchesFilter(b *domainbooking.Booking, f domainbooking.Filter) bool {
	if f.RenterID != "" && b.RenterID != f.RenterID {
		return false
	}
	if f.VehicleID != "" && b.VehicleID != f.VehicleID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Window != nil && !b.Period.Overlaps(*f.Window) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !b.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	if b.ExtendedEnd != nil {
		t := *b.ExtendedEnd
		cp.ExtendedEnd = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

// VehicleRepository stores vehicles in memory.
type VehicleRepository struct {
	mu    sync.RWMutex
	items map[domainvehicle.ID]*domainvehicle.Vehicle
}

func NewVehicleRepository() *VehicleRepository {
	return &VehicleRepository{items: make(map[domainvehicle.ID]*domainvehicle.Vehicle)}
}

func (r *VehicleRepository) ByID(ctx context.Context, id domainvehicle.ID) (*domainvehicle.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, domainvehicle.ErrNotFound
	}
	return cloneVehicle(v), nil
}

func (r *VehicleRepository) Save(ctx context.Context, v *domainvehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.items[v.ID]; ok && current.Version != v.Version {
		return domainvehicle.ErrConcurrentUpdate
	}
	v.Version++
	r.items[v.ID] = cloneVehicle(v)
	return nil
}

// SetAvailability leaves the version alone, like the field-level update of the document store.
func (r *VehicleRepository) SetAvailability(ctx context.Context, id domainvehicle.ID, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		return domainvehicle.ErrNotFound
	}
	v.IsAvailable = available
	return nil
}

func (r *VehicleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domainvehicle.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainvehicle.Vehicle, 0)
	for _, v := range r.items {
		if v.OwnerID == ownerID && !v.IsDeleted {
			out = append(out, cloneVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneVehicle(v *domainvehicle.Vehicle) *domainvehicle.Vehicle {
	cp := *v
	cp.Policy.Blackouts = append(cp.Policy.Blackouts[:0:0], v.Policy.Blackouts...)
	cp.GroupSettings = make(map[string]domainvehicle.GroupSetting, len(v.GroupSettings))
	for k, s := range v.GroupSettings {
		cp.GroupSettings[k] = s
	}
	return &cp
}

// GroupRepository stores groups in memory.
type GroupRepository struct {
	mu    sync.RWMutex
	items map[domaingroup.ID]*domaingroup.Group
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{items: make(map[domaingroup.ID]*domaingroup.Group)}
}

func (r *GroupRepository) ByID(ctx context.Context, id domaingroup.ID) (*domaingroup.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.items[id]
	if !ok {
		return nil, domaingroup.ErrNotFound
	}
	return cloneGroup(g), nil
}

func (r *GroupRepository) Save(ctx context.Context, g *domaingroup.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.items[g.ID]; ok && current.Version != g.Version {
		return domaingroup.ErrConcurrentUpdate
	}
	g.Version++
	r.items[g.ID] = cloneGroup(g)
	return nil
}

func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]*domaingroup.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domaingroup.Group, 0)
	for _, g := range r.items {
		if g.IsActiveMember(userID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneGroup(g *domaingroup.Group) *domaingroup.Group {
	cp := *g
	cp.Members = append([]domaingroup.Member(nil), g.Members...)
	cp.Vehicles = append([]domaingroup.VehicleEntry(nil), g.Vehicles...)
	return &cp
}

var (
	_ domainbooking.Repository = (*BookingRepository)(nil)
	_ domainvehicle.Repository = (*VehicleRepository)(nil)
	_ domaingroup.Repository   = (*GroupRepository)(nil)
)
