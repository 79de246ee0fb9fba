package engine

import (
	"context"
	"sync"
	"time"

	"nowait/queue-service/internal/models"
)

// Registry holds one engine per clinic location and dispatches
// location-scoped commands. Engines are explicit instances; nothing here
// is a singleton.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	order   []string
	opts    Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		opts:    opts,
	}
}

func (r *Registry) AddLocation(location models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[location.LocationID]; ok {
		return ErrLocationExists
	}
	r.engines[location.LocationID] = New(location, r.opts)
	r.order = append(r.order, location.LocationID)
	return nil
}

func (r *Registry) Engine(locationID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[locationID]
	return e, ok
}

func (r *Registry) Locations() []models.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Location, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.engines[id].Location())
	}
	return out
}

// CheckDoctorLate sweeps every location's watchdog.
func (r *Registry) CheckDoctorLate(now time.Time) {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.RUnlock()
	for _, e := range engines {
		e.CheckDoctorLate(now)
	}
}

// --- location-scoped dispatch for the command surface ---

func (r *Registry) Register(ctx context.Context, locationID string, input RegisterInput) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.Register(ctx, input)
}

func (r *Registry) TriggerEmergency(ctx context.Context, locationID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.TriggerEmergency(ctx)
}

func (r *Registry) ApproveBooking(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.ApproveBooking(ctx, tokenID)
}

func (r *Registry) CallNext(ctx context.Context, locationID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.CallNext(ctx)
}

func (r *Registry) CompleteSession(ctx context.Context, locationID, notes string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.CompleteSession(ctx, notes)
}

func (r *Registry) MarkSkipped(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.MarkSkipped(ctx, tokenID)
}

func (r *Registry) CancelToken(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.CancelToken(ctx, tokenID)
}

func (r *Registry) MarkArrived(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.MarkArrived(ctx, tokenID)
}

func (r *Registry) SetPaid(ctx context.Context, locationID, tokenID string, paid bool) (models.Token, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return models.Token{}, ErrLocationNotFound
	}
	return e.SetPaid(ctx, tokenID, paid)
}

func (r *Registry) Snapshot(locationID string) (Snapshot, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return Snapshot{}, ErrLocationNotFound
	}
	return e.Snapshot(), nil
}

func (r *Registry) Position(locationID, tokenID string) (Position, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return Position{}, ErrLocationNotFound
	}
	return e.Position(tokenID)
}

func (r *Registry) Capacity(locationID string) (used, max int, full bool, err error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return 0, 0, false, ErrLocationNotFound
	}
	used, max, full = e.Capacity()
	return used, max, full, nil
}

func (r *Registry) ListEvents(locationID, tokenID string) ([]TokenEvent, error) {
	e, ok := r.Engine(locationID)
	if !ok {
		return nil, ErrLocationNotFound
	}
	return e.ListEvents(tokenID)
}
