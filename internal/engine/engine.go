package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"nowait/queue-service/internal/audit"
	"nowait/queue-service/internal/models"

	"github.com/google/uuid"
)

// Announcer delivers spoken announcements to patients. Enqueue must not
// block; failures stay inside the collaborator.
type Announcer interface {
	Enqueue(text string)
}

// Event describes a committed queue transition, for display fan-out.
type Event struct {
	Type       string       `json:"type"`
	LocationID string       `json:"location_id"`
	Token      models.Token `json:"token"`
	CreatedAt  time.Time    `json:"created_at"`
}

type Options struct {
	TravelWindow    int
	AvgConsult      time.Duration
	DoctorLateGrace time.Duration
	RequirePayment  bool
	EnforceCapacity bool
	Announcer       Announcer
	Recorder        audit.Recorder
	Notify          func(Event)
}

// Engine owns the queue state of one clinic location. Every command is a
// single serialized transition; reads copy state under the same lock.
type Engine struct {
	location models.Location
	opts     Options

	mu         sync.Mutex
	active     []*models.Token
	pending    []*models.Token
	history    []models.Token
	current    *models.Token
	events     map[string][]TokenEvent
	lastNumber int
	idleSince  time.Time
	doctorLate bool
	now        func() time.Time
}

func New(location models.Location, opts Options) *Engine {
	if opts.TravelWindow <= 0 {
		opts.TravelWindow = 5
	}
	if opts.AvgConsult <= 0 {
		opts.AvgConsult = 15 * time.Minute
	}
	if opts.DoctorLateGrace <= 0 {
		opts.DoctorLateGrace = 10 * time.Minute
	}
	e := &Engine{
		location: location,
		opts:     opts,
		events:   make(map[string][]TokenEvent),
		now:      time.Now,
	}
	e.idleSince = e.now()
	return e
}

func (e *Engine) Location() models.Location {
	return e.location
}

type RegisterInput struct {
	Contact       string
	Name          string
	Channel       string
	Emergency     bool
	Priority      bool
	Paid          bool
	PaymentMethod string
}

// Register issues a token. Emergencies leapfrog to the front of the
// active queue with number zero; priority registrations join the active
// queue directly; walk-ins join as waiting; everything else lands in the
// pending bookings awaiting front-desk approval.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (models.Token, error) {
	e.mu.Lock()
	now := e.now()
	channel := input.Channel
	if channel == "" {
		channel = models.ChannelWalkIn
	}

	if e.opts.EnforceCapacity && !input.Emergency {
		if used, max := e.capacityLocked(); max > 0 && used >= max {
			e.mu.Unlock()
			return models.Token{}, ErrLocationFull
		}
	}

	tk := &models.Token{
		TokenID:       uuid.NewString(),
		LocationID:    e.location.LocationID,
		Contact:       input.Contact,
		Name:          input.Name,
		Channel:       channel,
		Paid:          input.Paid,
		PaymentMethod: input.PaymentMethod,
		Emergency:     input.Emergency,
		Priority:      input.Priority,
		CreatedAt:     now,
	}

	switch {
	case input.Emergency:
		tk.Number = 0
		tk.Status = models.StatusEmergency
		tk.Paid = true
		if tk.Name == "" {
			tk.Name = "EMERGENCY CASE"
		}
		if len(e.active) == 0 {
			e.idleSince = now
		}
		e.insertEmergencyLocked(tk)
	case input.Priority || channel == models.ChannelWalkIn:
		tk.Number = e.nextNumberLocked()
		tk.Status = models.StatusWaiting
		if tk.Name == "" {
			tk.Name = fmt.Sprintf("Patient %d", tk.Number)
		}
		if len(e.active) == 0 {
			e.idleSince = now
		}
		e.active = append(e.active, tk)
	default:
		tk.Number = e.nextNumberLocked()
		tk.Status = models.StatusPending
		if tk.Name == "" {
			tk.Name = fmt.Sprintf("Patient %d", tk.Number)
		}
		e.pending = append(e.pending, tk)
	}

	e.appendEventLocked(tk, "token.created")
	out := *tk
	e.mu.Unlock()

	e.notify("token.created", out)
	if out.Emergency {
		// Delay apology to everyone already in the hall.
		e.announce("Maazrat, ek emergency ki wajah se takheer hogi.")
	}
	if channel == models.ChannelWalkIn && !out.Emergency {
		e.record(out)
	}
	return out, nil
}

// TriggerEmergency registers a preemptive emergency case with the
// sentinel contact.
func (e *Engine) TriggerEmergency(ctx context.Context) (models.Token, error) {
	return e.Register(ctx, RegisterInput{
		Contact:   "0000000000",
		Name:      "EMERGENCY CASE",
		Emergency: true,
	})
}

// ApproveBooking moves a pending booking to the tail of the active queue.
func (e *Engine) ApproveBooking(ctx context.Context, tokenID string) (models.Token, error) {
	e.mu.Lock()
	idx := -1
	for i, tk := range e.pending {
		if tk.TokenID == tokenID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return models.Token{}, ErrTokenNotFound
	}
	tk := e.pending[idx]
	if !ValidTransition("approve", tk.Status) {
		e.mu.Unlock()
		return models.Token{}, ErrInvalidState
	}
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	tk.Status = models.StatusWaiting
	if len(e.active) == 0 {
		e.idleSince = e.now()
	}
	e.active = append(e.active, tk)
	e.appendEventLocked(tk, "token.approved")
	out := *tk
	e.mu.Unlock()

	e.notify("token.approved", out)
	return out, nil
}

// CallNext promotes the highest-priority eligible token to the session.
// A token already in session is forcibly completed first.
func (e *Engine) CallNext(ctx context.Context) (models.Token, error) {
	e.mu.Lock()
	next := e.selectNextLocked()
	if next == nil {
		e.mu.Unlock()
		return models.Token{}, ErrNoToken
	}

	var finished *models.Token
	if e.current != nil {
		done := e.finishLocked(e.current, models.StatusCompleted, "")
		finished = &done
	}

	now := e.now()
	next.Status = models.StatusInSession
	next.CalledAt = &now
	e.current = next
	e.doctorLate = false
	e.appendEventLocked(next, "token.called")
	moved := e.propagateTravelLocked()
	out := *next
	e.mu.Unlock()

	if finished != nil {
		e.notify("token.completed", *finished)
	}
	e.notify("token.called", out)
	e.announce(fmt.Sprintf("Token number %d, please enter the room.", out.Number))
	for _, m := range moved {
		e.notify("token.travel", m)
		e.announce(fmt.Sprintf("Token number %d, please leave for the clinic now.", m.Number))
	}
	return out, nil
}

// CompleteSession closes the current session and archives its token.
func (e *Engine) CompleteSession(ctx context.Context, notes string) (models.Token, error) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return models.Token{}, ErrNoSession
	}
	out := e.finishLocked(e.current, models.StatusCompleted, notes)
	e.mu.Unlock()

	e.notify("token.completed", out)
	return out, nil
}

// MarkSkipped archives a no-show. A token already in history is reported
// as not found and nothing changes.
func (e *Engine) MarkSkipped(ctx context.Context, tokenID string) (models.Token, error) {
	return e.terminate(tokenID, "skip", models.StatusSkipped)
}

// CancelToken archives a cancelled token.
func (e *Engine) CancelToken(ctx context.Context, tokenID string) (models.Token, error) {
	return e.terminate(tokenID, "cancel", models.StatusCancelled)
}

func (e *Engine) terminate(tokenID, action, status string) (models.Token, error) {
	e.mu.Lock()
	tk := e.findActiveLocked(tokenID)
	if tk == nil {
		e.mu.Unlock()
		return models.Token{}, ErrTokenNotFound
	}
	if !ValidTransition(action, tk.Status) {
		e.mu.Unlock()
		return models.Token{}, ErrInvalidState
	}
	out := e.finishLocked(tk, status, "")
	e.mu.Unlock()

	e.notify("token."+status, out)
	return out, nil
}

// MarkArrived records that the patient reached the clinic.
func (e *Engine) MarkArrived(ctx context.Context, tokenID string) (models.Token, error) {
	e.mu.Lock()
	tk := e.findActiveLocked(tokenID)
	if tk == nil {
		e.mu.Unlock()
		return models.Token{}, ErrTokenNotFound
	}
	if !ValidTransition("arrive", tk.Status) {
		e.mu.Unlock()
		return models.Token{}, ErrInvalidState
	}
	tk.Status = models.StatusArrived
	e.appendEventLocked(tk, "token.arrived")
	out := *tk
	e.mu.Unlock()

	e.notify("token.arrived", out)
	return out, nil
}

// SetPaid toggles the payment-settled flag on an active or pending token.
func (e *Engine) SetPaid(ctx context.Context, tokenID string, paid bool) (models.Token, error) {
	e.mu.Lock()
	tk := e.findActiveLocked(tokenID)
	if tk == nil {
		for _, p := range e.pending {
			if p.TokenID == tokenID {
				tk = p
				break
			}
		}
	}
	if tk == nil {
		e.mu.Unlock()
		return models.Token{}, ErrTokenNotFound
	}
	tk.Paid = paid
	e.appendEventLocked(tk, "token.paid")
	out := *tk
	e.mu.Unlock()

	e.notify("token.paid", out)
	return out, nil
}

type Snapshot struct {
	Location   models.Location `json:"location"`
	Active     []models.Token  `json:"active"`
	Pending    []models.Token  `json:"pending"`
	History    []models.Token  `json:"history"`
	Current    *models.Token   `json:"current,omitempty"`
	DoctorLate bool            `json:"doctor_late"`
}

// Snapshot copies the full queue state for the display layer.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Location:   e.location,
		Active:     make([]models.Token, 0, len(e.active)),
		Pending:    make([]models.Token, 0, len(e.pending)),
		History:    make([]models.Token, len(e.history)),
		DoctorLate: e.doctorLate,
	}
	for _, tk := range e.active {
		snap.Active = append(snap.Active, *tk)
	}
	for _, tk := range e.pending {
		snap.Pending = append(snap.Pending, *tk)
	}
	copy(snap.History, e.history)
	if e.current != nil {
		current := *e.current
		snap.Current = &current
	}
	return snap
}

type Position struct {
	TokenID           string `json:"token_id"`
	Number            int    `json:"number"`
	Status            string `json:"status"`
	Ahead             int    `json:"ahead"`
	EstimatedWaitMins int    `json:"estimated_wait_minutes"`
}

// Position reports how many patients stand before a token and a rough
// wait estimate based on the configured average consultation length.
// Pending bookings count the whole active queue plus the bookings queued
// ahead of them.
func (e *Engine) Position(tokenID string) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for idx, tk := range e.active {
		if tk.TokenID != tokenID {
			continue
		}
		ahead := 0
		for _, other := range e.active[:idx] {
			if other.Status != models.StatusInSession {
				ahead++
			}
		}
		return e.positionLocked(tk, ahead), nil
	}

	activeAhead := 0
	for _, tk := range e.active {
		if tk.Status != models.StatusInSession {
			activeAhead++
		}
	}
	for idx, tk := range e.pending {
		if tk.TokenID == tokenID {
			return e.positionLocked(tk, activeAhead+idx), nil
		}
	}
	return Position{}, ErrTokenNotFound
}

func (e *Engine) positionLocked(tk *models.Token, ahead int) Position {
	return Position{
		TokenID:           tk.TokenID,
		Number:            tk.Number,
		Status:            tk.Status,
		Ahead:             ahead,
		EstimatedWaitMins: ahead * int(e.opts.AvgConsult.Minutes()),
	}
}

// Capacity reports slot usage. full is only meaningful when the slot is
// capped (max > 0).
func (e *Engine) Capacity() (used, max int, full bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	used, max = e.capacityLocked()
	return used, max, max > 0 && used >= max
}

// CheckDoctorLate raises the doctor-late flag when the queue has waited
// longer than the grace period with no session. The clock starts when the
// active queue becomes non-empty; the flag clears the instant a token
// enters the session.
func (e *Engine) CheckDoctorLate(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil || len(e.active) == 0 {
		e.idleSince = now
		e.doctorLate = false
		return false
	}
	if now.Sub(e.idleSince) >= e.opts.DoctorLateGrace {
		e.doctorLate = true
	}
	return e.doctorLate
}

func (e *Engine) DoctorLate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doctorLate
}

// ListEvents returns a copy of a token's transition trail.
func (e *Engine) ListEvents(tokenID string) ([]TokenEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	trail, ok := e.events[tokenID]
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := make([]TokenEvent, len(trail))
	copy(out, trail)
	return out, nil
}

// --- internals, caller holds e.mu ---

func (e *Engine) nextNumberLocked() int {
	e.lastNumber++
	return e.lastNumber
}

func (e *Engine) capacityLocked() (used, max int) {
	return len(e.active), e.location.MaxOPD()
}

// insertEmergencyLocked keeps emergencies at the head of the queue in
// arrival order, ahead of every regular token.
func (e *Engine) insertEmergencyLocked(tk *models.Token) {
	idx := 0
	for idx < len(e.active) && e.active[idx].Status == models.StatusEmergency {
		idx++
	}
	e.active = append(e.active, nil)
	copy(e.active[idx+1:], e.active[idx:])
	e.active[idx] = tk
}

func (e *Engine) findActiveLocked(tokenID string) *models.Token {
	for _, tk := range e.active {
		if tk.TokenID == tokenID {
			return tk
		}
	}
	return nil
}

func (e *Engine) removeActiveLocked(tokenID string) {
	for i, tk := range e.active {
		if tk.TokenID == tokenID {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return
		}
	}
}

// selectNextLocked applies the call-next policy: emergencies first in
// arrival order, then the earliest-inserted waiting, time-to-move, or
// arrived token, optionally gated on payment.
func (e *Engine) selectNextLocked() *models.Token {
	for _, tk := range e.active {
		if tk.Status == models.StatusEmergency {
			return tk
		}
	}
	for _, tk := range e.active {
		switch tk.Status {
		case models.StatusWaiting, models.StatusTimeToMove, models.StatusArrived:
			if e.opts.RequirePayment && !tk.Paid {
				continue
			}
			return tk
		}
	}
	return nil
}

// finishLocked moves a token to a terminal status and archives it,
// most recent first. Clears the session reference when it held one.
func (e *Engine) finishLocked(tk *models.Token, status, notes string) models.Token {
	now := e.now()
	tk.Status = status
	tk.CompletedAt = &now
	if notes != "" {
		tk.Notes = notes
	}
	e.appendEventLocked(tk, "token."+status)
	e.removeActiveLocked(tk.TokenID)
	e.history = append([]models.Token{*tk}, e.history...)
	if e.current != nil && e.current.TokenID == tk.TokenID {
		e.current = nil
		e.idleSince = now
	}
	return *tk
}

// propagateTravelLocked recomputes the time-to-move window after a
// session change: waiting tokens numbered in (current, current+window]
// are told to start traveling.
func (e *Engine) propagateTravelLocked() []models.Token {
	if e.current == nil {
		return nil
	}
	low := e.current.Number
	high := low + e.opts.TravelWindow
	var moved []models.Token
	for _, tk := range e.active {
		if tk.Status != models.StatusWaiting {
			continue
		}
		if tk.Number > low && tk.Number <= high {
			tk.Status = models.StatusTimeToMove
			e.appendEventLocked(tk, "token.travel")
			moved = append(moved, *tk)
		}
	}
	return moved
}

// --- collaborators, called outside the lock ---

func (e *Engine) notify(eventType string, token models.Token) {
	if e.opts.Notify == nil {
		return
	}
	e.opts.Notify(Event{
		Type:       eventType,
		LocationID: e.location.LocationID,
		Token:      token,
		CreatedAt:  e.now(),
	})
}

func (e *Engine) announce(text string) {
	if e.opts.Announcer == nil {
		return
	}
	e.opts.Announcer.Enqueue(text)
}

func (e *Engine) record(token models.Token) {
	if e.opts.Recorder == nil {
		return
	}
	rec := audit.Record{
		Timestamp:     token.CreatedAt,
		Number:        token.Number,
		Name:          token.Name,
		Contact:       token.Contact,
		Status:        token.Status,
		PaymentMethod: token.PaymentMethod,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.opts.Recorder.Record(ctx, rec); err != nil {
			log.Printf("audit record error: %v", err)
		}
	}()
}
