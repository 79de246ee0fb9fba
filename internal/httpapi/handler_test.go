package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nowait/queue-service/internal/cache"
	"nowait/queue-service/internal/engine"
	"nowait/queue-service/internal/models"
)

type fakeService struct {
	registerFn    func(ctx context.Context, locationID string, input engine.RegisterInput) (models.Token, error)
	emergencyFn   func(ctx context.Context, locationID string) (models.Token, error)
	approveFn     func(ctx context.Context, locationID, tokenID string) (models.Token, error)
	callNextFn    func(ctx context.Context, locationID string) (models.Token, error)
	completeFn    func(ctx context.Context, locationID, notes string) (models.Token, error)
	skipFn        func(ctx context.Context, locationID, tokenID string) (models.Token, error)
	cancelFn      func(ctx context.Context, locationID, tokenID string) (models.Token, error)
	arriveFn      func(ctx context.Context, locationID, tokenID string) (models.Token, error)
	payFn         func(ctx context.Context, locationID, tokenID string, paid bool) (models.Token, error)
	snapshotFn    func(locationID string) (engine.Snapshot, error)
	positionFn    func(locationID, tokenID string) (engine.Position, error)
	capacityFn    func(locationID string) (int, int, bool, error)
	eventsFn      func(locationID, tokenID string) ([]engine.TokenEvent, error)
	addLocationFn func(location models.Location) error
	locationsFn   func() []models.Location
}

func (f fakeService) Register(ctx context.Context, locationID string, input engine.RegisterInput) (models.Token, error) {
	if f.registerFn == nil {
		return models.Token{}, nil
	}
	return f.registerFn(ctx, locationID, input)
}

func (f fakeService) TriggerEmergency(ctx context.Context, locationID string) (models.Token, error) {
	if f.emergencyFn == nil {
		return models.Token{}, nil
	}
	return f.emergencyFn(ctx, locationID)
}

func (f fakeService) ApproveBooking(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	if f.approveFn == nil {
		return models.Token{}, nil
	}
	return f.approveFn(ctx, locationID, tokenID)
}

func (f fakeService) CallNext(ctx context.Context, locationID string) (models.Token, error) {
	if f.callNextFn == nil {
		return models.Token{}, nil
	}
	return f.callNextFn(ctx, locationID)
}

func (f fakeService) CompleteSession(ctx context.Context, locationID, notes string) (models.Token, error) {
	if f.completeFn == nil {
		return models.Token{}, nil
	}
	return f.completeFn(ctx, locationID, notes)
}

func (f fakeService) MarkSkipped(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	if f.skipFn == nil {
		return models.Token{}, nil
	}
	return f.skipFn(ctx, locationID, tokenID)
}

func (f fakeService) CancelToken(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	if f.cancelFn == nil {
		return models.Token{}, nil
	}
	return f.cancelFn(ctx, locationID, tokenID)
}

func (f fakeService) MarkArrived(ctx context.Context, locationID, tokenID string) (models.Token, error) {
	if f.arriveFn == nil {
		return models.Token{}, nil
	}
	return f.arriveFn(ctx, locationID, tokenID)
}

func (f fakeService) SetPaid(ctx context.Context, locationID, tokenID string, paid bool) (models.Token, error) {
	if f.payFn == nil {
		return models.Token{}, nil
	}
	return f.payFn(ctx, locationID, tokenID, paid)
}

func (f fakeService) Snapshot(locationID string) (engine.Snapshot, error) {
	if f.snapshotFn == nil {
		return engine.Snapshot{}, nil
	}
	return f.snapshotFn(locationID)
}

func (f fakeService) Position(locationID, tokenID string) (engine.Position, error) {
	if f.positionFn == nil {
		return engine.Position{}, nil
	}
	return f.positionFn(locationID, tokenID)
}

func (f fakeService) Capacity(locationID string) (int, int, bool, error) {
	if f.capacityFn == nil {
		return 0, 0, false, nil
	}
	return f.capacityFn(locationID)
}

func (f fakeService) ListEvents(locationID, tokenID string) ([]engine.TokenEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(locationID, tokenID)
}

func (f fakeService) AddLocation(location models.Location) error {
	if f.addLocationFn == nil {
		return nil
	}
	return f.addLocationFn(location)
}

func (f fakeService) Locations() []models.Location {
	if f.locationsFn == nil {
		return nil
	}
	return f.locationsFn()
}

const testTokenID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"

func TestRegisterTokenSuccess(t *testing.T) {
	svc := fakeService{
		registerFn: func(ctx context.Context, locationID string, input engine.RegisterInput) (models.Token, error) {
			if locationID != "main" || input.Contact != "03001234567" {
				t.Fatalf("unexpected register input: %s %+v", locationID, input)
			}
			return models.Token{TokenID: testTokenID, Number: 1, Status: models.StatusWaiting}, nil
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{
		"location_id": "main",
		"contact":     "03001234567",
		"channel":     "walkin",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var token models.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if token.TokenID != testTokenID || token.Status != models.StatusWaiting {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestRegisterTokenRejectsBadPhone(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]string{
		"location_id": "main",
		"contact":     "not-a-phone",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRegisterTokenRejectsUnknownChannel(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]string{
		"location_id": "main",
		"contact":     "03001234567",
		"channel":     "carrier-pigeon",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestEmergencySkipsContactValidation(t *testing.T) {
	svc := fakeService{
		registerFn: func(ctx context.Context, locationID string, input engine.RegisterInput) (models.Token, error) {
			return models.Token{TokenID: testTokenID, Status: models.StatusEmergency}, nil
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]interface{}{
		"location_id": "main",
		"emergency":   true,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCallNextEmptyQueueConflict(t *testing.T) {
	svc := fakeService{
		callNextFn: func(ctx context.Context, locationID string) (models.Token, error) {
			return models.Token{}, engine.ErrNoToken
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"location_id": "main"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "queue_empty" {
		t.Fatalf("expected queue_empty, got %s", errResp.Error.Code)
	}
}

func TestCompleteNoSessionConflict(t *testing.T) {
	svc := fakeService{
		completeFn: func(ctx context.Context, locationID, notes string) (models.Token, error) {
			return models.Token{}, engine.ErrNoSession
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"location_id": "main"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/actions/complete", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestSkipUnknownLocation(t *testing.T) {
	svc := fakeService{
		skipFn: func(ctx context.Context, locationID, tokenID string) (models.Token, error) {
			return models.Token{}, engine.ErrLocationNotFound
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"location_id": "nowhere"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/"+testTokenID+"/actions/skip", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestTokenActionRejectsBadUUID(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]string{"location_id": "main"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/not-a-uuid/actions/skip", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestPayAction(t *testing.T) {
	var gotPaid bool
	svc := fakeService{
		payFn: func(ctx context.Context, locationID, tokenID string, paid bool) (models.Token, error) {
			gotPaid = paid
			return models.Token{TokenID: tokenID, Paid: paid}, nil
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]interface{}{"location_id": "main", "paid": true})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/"+testTokenID+"/actions/pay", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !gotPaid {
		t.Fatalf("expected paid flag forwarded")
	}
}

func TestTokenEvents(t *testing.T) {
	svc := fakeService{
		eventsFn: func(locationID, tokenID string) ([]engine.TokenEvent, error) {
			return []engine.TokenEvent{{TokenID: tokenID, Seq: 1, Type: "token.created"}}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/"+testTokenID+"/events?location_id=main", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var events []engine.TokenEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 1 || events[0].Seq != 1 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestQueueSnapshotMissingLocation(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestQueueSnapshotUsesCache(t *testing.T) {
	calls := 0
	svc := fakeService{
		snapshotFn: func(locationID string) (engine.Snapshot, error) {
			calls++
			return engine.Snapshot{Location: models.Location{LocationID: locationID}}, nil
		},
	}
	h := NewHandler(svc, Options{Cache: cache.NewMemoryCache()})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/queue?location_id=main", nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, resp.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("expected one snapshot behind the cache, got %d", calls)
	}
}

func TestMutationInvalidatesSnapshotCache(t *testing.T) {
	snapshotCache := cache.NewMemoryCache()
	svc := fakeService{
		callNextFn: func(ctx context.Context, locationID string) (models.Token, error) {
			return models.Token{TokenID: testTokenID}, nil
		},
	}
	h := NewHandler(svc, Options{Cache: snapshotCache})

	if err := snapshotCache.Set(context.Background(), cache.SnapshotKey("main"), []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"location_id": "main"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if _, err := snapshotCache.Get(context.Background(), cache.SnapshotKey("main")); err == nil {
		t.Fatalf("expected cache entry invalidated after call-next")
	}
}

func TestPositionSuccess(t *testing.T) {
	svc := fakeService{
		positionFn: func(locationID, tokenID string) (engine.Position, error) {
			return engine.Position{TokenID: tokenID, Number: 4, Ahead: 2, EstimatedWaitMins: 30}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue/position?location_id=main&token_id="+testTokenID, nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var pos engine.Position
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pos.Ahead != 2 || pos.EstimatedWaitMins != 30 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestCapacityFull(t *testing.T) {
	svc := fakeService{
		capacityFn: func(locationID string) (int, int, bool, error) {
			return 25, 25, true, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue/capacity?location_id=main", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var got capacityResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Full || got.Used != 25 {
		t.Fatalf("unexpected capacity: %+v", got)
	}
}

func TestAddLocationDuplicateConflict(t *testing.T) {
	svc := fakeService{
		addLocationFn: func(location models.Location) error {
			return engine.ErrLocationExists
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(models.Location{LocationID: "main", Name: "Main OPD"})
	req := httptest.NewRequest(http.MethodPost, "/api/locations", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}
