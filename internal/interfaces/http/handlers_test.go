package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/application/service"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

type stubSubmission struct {
	submitFunc    func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	getTripFunc   func(ctx context.Context, id string) (*entity.Trip, error)
	listTripsFunc func(ctx context.Context, status string, limit, offset int) ([]*entity.Trip, error)
}

func (s *stubSubmission) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, req)
	}
	return &service.SubmitResult{Trip: sampleTrip("trip-1"), Message: "submitted"}, nil
}

func (s *stubSubmission) GetTrip(ctx context.Context, id string) (*entity.Trip, error) {
	if s.getTripFunc != nil {
		return s.getTripFunc(ctx, id)
	}
	return sampleTrip(id), nil
}

func (s *stubSubmission) ListTrips(ctx context.Context, status string, limit, offset int) ([]*entity.Trip, error) {
	if s.listTripsFunc != nil {
		return s.listTripsFunc(ctx, status, limit, offset)
	}
	return []*entity.Trip{sampleTrip("trip-1")}, nil
}

type stubDecision struct {
	decideFunc   func(ctx context.Context, rawToken string) (*service.DecideResult, error)
	overrideFunc func(ctx context.Context, tripID string, action entity.DecisionAction, reason, actor string) (*entity.Trip, error)
	cancelFunc   func(ctx context.Context, tripID, actor string) (*entity.Trip, error)
	admins       map[string]bool
}

func (s *stubDecision) DecideByToken(ctx context.Context, rawToken string) (*service.DecideResult, error) {
	if s.decideFunc != nil {
		return s.decideFunc(ctx, rawToken)
	}
	return &service.DecideResult{Outcome: service.OutcomeApproved, Trip: sampleTrip("trip-1")}, nil
}

func (s *stubDecision) AdminOverride(ctx context.Context, tripID string, action entity.DecisionAction, reason, actor string) (*entity.Trip, error) {
	if s.overrideFunc != nil {
		return s.overrideFunc(ctx, tripID, action, reason, actor)
	}
	return sampleTrip(tripID), nil
}

func (s *stubDecision) Cancel(ctx context.Context, tripID, actor string) (*entity.Trip, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, tripID, actor)
	}
	return sampleTrip(tripID), nil
}

func (s *stubDecision) IsAdmin(actor string) bool {
	return s.admins[strings.ToLower(actor)]
}

type stubOptimizer struct {
	proposeFunc  func(ctx context.Context, actor string) (*service.ProposeResult, error)
	getGroupFunc func(ctx context.Context, groupID string) (*entity.OptimizationGroup, error)
}

func (s *stubOptimizer) Propose(ctx context.Context, actor string) (*service.ProposeResult, error) {
	if s.proposeFunc != nil {
		return s.proposeFunc(ctx, actor)
	}
	return &service.ProposeResult{ProposalsCreated: 1, TripsAffected: 2, Message: "ok"}, nil
}

func (s *stubOptimizer) ApproveGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error) {
	return &entity.OptimizationGroup{ID: groupID, Status: entity.GroupApproved}, nil
}

func (s *stubOptimizer) RejectGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error) {
	return &entity.OptimizationGroup{ID: groupID, Status: entity.GroupRejected}, nil
}

func (s *stubOptimizer) GetGroup(ctx context.Context, groupID string) (*entity.OptimizationGroup, error) {
	if s.getGroupFunc != nil {
		return s.getGroupFunc(ctx, groupID)
	}
	return &entity.OptimizationGroup{ID: groupID, Status: entity.GroupProposed}, nil
}

type stubAudit struct {
	queryFunc func(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error)
}

func (s *stubAudit) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	if s.queryFunc != nil {
		return s.queryFunc(ctx, filter)
	}
	return nil, nil
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

func sampleTrip(id string) *entity.Trip {
	now := time.Now().UTC()
	return &entity.Trip{
		ID:             id,
		RequesterID:    "emp-1",
		RequesterEmail: "binh@corp.test",
		ManagerEmail:   "mgr@corp.test",
		Departure:      "Hanoi",
		Destination:    "Haiphong",
		DepartureTime:  now.Add(72 * time.Hour),
		ReturnTime:     now.Add(80 * time.Hour),
		VehicleType:    entity.VehicleSmallCar,
		PassengerCount: 1,
		Status:         workflow.StatePendingApproval,
		ApprovalStatus: entity.ApprovalPending,
	}
}

type serverOverrides struct {
	submission service.SubmissionService
	decision   service.DecisionService
	optimizer  service.OptimizerService
	audit      service.AuditService
}

func newTestServer(o serverOverrides) *Server {
	if o.submission == nil {
		o.submission = &stubSubmission{}
	}
	if o.decision == nil {
		o.decision = &stubDecision{admins: map[string]bool{"admin@corp.test": true}}
	}
	if o.optimizer == nil {
		o.optimizer = &stubOptimizer{}
	}
	if o.audit == nil {
		o.audit = &stubAudit{}
	}
	return NewServer(DefaultServerConfig(), o.submission, o.decision, o.optimizer, o.audit, noopLogger{})
}

func perform(t *testing.T, srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	rec := perform(t, newTestServer(serverOverrides{}), http.MethodGet, "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); !resp.Success {
		t.Error("expected success response")
	}
}

func TestSubmitTrip(t *testing.T) {
	validBody := `{
		"requester_id": "emp-1",
		"requester_name": "Binh Tran",
		"requester_email": "binh@corp.test",
		"manager_email": "mgr@corp.test",
		"departure": "Hanoi",
		"destination": "Haiphong",
		"departure_time": "2026-09-10T08:00:00Z",
		"return_time": "2026-09-10T18:00:00Z",
		"distance_km": 120,
		"vehicle_type": "SMALL_CAR",
		"passenger_count": 1
	}`

	t.Run("created", func(t *testing.T) {
		submission := &stubSubmission{}
		submission.submitFunc = func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			if req.Requester.ID != "emp-1" {
				t.Errorf("requester not threaded through: %q", req.Requester.ID)
			}
			if !req.DepartureTime.Equal(time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)) {
				t.Errorf("departure time parsed as %v", req.DepartureTime)
			}
			return &service.SubmitResult{Trip: sampleTrip("trip-1"), Message: "submitted"}, nil
		}

		rec := perform(t, newTestServer(serverOverrides{submission: submission}),
			http.MethodPost, "/api/v1/trips", validBody, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		rec := perform(t, newTestServer(serverOverrides{}),
			http.MethodPost, "/api/v1/trips", `{"requester_id": "emp-1"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("bad departure time format", func(t *testing.T) {
		body := strings.Replace(validBody, "2026-09-10T08:00:00Z", "tomorrow", 1)
		rec := perform(t, newTestServer(serverOverrides{}), http.MethodPost, "/api/v1/trips", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("validation error from service", func(t *testing.T) {
		submission := &stubSubmission{
			submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
				return nil, &service.ValidationError{Field: "return_time", Reason: "must be after departure_time"}
			},
		}
		rec := perform(t, newTestServer(serverOverrides{submission: submission}),
			http.MethodPost, "/api/v1/trips", validBody, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if resp := decodeResponse(t, rec); !strings.Contains(resp.Error, "return_time") {
			t.Errorf("error should name the field, got %q", resp.Error)
		}
	})

	t.Run("duplicate conflict", func(t *testing.T) {
		submission := &stubSubmission{
			submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
				return nil, &service.DuplicateError{ExistingTripID: "trip-9"}
			},
		}
		rec := perform(t, newTestServer(serverOverrides{submission: submission}),
			http.MethodPost, "/api/v1/trips", validBody, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestGetTripNotFound(t *testing.T) {
	submission := &stubSubmission{
		getTripFunc: func(ctx context.Context, id string) (*entity.Trip, error) {
			return nil, service.ErrNotFound
		},
	}
	rec := perform(t, newTestServer(serverOverrides{submission: submission}),
		http.MethodGet, "/api/v1/trips/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelTripRequiresActorHeader(t *testing.T) {
	srv := newTestServer(serverOverrides{})

	rec := perform(t, srv, http.MethodPost, "/api/v1/trips/trip-1/cancel", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without actor header, got %d", rec.Code)
	}

	rec = perform(t, srv, http.MethodPost, "/api/v1/trips/trip-1/cancel", "",
		map[string]string{actorHeader: "binh@corp.test"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with actor header, got %d", rec.Code)
	}
}

func TestCancelTripStateConflict(t *testing.T) {
	decision := &stubDecision{
		cancelFunc: func(ctx context.Context, tripID, actor string) (*entity.Trip, error) {
			return nil, service.ErrStateConflict
		},
	}
	rec := perform(t, newTestServer(serverOverrides{decision: decision}),
		http.MethodPost, "/api/v1/trips/trip-1/cancel", "",
		map[string]string{actorHeader: "binh@corp.test"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestDecideByToken(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		outcome    service.DecideOutcome
		decideErr  error
		wantStatus int
		wantText   string
	}{
		{"approved", "/approval/decide?token=tok", service.OutcomeApproved, nil, http.StatusOK, "approved"},
		{"rejected", "/approval/decide?token=tok", service.OutcomeRejected, nil, http.StatusOK, "rejected"},
		{"already decided", "/approval/decide?token=tok", service.OutcomeAlreadyProcessed, nil, http.StatusConflict, "already"},
		{"expired", "/approval/decide?token=tok", service.OutcomeExpired, nil, http.StatusGone, "expired"},
		{"invalid token", "/approval/decide?token=tok", service.OutcomeInvalid, nil, http.StatusBadRequest, "invalid"},
		{"missing token", "/approval/decide", service.OutcomeInvalid, nil, http.StatusBadRequest, "malformed"},
		{"service failure", "/approval/decide?token=tok", service.OutcomeInvalid, errors.New("db down"), http.StatusInternalServerError, "try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := &stubDecision{
				decideFunc: func(ctx context.Context, rawToken string) (*service.DecideResult, error) {
					if tt.decideErr != nil {
						return nil, tt.decideErr
					}
					return &service.DecideResult{Outcome: tt.outcome, Trip: sampleTrip("trip-1")}, nil
				},
			}
			rec := perform(t, newTestServer(serverOverrides{decision: decision}),
				http.MethodGet, tt.target, "", nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("expected HTML page, got %q", ct)
			}
			if !strings.Contains(strings.ToLower(rec.Body.String()), tt.wantText) {
				t.Errorf("page should mention %q:\n%s", tt.wantText, rec.Body.String())
			}
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(serverOverrides{})
	overrideBody := `{"action": "APPROVE", "reason": "manager unavailable"}`

	t.Run("no header", func(t *testing.T) {
		rec := perform(t, srv, http.MethodPost, "/api/v1/admin/trips/trip-1/override", overrideBody, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("non-admin actor", func(t *testing.T) {
		rec := perform(t, srv, http.MethodPost, "/api/v1/admin/trips/trip-1/override", overrideBody,
			map[string]string{actorHeader: "binh@corp.test"})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("admin passes", func(t *testing.T) {
		rec := perform(t, srv, http.MethodPost, "/api/v1/admin/trips/trip-1/override", overrideBody,
			map[string]string{actorHeader: "admin@corp.test"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestAdminOverrideValidation(t *testing.T) {
	srv := newTestServer(serverOverrides{})
	admin := map[string]string{actorHeader: "admin@corp.test"}

	t.Run("unknown action", func(t *testing.T) {
		rec := perform(t, srv, http.MethodPost, "/api/v1/admin/trips/trip-1/override",
			`{"action": "ESCALATE", "reason": "x"}`, admin)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing reason", func(t *testing.T) {
		rec := perform(t, srv, http.MethodPost, "/api/v1/admin/trips/trip-1/override",
			`{"action": "APPROVE"}`, admin)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRunOptimizer(t *testing.T) {
	rec := perform(t, newTestServer(serverOverrides{}), http.MethodPost, "/api/v1/admin/optimize", "",
		map[string]string{actorHeader: "admin@corp.test"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); !resp.Success {
		t.Error("expected success response")
	}
}

func TestGetGroupIsPublic(t *testing.T) {
	rec := perform(t, newTestServer(serverOverrides{}), http.MethodGet, "/api/v1/groups/group-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without admin header, got %d", rec.Code)
	}
}

func TestQueryAuditThreadsFilter(t *testing.T) {
	var captured port.AuditFilter
	audit := &stubAudit{
		queryFunc: func(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
			captured = filter
			return []*entity.AuditEntry{}, nil
		},
	}

	rec := perform(t, newTestServer(serverOverrides{audit: audit}),
		http.MethodGet, "/api/v1/audit?trip_id=trip-1&actor=mgr@corp.test&action=MANAGER_APPROVE&limit=7", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.TripID != "trip-1" || captured.Actor != "mgr@corp.test" {
		t.Errorf("filter not threaded through: %+v", captured)
	}
	if captured.Action != entity.AuditManagerApprove {
		t.Errorf("expected action filter MANAGER_APPROVE, got %q", captured.Action)
	}
	if captured.Limit != 7 {
		t.Errorf("expected limit 7, got %d", captured.Limit)
	}
}
