package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesops_backend/internal/distribution/domain"
	"salesops_backend/internal/distribution/service"
	"salesops_backend/internal/distribution/transport"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/events"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"
)

// stubRepo serves a single-unit, single-vendor queue; only the methods the
// assign path touches are meaningful.
type stubRepo struct {
	unit  domain.Unit
	queue domain.UnitQueue
	logs  []domain.LogEntry
}

func newStubRepo() *stubRepo {
	unitID := uuid.New()
	return &stubRepo{
		unit: domain.Unit{ID: unitID, Name: "Unidade Centro", Active: true},
		queue: domain.UnitQueue{
			UnitID: unitID,
			Active: true,
			Entries: []domain.QueueEntry{
				{ID: uuid.New(), VendorID: uuid.New(), DisplayName: "v1", Sequence: 1},
			},
		},
	}
}

func (s *stubRepo) GetUnit(_ context.Context, unitID uuid.UUID) (domain.Unit, error) {
	if unitID != s.unit.ID {
		return domain.Unit{}, apperr.NotFound("unit not found")
	}
	return s.unit, nil
}

func (s *stubRepo) GetQueue(_ context.Context, _ uuid.UUID) (domain.UnitQueue, error) {
	return s.queue, nil
}

func (s *stubRepo) ReplaceEntries(_ context.Context, _ uuid.UUID, entries []domain.QueueEntry) ([]domain.QueueEntry, error) {
	s.queue.Entries = domain.Renumber(entries)
	return s.queue.Entries, nil
}

func (s *stubRepo) AddVendor(_ context.Context, _, _ uuid.UUID) (domain.QueueEntry, error) {
	return domain.QueueEntry{}, nil
}

func (s *stubRepo) RemoveEntry(_ context.Context, _, _ uuid.UUID) error { return nil }

func (s *stubRepo) RemoveVendorEntries(_ context.Context, _, _ uuid.UUID) error { return nil }

func (s *stubRepo) RecordAbsence(_ context.Context, _, _ uuid.UUID, _ time.Time) error { return nil }

func (s *stubRepo) EligibleVendorIDs(_ context.Context, _ uuid.UUID, _ time.Time) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubRepo) AppendLog(_ context.Context, entry domain.LogEntry) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *stubRepo) ListLogs(_ context.Context, _ uuid.UUID, _ int, _ *time.Time) ([]domain.LogEntry, error) {
	return s.logs, nil
}

func (s *stubRepo) LastDistribution(_ context.Context, _ uuid.UUID) (*domain.LogEntry, error) {
	return nil, nil
}

func (s *stubRepo) ClearLogs(_ context.Context, _ uuid.UUID) (int64, error) { return 0, nil }

func newTestRouter(repo *stubRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.New("test")
	svc := service.New(repo, events.NewInMemoryBus(log), log)
	h := New(svc, validator.New())

	r := gin.New()
	r.POST("/distribution/assign", h.Assign)
	return r
}

func doAssign(t *testing.T, r *gin.Engine, target, body string) (*httptest.ResponseRecorder, transport.AssignmentResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(http.MethodPost, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp transport.AssignmentResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return w, resp
}

func TestAssign_JSONBodyCanonicalKeys(t *testing.T) {
	repo := newStubRepo()
	r := newTestRouter(repo)

	body := `{"unit":"` + repo.unit.ID.String() + `","leadId":"555"}`
	w, resp := doAssign(t, r, "/distribution/assign", body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.LeadID != "555" {
		t.Fatalf("expected successful assignment of lead 555, got %+v", resp)
	}
	if resp.AssignedVendor.Name != "v1" {
		t.Fatalf("expected v1 assigned, got %s", resp.AssignedVendor.Name)
	}
}

func TestAssign_LegacyQueryKeys(t *testing.T) {
	repo := newStubRepo()
	r := newTestRouter(repo)

	target := "/distribution/assign?unidade=" + repo.unit.ID.String() + "&idlead=777"
	w, resp := doAssign(t, r, target, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 via legacy query keys, got %d: %s", w.Code, w.Body.String())
	}
	if resp.LeadID != "777" {
		t.Fatalf("expected lead 777, got %q", resp.LeadID)
	}
}

func TestAssign_BodyWinsOverQuery(t *testing.T) {
	repo := newStubRepo()
	r := newTestRouter(repo)

	body := `{"unit":"` + repo.unit.ID.String() + `","leadId":"body-wins"}`
	target := "/distribution/assign?unit=" + uuid.New().String() + "&leadId=query-loses"
	w, resp := doAssign(t, r, target, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp.LeadID != "body-wins" {
		t.Fatalf("expected body value, got %q", resp.LeadID)
	}
}

func TestAssign_MissingUnit(t *testing.T) {
	r := newTestRouter(newStubRepo())

	w, _ := doAssign(t, r, "/distribution/assign?idlead=1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without unit, got %d", w.Code)
	}
}

func TestAssign_InvalidUnitID(t *testing.T) {
	r := newTestRouter(newStubRepo())

	w, _ := doAssign(t, r, "/distribution/assign?unit=not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed unit id, got %d", w.Code)
	}
}

func TestAssign_UnknownUnit(t *testing.T) {
	r := newTestRouter(newStubRepo())

	w, _ := doAssign(t, r, "/distribution/assign?unit="+uuid.New().String(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown unit, got %d", w.Code)
	}
}
