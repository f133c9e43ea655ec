package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// -- Mock Stores --

type mockStore struct {
	patients map[string]*Patient
	nextID   int64
	findErr  error
	upserted []*Patient
}

func newMockStore() *mockStore {
	return &mockStore{patients: make(map[string]*Patient), nextID: 1}
}

func (m *mockStore) FindByKey(_ context.Context, sitePatientID, site string) (*Patient, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.patients[site+"/"+sitePatientID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockStore) Create(_ context.Context, p *Patient) error {
	p.ID = m.nextID
	m.nextID++
	m.patients[p.Site+"/"+p.SitePatientID] = p
	return nil
}

func (m *mockStore) Upsert(_ context.Context, p *Patient) error {
	key := p.Site + "/" + p.SitePatientID
	for k, have := range m.patients {
		if have.ID == p.ID && k != key {
			return ErrIDConflict
		}
	}
	m.upserted = append(m.upserted, p)
	m.patients[key] = p
	return nil
}

func TestFindOrCreate_Existing(t *testing.T) {
	mirror := newMockStore()
	mirror.Create(context.Background(), &Patient{SitePatientID: "123", Site: "UW"})
	svc := NewService(mirror, zerolog.Nop())

	p, err := svc.FindOrCreate(context.Background(), " 123 ", "UW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("expected patient 1, got %d", p.ID)
	}
}

func TestFindOrCreate_MissingNotWritable(t *testing.T) {
	mirror := newMockStore()
	svc := NewService(mirror, zerolog.Nop())

	_, err := svc.FindOrCreate(context.Background(), "999", "UW")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(mirror.patients) != 0 {
		t.Error("no patient should have been created")
	}
}

func TestFindOrCreate_MissingWritable(t *testing.T) {
	mirror := newMockStore()
	svc := NewService(mirror, zerolog.Nop())
	svc.SetWritable(true)

	p, err := svc.FindOrCreate(context.Background(), "999", "UAB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == 0 || p.Site != "UAB" {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestFindOrCreate_BlankKey(t *testing.T) {
	svc := NewService(newMockStore(), zerolog.Nop())
	if _, err := svc.FindOrCreate(context.Background(), "", "UW"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFindOrCreate_RegistryMirrors(t *testing.T) {
	mirror := newMockStore()
	registry := newMockStore()
	registry.nextID = 500
	svc := NewService(mirror, zerolog.Nop())
	svc.SetRegistry(registry)
	svc.SetWritable(true)

	p, err := svc.FindOrCreate(context.Background(), "42", "JH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 500 {
		t.Errorf("expected registry id 500, got %d", p.ID)
	}
	if len(mirror.upserted) != 1 || mirror.upserted[0].ID != 500 {
		t.Errorf("expected registry patient mirrored, got %v", mirror.upserted)
	}
}

func TestFindOrCreate_RegistryUnreachable(t *testing.T) {
	registry := newMockStore()
	registry.findErr = errors.New("dial tcp: connection refused")
	svc := NewService(newMockStore(), zerolog.Nop())
	svc.SetRegistry(registry)

	_, err := svc.FindOrCreate(context.Background(), "42", "JH")
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestFindOrCreate_RegistryFoldsLocalKey(t *testing.T) {
	mirror := newMockStore()
	mirror.Create(context.Background(), &Patient{SitePatientID: "42", Site: "JH"})
	registry := newMockStore()
	registry.nextID = 500
	registry.Create(context.Background(), &Patient{SitePatientID: "42", Site: "JH"})
	svc := NewService(mirror, zerolog.Nop())
	svc.SetRegistry(registry)

	p, err := svc.FindOrCreate(context.Background(), "42", "JH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mirror.patients["JH/42"]; got.ID != 500 || p.ID != 500 {
		t.Errorf("expected the mirror key to move to registry id 500, got %d", got.ID)
	}
}

func TestFindOrCreate_RegistryIDHeldByOtherKey(t *testing.T) {
	mirror := newMockStore()
	mirror.nextID = 500
	mirror.Create(context.Background(), &Patient{SitePatientID: "7", Site: "UW"})
	registry := newMockStore()
	registry.nextID = 500
	registry.Create(context.Background(), &Patient{SitePatientID: "42", Site: "JH"})
	svc := NewService(mirror, zerolog.Nop())
	svc.SetRegistry(registry)

	_, err := svc.FindOrCreate(context.Background(), "42", "JH")
	if apperr.KindOf(err) != apperr.KindUnavailable || !errors.Is(err, ErrIDConflict) {
		t.Fatalf("expected an unavailable id conflict, got %v", err)
	}
	if got := mirror.patients["UW/7"]; got.ID != 500 || got.SitePatientID != "7" {
		t.Errorf("expected the other patient untouched, got %+v", got)
	}
	if _, ok := mirror.patients["JH/42"]; ok {
		t.Error("expected no mirror row for the conflicting key")
	}
}
