package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
)

// In-memory repository fakes. They mirror the persistence contracts
// closely enough for service tests: membership edges keep insertion
// order, type attachment is a union, GetOrCreate is idempotent.

type fakeFederationRepo struct {
	mu       sync.Mutex
	feds     map[string]*entities.Federation
	updates  int
	docState int
}

func newFakeFederationRepo() *fakeFederationRepo {
	return &fakeFederationRepo{feds: make(map[string]*entities.Federation)}
}

func (r *fakeFederationRepo) Create(ctx context.Context, fed *entities.Federation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.feds {
		if f.Slug == fed.Slug {
			return repositories.ErrDuplicateFederation
		}
	}
	cp := *fed
	r.feds[fed.ID] = &cp
	return nil
}

func (r *fakeFederationRepo) GetByID(ctx context.Context, id string) (*entities.Federation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fed, ok := r.feds[id]
	if !ok {
		return nil, repositories.ErrFederationNotFound
	}
	cp := *fed
	return &cp, nil
}

func (r *fakeFederationRepo) GetBySlug(ctx context.Context, slug string) (*entities.Federation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fed := range r.feds {
		if fed.Slug == slug {
			cp := *fed
			return &cp, nil
		}
	}
	return nil, repositories.ErrFederationNotFound
}

func (r *fakeFederationRepo) Update(ctx context.Context, fed *entities.Federation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feds[fed.ID]; !ok {
		return repositories.ErrFederationNotFound
	}
	cp := *fed
	r.feds[fed.ID] = &cp
	r.updates++
	return nil
}

func (r *fakeFederationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feds[id]; !ok {
		return repositories.ErrFederationNotFound
	}
	delete(r.feds, id)
	return nil
}

func (r *fakeFederationRepo) List(ctx context.Context) ([]*entities.Federation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Federation, 0, len(r.feds))
	for _, fed := range r.feds {
		cp := *fed
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeFederationRepo) UpdateDocumentState(ctx context.Context, id, fingerprint, fileID string, metadataUpdate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fed, ok := r.feds[id]
	if !ok {
		return repositories.ErrFederationNotFound
	}
	fed.Fingerprint = fingerprint
	fed.FileID = fileID
	fed.MetadataUpdate = &metadataUpdate
	r.docState++
	return nil
}

type fakeEntityRepo struct {
	mu          sync.Mutex
	byID        map[string]*entities.Entity
	byEntityID  map[string]string   // entityID URI -> row ID
	memberships map[string][]string // row ID -> federation IDs, insertion order
	types       map[string][]string // row ID -> type IDs
	creates     int
	updates     int
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{
		byID:        make(map[string]*entities.Entity),
		byEntityID:  make(map[string]string),
		memberships: make(map[string][]string),
		types:       make(map[string][]string),
	}
}

func (r *fakeEntityRepo) Create(ctx context.Context, entity *entities.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEntityID[entity.EntityID]; ok {
		return fmt.Errorf("duplicate entityID %s", entity.EntityID)
	}
	cp := copyEntity(entity)
	r.byID[entity.ID] = cp
	r.byEntityID[entity.EntityID] = entity.ID
	r.creates++
	return nil
}

func (r *fakeEntityRepo) GetByEntityID(ctx context.Context, entityID string) (*entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEntityID[entityID]
	if !ok {
		return nil, repositories.ErrEntityNotFound
	}
	return copyEntity(r.byID[id]), nil
}

func (r *fakeEntityRepo) GetByEntityIDs(ctx context.Context, entityIDs []string) ([]*entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Entity
	for _, eid := range entityIDs {
		if id, ok := r.byEntityID[eid]; ok {
			out = append(out, copyEntity(r.byID[id]))
		}
	}
	return out, nil
}

func (r *fakeEntityRepo) Update(ctx context.Context, entity *entities.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[entity.ID]; !ok {
		return repositories.ErrEntityNotFound
	}
	r.byID[entity.ID] = copyEntity(entity)
	r.updates++
	return nil
}

func (r *fakeEntityRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.byID[id]
	if !ok {
		return repositories.ErrEntityNotFound
	}
	delete(r.byEntityID, entity.EntityID)
	delete(r.byID, id)
	delete(r.memberships, id)
	delete(r.types, id)
	return nil
}

func (r *fakeEntityRepo) ListByFederation(ctx context.Context, federationID string) ([]*entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Entity
	for id, feds := range r.memberships {
		for _, fid := range feds {
			if fid == federationID {
				out = append(out, copyEntity(r.byID[id]))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (r *fakeEntityRepo) AddFederation(ctx context.Context, id, federationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fid := range r.memberships[id] {
		if fid == federationID {
			return nil
		}
	}
	r.memberships[id] = append(r.memberships[id], federationID)
	return nil
}

func (r *fakeEntityRepo) RemoveFederation(ctx context.Context, id, federationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	feds := r.memberships[id]
	for i, fid := range feds {
		if fid == federationID {
			r.memberships[id] = append(feds[:i], feds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeEntityRepo) FederationIDs(ctx context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.memberships[id]...), nil
}

func (r *fakeEntityRepo) AttachTypes(ctx context.Context, id string, typeIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repositories.ErrEntityNotFound
	}
next:
	for _, tid := range typeIDs {
		for _, have := range r.types[id] {
			if have == tid {
				continue next
			}
		}
		r.types[id] = append(r.types[id], tid)
	}
	return nil
}

func (r *fakeEntityRepo) MostFederated(ctx context.Context, limit int) ([]*entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := len(r.memberships[ids[i]]), len(r.memberships[ids[j]])
		if ni != nj {
			return ni > nj
		}
		return r.byID[ids[i]].EntityID < r.byID[ids[j]].EntityID
	})
	if limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]*entities.Entity, 0, len(ids))
	for _, id := range ids {
		e := copyEntity(r.byID[id])
		e.Federations = append([]string(nil), r.memberships[id]...)
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeEntityRepo) ListOrphans(ctx context.Context) ([]*entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Entity
	for id, entity := range r.byID {
		if len(r.memberships[id]) == 0 {
			out = append(out, copyEntity(entity))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func copyEntity(e *entities.Entity) *entities.Entity {
	cp := *e
	if e.Name != nil {
		cp.Name = make(map[string]string, len(e.Name))
		for k, v := range e.Name {
			cp.Name[k] = v
		}
	}
	cp.Protocols = append([]string(nil), e.Protocols...)
	cp.Scopes = append([]string(nil), e.Scopes...)
	cp.Types = append([]string(nil), e.Types...)
	cp.Federations = append([]string(nil), e.Federations...)
	return &cp
}

type fakeTypeRepo struct {
	mu      sync.Mutex
	byName  map[string]*entities.EntityType
	creates int
	nextID  int
}

func newFakeTypeRepo() *fakeTypeRepo {
	return &fakeTypeRepo{byName: make(map[string]*entities.EntityType)}
}

func (r *fakeTypeRepo) GetOrCreate(ctx context.Context, xmlName, name string) (*entities.EntityType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byName[xmlName]; ok {
		cp := *t
		return &cp, nil
	}
	r.nextID++
	r.creates++
	t := &entities.EntityType{
		ID:      fmt.Sprintf("type-%d", r.nextID),
		Name:    name,
		XMLName: xmlName,
	}
	r.byName[xmlName] = t
	cp := *t
	return &cp, nil
}

func (r *fakeTypeRepo) List(ctx context.Context) ([]*entities.EntityType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.EntityType, 0, len(r.byName))
	for _, t := range r.byName {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type fakeStatRepo struct {
	mu   sync.Mutex
	rows []*entities.EntityStat
}

func (r *fakeStatRepo) CreateBatch(ctx context.Context, stats []*entities.EntityStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, stats...)
	return nil
}

func (r *fakeStatRepo) ListByFeature(ctx context.Context, federationID, feature string) ([]*entities.EntityStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.EntityStat
	for _, row := range r.rows {
		if row.FederationID == federationID && row.Feature == feature {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}
