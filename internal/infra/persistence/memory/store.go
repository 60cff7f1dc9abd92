// Package memory provides an in-memory implementation of the design
// persistence store used for tests, ephemeral environments and as the
// working set of the snapshotting backends.
package memory

import (
	"context"
	"designcore/pkg/domain"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// BioDesign aliases domain.BioDesign.
	BioDesign  = domain.BioDesign
	Part       = domain.Part
	Sequence   = domain.Sequence
	Annotation = domain.Annotation
	Feature    = domain.Feature
	Module     = domain.Module
	Parameter  = domain.Parameter
	Assembly   = domain.Assembly
	Role       = domain.Role
	Version    = domain.Version
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	designs     map[string]BioDesign
	parts       map[string]Part
	sequences   map[string]Sequence
	annotations map[string]Annotation
	features    map[string]Feature
	modules     map[string]Module
	parameters  map[string]Parameter
	assemblies  map[string]Assembly
	roles       map[string]Role
	versions    map[string]Version
}

// Snapshot captures a point-in-time clone of the store state. Each field is
// one persistence bucket named after its collection.
type Snapshot struct {
	Designs     map[string]BioDesign  `json:"design"`
	Parts       map[string]Part       `json:"part"`
	Sequences   map[string]Sequence   `json:"sequence"`
	Annotations map[string]Annotation `json:"annotation"`
	Features    map[string]Feature    `json:"feature"`
	Modules     map[string]Module     `json:"module"`
	Parameters  map[string]Parameter  `json:"parameter"`
	Assemblies  map[string]Assembly   `json:"assembly"`
	Roles       map[string]Role       `json:"role"`
	Versions    map[string]Version    `json:"version"`
}

// Bucket returns a pointer to the map holding the given collection, suitable
// for json.Marshal and json.Unmarshal. Unknown collections return nil.
func (s *Snapshot) Bucket(entity domain.EntityType) any {
	switch entity {
	case domain.EntityDesign:
		return &s.Designs
	case domain.EntityPart:
		return &s.Parts
	case domain.EntitySequence:
		return &s.Sequences
	case domain.EntityAnnotation:
		return &s.Annotations
	case domain.EntityFeature:
		return &s.Features
	case domain.EntityModule:
		return &s.Modules
	case domain.EntityParameter:
		return &s.Parameters
	case domain.EntityAssembly:
		return &s.Assemblies
	case domain.EntityRole:
		return &s.Roles
	case domain.EntityVersion:
		return &s.Versions
	}
	return nil
}

// Buckets lists the persistence bucket names in dependency order.
func Buckets() []string {
	out := make([]string, 0, len(domain.Collections))
	for _, c := range domain.Collections {
		out = append(out, string(c))
	}
	return out
}

func newMemoryState() memoryState {
	return memoryState{
		designs:     make(map[string]BioDesign),
		parts:       make(map[string]Part),
		sequences:   make(map[string]Sequence),
		annotations: make(map[string]Annotation),
		features:    make(map[string]Feature),
		modules:     make(map[string]Module),
		parameters:  make(map[string]Parameter),
		assemblies:  make(map[string]Assembly),
		roles:       make(map[string]Role),
		versions:    make(map[string]Version),
	}
}

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func (s memoryState) clone() memoryState {
	return memoryState{
		designs:     cloneMap(s.designs, cloneDesign),
		parts:       cloneMap(s.parts, clonePart),
		sequences:   cloneMap(s.sequences, cloneSequence),
		annotations: cloneMap(s.annotations, cloneAnnotation),
		features:    cloneMap(s.features, cloneFeature),
		modules:     cloneMap(s.modules, cloneModule),
		parameters:  cloneMap(s.parameters, cloneParameter),
		assemblies:  cloneMap(s.assemblies, cloneAssembly),
		roles:       cloneMap(s.roles, cloneRole),
		versions:    cloneMap(s.versions, cloneVersion),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Designs:     c.designs,
		Parts:       c.parts,
		Sequences:   c.sequences,
		Annotations: c.annotations,
		Features:    c.features,
		Modules:     c.modules,
		Parameters:  c.parameters,
		Assemblies:  c.assemblies,
		Roles:       c.roles,
		Versions:    c.versions,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		designs:     cloneMap(s.Designs, cloneDesign),
		parts:       cloneMap(s.Parts, clonePart),
		sequences:   cloneMap(s.Sequences, cloneSequence),
		annotations: cloneMap(s.Annotations, cloneAnnotation),
		features:    cloneMap(s.Features, cloneFeature),
		modules:     cloneMap(s.Modules, cloneModule),
		parameters:  cloneMap(s.Parameters, cloneParameter),
		assemblies:  cloneMap(s.Assemblies, cloneAssembly),
		roles:       cloneMap(s.Roles, cloneRole),
		versions:    cloneMap(s.Versions, cloneVersion),
	}
	normalizeState(&state)
	return state
}

// normalizeState fills defaults missing from older snapshots: a blank status
// becomes active and nil id lists become empty.
func normalizeState(state *memoryState) {
	for id, d := range state.designs {
		if d.Status == "" {
			d.Status = domain.StatusActive
		}
		if d.SubDesignIDs == nil {
			d.SubDesignIDs = []string{}
		}
		state.designs[id] = d
	}
	for id, seq := range state.sequences {
		if seq.Status == "" {
			seq.Status = domain.StatusActive
		}
		if seq.AnnotationIDs == nil {
			seq.AnnotationIDs = []string{}
		}
		state.sequences[id] = seq
	}
	normalizeStatus(state.parts, func(p *Part) *domain.Base { return &p.Base })
	normalizeStatus(state.annotations, func(a *Annotation) *domain.Base { return &a.Base })
	normalizeStatus(state.features, func(f *Feature) *domain.Base { return &f.Base })
	normalizeStatus(state.modules, func(m *Module) *domain.Base { return &m.Base })
	normalizeStatus(state.parameters, func(p *Parameter) *domain.Base { return &p.Base })
	normalizeStatus(state.assemblies, func(a *Assembly) *domain.Base { return &a.Base })
	normalizeStatus(state.roles, func(r *Role) *domain.Base { return &r.Base })
	normalizeStatus(state.versions, func(v *Version) *domain.Base { return &v.Base })
}

func normalizeStatus[T any](items map[string]T, base func(*T) *domain.Base) {
	for id, item := range items {
		b := base(&item)
		if b.Status == "" {
			b.Status = domain.StatusActive
			items[id] = item
		}
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDesign(d BioDesign) BioDesign {
	cp := d
	cp.SubDesignIDs = cloneStrings(d.SubDesignIDs)
	cp.SuperDesignID = cloneStringPtr(d.SuperDesignID)
	return cp
}

func clonePart(p Part) Part {
	cp := p
	cp.AssemblyID = cloneStringPtr(p.AssemblyID)
	return cp
}

func cloneSequence(s Sequence) Sequence {
	cp := s
	cp.FeatureID = cloneStringPtr(s.FeatureID)
	cp.AnnotationIDs = cloneStrings(s.AnnotationIDs)
	return cp
}

func cloneAnnotation(a Annotation) Annotation {
	cp := a
	cp.SuperSequenceID = cloneStringPtr(a.SuperSequenceID)
	return cp
}

func cloneFeature(f Feature) Feature {
	cp := f
	cp.ModuleID = cloneStringPtr(f.ModuleID)
	return cp
}

func cloneModule(m Module) Module {
	cp := m
	cp.SubmoduleIDs = cloneStrings(m.SubmoduleIDs)
	return cp
}

func cloneParameter(p Parameter) Parameter {
	cp := p
	cp.DesignID = cloneStringPtr(p.DesignID)
	return cp
}

func cloneAssembly(a Assembly) Assembly {
	cp := a
	cp.SubDesignIDs = cloneStrings(a.SubDesignIDs)
	return cp
}

func cloneRole(r Role) Role {
	cp := r
	cp.Types = append([]domain.RoleType(nil), r.Types...)
	return cp
}

func cloneVersion(v Version) Version {
	cp := v
	cp.ReplacementVersionID = cloneStringPtr(v.ReplacementVersionID)
	return cp
}

// collection adapts one typed map to the entity-agnostic operations needed
// by SetStatus, Delete and FindDocuments.
type collection[T domain.Document] struct {
	items map[string]T
	clone func(T) T
	base  func(*T) *domain.Base
}

func (c collection[T]) get(id string) (T, bool) {
	v, ok := c.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.clone(v), true
}

func (c collection[T]) find(q domain.Query) []T {
	var out []T
	if q.IDs != nil {
		seen := make(map[string]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if v, ok := c.items[id]; ok && q.Matches(v) {
				out = append(out, c.clone(v))
			}
		}
	} else {
		for _, v := range c.items {
			if q.Matches(v) {
				out = append(out, c.clone(v))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID() < out[j].DocumentID() })
	if out == nil {
		out = []T{}
	}
	return out
}

func (c collection[T]) documents(q domain.Query) []domain.Document {
	found := c.find(q)
	out := make([]domain.Document, 0, len(found))
	for _, v := range found {
		out = append(out, v)
	}
	return out
}

func (c collection[T]) setStatus(id string, status domain.Status, now time.Time) (before, after T, ok bool) {
	current, ok := c.items[id]
	if !ok {
		return before, after, false
	}
	before = c.clone(current)
	b := c.base(&current)
	b.Status = status
	b.UpdatedAt = now
	c.items[id] = current
	return before, c.clone(current), true
}

func (c collection[T]) remove(id string) (T, bool) {
	current, ok := c.items[id]
	if ok {
		delete(c.items, id)
	}
	return current, ok
}

// entityCollection is the type-erased face of collection[T].
type entityCollection interface {
	documents(q domain.Query) []domain.Document
	setStatusAny(id string, status domain.Status, now time.Time) (before, after any, ok bool)
	removeAny(id string) (any, bool)
}

func (c collection[T]) setStatusAny(id string, status domain.Status, now time.Time) (any, any, bool) {
	before, after, ok := c.setStatus(id, status, now)
	return before, after, ok
}

func (c collection[T]) removeAny(id string) (any, bool) {
	return c.remove(id)
}

func (s *memoryState) collection(entity domain.EntityType) (entityCollection, error) {
	switch entity {
	case domain.EntityDesign:
		return s.designCol(), nil
	case domain.EntityPart:
		return s.partCol(), nil
	case domain.EntitySequence:
		return s.sequenceCol(), nil
	case domain.EntityAnnotation:
		return s.annotationCol(), nil
	case domain.EntityFeature:
		return s.featureCol(), nil
	case domain.EntityModule:
		return s.moduleCol(), nil
	case domain.EntityParameter:
		return s.parameterCol(), nil
	case domain.EntityAssembly:
		return s.assemblyCol(), nil
	case domain.EntityRole:
		return s.roleCol(), nil
	case domain.EntityVersion:
		return s.versionCol(), nil
	}
	return nil, domain.InvalidArgumentf("unknown collection %q", entity)
}

func (s *memoryState) designCol() collection[BioDesign] {
	return collection[BioDesign]{s.designs, cloneDesign, func(d *BioDesign) *domain.Base { return &d.Base }}
}

func (s *memoryState) partCol() collection[Part] {
	return collection[Part]{s.parts, clonePart, func(p *Part) *domain.Base { return &p.Base }}
}

func (s *memoryState) sequenceCol() collection[Sequence] {
	return collection[Sequence]{s.sequences, cloneSequence, func(q *Sequence) *domain.Base { return &q.Base }}
}

func (s *memoryState) annotationCol() collection[Annotation] {
	return collection[Annotation]{s.annotations, cloneAnnotation, func(a *Annotation) *domain.Base { return &a.Base }}
}

func (s *memoryState) featureCol() collection[Feature] {
	return collection[Feature]{s.features, cloneFeature, func(f *Feature) *domain.Base { return &f.Base }}
}

func (s *memoryState) moduleCol() collection[Module] {
	return collection[Module]{s.modules, cloneModule, func(m *Module) *domain.Base { return &m.Base }}
}

func (s *memoryState) parameterCol() collection[Parameter] {
	return collection[Parameter]{s.parameters, cloneParameter, func(p *Parameter) *domain.Base { return &p.Base }}
}

func (s *memoryState) assemblyCol() collection[Assembly] {
	return collection[Assembly]{s.assemblies, cloneAssembly, func(a *Assembly) *domain.Base { return &a.Base }}
}

func (s *memoryState) roleCol() collection[Role] {
	return collection[Role]{s.roles, cloneRole, func(r *Role) *domain.Base { return &r.Base }}
}

func (s *memoryState) versionCol() collection[Version] {
	return collection[Version]{s.versions, cloneVersion, func(v *Version) *domain.Base { return &v.Base }}
}

// Store provides an in-memory transactional store for the design domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the committed state only when fn succeeds and no
// blocking rule violation is reported. fn must not call back into the store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		view: view{state: s.state.clone()},
		now:  s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, &tx.view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against the committed state under a read lock. Results
// handed to fn are clones.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{state: s.state})
}

// view exposes read access over a state value.
type view struct {
	state memoryState
}

var _ TransactionView = (*view)(nil)

func (v *view) GetDesign(id string) (BioDesign, bool) { return v.state.designCol().get(id) }
func (v *view) FindDesigns(q domain.Query) []BioDesign { return v.state.designCol().find(q) }
func (v *view) GetPart(id string) (Part, bool) { return v.state.partCol().get(id) }
func (v *view) FindParts(q domain.Query) []Part { return v.state.partCol().find(q) }
func (v *view) GetSequence(id string) (Sequence, bool) { return v.state.sequenceCol().get(id) }
func (v *view) FindSequences(q domain.Query) []Sequence { return v.state.sequenceCol().find(q) }
func (v *view) GetAnnotation(id string) (Annotation, bool) {
	return v.state.annotationCol().get(id)
}
func (v *view) FindAnnotations(q domain.Query) []Annotation {
	return v.state.annotationCol().find(q)
}
func (v *view) GetFeature(id string) (Feature, bool) { return v.state.featureCol().get(id) }
func (v *view) FindFeatures(q domain.Query) []Feature { return v.state.featureCol().find(q) }
func (v *view) GetModule(id string) (Module, bool) { return v.state.moduleCol().get(id) }
func (v *view) FindModules(q domain.Query) []Module { return v.state.moduleCol().find(q) }
func (v *view) GetParameter(id string) (Parameter, bool) { return v.state.parameterCol().get(id) }
func (v *view) FindParameters(q domain.Query) []Parameter { return v.state.parameterCol().find(q) }
func (v *view) GetAssembly(id string) (Assembly, bool) { return v.state.assemblyCol().get(id) }
func (v *view) FindAssemblies(q domain.Query) []Assembly { return v.state.assemblyCol().find(q) }
func (v *view) GetRole(id string) (Role, bool) { return v.state.roleCol().get(id) }
func (v *view) FindRoles(q domain.Query) []Role { return v.state.roleCol().find(q) }
func (v *view) GetVersion(id string) (Version, bool) { return v.state.versionCol().get(id) }
func (v *view) FindVersions(q domain.Query) []Version { return v.state.versionCol().find(q) }

// FindDocuments evaluates q against any collection.
func (v *view) FindDocuments(entity domain.EntityType, q domain.Query) ([]domain.Document, error) {
	col, err := v.state.collection(entity)
	if err != nil {
		return nil, err
	}
	return col.documents(q), nil
}

// transaction represents a mutation set applied to a cloned state.
type transaction struct {
	view
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func insertDoc[T domain.Document](tx *transaction, entity domain.EntityType, items map[string]T, base *domain.Base, value *T, clone func(T) T) (T, error) {
	var zero T
	if base.ID == "" {
		base.ID = domain.NewID()
	}
	if _, exists := items[base.ID]; exists {
		return zero, domain.Conflictf("%s %q already exists", entity, base.ID)
	}
	if base.Status == "" {
		base.Status = domain.StatusActive
	}
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
	items[base.ID] = clone(*value)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionCreate, ID: base.ID, After: clone(*value)})
	return clone(*value), nil
}

func updateDoc[T domain.Document](tx *transaction, entity domain.EntityType, col collection[T], id string, mutator func(*T) error) (T, error) {
	var zero T
	current, ok := col.items[id]
	if !ok {
		return zero, domain.ErrEntityNotFound{Entity: entity, ID: id}
	}
	before := col.clone(current)
	if err := mutator(&current); err != nil {
		return zero, err
	}
	prev := col.base(&before)
	b := col.base(&current)
	b.ID = id
	b.CreatedAt = prev.CreatedAt
	if b.Status == "" {
		b.Status = prev.Status
	}
	b.UpdatedAt = tx.now
	col.items[id] = col.clone(current)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionUpdate, ID: id, Before: before, After: col.clone(current)})
	return col.clone(current), nil
}

func (tx *transaction) requireDesign(id string) error {
	if _, ok := tx.state.designs[id]; !ok {
		return domain.ErrEntityNotFound{Entity: domain.EntityDesign, ID: id}
	}
	return nil
}

// InsertDesign stores a design, defaulting nil id lists to empty ones.
func (tx *transaction) InsertDesign(d BioDesign) (BioDesign, error) {
	if d.SuperDesignID != nil && *d.SuperDesignID != "" {
		if err := tx.requireDesign(*d.SuperDesignID); err != nil {
			return BioDesign{}, err
		}
	}
	if d.SubDesignIDs == nil {
		d.SubDesignIDs = []string{}
	}
	return insertDoc(tx, domain.EntityDesign, tx.state.designs, &d.Base, &d, cloneDesign)
}

// UpdateDesign mutates an existing design.
func (tx *transaction) UpdateDesign(id string, mutator func(*BioDesign) error) (BioDesign, error) {
	return updateDoc(tx, domain.EntityDesign, tx.state.designCol(), id, mutator)
}

// InsertPart stores a part attached to an existing design.
func (tx *transaction) InsertPart(p Part) (Part, error) {
	if err := tx.requireDesign(p.DesignID); err != nil {
		return Part{}, err
	}
	return insertDoc(tx, domain.EntityPart, tx.state.parts, &p.Base, &p, clonePart)
}

// UpdatePart mutates an existing part.
func (tx *transaction) UpdatePart(id string, mutator func(*Part) error) (Part, error) {
	return updateDoc(tx, domain.EntityPart, tx.state.partCol(), id, mutator)
}

// InsertSequence stores a sequence attached to an existing part.
func (tx *transaction) InsertSequence(s Sequence) (Sequence, error) {
	if _, ok := tx.state.parts[s.PartID]; !ok {
		return Sequence{}, domain.ErrEntityNotFound{Entity: domain.EntityPart, ID: s.PartID}
	}
	if s.AnnotationIDs == nil {
		s.AnnotationIDs = []string{}
	}
	return insertDoc(tx, domain.EntitySequence, tx.state.sequences, &s.Base, &s, cloneSequence)
}

// UpdateSequence mutates an existing sequence.
func (tx *transaction) UpdateSequence(id string, mutator func(*Sequence) error) (Sequence, error) {
	return updateDoc(tx, domain.EntitySequence, tx.state.sequenceCol(), id, mutator)
}

// InsertAnnotation stores an annotation on a sequence or super-sequence.
func (tx *transaction) InsertAnnotation(a Annotation) (Annotation, error) {
	for _, seqID := range []string{a.SequenceID, derefString(a.SuperSequenceID)} {
		if seqID == "" {
			continue
		}
		if _, ok := tx.state.sequences[seqID]; !ok {
			return Annotation{}, domain.ErrEntityNotFound{Entity: domain.EntitySequence, ID: seqID}
		}
	}
	return insertDoc(tx, domain.EntityAnnotation, tx.state.annotations, &a.Base, &a, cloneAnnotation)
}

// InsertFeature stores a feature; annotation and module links are optional
// but must resolve when set.
func (tx *transaction) InsertFeature(f Feature) (Feature, error) {
	if f.AnnotationID != "" {
		if _, ok := tx.state.annotations[f.AnnotationID]; !ok {
			return Feature{}, domain.ErrEntityNotFound{Entity: domain.EntityAnnotation, ID: f.AnnotationID}
		}
	}
	if id := derefString(f.ModuleID); id != "" {
		if _, ok := tx.state.modules[id]; !ok {
			return Feature{}, domain.ErrEntityNotFound{Entity: domain.EntityModule, ID: id}
		}
	}
	return insertDoc(tx, domain.EntityFeature, tx.state.features, &f.Base, &f, cloneFeature)
}

// InsertModule stores a module attached to an existing design.
func (tx *transaction) InsertModule(m Module) (Module, error) {
	if err := tx.requireDesign(m.DesignID); err != nil {
		return Module{}, err
	}
	if m.SubmoduleIDs == nil {
		m.SubmoduleIDs = []string{}
	}
	return insertDoc(tx, domain.EntityModule, tx.state.modules, &m.Base, &m, cloneModule)
}

// InsertParameter stores a parameter; the design link is optional.
func (tx *transaction) InsertParameter(p Parameter) (Parameter, error) {
	if id := derefString(p.DesignID); id != "" {
		if err := tx.requireDesign(id); err != nil {
			return Parameter{}, err
		}
	}
	return insertDoc(tx, domain.EntityParameter, tx.state.parameters, &p.Base, &p, cloneParameter)
}

// InsertAssembly stores an assembly owned by an existing part.
func (tx *transaction) InsertAssembly(a Assembly) (Assembly, error) {
	if _, ok := tx.state.parts[a.SuperSubPartID]; !ok {
		return Assembly{}, domain.ErrEntityNotFound{Entity: domain.EntityPart, ID: a.SuperSubPartID}
	}
	if a.SubDesignIDs == nil {
		a.SubDesignIDs = []string{}
	}
	return insertDoc(tx, domain.EntityAssembly, tx.state.assemblies, &a.Base, &a, cloneAssembly)
}

// InsertRole stores a role. Names are unique ignoring case across all
// statuses.
func (tx *transaction) InsertRole(r Role) (Role, error) {
	name := domain.NormalizeRole(r.Name)
	if name == "" {
		return Role{}, domain.InvalidArgumentf("role name is required")
	}
	for _, existing := range tx.state.roles {
		if strings.EqualFold(existing.Name, name) {
			return Role{}, domain.Conflictf("role %q already exists", name)
		}
	}
	r.Name = name
	return insertDoc(tx, domain.EntityRole, tx.state.roles, &r.Base, &r, cloneRole)
}

// InsertVersion stores a version record. At most one record may exist per
// object id.
func (tx *transaction) InsertVersion(v Version) (Version, error) {
	if v.ObjectID == "" {
		return Version{}, domain.InvalidArgumentf("version object id is required")
	}
	for _, existing := range tx.state.versions {
		if existing.ObjectID == v.ObjectID {
			return Version{}, domain.Conflictf("version record for %s already exists", v.ObjectID)
		}
	}
	if v.Time.IsZero() {
		v.Time = tx.now
	}
	return insertDoc(tx, domain.EntityVersion, tx.state.versions, &v.Base, &v, cloneVersion)
}

// LinkVersion points the version record of objectID at replacementID. The
// link is written only when unset.
func (tx *transaction) LinkVersion(objectID, replacementID string) (Version, error) {
	var target *Version
	for id := range tx.state.versions {
		v := tx.state.versions[id]
		if v.ObjectID == objectID {
			target = &v
			break
		}
	}
	if target == nil {
		return Version{}, domain.ErrEntityNotFound{Entity: domain.EntityVersion, ID: objectID}
	}
	if !target.Current() {
		return Version{}, domain.Conflictf("%s already replaced by %s", objectID, *target.ReplacementVersionID)
	}
	return updateDoc(tx, domain.EntityVersion, tx.state.versionCol(), target.ID, func(v *Version) error {
		link := replacementID
		v.ReplacementVersionID = &link
		return nil
	})
}

// SetStatus flips the lifecycle status of any document.
func (tx *transaction) SetStatus(entity domain.EntityType, id string, status domain.Status) error {
	if status != domain.StatusActive && status != domain.StatusDeleted {
		return domain.InvalidArgumentf("unknown status %q", status)
	}
	col, err := tx.state.collection(entity)
	if err != nil {
		return err
	}
	before, after, ok := col.setStatusAny(id, status, tx.now)
	if !ok {
		return domain.ErrEntityNotFound{Entity: entity, ID: id}
	}
	tx.recordChange(Change{Entity: entity, Action: domain.ActionUpdate, ID: id, Before: before, After: after})
	return nil
}

// Delete removes a document permanently.
func (tx *transaction) Delete(entity domain.EntityType, id string) error {
	col, err := tx.state.collection(entity)
	if err != nil {
		return err
	}
	before, ok := col.removeAny(id)
	if !ok {
		return domain.ErrEntityNotFound{Entity: entity, ID: id}
	}
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete, ID: id, Before: before})
	return nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// String describes the store for diagnostics.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.Store{designs: %d, versions: %d}", len(s.state.designs), len(s.state.versions))
}
