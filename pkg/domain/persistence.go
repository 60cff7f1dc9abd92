package domain

import "context"

// TransactionView provides read-only access to a consistent state. Find
// methods return clones; callers may modify results freely.
type TransactionView interface {
	GetDesign(id string) (BioDesign, bool)
	FindDesigns(q Query) []BioDesign
	GetPart(id string) (Part, bool)
	FindParts(q Query) []Part
	GetSequence(id string) (Sequence, bool)
	FindSequences(q Query) []Sequence
	GetAnnotation(id string) (Annotation, bool)
	FindAnnotations(q Query) []Annotation
	GetFeature(id string) (Feature, bool)
	FindFeatures(q Query) []Feature
	GetModule(id string) (Module, bool)
	FindModules(q Query) []Module
	GetParameter(id string) (Parameter, bool)
	FindParameters(q Query) []Parameter
	GetAssembly(id string) (Assembly, bool)
	FindAssemblies(q Query) []Assembly
	GetRole(id string) (Role, bool)
	FindRoles(q Query) []Role
	GetVersion(id string) (Version, bool)
	FindVersions(q Query) []Version
	// FindDocuments evaluates q against any collection.
	FindDocuments(entity EntityType, q Query) ([]Document, error)
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Insert assigns an id when the record has none.
type Transaction interface {
	TransactionView
	InsertDesign(BioDesign) (BioDesign, error)
	UpdateDesign(id string, mutator func(*BioDesign) error) (BioDesign, error)
	InsertPart(Part) (Part, error)
	UpdatePart(id string, mutator func(*Part) error) (Part, error)
	InsertSequence(Sequence) (Sequence, error)
	UpdateSequence(id string, mutator func(*Sequence) error) (Sequence, error)
	InsertAnnotation(Annotation) (Annotation, error)
	InsertFeature(Feature) (Feature, error)
	InsertModule(Module) (Module, error)
	InsertParameter(Parameter) (Parameter, error)
	InsertAssembly(Assembly) (Assembly, error)
	InsertRole(Role) (Role, error)
	InsertVersion(Version) (Version, error)
	// LinkVersion sets ReplacementVersionID on the version record of
	// objectID only when it is unset; otherwise it fails with ErrConflict.
	LinkVersion(objectID, replacementID string) (Version, error)
	// SetStatus flips the lifecycle status of any document.
	SetStatus(entity EntityType, id string, status Status) error
	// Delete removes a document permanently.
	Delete(entity EntityType, id string) error
}

// PersistentStore is the entity store adapter consumed by the engine.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
