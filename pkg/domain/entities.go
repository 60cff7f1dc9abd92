// Package domain defines the persistent design entities, query primitives,
// error kinds and storage contracts shared by designcore packages.
package domain

import "time"

// EntityType identifies the type of record stored in the design domain. It
// doubles as the collection (bucket) name used by persistence backends.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityDesign identifies a top-level BioDesign record.
	EntityDesign EntityType = "design"
	// EntityPart identifies a sub-part owned by a design.
	EntityPart       EntityType = "part"
	EntitySequence   EntityType = "sequence"
	EntityAnnotation EntityType = "annotation"
	EntityFeature    EntityType = "feature"
	EntityModule     EntityType = "module"
	EntityParameter  EntityType = "parameter"
	EntityAssembly   EntityType = "assembly"
	EntityRole       EntityType = "role"
	// EntityVersion identifies a version-chain record.
	EntityVersion EntityType = "version"
)

// Collections lists every collection in dependency order, parents first.
var Collections = []EntityType{
	EntityDesign,
	EntityPart,
	EntitySequence,
	EntityAnnotation,
	EntityFeature,
	EntityModule,
	EntityParameter,
	EntityAssembly,
	EntityRole,
	EntityVersion,
}

// Status is the explicit lifecycle marker carried by every document.
type Status string

// Document statuses. Deletion is soft: a deleted document stays in its
// collection until purged.
const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// DesignKind distinguishes basic parts from composite devices.
type DesignKind string

// Design kinds.
const (
	KindPart   DesignKind = "PART"
	KindDevice DesignKind = "DEVICE"
)

// Valid reports whether k is a known design kind.
func (k DesignKind) Valid() bool {
	return k == KindPart || k == KindDevice
}

// RoleType names the entity a role may be attached to.
type RoleType string

// Role usages.
const (
	RoleTypeModule  RoleType = "MODULE"
	RoleTypeFeature RoleType = "FEATURE"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentID implements Document.
func (b Base) DocumentID() string { return b.ID }

// DocumentStatus implements Document. A blank status reads as active so that
// snapshots written before the field existed stay visible.
func (b Base) DocumentStatus() Status {
	if b.Status == "" {
		return StatusActive
	}
	return b.Status
}

// BioDesign is the top-level versionable construct: a basic part or a device
// composed of other designs.
type BioDesign struct {
	Base
	Name          string     `json:"name" validate:"required"`
	Description   string     `json:"description,omitempty"`
	OwnerID       string     `json:"owner_id"`
	DisplayID     string     `json:"display_id,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	Kind          DesignKind `json:"kind" validate:"required,oneof=PART DEVICE"`
	SubDesignIDs  []string   `json:"sub_design_ids"`
	SuperDesignID *string    `json:"super_design_id,omitempty"`
}

// Part is a sub-part attached to a design.
type Part struct {
	Base
	Name       string  `json:"name" validate:"required"`
	OwnerID    string  `json:"owner_id"`
	DesignID   string  `json:"design_id" validate:"required"`
	AssemblyID *string `json:"assembly_id,omitempty"`
}

// Sequence holds the raw nucleotide string of a part.
type Sequence struct {
	Base
	Name          string   `json:"name"`
	OwnerID       string   `json:"owner_id"`
	PartID        string   `json:"part_id" validate:"required"`
	RawSequence   string   `json:"sequence"`
	FeatureID     *string  `json:"feature_id,omitempty"`
	AnnotationIDs []string `json:"annotation_ids"`
}

// Annotation marks a 1-based inclusive region of a sequence.
type Annotation struct {
	Base
	Name            string  `json:"name"`
	OwnerID         string  `json:"owner_id"`
	SequenceID      string  `json:"sequence_id" validate:"required_without=SuperSequenceID"`
	SuperSequenceID *string `json:"super_sequence_id,omitempty"`
	Start           int     `json:"start" validate:"gt=0"`
	End             int     `json:"end" validate:"gt=0,gtefield=Start"`
	IsForwardStrand bool    `json:"is_forward_strand"`
}

// Feature attaches a functional role to an annotation.
type Feature struct {
	Base
	Name         string  `json:"name"`
	OwnerID      string  `json:"owner_id"`
	Role         string  `json:"role" validate:"required"`
	AnnotationID string  `json:"annotation_id"`
	ModuleID     *string `json:"module_id,omitempty"`
}

// Module groups features of a design under a functional role.
type Module struct {
	Base
	Name         string   `json:"name" validate:"required"`
	OwnerID      string   `json:"owner_id"`
	DesignID     string   `json:"design_id" validate:"required"`
	Role         string   `json:"role" validate:"required"`
	SubmoduleIDs []string `json:"submodule_ids"`
}

// Parameter is a numeric property of a design.
type Parameter struct {
	Base
	Name     string  `json:"name"`
	OwnerID  string  `json:"owner_id"`
	DesignID *string `json:"design_id,omitempty"`
	Value    float64 `json:"value"`
	Variable string  `json:"variable"`
	Units    string  `json:"units"`
}

// Assembly records the sub-designs a part is assembled from.
type Assembly struct {
	Base
	OwnerID        string   `json:"owner_id"`
	SubDesignIDs   []string `json:"sub_design_ids"`
	SuperSubPartID string   `json:"super_sub_part_id"`
}

// Role is an entry of the extensible role vocabulary.
type Role struct {
	Base
	Name  string     `json:"name"`
	Types []RoleType `json:"type"`
}

// Allows reports whether the role may be attached to the given usage. A role
// registered without types is accepted everywhere.
func (r Role) Allows(usage RoleType) bool {
	if len(r.Types) == 0 || usage == "" {
		return true
	}
	for _, t := range r.Types {
		if t == usage {
			return true
		}
	}
	return false
}

// Version is one link of a version chain.
type Version struct {
	Base
	ObjectID             string     `json:"object_id"`
	Collection           EntityType `json:"collection_name"`
	VersionNumber        int        `json:"version_number"`
	ReplacementVersionID *string    `json:"replacement_version_id,omitempty"`
	UserID               string     `json:"user_id"`
	Time                 time.Time  `json:"time"`
}

// Current reports whether no newer revision replaces this one.
func (v Version) Current() bool {
	return v.ReplacementVersionID == nil || *v.ReplacementVersionID == ""
}

// Revisable is implemented by every entity that can be versioned.
type Revisable interface {
	EntityType() EntityType
}

// EntityType implementations mark the versionable entities.
func (BioDesign) EntityType() EntityType  { return EntityDesign }
func (Part) EntityType() EntityType       { return EntityPart }
func (Sequence) EntityType() EntityType   { return EntitySequence }
func (Annotation) EntityType() EntityType { return EntityAnnotation }
func (Feature) EntityType() EntityType    { return EntityFeature }
func (Module) EntityType() EntityType     { return EntityModule }
func (Parameter) EntityType() EntityType  { return EntityParameter }
