package core

import (
	"designcore/pkg/domain"
)

// Actor identifies the caller on whose behalf an operation runs.
type Actor struct {
	OwnerID string
}

// DesignFilter narrows composed designs by case-insensitive partial matches.
type DesignFilter struct {
	Name      string
	DisplayID string
}

func (f DesignFilter) criteria() []domain.Criterion {
	var out []domain.Criterion
	if f.Name != "" {
		out = append(out, domain.ContainsFold("name", f.Name))
	}
	if f.DisplayID != "" {
		out = append(out, domain.ContainsFold("display_id", f.DisplayID))
	}
	return out
}

func (f DesignFilter) empty() bool { return f.Name == "" && f.DisplayID == "" }

// ComposeOptions controls Compose.
type ComposeOptions struct {
	// ResolveLatest replaces each requested id with its current revision.
	ResolveLatest bool
	Filter        DesignFilter
}

// ParameterFilter matches designs owning a parameter with these attributes.
// Name, Variable and Units are partial matches. A non-nil Value must equal
// the stored value after conversion to float64; nil matches any value.
type ParameterFilter struct {
	Name     string `json:"name"`
	Variable string `json:"variable"`
	Units    string `json:"units"`
	Value    any    `json:"value"`
}

// Criteria is a multi-criteria design search. Zero-valued fields are
// skipped.
type Criteria struct {
	Name         string            `json:"name"`
	DisplayID    string            `json:"display_id"`
	Role         string            `json:"role"`
	Sequence     string            `json:"sequence"`
	Parameters   []ParameterFilter `json:"parameters"`
	ScopeToOwner bool              `json:"scope_to_owner"`
}

// Resolution is the current revision of a version chain.
type Resolution struct {
	ID            string `json:"id"`
	VersionNumber int    `json:"version_number"`
}

// RestoreFilter selects deleted documents for Restore and Purge. At least
// one field must be set.
type RestoreFilter struct {
	IDs     []string
	OwnerID string
}

// ParameterSpec describes a parameter created alongside a design.
type ParameterSpec struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Variable string  `json:"variable"`
	Units    string  `json:"units"`
}

// PartSpec describes a basic part to create.
type PartSpec struct {
	Name        string          `json:"name" validate:"required"`
	DisplayID   string          `json:"display_id"`
	Description string          `json:"description"`
	Sequence    string          `json:"sequence"`
	Role        string          `json:"role"`
	Parameters  []ParameterSpec `json:"parameters"`
}

// DeviceSpec describes a composite device built from existing designs.
type DeviceSpec struct {
	Name         string          `json:"name" validate:"required"`
	DisplayID    string          `json:"display_id"`
	Description  string          `json:"description"`
	SubDesignIDs []string        `json:"sub_design_ids" validate:"required,min=1,dive,required"`
	Sequence     string          `json:"sequence"`
	Role         string          `json:"role"`
	Parameters   []ParameterSpec `json:"parameters"`
}
