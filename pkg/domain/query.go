package domain

import (
	"fmt"
	"strings"
)

// Document is implemented by every stored entity so that a Query can be
// evaluated identically by every persistence backend.
type Document interface {
	DocumentID() string
	DocumentStatus() Status
	Field(name string) (any, bool)
}

// StatusFilter selects documents by lifecycle status. Reads must always say
// which statuses they want; the zero value is rejected.
type StatusFilter string

// Status filters.
const (
	StatusFilterActive  StatusFilter = "active"
	StatusFilterDeleted StatusFilter = "deleted"
	StatusFilterAny     StatusFilter = "any"
)

// MatchOp is the comparison applied by a Criterion.
type MatchOp string

// Supported comparisons.
const (
	// OpEquals compares strings, numbers and booleans exactly.
	OpEquals MatchOp = "eq"
	// OpEqualFold compares strings case-insensitively.
	OpEqualFold MatchOp = "eq_fold"
	// OpContainsFold is a case-insensitive substring match.
	OpContainsFold MatchOp = "contains_fold"
	// OpIn matches when the field equals one of a []string value.
	OpIn MatchOp = "in"
)

// Criterion is a single field predicate.
type Criterion struct {
	Field string
	Op    MatchOp
	Value any
}

// Eq builds an exact-match criterion.
func Eq(field string, value any) Criterion { return Criterion{Field: field, Op: OpEquals, Value: value} }

// EqFold builds a case-insensitive exact-match criterion.
func EqFold(field, value string) Criterion {
	return Criterion{Field: field, Op: OpEqualFold, Value: value}
}

// ContainsFold builds a case-insensitive partial-match criterion.
func ContainsFold(field, value string) Criterion {
	return Criterion{Field: field, Op: OpContainsFold, Value: value}
}

// In builds a set-membership criterion.
func In(field string, values []string) Criterion {
	return Criterion{Field: field, Op: OpIn, Value: values}
}

// Query describes a collection lookup. IDs, when non-nil, restrict the result
// to those ids (an empty non-nil slice matches nothing). All Match criteria
// must hold.
type Query struct {
	IDs    []string
	Status StatusFilter
	Match  []Criterion
}

// Active returns a query over active documents.
func Active(match ...Criterion) Query {
	return Query{Status: StatusFilterActive, Match: match}
}

// ByIDs returns a query over the given ids with the requested status.
func ByIDs(status StatusFilter, ids ...string) Query {
	if ids == nil {
		ids = []string{}
	}
	return Query{IDs: ids, Status: status}
}

// With returns a copy of q with the additional criteria appended.
func (q Query) With(match ...Criterion) Query {
	out := q
	out.Match = append(append([]Criterion(nil), q.Match...), match...)
	return out
}

// Validate reports whether the query is well formed.
func (q Query) Validate() error {
	switch q.Status {
	case StatusFilterActive, StatusFilterDeleted, StatusFilterAny:
	case "":
		return fmt.Errorf("%w: query status filter is required", ErrInvalidArgument)
	default:
		return fmt.Errorf("%w: unknown status filter %q", ErrInvalidArgument, q.Status)
	}
	for _, c := range q.Match {
		switch c.Op {
		case OpEquals, OpEqualFold, OpContainsFold:
		case OpIn:
			if _, ok := c.Value.([]string); !ok {
				return fmt.Errorf("%w: %s criterion on %q needs a []string value", ErrInvalidArgument, c.Op, c.Field)
			}
		default:
			return fmt.Errorf("%w: unknown match op %q", ErrInvalidArgument, c.Op)
		}
	}
	return nil
}

// Matches evaluates q against a document.
func (q Query) Matches(doc Document) bool {
	switch q.Status {
	case StatusFilterActive:
		if doc.DocumentStatus() != StatusActive {
			return false
		}
	case StatusFilterDeleted:
		if doc.DocumentStatus() != StatusDeleted {
			return false
		}
	case StatusFilterAny:
	default:
		return false
	}
	if q.IDs != nil && !containsID(q.IDs, doc.DocumentID()) {
		return false
	}
	for _, c := range q.Match {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (c Criterion) matches(doc Document) bool {
	actual, ok := doc.Field(c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return equalValues(actual, c.Value)
	case OpEqualFold:
		a, aok := actual.(string)
		b, bok := c.Value.(string)
		return aok && bok && strings.EqualFold(a, b)
	case OpContainsFold:
		a, aok := actual.(string)
		b, bok := c.Value.(string)
		return aok && bok && strings.Contains(strings.ToLower(a), strings.ToLower(b))
	case OpIn:
		a, aok := actual.(string)
		values, vok := c.Value.([]string)
		return aok && vok && containsID(values, a)
	}
	return false
}

func equalValues(actual, want any) bool {
	if af, ok := toFloat(actual); ok {
		wf, ok := toFloat(want)
		return ok && af == wf
	}
	switch a := actual.(type) {
	case string:
		w, ok := want.(string)
		return ok && a == w
	case bool:
		w, ok := want.(bool)
		return ok && a == w
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Field implementations expose the queryable attributes of each entity by
// their JSON names.

// Field implements Document.
func (d BioDesign) Field(name string) (any, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "name":
		return d.Name, true
	case "description":
		return d.Description, true
	case "owner_id":
		return d.OwnerID, true
	case "display_id":
		return d.DisplayID, true
	case "kind":
		return string(d.Kind), true
	case "super_design_id":
		return deref(d.SuperDesignID), true
	}
	return nil, false
}

// Field implements Document.
func (p Part) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "name":
		return p.Name, true
	case "owner_id":
		return p.OwnerID, true
	case "design_id":
		return p.DesignID, true
	case "assembly_id":
		return deref(p.AssemblyID), true
	}
	return nil, false
}

// Field implements Document.
func (s Sequence) Field(name string) (any, bool) {
	switch name {
	case "id":
		return s.ID, true
	case "name":
		return s.Name, true
	case "owner_id":
		return s.OwnerID, true
	case "part_id":
		return s.PartID, true
	case "sequence":
		return s.RawSequence, true
	case "feature_id":
		return deref(s.FeatureID), true
	}
	return nil, false
}

// Field implements Document.
func (a Annotation) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "name":
		return a.Name, true
	case "owner_id":
		return a.OwnerID, true
	case "sequence_id":
		return a.SequenceID, true
	case "super_sequence_id":
		return deref(a.SuperSequenceID), true
	case "start":
		return a.Start, true
	case "end":
		return a.End, true
	case "is_forward_strand":
		return a.IsForwardStrand, true
	}
	return nil, false
}

// Field implements Document.
func (f Feature) Field(name string) (any, bool) {
	switch name {
	case "id":
		return f.ID, true
	case "name":
		return f.Name, true
	case "owner_id":
		return f.OwnerID, true
	case "role":
		return f.Role, true
	case "annotation_id":
		return f.AnnotationID, true
	case "module_id":
		return deref(f.ModuleID), true
	}
	return nil, false
}

// Field implements Document.
func (m Module) Field(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "name":
		return m.Name, true
	case "owner_id":
		return m.OwnerID, true
	case "design_id":
		return m.DesignID, true
	case "role":
		return m.Role, true
	}
	return nil, false
}

// Field implements Document.
func (p Parameter) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "name":
		return p.Name, true
	case "owner_id":
		return p.OwnerID, true
	case "design_id":
		return deref(p.DesignID), true
	case "value":
		return p.Value, true
	case "variable":
		return p.Variable, true
	case "units":
		return p.Units, true
	}
	return nil, false
}

// Field implements Document.
func (a Assembly) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "owner_id":
		return a.OwnerID, true
	case "super_sub_part_id":
		return a.SuperSubPartID, true
	}
	return nil, false
}

// Field implements Document.
func (r Role) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "name":
		return r.Name, true
	}
	return nil, false
}

// Field implements Document.
func (v Version) Field(name string) (any, bool) {
	switch name {
	case "id":
		return v.ID, true
	case "object_id":
		return v.ObjectID, true
	case "collection_name":
		return string(v.Collection), true
	case "version_number":
		return v.VersionNumber, true
	case "replacement_version_id":
		return deref(v.ReplacementVersionID), true
	case "user_id":
		return v.UserID, true
	}
	return nil, false
}

// Document assertions.
var (
	_ Document = BioDesign{}
	_ Document = Part{}
	_ Document = Sequence{}
	_ Document = Annotation{}
	_ Document = Feature{}
	_ Document = Module{}
	_ Document = Parameter{}
	_ Document = Assembly{}
	_ Document = Role{}
	_ Document = Version{}
)
