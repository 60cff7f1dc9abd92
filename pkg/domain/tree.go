package domain

import "slices"

// DesignTree is a design with every owned document and every transitively
// nested sub-design attached.
type DesignTree struct {
	Design     BioDesign    `json:"design"`
	Parts      []PartTree   `json:"parts"`
	Modules    []ModuleTree `json:"modules"`
	Parameters []Parameter  `json:"parameters"`
	Subdesigns []DesignTree `json:"subdesigns"`
}

// PartTree is a sub-part with its sequences and assemblies.
type PartTree struct {
	Part       Part           `json:"part"`
	Sequences  []SequenceTree `json:"sequences"`
	Assemblies []Assembly     `json:"assemblies"`
}

// SequenceTree is a sequence with its annotations.
type SequenceTree struct {
	Sequence    Sequence         `json:"sequence"`
	Annotations []AnnotationTree `json:"annotations"`
}

// AnnotationTree is an annotation with its features.
type AnnotationTree struct {
	Annotation Annotation `json:"annotation"`
	Features   []Feature  `json:"features"`
}

// ModuleTree is a module with the features grouped under it.
type ModuleTree struct {
	Module   Module    `json:"module"`
	Features []Feature `json:"features"`
}

// IDs returns the id of this design and of every nested sub-design, depth
// first, without duplicates.
func (t DesignTree) IDs() []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(DesignTree)
	walk = func(n DesignTree) {
		if _, ok := seen[n.Design.ID]; !ok {
			seen[n.Design.ID] = struct{}{}
			out = append(out, n.Design.ID)
		}
		for _, sub := range n.Subdesigns {
			walk(sub)
		}
	}
	walk(t)
	return out
}

// Clone returns a deep copy of t sharing no slices or pointers with it.
func (t DesignTree) Clone() DesignTree {
	return DesignTree{
		Design:     t.Design.clone(),
		Parts:      cloneEach(t.Parts, PartTree.clone),
		Modules:    cloneEach(t.Modules, ModuleTree.clone),
		Parameters: cloneEach(t.Parameters, Parameter.clone),
		Subdesigns: cloneEach(t.Subdesigns, DesignTree.Clone),
	}
}

func (t PartTree) clone() PartTree {
	return PartTree{
		Part:       t.Part.clone(),
		Sequences:  cloneEach(t.Sequences, SequenceTree.clone),
		Assemblies: cloneEach(t.Assemblies, Assembly.clone),
	}
}

func (t SequenceTree) clone() SequenceTree {
	return SequenceTree{
		Sequence:    t.Sequence.clone(),
		Annotations: cloneEach(t.Annotations, AnnotationTree.clone),
	}
}

func (t AnnotationTree) clone() AnnotationTree {
	return AnnotationTree{
		Annotation: t.Annotation.clone(),
		Features:   cloneEach(t.Features, Feature.clone),
	}
}

func (t ModuleTree) clone() ModuleTree {
	return ModuleTree{
		Module:   t.Module.clone(),
		Features: cloneEach(t.Features, Feature.clone),
	}
}

func (d BioDesign) clone() BioDesign {
	d.SubDesignIDs = slices.Clone(d.SubDesignIDs)
	d.SuperDesignID = clonePtr(d.SuperDesignID)
	return d
}

func (p Part) clone() Part {
	p.AssemblyID = clonePtr(p.AssemblyID)
	return p
}

func (s Sequence) clone() Sequence {
	s.FeatureID = clonePtr(s.FeatureID)
	s.AnnotationIDs = slices.Clone(s.AnnotationIDs)
	return s
}

func (a Annotation) clone() Annotation {
	a.SuperSequenceID = clonePtr(a.SuperSequenceID)
	return a
}

func (f Feature) clone() Feature {
	f.ModuleID = clonePtr(f.ModuleID)
	return f
}

func (m Module) clone() Module {
	m.SubmoduleIDs = slices.Clone(m.SubmoduleIDs)
	return m
}

func (p Parameter) clone() Parameter {
	p.DesignID = clonePtr(p.DesignID)
	return p
}

func (a Assembly) clone() Assembly {
	a.SubDesignIDs = slices.Clone(a.SubDesignIDs)
	return a
}

// cloneEach keeps nil and empty slices distinct so JSON output is unchanged.
func cloneEach[T any](in []T, fn func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
