package core

import (
	"context"
	"fmt"

	"designcore/pkg/domain"
)

// NewDefaultRulesEngine returns an engine with the built-in design rules.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(SubDesignGraphRule())
	engine.Register(AnnotationBoundsRule())
	return engine
}

// SubDesignGraphRule blocks writes that make a design reference itself,
// directly or through its sub-designs.
func SubDesignGraphRule() domain.Rule {
	return subDesignGraphRule{}
}

type subDesignGraphRule struct{}

func (subDesignGraphRule) Name() string { return "sub_design_graph" }

func (r subDesignGraphRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDesign || change.After == nil {
			continue
		}
		design, ok := change.After.(domain.BioDesign)
		if !ok {
			continue
		}
		if via, cyclic := reachesItself(view, design); cyclic {
			msg := fmt.Sprintf("design %s lists itself as a sub-design", design.ID)
			if via != design.ID {
				msg = fmt.Sprintf("design %s reaches itself through sub-design %s", design.ID, via)
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityDesign,
				EntityID: design.ID,
			})
		}
	}
	return res, nil
}

// reachesItself walks the sub-design graph from d and reports the direct
// sub-design through which d is reached again.
func reachesItself(view domain.TransactionView, d domain.BioDesign) (string, bool) {
	for _, first := range d.SubDesignIDs {
		if first == d.ID {
			return first, true
		}
		seen := map[string]struct{}{}
		stack := []string{first}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if id == d.ID {
				return first, true
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			next, ok := view.GetDesign(id)
			if !ok {
				continue
			}
			stack = append(stack, next.SubDesignIDs...)
		}
	}
	return "", false
}

// AnnotationBoundsRule blocks annotations that extend past the end of the
// sequence they annotate.
func AnnotationBoundsRule() domain.Rule {
	return annotationBoundsRule{}
}

type annotationBoundsRule struct{}

func (annotationBoundsRule) Name() string { return "annotation_bounds" }

func (r annotationBoundsRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAnnotation || change.Action != domain.ActionCreate {
			continue
		}
		ann, ok := change.After.(domain.Annotation)
		if !ok {
			continue
		}
		if ann.Start < 1 || ann.End < ann.Start {
			res.Violations = append(res.Violations, r.violation(ann.ID, fmt.Sprintf("annotation %s has invalid range %d..%d", ann.ID, ann.Start, ann.End)))
			continue
		}
		seqID := ann.SequenceID
		if seqID == "" && ann.SuperSequenceID != nil {
			seqID = *ann.SuperSequenceID
		}
		seq, ok := view.GetSequence(seqID)
		if !ok || seq.RawSequence == "" {
			continue
		}
		if ann.End > len(seq.RawSequence) {
			res.Violations = append(res.Violations, r.violation(ann.ID,
				fmt.Sprintf("annotation %s ends at %d beyond sequence %s of length %d", ann.ID, ann.End, seq.ID, len(seq.RawSequence))))
		}
	}
	return res, nil
}

func (r annotationBoundsRule) violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityAnnotation,
		EntityID: id,
	}
}
