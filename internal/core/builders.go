package core

import (
	"context"

	"designcore/pkg/domain"
)

// sequenceSpec is the optional sequence shared by parts and devices.
type sequenceSpec struct {
	name     string
	sequence string
	role     string
	params   []ParameterSpec
}

func (s *Service) checkSequenceSpec(ctx context.Context, spec sequenceSpec) error {
	if err := domain.ValidateNucleotides(spec.sequence); err != nil {
		return err
	}
	if spec.role == "" {
		return nil
	}
	if spec.sequence == "" {
		return domain.InvalidArgumentf("role %q needs a sequence to annotate", spec.role)
	}
	return s.checkRole(ctx, spec.role, domain.RoleTypeFeature)
}

// insertContents writes the sequence, its whole-length annotation and
// feature, and the design parameters.
func insertContents(tx domain.Transaction, owner string, designID, partID string, spec sequenceSpec) error {
	if spec.sequence != "" {
		seq, err := tx.InsertSequence(domain.Sequence{
			Name:        spec.name,
			OwnerID:     owner,
			PartID:      partID,
			RawSequence: spec.sequence,
		})
		if err != nil {
			return err
		}
		if spec.role != "" {
			ann, err := tx.InsertAnnotation(domain.Annotation{
				Name:            spec.name,
				OwnerID:         owner,
				SequenceID:      seq.ID,
				Start:           1,
				End:             len(spec.sequence),
				IsForwardStrand: true,
			})
			if err != nil {
				return err
			}
			feat, err := tx.InsertFeature(domain.Feature{
				Name:         spec.name,
				OwnerID:      owner,
				Role:         domain.NormalizeRole(spec.role),
				AnnotationID: ann.ID,
			})
			if err != nil {
				return err
			}
			if _, err := tx.UpdateSequence(seq.ID, func(s *domain.Sequence) error {
				s.FeatureID = &feat.ID
				s.AnnotationIDs = append(s.AnnotationIDs, ann.ID)
				return nil
			}); err != nil {
				return err
			}
		}
	}
	for _, p := range spec.params {
		id := designID
		if _, err := tx.InsertParameter(domain.Parameter{
			Name:     p.Name,
			OwnerID:  owner,
			DesignID: &id,
			Value:    p.Value,
			Variable: p.Variable,
			Units:    p.Units,
		}); err != nil {
			return err
		}
	}
	return nil
}

func startChain(tx domain.Transaction, owner, designID string) error {
	_, err := tx.InsertVersion(domain.Version{
		ObjectID:      designID,
		Collection:    domain.EntityDesign,
		VersionNumber: 1,
		UserID:        owner,
	})
	return err
}

// CreatePart creates a basic part design with its sub-part, optional
// sequence, role feature and parameters, and returns the design id.
func (s *Service) CreatePart(ctx context.Context, actor Actor, spec PartSpec) (string, error) {
	var designID string
	err := s.run(ctx, "create_part", actor, func(ctx context.Context) (string, error) {
		if err := validateStruct(spec); err != nil {
			return "", err
		}
		contents := sequenceSpec{name: spec.Name, sequence: spec.Sequence, role: spec.Role, params: spec.Parameters}
		if err := s.checkSequenceSpec(ctx, contents); err != nil {
			return "", err
		}
		err := s.write(ctx, "create part", func(tx domain.Transaction) error {
			design, err := tx.InsertDesign(domain.BioDesign{
				Name:        spec.Name,
				Description: spec.Description,
				DisplayID:   spec.DisplayID,
				OwnerID:     actor.OwnerID,
				Kind:        domain.KindPart,
			})
			if err != nil {
				return err
			}
			part, err := tx.InsertPart(domain.Part{Name: spec.Name, OwnerID: actor.OwnerID, DesignID: design.ID})
			if err != nil {
				return err
			}
			if err := insertContents(tx, actor.OwnerID, design.ID, part.ID, contents); err != nil {
				return err
			}
			designID = design.ID
			return startChain(tx, actor.OwnerID, design.ID)
		})
		return designID, err
	})
	if err != nil {
		return "", err
	}
	return designID, nil
}

// CreateDevice creates a device design assembled from existing active
// designs. A sub-design's SuperDesignID is pointed at the new device unless
// it already names another active device, so the first device to claim a
// shared design keeps the back-reference.
func (s *Service) CreateDevice(ctx context.Context, actor Actor, spec DeviceSpec) (string, error) {
	var deviceID string
	err := s.run(ctx, "create_device", actor, func(ctx context.Context) (string, error) {
		if err := validateStruct(spec); err != nil {
			return "", err
		}
		if err := domain.ValidateIDs(spec.SubDesignIDs); err != nil {
			return "", err
		}
		subIDs := newIDSet()
		ordered := make([]string, 0, len(spec.SubDesignIDs))
		for _, id := range spec.SubDesignIDs {
			if _, dup := subIDs[id]; dup {
				continue
			}
			subIDs[id] = struct{}{}
			ordered = append(ordered, id)
		}
		contents := sequenceSpec{name: spec.Name, sequence: spec.Sequence, role: spec.Role, params: spec.Parameters}
		if err := s.checkSequenceSpec(ctx, contents); err != nil {
			return "", err
		}
		err := s.write(ctx, "create device", func(tx domain.Transaction) error {
			active := tx.FindDesigns(domain.ByIDs(domain.StatusFilterActive, ordered...))
			if len(active) != len(ordered) {
				have := make(idSet, len(active))
				for _, d := range active {
					have[d.ID] = struct{}{}
				}
				for _, id := range ordered {
					if _, ok := have[id]; !ok {
						return domain.ErrEntityNotFound{Entity: domain.EntityDesign, ID: id}
					}
				}
			}
			device, err := tx.InsertDesign(domain.BioDesign{
				Name:         spec.Name,
				Description:  spec.Description,
				DisplayID:    spec.DisplayID,
				OwnerID:      actor.OwnerID,
				Kind:         domain.KindDevice,
				SubDesignIDs: ordered,
			})
			if err != nil {
				return err
			}
			part, err := tx.InsertPart(domain.Part{Name: spec.Name, OwnerID: actor.OwnerID, DesignID: device.ID})
			if err != nil {
				return err
			}
			assembly, err := tx.InsertAssembly(domain.Assembly{
				OwnerID:        actor.OwnerID,
				SubDesignIDs:   ordered,
				SuperSubPartID: part.ID,
			})
			if err != nil {
				return err
			}
			if _, err := tx.UpdatePart(part.ID, func(p *domain.Part) error {
				p.AssemblyID = &assembly.ID
				return nil
			}); err != nil {
				return err
			}
			if err := insertContents(tx, actor.OwnerID, device.ID, part.ID, contents); err != nil {
				return err
			}
			for _, id := range ordered {
				if _, err := tx.UpdateDesign(id, func(d *domain.BioDesign) error {
					if d.SuperDesignID != nil {
						if super, ok := tx.GetDesign(*d.SuperDesignID); ok && super.DocumentStatus() == domain.StatusActive {
							return nil
						}
					}
					d.SuperDesignID = &device.ID
					return nil
				}); err != nil {
					return err
				}
			}
			deviceID = device.ID
			return startChain(tx, actor.OwnerID, device.ID)
		})
		return deviceID, err
	})
	if err != nil {
		return "", err
	}
	return deviceID, nil
}

// CreateModule adds a module to an active design and starts its version
// chain.
func (s *Service) CreateModule(ctx context.Context, actor Actor, m domain.Module) (string, error) {
	var id string
	err := s.run(ctx, "create_module", actor, func(ctx context.Context) (string, error) {
		if err := domain.ValidateID(m.DesignID); err != nil {
			return "", err
		}
		var found bool
		if err := s.view(ctx, "create module", func(v domain.TransactionView) error {
			_, found = firstActiveDesign(v, m.DesignID)
			return nil
		}); err != nil {
			return "", err
		}
		if !found {
			return "", domain.ErrEntityNotFound{Entity: domain.EntityDesign, ID: m.DesignID}
		}
		var err error
		id, err = s.createRevision(ctx, actor, "", m)
		return id, err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func firstActiveDesign(v domain.TransactionView, id string) (domain.BioDesign, bool) {
	designs := v.FindDesigns(domain.ByIDs(domain.StatusFilterActive, id))
	if len(designs) == 0 {
		return domain.BioDesign{}, false
	}
	return designs[0], true
}
