package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/repository"
)

// ResolvedVariant is a purchased variant together with the package it provisions
type ResolvedVariant struct {
	VariantRef int64
	PackageRef string
	Candidate  services.VariantCandidate
}

// VariantResolver maps purchased variants to provisioning packages
type VariantResolver interface {
	Resolve(ctx context.Context, productRef int64, candidates []services.VariantCandidate) ([]ResolvedVariant, error)
}

type VariantResolverImpl struct {
	variantRepo repository.VariantMappingRepository
}

func NewVariantResolver(variantRepo repository.VariantMappingRepository) VariantResolver {
	return &VariantResolverImpl{variantRepo: variantRepo}
}

// Resolve keeps candidate order. Candidates without a mapping, or mapped to no package, are dropped.
func (r *VariantResolverImpl) Resolve(ctx context.Context, productRef int64, candidates []services.VariantCandidate) ([]ResolvedVariant, error) {
	resolved := make([]ResolvedVariant, 0, len(candidates))
	for _, candidate := range candidates {
		mapping, err := r.variantRepo.ByProductAndValue(ctx, productRef, candidate.Identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to look up variant %d of product %d: %w", candidate.Identifier, productRef, err)
		}
		if mapping == nil || !mapping.HasPackage() {
			continue
		}
		resolved = append(resolved, ResolvedVariant{
			VariantRef: candidate.Identifier,
			PackageRef: mapping.Package.PackageID,
			Candidate:  candidate,
		})
	}

	if len(resolved) == 0 {
		return nil, NewBusinessErrorf("NO_MATCH", "none of %d variants of product %d is mapped", ErrNoMatch, len(candidates), productRef)
	}
	return resolved, nil
}
