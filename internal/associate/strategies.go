package associate

import (
	"context"
	"fmt"

	"github.com/lihtc-philly/pipeline/internal/models"
	"github.com/lihtc-philly/pipeline/internal/repository"
)

// Strategy produces the parcel associations of a single property.
// Returning an empty slice means the strategy has nothing to say about
// the property and the chain moves on; it is never an error.
type Strategy interface {
	Name() string
	Match(ctx context.Context, property models.Property) ([]models.Association, error)
}

// deedStrategy expands a property's claimed OPA number through the
// deed transfer records: the latest deed on the claimed parcel names
// every tax parcel the development sits on.
type deedStrategy struct {
	repo repository.OpenDataRepository
}

// NewDeedStrategy creates a deed-expansion strategy backed by the open
// data snapshot.
func NewDeedStrategy(repo repository.OpenDataRepository) Strategy {
	return &deedStrategy{repo: repo}
}

func (s *deedStrategy) Name() string {
	return models.MethodDeed
}

func (s *deedStrategy) Match(ctx context.Context, property models.Property) ([]models.Association, error) {
	// Unknown OPA numbers ("-", "scattered site", blank) cannot be
	// expanded; let the chain fall through to spatial/address matching.
	if !property.HasKnownParcelNumber() {
		return nil, nil
	}

	opa := property.PaddedParcelNumber()
	documentID, err := s.repo.LatestDeedDocument(ctx, opa)
	if err != nil {
		return nil, fmt.Errorf("deed lookup for %q: %w", property.Name, err)
	}

	// No recorded deed: the claimed parcel number is still the best
	// available association, so the property maps to itself.
	if documentID == "" {
		return []models.Association{newAssociation(property, "", opa, property.Address, models.MethodSelf)}, nil
	}

	parcels, err := s.repo.ParcelsOnDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("deed expansion for %q: %w", property.Name, err)
	}
	if len(parcels) == 0 {
		return []models.Association{newAssociation(property, "", opa, property.Address, models.MethodSelf)}, nil
	}

	associations := make([]models.Association, 0, len(parcels))
	for _, parcel := range parcels {
		associations = append(associations,
			newAssociation(property, documentID, parcel.OPAAccount, parcel.Address, models.MethodDeed))
	}
	return associations, nil
}

// boundedParcel pairs a parcel with its precomputed bounding box.
type boundedParcel struct {
	parcel                         models.Parcel
	minLng, minLat, maxLng, maxLat float64
}

// spatialStrategy matches a property geocode to every parcel whose
// boundary contains it.
type spatialStrategy struct {
	parcels []boundedParcel
}

// NewSpatialStrategy creates a point-in-polygon strategy over the
// municipal parcel layer. Parcels without geometry are ignored.
func NewSpatialStrategy(parcels []models.Parcel) Strategy {
	s := &spatialStrategy{}
	for _, parcel := range parcels {
		if parcel.Geometry == nil || len(parcel.Geometry.Coordinates) == 0 {
			continue
		}
		minLng, minLat, maxLng, maxLat := parcel.Geometry.Bounds()
		s.parcels = append(s.parcels, boundedParcel{
			parcel: parcel,
			minLng: minLng,
			minLat: minLat,
			maxLng: maxLng,
			maxLat: maxLat,
		})
	}
	return s
}

func (s *spatialStrategy) Name() string {
	return models.MethodSpatial
}

func (s *spatialStrategy) Match(ctx context.Context, property models.Property) ([]models.Association, error) {
	if !property.HasGeocode() {
		return nil, nil
	}

	pt := property.Geocode()
	var associations []models.Association
	for i := range s.parcels {
		bp := &s.parcels[i]
		if pt.Lng < bp.minLng || pt.Lng > bp.maxLng || pt.Lat < bp.minLat || pt.Lat > bp.maxLat {
			continue // quick bbox reject
		}
		if bp.parcel.Geometry.Contains(pt) {
			associations = append(associations,
				newAssociation(property, "", bp.parcel.OPAAccount, bp.parcel.Address, models.MethodSpatial))
		}
	}
	return associations, nil
}

// addressStrategy matches on normalized address-string equality.
type addressStrategy struct {
	index map[string][]models.Parcel
}

// NewAddressStrategy creates an exact-canonical-address strategy over
// the municipal parcel layer. Parcels without an address are ignored.
func NewAddressStrategy(parcels []models.Parcel) Strategy {
	index := make(map[string][]models.Parcel)
	for _, parcel := range parcels {
		key := NormalizeAddress(parcel.Address)
		if key == "" {
			continue
		}
		index[key] = append(index[key], parcel)
	}
	return &addressStrategy{index: index}
}

func (s *addressStrategy) Name() string {
	return models.MethodAddress
}

func (s *addressStrategy) Match(ctx context.Context, property models.Property) ([]models.Association, error) {
	key := NormalizeAddress(property.Address)
	if key == "" {
		return nil, nil
	}

	matches := s.index[key]
	associations := make([]models.Association, 0, len(matches))
	for _, parcel := range matches {
		associations = append(associations,
			newAssociation(property, "", parcel.OPAAccount, parcel.Address, models.MethodAddress))
	}
	return associations, nil
}

// newAssociation fills in the property-side columns shared by every
// strategy.
func newAssociation(property models.Property, documentID, parcelNumber, parcelAddress, method string) models.Association {
	return models.Association{
		NHPDPropertyID:       property.NHPDPropertyID,
		PropertyName:         property.Name,
		PropertyAddress:      property.Address,
		PropertyParcelNumber: property.ParcelNumber,
		DeedDocumentID:       documentID,
		ParcelNumber:         models.ZeroPadOPA(parcelNumber),
		ParcelAddress:        parcelAddress,
		Method:               method,
	}
}
