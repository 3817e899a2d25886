package geo

import "github.com/lihtc-philly/pipeline/internal/models"

// Attribute names under which municipal parcel layers publish the OPA
// account number and the situs address. Different vintages of the
// DOR/OPA exports use different casings and names; the first present,
// non-empty key wins.
var (
	parcelAccountKeys = []string{"opa_account_num", "parcel_number", "OPA_ACCOUNT", "BRT_ID"}
	parcelAddressKeys = []string{"location", "street_address", "ADDRESS", "LOCATION"}
)

// ParcelsFromLayer converts a loaded boundary layer into parcel
// records. Features with no recognizable account number are dropped;
// they could never be joined against the enrichment tables anyway.
func ParcelsFromLayer(layer *Layer) []models.Parcel {
	features := layer.Features()
	parcels := make([]models.Parcel, 0, len(features))
	for i := range features {
		feature := &features[i]

		account := firstAttr(feature.Attrs, parcelAccountKeys)
		if account == "" {
			continue
		}

		geometry := feature.Geometry
		parcels = append(parcels, models.Parcel{
			OPAAccount: models.ZeroPadOPA(account),
			Address:    firstAttr(feature.Attrs, parcelAddressKeys),
			Geometry:   &geometry,
		})
	}
	return parcels
}

// firstAttr returns the first non-empty attribute among the candidate
// keys.
func firstAttr(attrs map[string]string, keys []string) string {
	for _, key := range keys {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}
