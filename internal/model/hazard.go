package model

import (
	"strconv"
	"strings"
)

// HazardProfile holds the per-chemical reconciled attributes that feed
// rule inference and hazard elevation. Recomputed whenever one of its
// contributing fields changes.
type HazardProfile struct {
	ChemicalID      string   `json:"chemical_id"`
	IsOxidizer      bool     `json:"is_oxidizer"`
	IsFlammable     bool     `json:"is_flammable"`
	IsAcid          bool     `json:"is_acid"`
	IsBase          bool     `json:"is_base"`
	IsWaterReactive bool     `json:"is_reactive_with_water"`
	IDLHppm         *float64 `json:"idlh_ppm,omitempty"`
}

// hazardFieldNames maps reconciled field names to HazardProfile setters.
const (
	FieldIsOxidizer      = "is_oxidizer"
	FieldIsFlammable     = "is_flammable"
	FieldIsAcid          = "is_acid"
	FieldIsBase          = "is_base"
	FieldIsWaterReactive = "is_reactive_with_water"
	FieldIDLH            = "idlh_ppm"
)

// DeriveHazardProfile builds a HazardProfile from reconciled fields.
// Fields marked NotFound contribute nothing; unparseable values are
// treated as absent rather than failing the derivation.
func DeriveHazardProfile(chemicalID string, fields []ReconciledField) HazardProfile {
	p := HazardProfile{ChemicalID: chemicalID}
	for _, f := range fields {
		if f.ChemicalID != chemicalID || f.NotFound {
			continue
		}
		switch f.FieldName {
		case FieldIsOxidizer:
			p.IsOxidizer = parseHazardBool(f.Value)
		case FieldIsFlammable:
			p.IsFlammable = parseHazardBool(f.Value)
		case FieldIsAcid:
			p.IsAcid = parseHazardBool(f.Value)
		case FieldIsBase:
			p.IsBase = parseHazardBool(f.Value)
		case FieldIsWaterReactive:
			p.IsWaterReactive = parseHazardBool(f.Value)
		case FieldIDLH:
			if v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64); err == nil && v >= 0 {
				p.IDLHppm = &v
			}
		}
	}
	return p
}

func parseHazardBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y":
		return true
	default:
		return false
	}
}
