package domain

import "strings"

type AssetStatus string

const (
	StatusExpected  AssetStatus = "expected"
	StatusReceived  AssetStatus = "received"
	StatusStaged    AssetStatus = "staged"
	StatusInService AssetStatus = "in_service"
	StatusRepair    AssetStatus = "repair"
	StatusRetired   AssetStatus = "retired"
	StatusDisposed  AssetStatus = "disposed"
)

// AllStatuses lists the lifecycle states in their natural order.
var AllStatuses = []AssetStatus{
	StatusExpected,
	StatusReceived,
	StatusStaged,
	StatusInService,
	StatusRepair,
	StatusRetired,
	StatusDisposed,
}

func (s AssetStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s AssetStatus) Terminal() bool {
	return s == StatusDisposed
}

// ParseStatus accepts the wire label in any case, with '-' or ' ' in
// place of '_' ("In Service", "in-service", "IN_SERVICE").
func ParseStatus(raw string) (AssetStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "inservice" {
		normalized = string(StatusInService)
	}

	s := AssetStatus(normalized)
	if !s.Valid() {
		return "", NewValidationError("status", "unknown asset status "+quote(raw))
	}
	return s, nil
}

func quote(s string) string {
	return "\"" + s + "\""
}
