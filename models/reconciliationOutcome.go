package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type OutcomeKind string

const (
	OutcomeExactMatch            OutcomeKind = "exact_match"
	OutcomeAnomalyWrongReference OutcomeKind = "anomaly_wrong_reference"
	OutcomeAnomalyWrongPrice     OutcomeKind = "anomaly_wrong_price"
	OutcomeAnomalyItemsMismatch  OutcomeKind = "anomaly_items_mismatch"
	OutcomeAnomalyRejected       OutcomeKind = "anomaly_rejected"
	OutcomeNoMatch               OutcomeKind = "no_match"
	OutcomeForceValidated        OutcomeKind = "force_validated"
)

func (k OutcomeKind) IsAnomaly() bool {
	switch k {
	case OutcomeAnomalyWrongReference, OutcomeAnomalyWrongPrice, OutcomeAnomalyItemsMismatch:
		return true
	default:
		return false
	}
}

// ItemDelta is the quantity by which one type is short (missing) or in excess (surplus).
type ItemDelta struct {
	TypeId   int    `json:"type_id"`
	TypeName string `json:"type_name"`
	Quantity int64  `json:"quantity"`
}

// ReconciliationOutcome is the classified result of matching one order in one pass.
// It is not persisted; ApplyOutcome folds it into the order row.
type ReconciliationOutcome struct {
	Kind              OutcomeKind     `json:"kind"`
	MatchedContractId int64           `json:"matched_contract_id"`
	ContractStatus    ContractStatus  `json:"contract_status"`
	Notes             string          `json:"notes"`
	PriceDelta        decimal.Decimal `json:"price_delta"`
	MissingItems      []ItemDelta     `json:"missing_items"`
	SurplusItems      []ItemDelta     `json:"surplus_items"`
	// OverriddenKind is the anomaly a force_validated outcome replaced.
	OverriddenKind OutcomeKind `json:"overridden_kind,omitempty"`
}

// Fingerprint identifies a distinct outcome for notification throttling.
func (o ReconciliationOutcome) Fingerprint() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.MatchedContractId)
}

// IsValidation reports whether the outcome moves the order to VALIDATED.
func (o ReconciliationOutcome) IsValidation() bool {
	return o.Kind == OutcomeExactMatch || o.Kind == OutcomeForceValidated
}
