package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
)

const NotesWaitingForContract = "Waiting for matching contract"

// MatchRequest is everything the matching engine needs for one order. It is pure:
// the same request always yields the same outcome.
type MatchRequest struct {
	Order      models.Order
	Config     models.ExchangeConfig
	Identities []int64
	Candidates []models.ContractSnapshot
	// Claimed maps contract ids already backing an order to that order's id.
	Claimed map[int64]int
}

type nearTier int

const (
	tierWrongPrice nearTier = iota + 1
	tierWrongReference
	tierWrongPriceAndReference
	tierItemsMismatch
)

type evaluation struct {
	contract   models.ContractSnapshot
	itemsOK    bool
	priceOK    bool
	refOK      bool
	overlap    bool
	priceDelta decimal.Decimal
	missing    []models.ItemDelta
	surplus    []models.ItemDelta
	deltaSize  int64
}

func (e evaluation) exact() bool {
	return e.itemsOK && e.priceOK && e.refOK
}

// tier ranks near-matches; wrong price outranks wrong reference. 0 means not near.
func (e evaluation) tier() nearTier {
	switch {
	case e.itemsOK && e.refOK && !e.priceOK:
		return tierWrongPrice
	case e.itemsOK && e.priceOK && !e.refOK:
		return tierWrongReference
	case e.itemsOK:
		return tierWrongPriceAndReference
	case e.overlap:
		return tierItemsMismatch
	default:
		return 0
	}
}

// Match classifies an order against its candidate contracts. Priority, not list
// order, decides: exact match, then near-match (finished contracts first, then
// wrong price, wrong reference, items mismatch), then rejected-in-game recovery,
// then no match.
func Match(req MatchRequest) models.ReconciliationOutcome {
	order := req.Order
	var live, rejected []evaluation
	for _, c := range req.Candidates {
		if !passesCriteria(c, order.Direction, req.Config, req.Identities) {
			continue
		}
		if owner, ok := req.Claimed[c.ContractId]; ok && owner != order.ID {
			continue
		}
		ev := evaluate(order, c)
		switch {
		case c.Status.IsLive():
			live = append(live, ev)
		case c.Status.IsRejected():
			rejected = append(rejected, ev)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].contract.ContractId < live[j].contract.ContractId })

	for _, ev := range live {
		if ev.exact() {
			return models.ReconciliationOutcome{
				Kind:              models.OutcomeExactMatch,
				MatchedContractId: ev.contract.ContractId,
				ContractStatus:    ev.contract.Status,
				Notes:             fmt.Sprintf("Contract validated: %d @ %s", ev.contract.ContractId, FormatISK(ev.contract.Price)),
				PriceDelta:        ev.priceDelta,
			}
		}
	}

	if near, ok := bestNearMatch(live); ok {
		kind := anomalyKind(near.tier())
		reason := anomalyReason(order, near, kind)
		outcome := models.ReconciliationOutcome{
			Kind:              kind,
			MatchedContractId: near.contract.ContractId,
			ContractStatus:    near.contract.Status,
			Notes:             reason,
			PriceDelta:        near.priceDelta,
			MissingItems:      near.missing,
			SurplusItems:      near.surplus,
		}
		if near.contract.Status.IsFinished() {
			outcome.OverriddenKind = kind
			outcome.Kind = models.OutcomeForceValidated
			outcome.Notes = fmt.Sprintf("Contract %d accepted in-game despite anomaly: %s", near.contract.ContractId, reasonDetail(reason))
		}
		return outcome
	}

	if order.AnomalyContractId != nil &&
		(order.Status == models.OrderStatusAnomaly || order.Status == models.OrderStatusAnomalyRejected) {
		for _, ev := range rejected {
			if ev.contract.ContractId != *order.AnomalyContractId {
				continue
			}
			return models.ReconciliationOutcome{
				Kind:              models.OutcomeAnomalyRejected,
				MatchedContractId: ev.contract.ContractId,
				ContractStatus:    ev.contract.Status,
				Notes: fmt.Sprintf("Contract %d was rejected in-game; order %s remains open for a corrected contract",
					ev.contract.ContractId, order.Reference),
				PriceDelta:   ev.priceDelta,
				MissingItems: ev.missing,
				SurplusItems: ev.surplus,
			}
		}
	}

	return models.ReconciliationOutcome{Kind: models.OutcomeNoMatch, Notes: NotesWaitingForContract}
}

// passesCriteria is the hard gate: candidates failing it are not near-matches at all.
func passesCriteria(c models.ContractSnapshot, direction models.OrderDirection, cfg models.ExchangeConfig, identities []int64) bool {
	if c.Type != models.ContractTypeItemExchange || !c.AtLocation(cfg.StructureId) {
		return false
	}
	switch direction {
	case models.OrderDirectionSell:
		return containsID(identities, c.IssuerId) &&
			(c.AssigneeId == cfg.CorporationId || c.AcceptorId == cfg.CorporationId)
	case models.OrderDirectionBuy:
		return c.IssuerCorporationId == cfg.CorporationId &&
			(containsID(identities, c.AssigneeId) || containsID(identities, c.AcceptorId))
	default:
		return false
	}
}

func evaluate(order models.Order, c models.ContractSnapshot) evaluation {
	ev := evaluation{contract: c}
	expected := order.TotalPrice.Round(2)
	price := c.Price.Round(2)
	ev.priceOK = price.Equal(expected)
	ev.priceDelta = price.Sub(expected)
	ev.refOK = ReferenceInTitle(order.Reference, c.Title)
	ev.itemsOK = itemsMatch(order.Items, c.IncludedItems())
	ev.missing, ev.surplus, ev.overlap = itemDeltas(order, c)
	for _, d := range ev.missing {
		ev.deltaSize += d.Quantity
	}
	for _, d := range ev.surplus {
		ev.deltaSize += d.Quantity
	}
	return ev
}

// itemsMatch is bag equality on (TypeID, Quantity): same row count and every order
// line present among the included contract rows.
func itemsMatch(lines []models.OrderItem, included []models.ContractItem) bool {
	if len(lines) != len(included) {
		return false
	}
	remaining := make(map[[2]int64]int, len(included))
	for _, it := range included {
		remaining[[2]int64{int64(it.TypeId), it.Quantity}]++
	}
	for _, l := range lines {
		key := [2]int64{int64(l.TypeId), l.Quantity}
		if remaining[key] == 0 {
			return false
		}
		remaining[key]--
	}
	return true
}

// itemDeltas compares requested against included quantities per type. Missing holds
// shortfalls, surplus holds excess, both as positive quantities sorted by type id.
func itemDeltas(order models.Order, c models.ContractSnapshot) (missing, surplus []models.ItemDelta, overlap bool) {
	want := order.ItemQuantities()
	names := order.ItemNames()
	have := c.IncludedQuantities()

	for typeID, q := range want {
		got, ok := have[typeID]
		if ok {
			overlap = true
		}
		if got < q {
			missing = append(missing, models.ItemDelta{TypeId: typeID, TypeName: names[typeID], Quantity: q - got})
		}
	}
	for typeID, got := range have {
		if got > want[typeID] {
			surplus = append(surplus, models.ItemDelta{TypeId: typeID, TypeName: names[typeID], Quantity: got - want[typeID]})
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].TypeId < missing[j].TypeId })
	sort.Slice(surplus, func(i, j int) bool { return surplus[i].TypeId < surplus[j].TypeId })
	return missing, surplus, overlap
}

func bestNearMatch(live []evaluation) (evaluation, bool) {
	var near []evaluation
	for _, ev := range live {
		if ev.tier() != 0 {
			near = append(near, ev)
		}
	}
	if len(near) == 0 {
		return evaluation{}, false
	}
	sort.SliceStable(near, func(i, j int) bool {
		a, b := near[i], near[j]
		if af, bf := a.contract.Status.IsFinished(), b.contract.Status.IsFinished(); af != bf {
			return af
		}
		if a.tier() != b.tier() {
			return a.tier() < b.tier()
		}
		if a.tier() == tierItemsMismatch && a.deltaSize != b.deltaSize {
			return a.deltaSize < b.deltaSize
		}
		return a.contract.ContractId < b.contract.ContractId
	})
	return near[0], true
}

func anomalyKind(t nearTier) models.OutcomeKind {
	switch t {
	case tierWrongReference:
		return models.OutcomeAnomalyWrongReference
	case tierItemsMismatch:
		return models.OutcomeAnomalyItemsMismatch
	default:
		return models.OutcomeAnomalyWrongPrice
	}
}

func anomalyReason(order models.Order, ev evaluation, kind models.OutcomeKind) string {
	id := ev.contract.ContractId
	switch kind {
	case models.OutcomeAnomalyWrongPrice:
		notes := fmt.Sprintf("Contract %d price %s vs expected %s (delta %s)",
			id, FormatISK(ev.contract.Price), FormatISK(order.TotalPrice), FormatISK(ev.priceDelta))
		if !ev.refOK {
			notes += fmt.Sprintf("; title missing reference %s", order.Reference)
		}
		return notes
	case models.OutcomeAnomalyWrongReference:
		return fmt.Sprintf("Contract %d title missing reference %s", id, order.Reference)
	default:
		return fmt.Sprintf("Contract %d items mismatch; missing: %s; surplus: %s",
			id, formatDeltas(ev.missing), formatDeltas(ev.surplus))
	}
}

// reasonDetail drops the leading "Contract <id> " so force notes don't repeat the id.
func reasonDetail(reason string) string {
	if strings.HasPrefix(reason, "Contract ") {
		if i := strings.Index(reason[len("Contract "):], " "); i >= 0 {
			return reason[len("Contract ")+i+1:]
		}
	}
	return reason
}

func formatDeltas(ds []models.ItemDelta) string {
	if len(ds) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		label := d.TypeName
		if label == "" {
			label = fmt.Sprintf("type %d", d.TypeId)
		}
		parts = append(parts, fmt.Sprintf("%s x%d", label, d.Quantity))
	}
	return strings.Join(parts, ", ")
}

// ReferenceInTitle is a case-insensitive substring test.
func ReferenceInTitle(reference, title string) bool {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), ref)
}

// FormatISK renders an amount as "1,234,567.89 ISK".
func FormatISK(d decimal.Decimal) string {
	s := d.Round(2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac + " ISK"
}

func containsID(ids []int64, id int64) bool {
	if id == 0 {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
