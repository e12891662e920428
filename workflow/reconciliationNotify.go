package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/exchange_backend/appctx"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
)

func orderLink(order models.Order) string {
	return fmt.Sprintf("/material-exchange/%s-orders/%d/", order.Direction, order.ID)
}

func itemsSummary(order models.Order) string {
	lines := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, fmt.Sprintf("- %s: %dx @ %s each", it.TypeName, it.Quantity, FormatISK(it.UnitPrice)))
	}
	return strings.Join(lines, "\n")
}

// contractInstructions tells the member how the contract has to look.
func contractInstructions(cfg models.ExchangeConfig, order models.Order) string {
	var b strings.Builder
	b.WriteString("Please create an item exchange contract with:\n")
	fmt.Fprintf(&b, "- Title including %s\n", order.Reference)
	if order.Direction == models.OrderDirectionSell {
		fmt.Fprintf(&b, "- Assignee: corporation %d\n", cfg.CorporationId)
	}
	fmt.Fprintf(&b, "- Location: %s\n", cfg.LocationLabel())
	fmt.Fprintf(&b, "- Price: %s\n", FormatISK(order.TotalPrice))
	b.WriteString("- Items:\n")
	b.WriteString(itemsSummary(order))
	return b.String()
}

func ownerNotification(cfg models.ExchangeConfig, order models.Order, outcome models.ReconciliationOutcome) Notification {
	side := "Sell"
	if order.Direction == models.OrderDirectionBuy {
		side = "Buy"
	}
	n := Notification{RecipientId: order.OwnerId, Link: orderLink(order)}
	switch outcome.Kind {
	case models.OutcomeExactMatch:
		n.Title = side + " Order Validated"
		n.Level = models.NotificationLevelSuccess
		n.Body = fmt.Sprintf("Your %s order %s matched contract #%d.\n%s", strings.ToLower(side), order.Reference, outcome.MatchedContractId, outcome.Notes)
	case models.OutcomeForceValidated:
		n.Title = side + " Order Validated"
		n.Level = models.NotificationLevelWarning
		n.Body = fmt.Sprintf("Contract #%d for %s was accepted in-game although it does not match the order.\n%s", outcome.MatchedContractId, order.Reference, outcome.Notes)
	case models.OutcomeAnomalyWrongPrice, models.OutcomeAnomalyWrongReference, models.OutcomeAnomalyItemsMismatch:
		n.Title = side + " Order Anomaly"
		n.Level = models.NotificationLevelWarning
		n.Body = fmt.Sprintf("Contract #%d does not match order %s.\n%s\n\n%s", outcome.MatchedContractId, order.Reference, outcome.Notes, contractInstructions(cfg, order))
	case models.OutcomeAnomalyRejected:
		n.Title = side + " Order Contract Rejected"
		n.Level = models.NotificationLevelInfo
		n.Body = fmt.Sprintf("%s\n\n%s", outcome.Notes, contractInstructions(cfg, order))
	default:
		n.Title = side + " Order Pending: waiting for contract"
		n.Level = models.NotificationLevelInfo
		n.Body = fmt.Sprintf("We didn't find a matching contract yet for %s.\n%s", order.Reference, contractInstructions(cfg, order))
	}
	return n
}

func adminNotification(order models.Order, outcome models.ReconciliationOutcome) (Notification, bool) {
	n := Notification{Link: orderLink(order)}
	switch outcome.Kind {
	case models.OutcomeExactMatch:
		n.Title = fmt.Sprintf("%s order %s validated", order.Direction, order.Reference)
		n.Level = models.NotificationLevelSuccess
		n.Body = fmt.Sprintf("%s\nTotal: %s\nContract #%d verified.", itemsSummary(order), FormatISK(order.TotalPrice), outcome.MatchedContractId)
	case models.OutcomeForceValidated:
		n.Title = fmt.Sprintf("%s order %s force-validated", order.Direction, order.Reference)
		n.Level = models.NotificationLevelWarning
		n.Body = fmt.Sprintf("%s\nOriginal anomaly: %s", outcome.Notes, outcome.OverriddenKind)
	case models.OutcomeAnomalyWrongPrice, models.OutcomeAnomalyWrongReference, models.OutcomeAnomalyItemsMismatch:
		n.Title = fmt.Sprintf("%s order %s anomaly", order.Direction, order.Reference)
		n.Level = models.NotificationLevelWarning
		n.Body = outcome.Notes
	default:
		return n, false
	}
	return n, true
}

// notifyChange runs after the state change committed. Every failure here is logged and dropped.
func (r *Reconciler) notifyChange(ctx context.Context, cfg models.ExchangeConfig, order models.Order, outcome models.ReconciliationOutcome) {
	if r.Notifier == nil {
		return
	}
	fp := outcome.Fingerprint()
	r.deliver(ctx, order, ThrottleKey(order.ID, "owner", fp), ownerNotification(cfg, order, outcome))

	n, ok := adminNotification(order, outcome)
	if !ok || r.Admins == nil {
		return
	}
	if outcome.Kind.IsAnomaly() && (order.Direction != models.OrderDirectionSell || !cfg.NotifyAdminsOnSellAnomaly) {
		return
	}
	admins, err := r.Admins.ListAdminUserIDs(ctx)
	if err != nil {
		r.logNotifyError(order, err)
		return
	}
	for _, id := range admins {
		n.RecipientId = id
		r.deliver(ctx, order, ThrottleKey(order.ID, fmt.Sprintf("admin:%d", id), fp), n)
	}
}

func (r *Reconciler) deliver(ctx context.Context, order models.Order, key string, n Notification) {
	if r.Throttle != nil {
		ok, err := r.Throttle.ShouldNotify(ctx, key)
		if err != nil {
			// a lost marker costs at most one duplicate message
			r.logNotifyError(order, err)
		} else if !ok {
			return
		}
	}
	if n.CorrelationId == "" {
		n.CorrelationId, _ = appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	}
	if err := r.Notifier.Notify(ctx, n); err != nil {
		var nde *models.NotificationDeliveryError
		if !errors.As(err, &nde) {
			err = &models.NotificationDeliveryError{RecipientId: n.RecipientId, Title: n.Title, Err: err}
		}
		r.logNotifyError(order, err)
	}
}

func (r *Reconciler) logNotifyError(order models.Order, err error) {
	if r.Logger == nil {
		return
	}
	r.Logger.WithFields(logrus.Fields{
		"field":     "Reconciler",
		"step":      "notify",
		"config_id": order.ConfigId,
		"order_id":  order.ID,
	}).Warn(err.Error())
}
