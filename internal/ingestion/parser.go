package ingestion

import (
	"RailLedger/internal/event"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// SubjectPrefix is the root of every event subject: railledger.events.<Type>.
const SubjectPrefix = "railledger.events"

// Subject returns the JetStream subject an event type is published on.
func Subject(et event.EventType) string {
	return SubjectPrefix + "." + et.String()
}

// EventTypeFromSubject extracts the event type name from a subject. Extra
// trailing tokens are allowed so producers may shard by rail or token.
func EventTypeFromSubject(subject string) (string, error) {
	rest, ok := strings.CutPrefix(subject, SubjectPrefix+".")
	if !ok || rest == "" {
		return "", fmt.Errorf("subject %q outside %s.>", subject, SubjectPrefix)
	}
	name, _, _ := strings.Cut(rest, ".")
	return name, nil
}

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The payload is the JSON form of the event struct, the
// same encoding the relay publishes.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	et := event.ParseEventType(eventType)
	if et == event.EventTypeUnknown {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	evt, err := event.New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw.Data, evt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", eventType, err)
	}
	if err := validate(evt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", eventType, err)
	}
	return evt, nil
}

// validate rejects payloads missing the amounts a handler dereferences.
func validate(evt event.Event) error {
	var missing []string
	need := func(name string, v *big.Int) {
		if v == nil {
			missing = append(missing, name)
		}
	}
	switch e := evt.(type) {
	case *event.RailCreated:
		need("rail_id", e.RailID)
		need("commission_rate_bps", e.CommissionRateBps)
	case *event.RailRateModified:
		need("rail_id", e.RailID)
		need("old_rate", e.OldRate)
		need("new_rate", e.NewRate)
	case *event.RailLockupModified:
		need("rail_id", e.RailID)
		need("old_lockup_period", e.OldLockupPeriod)
		need("new_lockup_period", e.NewLockupPeriod)
		need("old_lockup_fixed", e.OldLockupFixed)
		need("new_lockup_fixed", e.NewLockupFixed)
	case *event.RailTerminated:
		need("rail_id", e.RailID)
		need("end_epoch", e.EndEpoch)
	case *event.RailSettled:
		need("rail_id", e.RailID)
		need("total_settled_amount", e.TotalSettledAmount)
		need("total_net_payee_amount", e.TotalNetPayeeAmount)
		need("operator_commission", e.OperatorCommission)
		need("network_fee", e.NetworkFee)
		need("settled_up_to", e.SettledUpTo)
	case *event.RailOneTimePaymentProcessed:
		need("rail_id", e.RailID)
		need("net_payee_amount", e.NetPayeeAmount)
		need("operator_commission", e.OperatorCommission)
		need("network_fee", e.NetworkFee)
	case *event.RailFinalized:
		need("rail_id", e.RailID)
	case *event.AccountLockupSettled:
		need("lockup_current", e.LockupCurrent)
		need("lockup_rate", e.LockupRate)
		need("lockup_last_settled_at", e.LockupLastSettledAt)
	case *event.OperatorApprovalUpdated:
		need("rate_allowance", e.RateAllowance)
		need("lockup_allowance", e.LockupAllowance)
		need("max_lockup_period", e.MaxLockupPeriod)
	case *event.DepositRecorded:
		need("amount", e.Amount)
	case *event.WithdrawRecorded:
		need("amount", e.Amount)
	case *event.BurnForFeesCall:
		need("inputs.requested", e.Inputs.Requested)
		need("value", e.Value)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
