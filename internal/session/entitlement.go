package session

import "github.com/jkang1643/exbabel/internal/streamerr"

// role ordering, per spec.md §4.F "simple role comparison with a
// documented ordering". Higher index = more privileged.
var roleRank = map[string]int{
	"guest":  0,
	"member": 1,
	"admin":  2,
	"owner":  3,
}

// EntitlementGate is a pure (no I/O) set of admission assertions
// evaluated against the Entitlements snapshot cached on a Session at
// attach time, per spec.md §4.F and invariant 6.
type EntitlementGate struct{}

// NewEntitlementGate constructs the gate. It holds no state: every
// method is a pure function of its arguments.
func NewEntitlementGate() *EntitlementGate { return &EntitlementGate{} }

// AssertSubscriptionActive rejects any status other than "active". A
// past_due subscription fails with a payment-required-style code.
func (EntitlementGate) AssertSubscriptionActive(ent Entitlements) error {
	if ent.Subscription.Status != "active" {
		return streamerr.New(streamerr.SubscriptionInactive,
			"subscription status is "+ent.Subscription.Status)
	}
	return nil
}

// AssertLanguageLimit rejects a request exceeding the plan's
// simultaneous-language limit.
func (EntitlementGate) AssertLanguageLimit(ent Entitlements, requestedCount int) error {
	if requestedCount > ent.Limits.MaxSimultaneousLanguages {
		return streamerr.New(streamerr.FeatureDisabled,
			"requested language count exceeds plan limit")
	}
	return nil
}

// AssertFeatureEnabled rejects if the named feature flag is absent or
// false.
func (EntitlementGate) AssertFeatureEnabled(ent Entitlements, name string) error {
	if !ent.Limits.FeatureFlags[name] {
		return streamerr.New(streamerr.FeatureDisabled, "feature not enabled: "+name)
	}
	return nil
}

// AssertRole rejects if the caller's role ranks below requiredRole in
// the documented ordering guest < member < admin < owner.
func (EntitlementGate) AssertRole(role, requiredRole string) error {
	have, ok := roleRank[role]
	if !ok {
		return streamerr.New(streamerr.InsufficientRole, "unknown role: "+role)
	}
	want, ok := roleRank[requiredRole]
	if !ok {
		return streamerr.New(streamerr.InsufficientRole, "unknown required role: "+requiredRole)
	}
	if have < want {
		return streamerr.New(streamerr.InsufficientRole, "role "+role+" insufficient, need "+requiredRole)
	}
	return nil
}
