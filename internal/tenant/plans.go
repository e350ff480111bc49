package tenant

// WindowLimits caps request counts over the fixed quota windows. Zero means
// the window is not enforced.
type WindowLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
	PerMonth  int
}

// ServiceLimits are the per-service sub-limits. They are intentionally
// coarser than the global tier: only minute and day windows apply.
type ServiceLimits struct {
	PerMinute int
	PerDay    int
}

// PlanLimits defines the quota envelope for a pricing tier.
type PlanLimits struct {
	Plan    Plan
	Global  WindowLimits
	Service map[string]ServiceLimits // keyed by service type: sms, email, data, airtime
}

// Plans is the hardcoded plan catalogue.
var Plans = map[Plan]PlanLimits{
	PlanFree: {
		Plan:   PlanFree,
		Global: WindowLimits{PerMinute: 10, PerHour: 100, PerDay: 500, PerMonth: 5000},
		Service: map[string]ServiceLimits{
			"sms":     {PerMinute: 5, PerDay: 200},
			"email":   {PerMinute: 5, PerDay: 200},
			"data":    {PerMinute: 2, PerDay: 50},
			"airtime": {PerMinute: 2, PerDay: 50},
		},
	},
	PlanStarter: {
		Plan:   PlanStarter,
		Global: WindowLimits{PerMinute: 60, PerHour: 1000, PerDay: 10000, PerMonth: 100000},
		Service: map[string]ServiceLimits{
			"sms":     {PerMinute: 30, PerDay: 5000},
			"email":   {PerMinute: 30, PerDay: 5000},
			"data":    {PerMinute: 10, PerDay: 1000},
			"airtime": {PerMinute: 10, PerDay: 1000},
		},
	},
	PlanGrowth: {
		Plan:   PlanGrowth,
		Global: WindowLimits{PerMinute: 300, PerHour: 10000, PerDay: 100000, PerMonth: 1000000},
		Service: map[string]ServiceLimits{
			"sms":     {PerMinute: 150, PerDay: 50000},
			"email":   {PerMinute: 150, PerDay: 50000},
			"data":    {PerMinute: 50, PerDay: 10000},
			"airtime": {PerMinute: 50, PerDay: 10000},
		},
	},
	PlanEnterprise: {
		Plan:   PlanEnterprise,
		Global: WindowLimits{PerMinute: 2000, PerHour: 60000, PerDay: 1000000, PerMonth: 10000000},
		Service: map[string]ServiceLimits{
			"sms":     {PerMinute: 1000, PerDay: 500000},
			"email":   {PerMinute: 1000, PerDay: 500000},
			"data":    {PerMinute: 300, PerDay: 100000},
			"airtime": {PerMinute: 300, PerDay: 100000},
		},
	},
}

// LimitsForPlan returns the quota envelope for a plan, falling back to the
// free tier for unknown plans.
func LimitsForPlan(p Plan) PlanLimits {
	limits, ok := Plans[p]
	if !ok {
		return Plans[PlanFree]
	}
	return limits
}

// ValidPlan returns true if the plan name is recognised.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}
