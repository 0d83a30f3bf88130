package billing

import "maps"

// BillingCycle is the length of a subscription period.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Days returns the nominal number of days in one period of the cycle, used
// for per-day rate calculations.
func (c BillingCycle) Days() int {
	if c == CycleYearly {
		return 365
	}
	return 30
}

// Plan is a subscription tier. Rank orders plans for upgrade/downgrade
// comparison; a higher rank is a strictly better plan.
type Plan struct {
	ID                   string
	Name                 string
	Rank                 int
	DailyGenerationLimit int
	// PeriodCredits is the number of credits granted on each successful
	// subscription charge.
	PeriodCredits int64
	// Prices maps billing cycle to the charge amount in currency minor units.
	Prices map[BillingCycle]int64
}

// Price returns the plan's charge amount for the given cycle.
func (p Plan) Price(cycle BillingCycle) (int64, bool) {
	price, ok := p.Prices[cycle]
	return price, ok
}

// PerDayRate returns the plan's cost per day for the given cycle, zero when
// the cycle is not offered.
func (p Plan) PerDayRate(cycle BillingCycle) int64 {
	price, ok := p.Prices[cycle]
	if !ok {
		return 0
	}
	return price / int64(cycle.Days())
}

// CreditPackage is a one-off purchasable bundle of credits.
type CreditPackage struct {
	ID      string
	Name    string
	Credits int64
	// Price in currency minor units.
	Price int64
}

// Catalog resolves plan and credit-package identifiers.
type Catalog interface {
	Plan(id string) (Plan, bool)
	CreditPackage(id string) (CreditPackage, bool)
	// FreePlan is the tier accounts fall back to when a subscription ends.
	FreePlan() Plan
}

type inMemCatalog struct {
	plans    map[string]Plan
	packages map[string]CreditPackage
	freePlan Plan
}

// NewCatalog returns an in-memory Catalog with a deep copy of the given plans
// and packages. The lowest-ranked plan is the free tier. Panics if no plans
// are provided so the service always has a fallback tier.
func NewCatalog(plans []Plan, packages []CreditPackage) Catalog {
	if len(plans) == 0 {
		panic("at least one plan is required")
	}

	plansCopy := make(map[string]Plan, len(plans))
	free := plans[0]
	for _, plan := range plans {
		plan.Prices = maps.Clone(plan.Prices)
		plansCopy[plan.ID] = plan
		if plan.Rank < free.Rank {
			free = plan
		}
	}
	free.Prices = maps.Clone(free.Prices)

	packagesCopy := make(map[string]CreditPackage, len(packages))
	for _, pkg := range packages {
		packagesCopy[pkg.ID] = pkg
	}

	return &inMemCatalog{
		plans:    plansCopy,
		packages: packagesCopy,
		freePlan: free,
	}
}

func (c *inMemCatalog) Plan(id string) (Plan, bool) {
	plan, ok := c.plans[id]
	if ok {
		plan.Prices = maps.Clone(plan.Prices)
	}
	return plan, ok
}

func (c *inMemCatalog) CreditPackage(id string) (CreditPackage, bool) {
	pkg, ok := c.packages[id]
	return pkg, ok
}

func (c *inMemCatalog) FreePlan() Plan {
	free := c.freePlan
	free.Prices = maps.Clone(free.Prices)
	return free
}
