package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/svc/billing"
)

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("panics without plans", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			billing.NewCatalog(nil, nil)
		})
	})

	t.Run("lowest rank is the free tier", func(t *testing.T) {
		t.Parallel()
		catalog := testCatalog()
		assert.Equal(t, "free", catalog.FreePlan().ID)
	})

	t.Run("resolves plans and packages", func(t *testing.T) {
		t.Parallel()
		catalog := testCatalog()

		plan, ok := catalog.Plan("pro")
		require.True(t, ok)
		assert.Equal(t, 2, plan.Rank)

		_, ok = catalog.Plan("enterprise")
		assert.False(t, ok)

		pkg, ok := catalog.CreditPackage("credits-150")
		require.True(t, ok)
		assert.EqualValues(t, 150, pkg.Credits)
	})

	t.Run("returned plans are copies", func(t *testing.T) {
		t.Parallel()
		catalog := testCatalog()

		plan, ok := catalog.Plan("pro")
		require.True(t, ok)
		plan.Prices[billing.CycleMonthly] = 1

		again, ok := catalog.Plan("pro")
		require.True(t, ok)
		assert.EqualValues(t, 24900, again.Prices[billing.CycleMonthly])
	})
}

func TestPlanPerDayRate(t *testing.T) {
	t.Parallel()

	plan := billing.Plan{Prices: map[billing.BillingCycle]int64{
		billing.CycleMonthly: 9900,
		billing.CycleYearly:  99000,
	}}

	assert.EqualValues(t, 330, plan.PerDayRate(billing.CycleMonthly))
	assert.EqualValues(t, 271, plan.PerDayRate(billing.CycleYearly))
	assert.Zero(t, billing.Plan{}.PerDayRate(billing.CycleMonthly))
}
