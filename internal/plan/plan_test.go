package plan

import (
	"testing"

	"xgrowth/internal/model"
)

func TestEffectiveTakesFieldwiseMin(t *testing.T) {
	got := Effective(model.PlanPro, model.TierBasic)
	want := LimitSet{
		RepliesPerDay:   100, // BASIC is tighter
		TweetsPerDay:    25,
		LikesPerDay:     120,
		TopicsTracked:   20,
		HourlyActionCap: 45,
		AllowFollow:     false, // BASIC forbids follows even though PRO allows
	}
	if got != want {
		t.Fatalf("Effective(PRO, BASIC) = %+v, want %+v", got, want)
	}
}

func TestEffectiveFollowRequiresBoth(t *testing.T) {
	if Effective(model.PlanFree, model.TierEnterprise).AllowFollow {
		t.Fatal("FREE plan should never allow follows")
	}
	if Effective(model.PlanTeam, model.TierFree).AllowFollow {
		t.Fatal("FREE api tier should never allow follows")
	}
	if !Effective(model.PlanPro, model.TierPro).AllowFollow {
		t.Fatal("PRO/PRO should allow follows")
	}
}

func TestEffectiveUnknownTiersFallToLowest(t *testing.T) {
	got := Effective(model.PlanTier("MYSTERY"), model.PaidTier("???"))
	want := Effective(model.PlanFree, model.TierFree)
	if got != want {
		t.Fatalf("unknown tiers = %+v, want lowest %+v", got, want)
	}
}

func TestEffectiveNeverExceedsEitherTable(t *testing.T) {
	plans := []model.PlanTier{model.PlanFree, model.PlanPro, model.PlanTeam}
	tiers := []model.PaidTier{model.TierFree, model.TierBasic, model.TierPro, model.TierEnterprise}
	for _, p := range plans {
		for _, tr := range tiers {
			eff := Effective(p, tr)
			in := internalPlanLimits[p]
			ex := paidTierLimits[tr]
			if eff.RepliesPerDay > in.RepliesPerDay || eff.RepliesPerDay > ex.RepliesPerDay {
				t.Errorf("%s/%s replies %d exceeds a source table", p, tr, eff.RepliesPerDay)
			}
			if eff.HourlyActionCap > in.HourlyActionCap || eff.HourlyActionCap > ex.HourlyActionCap {
				t.Errorf("%s/%s hourly %d exceeds a source table", p, tr, eff.HourlyActionCap)
			}
		}
	}
}
