package plan

import "xgrowth/internal/model"

// LimitSet is the per-user action budget. Numeric fields are daily counts
// except HourlyActionCap, which spans reply/like/tweet/follow combined.
type LimitSet struct {
	RepliesPerDay   int
	TweetsPerDay    int
	LikesPerDay     int
	TopicsTracked   int
	HourlyActionCap int
	AllowFollow     bool
}

var internalPlanLimits = map[model.PlanTier]LimitSet{
	model.PlanFree: {
		RepliesPerDay:   20,
		TweetsPerDay:    5,
		LikesPerDay:     30,
		TopicsTracked:   5,
		HourlyActionCap: 12,
		AllowFollow:     false,
	},
	model.PlanPro: {
		RepliesPerDay:   120,
		TweetsPerDay:    30,
		LikesPerDay:     150,
		TopicsTracked:   30,
		HourlyActionCap: 60,
		AllowFollow:     true,
	},
	model.PlanTeam: {
		RepliesPerDay:   400,
		TweetsPerDay:    120,
		LikesPerDay:     500,
		TopicsTracked:   100,
		HourlyActionCap: 220,
		AllowFollow:     true,
	},
}

var paidTierLimits = map[model.PaidTier]LimitSet{
	model.TierFree: {
		RepliesPerDay:   10,
		TweetsPerDay:    5,
		LikesPerDay:     20,
		TopicsTracked:   3,
		HourlyActionCap: 8,
		AllowFollow:     false,
	},
	model.TierBasic: {
		RepliesPerDay:   100,
		TweetsPerDay:    25,
		LikesPerDay:     120,
		TopicsTracked:   20,
		HourlyActionCap: 45,
		AllowFollow:     false,
	},
	model.TierPro: {
		RepliesPerDay:   500,
		TweetsPerDay:    150,
		LikesPerDay:     800,
		TopicsTracked:   200,
		HourlyActionCap: 250,
		AllowFollow:     true,
	},
	model.TierEnterprise: {
		RepliesPerDay:   5000,
		TweetsPerDay:    2000,
		LikesPerDay:     10000,
		TopicsTracked:   1000,
		HourlyActionCap: 1000,
		AllowFollow:     true,
	},
}

// Effective combines the internal plan table and the X paid tier table.
// Numeric fields take the field-wise minimum; AllowFollow requires both.
// Unknown tiers fall back to the lowest tier of the respective table.
func Effective(p model.PlanTier, t model.PaidTier) LimitSet {
	internal, ok := internalPlanLimits[p]
	if !ok {
		internal = internalPlanLimits[model.PlanFree]
	}
	external, ok := paidTierLimits[t]
	if !ok {
		external = paidTierLimits[model.TierFree]
	}
	return LimitSet{
		RepliesPerDay:   min(internal.RepliesPerDay, external.RepliesPerDay),
		TweetsPerDay:    min(internal.TweetsPerDay, external.TweetsPerDay),
		LikesPerDay:     min(internal.LikesPerDay, external.LikesPerDay),
		TopicsTracked:   min(internal.TopicsTracked, external.TopicsTracked),
		HourlyActionCap: min(internal.HourlyActionCap, external.HourlyActionCap),
		AllowFollow:     internal.AllowFollow && external.AllowFollow,
	}
}
