package domain

import (
	"github.com/shopspring/decimal"
)

// MillisPerDay is the number of milliseconds in a day.
const MillisPerDay = int64(24 * 60 * 60 * 1000)

// JourneyStep is one touchpoint in a journey after near-duplicate collapse.
type JourneyStep struct {
	Touchpoint *Touchpoint
	// Collapsed counts the near-duplicate touchpoints merged into this one.
	Collapsed int
}

// Journey is the ordered sequence of a customer's touchpoints leading up to
// and including a conversion. The conversion is always the last step.
type Journey struct {
	TenantID     string
	IdentityKey  string
	Conversion   *Touchpoint
	Steps        []JourneyStep
	LookbackDays int
}

// Len returns the number of steps.
func (j *Journey) Len() int {
	return len(j.Steps)
}

// DurationMs returns the time between the first step and the conversion.
func (j *Journey) DurationMs() int64 {
	if len(j.Steps) == 0 {
		return 0
	}
	return j.Steps[len(j.Steps)-1].Touchpoint.OccurredAt - j.Steps[0].Touchpoint.OccurredAt
}

// Channels returns the channel sequence of the journey.
func (j *Journey) Channels() []string {
	out := make([]string, len(j.Steps))
	for i, s := range j.Steps {
		out[i] = s.Touchpoint.Channel
	}
	return out
}

// StepCredit is the credit assigned to one journey step.
type StepCredit struct {
	Index        int
	TouchpointID string
	Channel      string
	Campaign     string
	OccurredAt   int64
	Weight       float64         // normalized model weight
	Credit       decimal.Decimal // share of the conversion value
	OrderShare   decimal.Decimal // share of one order
}

// ChannelCredit is an aggregated credit for a channel, optionally per campaign.
type ChannelCredit struct {
	Channel    string
	Campaign   string
	Credit     decimal.Decimal
	OrderShare decimal.Decimal
	Steps      int
}

// AttributionResult is the output of applying one model to one journey.
// Credits always sum to the conversion value exactly.
type AttributionResult struct {
	Model           ModelType
	ConversionID    string
	OrderID         string
	ConversionValue decimal.Decimal
	Steps           []StepCredit
}

// ByChannel sums step credits per channel, in first-appearance order.
func (r *AttributionResult) ByChannel() []ChannelCredit {
	return r.group(func(s StepCredit) (string, string) { return s.Channel, "" })
}

// ByCampaign sums step credits per (channel, campaign), in first-appearance order.
func (r *AttributionResult) ByCampaign() []ChannelCredit {
	return r.group(func(s StepCredit) (string, string) { return s.Channel, s.Campaign })
}

func (r *AttributionResult) group(key func(StepCredit) (string, string)) []ChannelCredit {
	idx := make(map[[2]string]int)
	var out []ChannelCredit
	for _, s := range r.Steps {
		ch, camp := key(s)
		k := [2]string{ch, camp}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, ChannelCredit{Channel: ch, Campaign: camp, Credit: decimal.Zero, OrderShare: decimal.Zero})
		}
		out[i].Credit = out[i].Credit.Add(s.Credit)
		out[i].OrderShare = out[i].OrderShare.Add(s.OrderShare)
		out[i].Steps++
	}
	return out
}

// Total returns the sum of all step credits.
func (r *AttributionResult) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range r.Steps {
		sum = sum.Add(s.Credit)
	}
	return sum
}
