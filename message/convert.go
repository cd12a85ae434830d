package message

import "math"

// PercentToStep implements the §4.1 upgrade conversion: older specs send a
// [0.0,1.0] float, Current uses an integer step bounded by the feature's
// StepLimit. An input of exactly 0 always produces step 0 ("stop"), even
// when limit.Start() is non-zero; every other input is scaled into the
// limit and rounded up.
func PercentToStep(pct float64, limit StepRange) uint32 {
	if pct <= 0 {
		return 0
	}
	span := float64(limit.End() - limit.Start())
	step := uint32(math.Ceil(pct*span)) + limit.Start()
	if step > limit.End() {
		step = limit.End()
	}
	return step
}

// StepToPercent is the downgrade-direction inverse of PercentToStep. Step 0
// always downgrades to exactly 0.0, regardless of limit.Start().
func StepToPercent(step uint32, limit StepRange) float64 {
	if step == 0 {
		return 0
	}
	span := float64(limit.End() - limit.Start())
	if span <= 0 {
		return 0
	}
	return float64(step-limit.Start()) / span
}
