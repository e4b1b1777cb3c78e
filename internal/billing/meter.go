// Package billing converts usage quantities into monetary cost.
//
// All results are fixed-point decimals rounded to 4 places. Rounding is
// half-up; costs are never negative, so decimal.Round (half away from zero)
// gives exactly that. Nothing here performs I/O or mutates state — the
// interview store owns the accumulators, this package only produces the
// increments.
package billing

import "github.com/shopspring/decimal"

const costPlaces = 4

// Rates carries the injected pricing for the speech and realtime billing
// dimensions. Chat pricing is per-model (see rates.go).
type Rates struct {
	STTPerMinute        decimal.Decimal
	TTSPer1KChars       decimal.Decimal
	RealtimeAudioInMin  decimal.Decimal
	RealtimeAudioOutMin decimal.Decimal
	RealtimeTextIn1K    decimal.Decimal
	RealtimeTextOut1K   decimal.Decimal
}

// NewRates builds Rates from plain float configuration values.
func NewRates(sttPerMin, ttsPer1K, rtAudioInMin, rtAudioOutMin, rtTextIn1K, rtTextOut1K float64) Rates {
	return Rates{
		STTPerMinute:        decimal.NewFromFloat(sttPerMin),
		TTSPer1KChars:       decimal.NewFromFloat(ttsPer1K),
		RealtimeAudioInMin:  decimal.NewFromFloat(rtAudioInMin),
		RealtimeAudioOutMin: decimal.NewFromFloat(rtAudioOutMin),
		RealtimeTextIn1K:    decimal.NewFromFloat(rtTextIn1K),
		RealtimeTextOut1K:   decimal.NewFromFloat(rtTextOut1K),
	}
}

// STTCost prices speech-to-text by duration. Non-positive durations cost
// exactly zero.
func (r Rates) STTCost(durationSeconds float64) decimal.Decimal {
	if durationSeconds <= 0 {
		return decimal.Zero.Round(costPlaces)
	}
	minutes := decimal.NewFromFloat(durationSeconds).Div(decimal.NewFromInt(60))
	return minutes.Mul(r.STTPerMinute).Round(costPlaces)
}

// TTSCost prices text-to-speech by character count.
func (r Rates) TTSCost(text string) decimal.Decimal {
	if len(text) == 0 {
		return decimal.Zero.Round(costPlaces)
	}
	chars := decimal.NewFromInt(int64(len(text)))
	return chars.Div(decimal.NewFromInt(1000)).Mul(r.TTSPer1KChars).Round(costPlaces)
}

// TotalSpeechCost sums the STT and TTS cost of one spoken exchange.
func (r Rates) TotalSpeechCost(sttSeconds float64, ttsText string) decimal.Decimal {
	return r.STTCost(sttSeconds).Add(r.TTSCost(ttsText)).Round(costPlaces)
}

// RealtimeBreakdown reports the four realtime sub-costs and their total,
// each independently rounded.
type RealtimeBreakdown struct {
	InputAudio  decimal.Decimal
	OutputAudio decimal.Decimal
	InputText   decimal.Decimal
	OutputText  decimal.Decimal
	Total       decimal.Decimal
}

// RealtimeCost prices one realtime audio exchange.
func (r Rates) RealtimeCost(inputAudioSeconds, outputAudioSeconds float64, inputTextTokens, outputTextTokens int) RealtimeBreakdown {
	sixty := decimal.NewFromInt(60)
	thousand := decimal.NewFromInt(1000)

	b := RealtimeBreakdown{
		InputAudio:  decimal.NewFromFloat(maxZero(inputAudioSeconds)).Div(sixty).Mul(r.RealtimeAudioInMin).Round(costPlaces),
		OutputAudio: decimal.NewFromFloat(maxZero(outputAudioSeconds)).Div(sixty).Mul(r.RealtimeAudioOutMin).Round(costPlaces),
		InputText:   decimal.NewFromInt(int64(maxZeroInt(inputTextTokens))).Div(thousand).Mul(r.RealtimeTextIn1K).Round(costPlaces),
		OutputText:  decimal.NewFromInt(int64(maxZeroInt(outputTextTokens))).Div(thousand).Mul(r.RealtimeTextOut1K).Round(costPlaces),
	}
	b.Total = b.InputAudio.Add(b.OutputAudio).Add(b.InputText).Add(b.OutputText).Round(costPlaces)
	return b
}

// ChatCost prices a chat completion by token counts against the per-model
// table. Unknown models fail with *ErrUnknownModel.
func ChatCost(model string, inputTokens, outputTokens int) (decimal.Decimal, error) {
	rate := LookupModelRate(model)
	if rate == nil {
		return decimal.Decimal{}, &ErrUnknownModel{Model: model}
	}
	million := decimal.NewFromInt(1_000_000)
	in := decimal.NewFromInt(int64(maxZeroInt(inputTokens))).Div(million).Mul(decimal.NewFromFloat(rate.InputPerMTok))
	out := decimal.NewFromInt(int64(maxZeroInt(outputTokens))).Div(million).Mul(decimal.NewFromFloat(rate.OutputPerMTok))
	return in.Add(out).Round(costPlaces), nil
}

func maxZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func maxZeroInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
