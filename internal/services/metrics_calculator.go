package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
)

// rrPlaces is the precision of reported RR statistics.
const rrPlaces = 4

// Top performer defaults.
const (
	DefaultTopPerformersMinTrades = 5
	DefaultTopPerformersLimit     = 20
)

// TopPerformerSort is the metric top performers are ranked by.
type TopPerformerSort string

const (
	SortByWinRate          TopPerformerSort = "win_rate"
	SortByTotalSignals     TopPerformerSort = "total_signals"
	SortByAvgRR            TopPerformerSort = "avg_rr"
	SortByPerformanceScore TopPerformerSort = "score"
)

// ParseTopPerformerSort accepts the sort names and a few aliases. Empty
// selects win rate.
func ParseTopPerformerSort(raw string) (TopPerformerSort, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "win_rate", "winrate":
		return SortByWinRate, nil
	case "total_signals", "signals":
		return SortByTotalSignals, nil
	case "avg_rr", "rr":
		return SortByAvgRR, nil
	case "score", "performance_score":
		return SortByPerformanceScore, nil
	}
	return "", fmt.Errorf("%w: sort must be one of win_rate, total_signals, avg_rr, score (got %q)", ErrInvalidFilter, raw)
}

func (s TopPerformerSort) value(p models.TopPerformer) float64 {
	switch s {
	case SortByTotalSignals:
		return float64(p.TotalSignals)
	case SortByAvgRR:
		return p.AvgRR
	case SortByPerformanceScore:
		return p.PerformanceScore
	default:
		return p.WinRate
	}
}

// ApplyRiskReward fills risk distance, per-target RR, planned RR and
// realized RR on every signal. Undefined ratios stay nil.
func ApplyRiskReward(signals []models.Signal) {
	for i := range signals {
		applyRiskReward(&signals[i])
	}
}

func applyRiskReward(s *models.Signal) {
	s.RiskDistance, s.RRPlanned, s.RRRealized = nil, nil, nil
	s.RRTarget1, s.RRTarget2, s.RRTarget3, s.RRTarget4 = nil, nil, nil, nil

	stop := s.Stop1
	if stop == nil {
		stop = s.Stop2
	}
	if s.Entry != nil && stop != nil {
		s.RiskDistance = models.Float(math.Abs(*s.Entry - *stop))
	}

	targets := s.Targets()
	var rrs [4]*float64
	for i, target := range targets {
		rrs[i] = rewardRatio(s.Entry, target, s.RiskDistance)
	}
	s.RRTarget1, s.RRTarget2, s.RRTarget3, s.RRTarget4 = rrs[0], rrs[1], rrs[2], rrs[3]

	for i := len(targets) - 1; i >= 0; i-- {
		if targets[i] != nil {
			s.RRPlanned = rrs[i]
			break
		}
	}

	switch {
	case s.FinalOutcome.IsWin():
		s.RRRealized = rrs[s.FinalOutcome.TPLevel()-1]
	case s.FinalOutcome.IsLoss():
		s.RRRealized = models.Float(-1)
	}
}

// rewardRatio is |target-entry|/risk, or nil unless risk is positive and
// every operand is present.
func rewardRatio(entry, target, risk *float64) *float64 {
	if entry == nil || target == nil || risk == nil || *risk <= 0 {
		return nil
	}
	return models.Float(math.Abs(*target-*entry) / *risk)
}

func plannedRRs(signals []models.Signal) []float64 {
	values := make([]float64, 0, len(signals))
	for _, s := range signals {
		if s.RRPlanned != nil {
			values = append(values, *s.RRPlanned)
		}
	}
	return values
}

// CalculatePortfolioMetrics aggregates counts, win rate and RR statistics.
func CalculatePortfolioMetrics(signals []models.Signal) models.PortfolioMetrics {
	m := models.PortfolioMetrics{TotalSignals: len(signals)}
	realized := make([]float64, 0, len(signals))
	for _, s := range signals {
		if s.FinalOutcome.IsClosed() {
			m.ClosedTrades++
		}
		if s.FinalOutcome.IsWin() {
			m.TPHits++
		}
		if s.FinalOutcome.IsLoss() {
			m.SLHits++
		}
		if s.RRRealized != nil {
			realized = append(realized, *s.RRRealized)
		}
	}
	m.OpenSignals = m.TotalSignals - m.ClosedTrades
	m.WinRate = percent(m.TPHits, m.ClosedTrades)

	if planned := plannedRRs(signals); len(planned) > 0 {
		lo, hi := minMax(planned)
		m.AvgRRPlanned = models.Float(Round(mean(planned), rrPlaces))
		m.MedianRRPlanned = models.Float(Round(median(planned), rrPlaces))
		m.MinRRPlanned = models.Float(Round(lo, rrPlaces))
		m.MaxRRPlanned = models.Float(Round(hi, rrPlaces))
	}
	if len(realized) > 0 {
		m.AvgRRRealized = models.Float(Round(mean(realized), rrPlaces))
		m.TotalRRRealized = models.Float(Round(sum(realized), rrPlaces))
	}
	return m
}

// GroupByPair splits signals by pair, keeping input order within a group.
func GroupByPair(signals []models.Signal) map[string][]models.Signal {
	groups := make(map[string][]models.Signal)
	for _, s := range signals {
		groups[s.Pair] = append(groups[s.Pair], s)
	}
	return groups
}

// CalculatePairMetrics returns portfolio metrics per pair, sorted by win
// rate, then signal count, then pair name.
func CalculatePairMetrics(signals []models.Signal) []models.PairMetrics {
	groups := GroupByPair(signals)
	result := make([]models.PairMetrics, 0, len(groups))
	for pair, group := range groups {
		result = append(result, models.PairMetrics{Pair: pair, PortfolioMetrics: CalculatePortfolioMetrics(group)})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		if a.TotalSignals != b.TotalSignals {
			return a.TotalSignals > b.TotalSignals
		}
		return a.Pair < b.Pair
	})
	return result
}

// rrBinEdges are the lower bounds of the planned RR histogram; the last bin
// is open-ended.
var rrBinEdges = []float64{0, 1, 2, 3, 4, 5}

// CalculateRRDistribution buckets planned RR into half-open unit bins.
func CalculateRRDistribution(signals []models.Signal) models.RRDistribution {
	dist := models.RRDistribution{Buckets: make([]models.RRBucket, len(rrBinEdges))}
	for i, lower := range rrBinEdges {
		b := models.RRBucket{Lower: lower}
		if i+1 < len(rrBinEdges) {
			b.Upper = models.Float(rrBinEdges[i+1])
			b.Label = fmt.Sprintf("%g-%g", lower, rrBinEdges[i+1])
		} else {
			b.Label = fmt.Sprintf("%g+", lower)
		}
		dist.Buckets[i] = b
	}

	planned := plannedRRs(signals)
	for _, rr := range planned {
		for i := len(rrBinEdges) - 1; i >= 0; i-- {
			if rr >= rrBinEdges[i] {
				dist.Buckets[i].Count++
				break
			}
		}
	}
	dist.TotalSignals = len(planned)
	if len(planned) > 0 {
		dist.AvgRR = models.Float(Round(mean(planned), rrPlaces))
		dist.MedianRR = models.Float(Round(median(planned), rrPlaces))
	}
	return dist
}

// CalculatePairProfile breaks one pair's trades down by outcome. The
// boolean is false when no signal carries the pair.
func CalculatePairProfile(signals []models.Signal, pair string) (models.PairProfile, bool) {
	var group []models.Signal
	for _, s := range signals {
		if s.Pair == pair {
			group = append(group, s)
		}
	}
	if len(group) == 0 {
		return models.PairProfile{Pair: pair}, false
	}
	return pairProfile(pair, group), true
}

// CalculatePairProfiles profiles every pair, most signals first.
func CalculatePairProfiles(signals []models.Signal) []models.PairProfile {
	groups := GroupByPair(signals)
	profiles := make([]models.PairProfile, 0, len(groups))
	for pair, group := range groups {
		profiles = append(profiles, pairProfile(pair, group))
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].TotalSignals != profiles[j].TotalSignals {
			return profiles[i].TotalSignals > profiles[j].TotalSignals
		}
		return profiles[i].Pair < profiles[j].Pair
	})
	return profiles
}

func pairProfile(pair string, group []models.Signal) models.PairProfile {
	p := models.PairProfile{Pair: pair, TotalSignals: len(group)}
	counts := outcomeCounts(group)
	for _, o := range models.ClosedOutcomes {
		p.ClosedTrades += counts[o]
	}
	p.OpenSignals = p.TotalSignals - p.ClosedTrades
	p.TP1Count, p.TP2Count = counts[models.OutcomeTP1], counts[models.OutcomeTP2]
	p.TP3Count, p.TP4Count = counts[models.OutcomeTP3], counts[models.OutcomeTP4]
	p.SLCount = counts[models.OutcomeSL]

	p.TP1Rate = percent(p.TP1Count, p.ClosedTrades)
	p.TP2Rate = percent(p.TP2Count, p.ClosedTrades)
	p.TP3Rate = percent(p.TP3Count, p.ClosedTrades)
	p.TP4Rate = percent(p.TP4Count, p.ClosedTrades)
	p.SLRate = percent(p.SLCount, p.ClosedTrades)
	p.WinRate = percent(p.ClosedTrades-p.SLCount, p.ClosedTrades)

	if planned := plannedRRs(group); len(planned) > 0 {
		worst, best := minMax(planned)
		p.AvgRR = Round(mean(planned), rrPlaces)
		p.MedianRR = Round(median(planned), rrPlaces)
		p.BestRR = Round(best, rrPlaces)
		p.WorstRR = Round(worst, rrPlaces)
	}
	return p
}

func outcomeCounts(signals []models.Signal) map[models.Outcome]int {
	counts := make(map[models.Outcome]int, len(models.ClosedOutcomes)+1)
	for _, s := range signals {
		counts[s.FinalOutcome]++
	}
	return counts
}

// PerformanceScore weighs win rate (40%), signal volume saturating at 20
// signals (30%) and average planned RR saturating at 5 (30%).
func PerformanceScore(winRate float64, totalSignals int, avgRR float64) float64 {
	volume := math.Min(float64(totalSignals)/20*100, 100)
	rr := math.Min(avgRR/5*100, 100)
	return Round(winRate*0.4+volume*0.3+rr*0.3, 2)
}

// CalculateTopPerformers ranks pairs with at least minTrades closed trades
// by the chosen metric, highest first. Ties go to the higher performance
// score, then the pair name. Non-positive arguments select the defaults.
func CalculateTopPerformers(signals []models.Signal, minTrades, limit int, by TopPerformerSort) []models.TopPerformer {
	if minTrades <= 0 {
		minTrades = DefaultTopPerformersMinTrades
	}
	if limit <= 0 {
		limit = DefaultTopPerformersLimit
	}

	performers := []models.TopPerformer{}
	for _, p := range CalculatePairProfiles(signals) {
		if p.ClosedTrades < minTrades {
			continue
		}
		performers = append(performers, models.TopPerformer{
			Pair:             p.Pair,
			TotalSignals:     p.TotalSignals,
			ClosedTrades:     p.ClosedTrades,
			OpenSignals:      p.OpenSignals,
			WinRate:          p.WinRate,
			TP1Count:         p.TP1Count,
			TP2Count:         p.TP2Count,
			TP3Count:         p.TP3Count,
			TP4Count:         p.TP4Count,
			SLCount:          p.SLCount,
			AvgRR:            p.AvgRR,
			PerformanceScore: PerformanceScore(p.WinRate, p.TotalSignals, p.AvgRR),
		})
	}
	sort.SliceStable(performers, func(i, j int) bool {
		if vi, vj := by.value(performers[i]), by.value(performers[j]); vi != vj {
			return vi > vj
		}
		if performers[i].PerformanceScore != performers[j].PerformanceScore {
			return performers[i].PerformanceScore > performers[j].PerformanceScore
		}
		return performers[i].Pair < performers[j].Pair
	})
	if len(performers) > limit {
		performers = performers[:limit]
	}
	return performers
}

// CalculateSummary returns the headline scalars of a signal set.
func CalculateSummary(signals []models.Signal) models.Summary {
	m := CalculatePortfolioMetrics(signals)
	s := models.Summary{
		TotalSignals:   m.TotalSignals,
		ClosedTrades:   m.ClosedTrades,
		OpenSignals:    m.OpenSignals,
		UniquePairs:    len(GroupByPair(signals)),
		WinRate:        m.WinRate,
		CompletionRate: percent(m.ClosedTrades, m.TotalSignals),
		DateRange:      dateRange(signals),
	}
	if m.AvgRRPlanned != nil {
		s.AvgRR = *m.AvgRRPlanned
	}
	return s
}

func dateRange(signals []models.Signal) *models.DateRange {
	if len(signals) == 0 {
		return nil
	}
	start, end := signals[0].CreatedAt, signals[0].CreatedAt
	for _, s := range signals[1:] {
		if s.CreatedAt.Before(start) {
			start = s.CreatedAt
		}
		if s.CreatedAt.After(end) {
			end = s.CreatedAt
		}
	}
	return &models.DateRange{Start: start, End: end, Days: int(end.Sub(start).Hours() / 24)}
}
