package analytics

import (
	"context"
	"sort"

	"github.com/HatiCode/glucoguard/pkg/storage"
)

type smokingTotals struct {
	count    int
	positive int
	probSum  float64
}

type meanTotals struct {
	n       int
	age     float64
	bmi     float64
	hba1c   float64
	glucose float64
}

func (m meanTotals) means() Means {
	return Means{
		Age:               mean(m.age, m.n),
		BMI:               mean(m.bmi, m.n),
		HbA1cLevel:        mean(m.hba1c, m.n),
		BloodGlucoseLevel: mean(m.glucose, m.n),
	}
}

type rateTotals struct {
	count    int
	positive int
}

func rates(t [2]rateTotals) []Rate {
	out := make([]Rate, len(t))
	for v, r := range t {
		out[v] = Rate{
			Value:         v,
			Count:         r.count,
			PositiveCases: r.positive,
			PositiveRate:  percent(r.positive, r.count),
		}
	}
	return out
}

// Accumulator folds records into dashboard totals. Memory use grows with
// the number of distinct genders and smoking values, not with records.
// The zero value is ready to use. It is not safe for concurrent use.
type Accumulator struct {
	total    int
	positive int
	probSum  float64
	bands    map[string]int
	genders  map[string]int
	smoking  map[string]*smokingTotals
	pos, neg meanTotals
	hyper    [2]rateTotals
	heart    [2]rateTotals
}

// Add folds one record into the totals.
func (a *Accumulator) Add(r storage.Record) {
	if a.bands == nil {
		a.bands = make(map[string]int, len(AgeBands))
		a.genders = make(map[string]int)
		a.smoking = make(map[string]*smokingTotals)
	}

	positive := r.Prediction == 1

	a.total++
	a.probSum += r.Probability
	if positive {
		a.positive++
	}

	a.bands[AgeBand(r.Age)]++
	a.genders[r.Gender]++

	st := a.smoking[r.SmokingHistory]
	if st == nil {
		st = &smokingTotals{}
		a.smoking[r.SmokingHistory] = st
	}
	st.count++
	st.probSum += r.Probability

	m := &a.neg
	if positive {
		m = &a.pos
		st.positive++
	}
	m.n++
	m.age += float64(r.Age)
	m.bmi += r.BMI
	m.hba1c += r.HbA1cLevel
	m.glucose += r.BloodGlucoseLevel

	addRate(&a.hyper, r.Hypertension, positive)
	addRate(&a.heart, r.HeartDisease, positive)
}

func addRate(t *[2]rateTotals, value int, positive bool) {
	if value < 0 || value > 1 {
		return
	}
	t[value].count++
	if positive {
		t[value].positive++
	}
}

// Stats returns the dashboard for everything added so far.
func (a *Accumulator) Stats() Stats {
	smoking := make([]SmokingGroup, 0, len(a.smoking))
	for value, st := range a.smoking {
		smoking = append(smoking, SmokingGroup{
			Value:          value,
			Count:          st.count,
			Percentage:     percent(st.count, a.total),
			PositiveCases:  st.positive,
			AvgProbability: mean(st.probSum, st.count),
		})
	}
	sortSmoking(smoking)

	return Stats{
		Overall: Overall{
			Total:          a.total,
			PositiveCases:  a.positive,
			NegativeCases:  a.total - a.positive,
			PositiveRate:   percent(a.positive, a.total),
			AvgProbability: mean(a.probSum, a.total),
		},
		AgeBands: bandShares(a.bands),
		Genders:  shares(a.genders),
		Smoking:  smoking,
		ConditionalMeans: ConditionalMeans{
			Positive: a.pos.means(),
			Negative: a.neg.means(),
		},
		Comorbidity: Comorbidity{
			Hypertension: rates(a.hyper),
			HeartDisease: rates(a.heart),
		},
	}
}

// bandShares reports every age band, including empty ones, in display
// order.
func bandShares(counts map[string]int) []Share {
	total := 0
	for _, n := range counts {
		total += n
	}

	out := make([]Share, len(AgeBands))
	for i, band := range AgeBands {
		out[i] = Share{Label: band, Count: counts[band], Percentage: percent(counts[band], total)}
	}
	return out
}

// shares converts counts into shares ordered by count descending, then
// label ascending.
func shares(counts map[string]int) []Share {
	total := 0
	for _, n := range counts {
		total += n
	}

	out := make([]Share, 0, len(counts))
	for label, n := range counts {
		out = append(out, Share{Label: label, Count: n, Percentage: percent(n, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func sortSmoking(groups []SmokingGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Value < groups[j].Value
	})
}

// RecordAggregator computes Stats by streaming every record of a store
// through an Accumulator. It works with any storage.Store.
type RecordAggregator struct {
	store storage.Store
}

// NewRecordAggregator creates an aggregator over store.
func NewRecordAggregator(store storage.Store) *RecordAggregator {
	return &RecordAggregator{store: store}
}

// Summary reads every record. A read failure fails the whole summary.
func (a *RecordAggregator) Summary(ctx context.Context) (Stats, error) {
	var acc Accumulator
	err := a.store.Each(ctx, func(r storage.Record) error {
		acc.Add(r)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return acc.Stats(), nil
}
