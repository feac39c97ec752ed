package analytics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

const positiveSum = `COALESCE(SUM(CASE WHEN prediction = 1 THEN 1 ELSE 0 END), 0)`

const (
	overallQuery = `SELECT COUNT(*), ` + positiveSum + `, COALESCE(SUM(probability), 0) FROM predictions`

	ageBandQuery = `SELECT CASE
			WHEN age < 30 THEN '<30'
			WHEN age <= 45 THEN '30-45'
			WHEN age <= 60 THEN '46-60'
			ELSE '>60'
		END AS band, COUNT(*)
		FROM predictions GROUP BY band`

	genderQuery = `SELECT gender, COUNT(*) FROM predictions GROUP BY gender`

	smokingQuery = `SELECT smoking_history, COUNT(*), ` + positiveSum + `, COALESCE(SUM(probability), 0)
		FROM predictions GROUP BY smoking_history`

	meansQuery = `SELECT prediction, COUNT(*),
		COALESCE(SUM(CAST(age AS DOUBLE PRECISION)), 0),
		COALESCE(SUM(bmi), 0),
		COALESCE(SUM(hba1c_level), 0),
		COALESCE(SUM(blood_glucose_level), 0)
		FROM predictions GROUP BY prediction`

	comorbidityQuery = `SELECT %s, COUNT(*), ` + positiveSum + ` FROM predictions GROUP BY %s`
)

// SQLAggregator computes Stats with GROUP BY queries against a SQL store.
//
// Each breakdown is one independent read-only query. Shares within a
// breakdown are computed from that query's own total, so every breakdown
// is internally consistent; breakdowns may disagree slightly when records
// are appended while a summary runs.
type SQLAggregator struct {
	db *sql.DB
}

// NewSQLAggregator creates an aggregator over the store's database.
func NewSQLAggregator(store *storage.SQLStore) *SQLAggregator {
	return &SQLAggregator{db: store.DB()}
}

// Summary runs every breakdown query on one scoped connection.
func (a *SQLAggregator) Summary(ctx context.Context) (Stats, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return Stats{}, errs.Storage("summary", err)
	}
	defer conn.Close()

	var stats Stats
	steps := []struct {
		name string
		run  func(context.Context, *sql.Conn, *Stats) error
	}{
		{"overall", queryOverall},
		{"age bands", queryAgeBands},
		{"genders", queryGenders},
		{"smoking", querySmoking},
		{"conditional means", queryMeans},
		{"comorbidity", queryComorbidity},
	}
	for _, step := range steps {
		if err := step.run(ctx, conn, &stats); err != nil {
			return Stats{}, errs.Storage("summary", fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return stats, nil
}

func queryOverall(ctx context.Context, conn *sql.Conn, s *Stats) error {
	var (
		total, positive int
		probSum         float64
	)
	if err := conn.QueryRowContext(ctx, overallQuery).Scan(&total, &positive, &probSum); err != nil {
		return err
	}

	s.Overall = Overall{
		Total:          total,
		PositiveCases:  positive,
		NegativeCases:  total - positive,
		PositiveRate:   percent(positive, total),
		AvgProbability: mean(probSum, total),
	}
	return nil
}

func queryAgeBands(ctx context.Context, conn *sql.Conn, s *Stats) error {
	counts, err := queryCounts(ctx, conn, ageBandQuery)
	if err != nil {
		return err
	}
	s.AgeBands = bandShares(counts)
	return nil
}

func queryGenders(ctx context.Context, conn *sql.Conn, s *Stats) error {
	counts, err := queryCounts(ctx, conn, genderQuery)
	if err != nil {
		return err
	}
	s.Genders = shares(counts)
	return nil
}

func queryCounts(ctx context.Context, conn *sql.Conn, query string) (map[string]int, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

func querySmoking(ctx context.Context, conn *sql.Conn, s *Stats) error {
	rows, err := conn.QueryContext(ctx, smokingQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	type row struct {
		value           string
		count, positive int
		probSum         float64
	}
	var (
		all   []row
		total int
	)
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.value, &r.count, &r.positive, &r.probSum); err != nil {
			return err
		}
		all = append(all, r)
		total += r.count
	}
	if err := rows.Err(); err != nil {
		return err
	}

	groups := make([]SmokingGroup, 0, len(all))
	for _, r := range all {
		groups = append(groups, SmokingGroup{
			Value:          r.value,
			Count:          r.count,
			Percentage:     percent(r.count, total),
			PositiveCases:  r.positive,
			AvgProbability: mean(r.probSum, r.count),
		})
	}
	sortSmoking(groups)
	s.Smoking = groups
	return nil
}

func queryMeans(ctx context.Context, conn *sql.Conn, s *Stats) error {
	rows, err := conn.QueryContext(ctx, meansQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	var pos, neg meanTotals
	for rows.Next() {
		var (
			prediction int
			m          meanTotals
		)
		if err := rows.Scan(&prediction, &m.n, &m.age, &m.bmi, &m.hba1c, &m.glucose); err != nil {
			return err
		}
		if prediction == 1 {
			pos = m
		} else {
			neg = m
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.ConditionalMeans = ConditionalMeans{Positive: pos.means(), Negative: neg.means()}
	return nil
}

func queryComorbidity(ctx context.Context, conn *sql.Conn, s *Stats) error {
	hyper, err := queryRates(ctx, conn, "hypertension")
	if err != nil {
		return err
	}
	heart, err := queryRates(ctx, conn, "heart_disease")
	if err != nil {
		return err
	}
	s.Comorbidity = Comorbidity{Hypertension: rates(hyper), HeartDisease: rates(heart)}
	return nil
}

// queryRates groups by column, which must be a trusted column name.
func queryRates(ctx context.Context, conn *sql.Conn, column string) ([2]rateTotals, error) {
	var out [2]rateTotals

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(comorbidityQuery, column, column))
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var value, count, positive int
		if err := rows.Scan(&value, &count, &positive); err != nil {
			return out, err
		}
		if value == 0 || value == 1 {
			out[value] = rateTotals{count: count, positive: positive}
		}
	}
	return out, rows.Err()
}
