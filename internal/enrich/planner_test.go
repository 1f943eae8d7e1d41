package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanQueries(t *testing.T) {
	tests := []struct {
		name string
		rec  OwnerRecord
		want []string
	}{
		{
			name: "single owner",
			rec:  OwnerRecord{Owners: []string{"JANE DOE"}},
			want: []string{"JANE DOE"},
		},
		{
			name: "compound cell splits on separators",
			rec:  OwnerRecord{Owners: []string{"J SMITH & M SMITH; R JONES"}},
			want: []string{"J SMITH", "M SMITH", "R JONES"},
		},
		{
			name: "corporate yields nothing",
			rec:  OwnerRecord{Owners: []string{"JANE DOE"}, Corporate: true},
			want: nil,
		},
		{
			name: "trust entities are skipped",
			rec:  OwnerRecord{Owners: []string{"DOE FAMILY TRUST", "JANE DOE"}},
			want: []string{"JANE DOE"},
		},
		{
			name: "duplicates collapse case-insensitively",
			rec:  OwnerRecord{Owners: []string{"Jane Doe", "JANE DOE / john doe"}},
			want: []string{"Jane Doe", "john doe"},
		},
		{
			name: "blank fragments dropped",
			rec:  OwnerRecord{Owners: []string{" & ", ""}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, PlanQueries(tt.rec))
		})
	}
}

func TestPlanQueriesIsDeterministic(t *testing.T) {
	rec := OwnerRecord{Owners: []string{"A ONE & B TWO", "C THREE, A ONE"}}
	first := PlanQueries(rec)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, PlanQueries(rec))
	}
}
