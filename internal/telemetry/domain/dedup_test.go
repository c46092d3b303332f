package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rec(entityID string, at time.Time, weight float64) Record {
	return Record{
		EntityID:   entityID,
		Resolution: ResolutionHourly,
		Time:       at,
		Values:     map[Field]float64{FieldWeight: weight},
	}
}

func TestUnseen_SkipsExistingTimes(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		rec("S1", base, 1),
		rec("S1", base.Add(time.Hour), 2),
		rec("S1", base.Add(2*time.Hour), 3),
	}
	existing := NewTimeSet(base, base.Add(2*time.Hour))

	fresh := Unseen(records, existing)

	assert.Equal(t, []Record{records[1]}, fresh)
}

func TestUnseen_CollapsesBatchDuplicates(t *testing.T) {
	at := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)
	records := []Record{rec("S1", at, 1), rec("S1", at.In(time.FixedZone("CET", 3600)), 2)}

	fresh := Unseen(records, nil)

	assert.Len(t, fresh, 1)
	assert.Equal(t, 1.0, fresh[0].Values[FieldWeight])
}

func TestTimeSet_IgnoresLocation(t *testing.T) {
	at := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)
	set := NewTimeSet(at.In(time.FixedZone("X", -7200)))

	assert.True(t, set.Has(at))
	assert.False(t, set.Has(at.Add(time.Microsecond)))
	assert.False(t, TimeSet(nil).Has(at))
}

func TestRangeQuery_Validate(t *testing.T) {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start

	assert.ErrorIs(t, RangeQuery{Resolution: ResolutionHourly, Start: &start, End: &end}.Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, RangeQuery{Resolution: "weekly"}.Validate(), ErrUnknownResolution)

	end = start.Add(time.Hour)
	assert.NoError(t, RangeQuery{Resolution: ResolutionDaily, Start: &start, End: &end}.Validate())
}
