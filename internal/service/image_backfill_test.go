package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/basel-ax/watchimage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	criteria    []domain.WatchRecord
	listings    []domain.WatchRecord
	listErr     error
	updateErrID string
	updated     map[string]string
	checked     []string
	limits      []int
	cutoffs     []time.Time
}

func (f *fakeRepo) GetCriteriaMissingImage(_ context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	f.limits = append(f.limits, limit)
	f.cutoffs = append(f.cutoffs, checkedBefore)
	return f.criteria, nil
}

func (f *fakeRepo) GetListingsMissingImage(_ context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	f.limits = append(f.limits, limit)
	f.cutoffs = append(f.cutoffs, checkedBefore)
	return f.listings, f.listErr
}

func (f *fakeRepo) MarkImageChecked(_ context.Context, rec domain.WatchRecord) error {
	f.checked = append(f.checked, string(rec.Kind)+":"+rec.ID)
	return nil
}

func (f *fakeRepo) UpdateImageURL(_ context.Context, rec domain.WatchRecord, imageURL string) error {
	if rec.ID == f.updateErrID {
		return errors.New("connection reset")
	}
	if f.updated == nil {
		f.updated = map[string]string{}
	}
	f.updated[string(rec.Kind)+":"+rec.ID] = imageURL
	return nil
}

// mapResolver resolves by manufacturer name
type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, req domain.ImageRequest) (string, bool) {
	u, ok := m[req.Manufacturer]
	return u, ok
}

func TestBackfill_RunOnce(t *testing.T) {
	repo := &fakeRepo{
		criteria: []domain.WatchRecord{
			{ID: "c1", Kind: domain.RecordCriteria, Manufacturer: "Rolex", Model: "GMT"},
			{ID: "c2", Kind: domain.RecordCriteria, Manufacturer: "Seiko", Model: "Presage"},
		},
		listings: []domain.WatchRecord{
			{ID: "l1", Kind: domain.RecordListing, Manufacturer: "Omega", Model: "Speedmaster"},
			{ID: "l2", Kind: domain.RecordListing, Manufacturer: "Rolex", Model: "GMT"},
		},
		updateErrID: "l2",
	}
	resolver := mapResolver{
		"Rolex": "https://media.rolex.com/catalogue/2026/upright-c/m1",
		"Omega": "https://www.omegawatches.com/o.png",
	}

	svc := NewImageBackfillService(repo, resolver, 10, 6*time.Hour, quietLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	stats, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BackfillStats{Checked: 4, Updated: 2, Missing: 1, Failed: 1}, stats)
	assert.Equal(t, map[string]string{
		"criteria:c1": "https://media.rolex.com/catalogue/2026/upright-c/m1",
		"listing:l1":  "https://www.omegawatches.com/o.png",
	}, repo.updated)
	assert.Equal(t, []string{"criteria:c2"}, repo.checked)
	assert.Equal(t, []int{10, 10}, repo.limits)
	cutoff := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{cutoff, cutoff}, repo.cutoffs)
}

func TestBackfill_ListErrorIsReturned(t *testing.T) {
	repo := &fakeRepo{
		criteria: []domain.WatchRecord{{ID: "c1", Kind: domain.RecordCriteria, Manufacturer: "Rolex", Model: "GMT"}},
		listErr:  errors.New("relation does not exist"),
	}
	svc := NewImageBackfillService(repo, mapResolver{"Rolex": "https://media.rolex.com/x"}, 5, time.Hour, quietLogger())

	stats, err := svc.RunOnce(context.Background())

	assert.ErrorContains(t, err, "listings missing image")
	assert.Equal(t, 1, stats.Updated)
}

func TestBackfill_ScheduleRejectsBadSpec(t *testing.T) {
	svc := NewImageBackfillService(&fakeRepo{}, mapResolver{}, 5, time.Hour, quietLogger())

	_, err := svc.Schedule(context.Background(), "not a cron spec")
	assert.Error(t, err)

	c, err := svc.Schedule(context.Background(), "0 */30 * * * *")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}

// tableRepo keeps rows in insertion order and selects them the way the
// Postgres queries do: unchecked rows first, then oldest check, with rows
// checked at or after the cutoff left out.
type tableRepo struct {
	clock func() time.Time
	rows  []*tableRow
}

type tableRow struct {
	rec       domain.WatchRecord
	imageURL  string
	checkedAt *time.Time
}

func (r *tableRepo) add(id, manufacturer, model string) {
	r.rows = append(r.rows, &tableRow{rec: domain.WatchRecord{
		ID: id, Kind: domain.RecordCriteria, Manufacturer: manufacturer, Model: model,
	}})
}

func (r *tableRepo) GetCriteriaMissingImage(_ context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	var eligible []*tableRow
	for _, row := range r.rows {
		if row.imageURL != "" {
			continue
		}
		if row.checkedAt != nil && !row.checkedAt.Before(checkedBefore) {
			continue
		}
		eligible = append(eligible, row)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].checkedAt, eligible[j].checkedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})

	var out []domain.WatchRecord
	for _, row := range eligible {
		if len(out) == limit {
			break
		}
		out = append(out, row.rec)
	}
	return out, nil
}

func (r *tableRepo) GetListingsMissingImage(context.Context, int, time.Time) ([]domain.WatchRecord, error) {
	return nil, nil
}

func (r *tableRepo) UpdateImageURL(_ context.Context, rec domain.WatchRecord, imageURL string) error {
	row := r.find(rec.ID)
	now := r.clock()
	row.imageURL, row.checkedAt = imageURL, &now
	return nil
}

func (r *tableRepo) MarkImageChecked(_ context.Context, rec domain.WatchRecord) error {
	now := r.clock()
	r.find(rec.ID).checkedAt = &now
	return nil
}

func (r *tableRepo) find(id string) *tableRow {
	for _, row := range r.rows {
		if row.rec.ID == id {
			return row
		}
	}
	return nil
}

func TestBackfill_UnresolvableRowsDoNotBlockLaterRows(t *testing.T) {
	for _, tc := range []struct {
		name       string
		retryAfter time.Duration
	}{
		{"misses wait out the retry window", 24 * time.Hour},
		{"misses go behind unchecked rows", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			clock := func() time.Time { return now }

			repo := &tableRepo{clock: clock}
			repo.add("c1", "Seiko", "Presage")
			repo.add("c2", "Seiko", "Alpinist")
			repo.add("c3", "Seiko", "Turtle")
			repo.add("c4", "Rolex", "GMT-Master II")

			resolver := mapResolver{"Rolex": "https://media.rolex.com/catalogue/2026/upright-c/m126710blro-0001"}
			svc := NewImageBackfillService(repo, resolver, 3, tc.retryAfter, quietLogger())
			svc.now = clock

			first, err := svc.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, BackfillStats{Checked: 3, Missing: 3}, first)
			assert.Empty(t, repo.find("c4").imageURL)

			now = now.Add(time.Minute)
			second, err := svc.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, second.Updated)
			assert.Equal(t, "https://media.rolex.com/catalogue/2026/upright-c/m126710blro-0001", repo.find("c4").imageURL)
		})
	}
}
