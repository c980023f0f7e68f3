package dashboard

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"realtime_dashboard/db"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestWriter(store db.KVStore, seed int64) (*Writer, *Repository) {
	repo := NewRepository(store, nil)
	counter := 0
	w := NewWriter(repo, nil,
		WithRand(rand.New(rand.NewSource(seed))),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			counter++
			return "id-" + strconv.Itoa(counter)
		}),
	)
	return w, repo
}

func TestWriter_SimulateKPI(t *testing.T) {
	w, repo := newTestWriter(db.NewMemoryStore(), 1)
	ctx := context.Background()

	before, _ := DefaultSnapshot(CategoryKPI, fixedNow)
	for i := 0; i < 50; i++ {
		if _, err := w.Simulate(ctx, CategoryKPI); err != nil {
			t.Fatalf("Simulate() error = %v", err)
		}
	}

	after, err := repo.Snapshot(ctx, CategoryKPI)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if after == before {
		t.Error("KPI metrics unchanged after 50 simulations")
	}
	for _, v := range []KPIValue{
		after.(KPIMetrics).TaskCompletionRate,
		after.(KPIMetrics).AvgResponseTime,
		after.(KPIMetrics).TeamActivity,
		after.(KPIMetrics).CommunicationFreq,
	} {
		if v.Value < 0 {
			t.Errorf("KPI value went negative: %+v", v)
		}
	}
}

func TestPerturbKPI_ChangesOneMetricWithinBounds(t *testing.T) {
	base, _ := DefaultSnapshot(CategoryKPI, fixedNow)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		in := base.(KPIMetrics)
		out := perturbKPI(in, rng)

		pairs := [][2]KPIValue{
			{in.TaskCompletionRate, out.TaskCompletionRate},
			{in.AvgResponseTime, out.AvgResponseTime},
			{in.TeamActivity, out.TeamActivity},
			{in.CommunicationFreq, out.CommunicationFreq},
		}
		changed := 0
		for _, p := range pairs {
			if p[0] == p[1] {
				continue
			}
			changed++
			ratio := p[1].Value / p[0].Value
			if ratio < 0.95 || ratio > 1.05 {
				t.Fatalf("value moved by more than 5%%: %v -> %v", p[0].Value, p[1].Value)
			}
			if math.Abs(p[1].Change-p[0].Change) > 1 {
				t.Fatalf("change moved by more than 1: %v -> %v", p[0].Change, p[1].Change)
			}
		}
		if changed > 1 {
			t.Fatalf("%d metrics changed, want at most 1", changed)
		}
	}
}

func TestPerturbTeamPerformance_OnlyLastRowClamped(t *testing.T) {
	rows := TeamPerformance{
		{Date: "Jan", Productivity: 50, Engagement: 50, Satisfaction: 50},
		{Date: "Feb", Productivity: 99, Engagement: 1, Satisfaction: 100},
	}
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 500; i++ {
		out := perturbTeamPerformance(rows, rng)
		if out[0] != rows[0] {
			t.Fatalf("first row changed: %+v", out[0])
		}
		last := out[1]
		for _, v := range []float64{last.Productivity, last.Engagement, last.Satisfaction} {
			if v < 0 || v > 100 {
				t.Fatalf("score out of range: %+v", last)
			}
		}
		rows = out
	}
}

func TestPerturbTaskCompletion_NeverNegative(t *testing.T) {
	rows := TaskCompletion{{Name: "Only", Completed: 0, Pending: 0, Overdue: 0}}
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		prev := rows[0]
		rows = perturbTaskCompletion(rows, rng)
		got := rows[0]
		if got.Completed < 0 || got.Pending < 0 || got.Overdue < 0 {
			t.Fatalf("negative count: %+v", got)
		}
		if abs(got.Completed-prev.Completed) > 3 || abs(got.Pending-prev.Pending) > 2 || abs(got.Overdue-prev.Overdue) > 1 {
			t.Fatalf("step too large: %+v -> %+v", prev, got)
		}
	}
}

func TestPerturbProjectProgress_Clamped(t *testing.T) {
	rows := ProjectProgress{{Name: "Low", Progress: 0}, {Name: "High", Progress: 100}}
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 500; i++ {
		rows = perturbProjectProgress(rows, rng)
		for _, r := range rows {
			if r.Progress < 0 || r.Progress > 100 {
				t.Fatalf("progress out of range: %+v", r)
			}
		}
	}
}

func TestPerturb_DoesNotMutateInput(t *testing.T) {
	rows := ProjectProgress{{Name: "A", Progress: 50}}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		perturbProjectProgress(rows, rng)
	}
	if rows[0].Progress != 50 {
		t.Errorf("input mutated: %+v", rows[0])
	}
}

func TestWriter_AnnouncementsCappedAtMax(t *testing.T) {
	w, repo := newTestWriter(db.NewMemoryStore(), 2)
	ctx := context.Background()

	for n := 1; n <= 12; n++ {
		if _, err := w.Simulate(ctx, CategoryAnnouncements); err != nil {
			t.Fatalf("Simulate() error = %v", err)
		}
		snap, _ := repo.Snapshot(ctx, CategoryAnnouncements)
		list := snap.(Announcements)

		// Three defaults plus n simulated entries, capped.
		want := min(MaxAnnouncements, n+3)
		if len(list) != want {
			t.Fatalf("after %d simulations len = %d, want %d", n, len(list), want)
		}
		if list[0].ID != "id-"+strconv.Itoa(n) {
			t.Errorf("newest id = %s, want id-%d", list[0].ID, n)
		}
	}
}

func TestWriter_NewAnnouncementShape(t *testing.T) {
	w, _ := newTestWriter(db.NewMemoryStore(), 9)

	snap, err := w.Simulate(context.Background(), CategoryAnnouncements)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	a := snap.(Announcements)[0]

	if !strings.HasPrefix(a.Content, "New update: ") || len(a.Content) == len("New update: ") {
		t.Errorf("Content = %q", a.Content)
	}
	if a.Date != "2024-06-01T09:30:00.000Z" {
		t.Errorf("Date = %s", a.Date)
	}
	if a.Author.Avatar != DefaultAvatar {
		t.Errorf("Avatar = %s", a.Author.Avatar)
	}
	known := false
	for _, name := range announcementAuthors {
		if a.Author.Name == name {
			known = true
		}
	}
	if !known {
		t.Errorf("unexpected author %q", a.Author.Name)
	}
	if a.Link != nil {
		t.Error("simulated announcements carry no link")
	}
}

func TestWriter_SimulateTouchesLastUpdated(t *testing.T) {
	for _, c := range Categories() {
		t.Run(string(c), func(t *testing.T) {
			w, repo := newTestWriter(db.NewMemoryStore(), 4)
			ctx := context.Background()

			if _, err := w.Simulate(ctx, c); err != nil {
				t.Fatalf("Simulate() error = %v", err)
			}
			rec, found, err := repo.LastUpdated(ctx)
			if err != nil || !found {
				t.Fatalf("LastUpdated() = %v, %v", found, err)
			}
			if rec.Value != FormatTimestamp(fixedNow) {
				t.Errorf("LastUpdated = %s", rec.Value)
			}
		})
	}
}

func TestWriter_EmptyStoredTableUsesDefault(t *testing.T) {
	store := db.NewMemoryStore()
	store.Set(context.Background(), CategoryTaskCompletion.Key(), "[]")
	w, _ := newTestWriter(store, 6)

	snap, err := w.Simulate(context.Background(), CategoryTaskCompletion)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(snap.(TaskCompletion)) != 5 {
		t.Errorf("expected perturbed default rows, got %+v", snap)
	}
}

func TestWriter_StoreFailure(t *testing.T) {
	store := &failingStore{MemoryStore: db.NewMemoryStore(), setErr: errBoom, failSetKey: LastUpdatedKey}
	w, repo := newTestWriter(store, 8)
	ctx := context.Background()

	_, err := w.Simulate(ctx, CategoryProjectProgress)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Simulate() error = %v, want boom", err)
	}

	// The snapshot write is not rolled back when the timestamp write fails.
	if _, found, _ := repo.Raw(ctx, CategoryProjectProgress); !found {
		t.Error("expected snapshot to be written before the failure")
	}
}

func TestWriter_UnknownCategory(t *testing.T) {
	store := db.NewMemoryStore()
	w, _ := newTestWriter(store, 1)

	if _, err := w.Simulate(context.Background(), "bogus"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("error = %v, want ErrUnknownCategory", err)
	}
	if store.Len() != 0 {
		t.Error("unknown category touched the store")
	}
}

func TestUpdateMessage(t *testing.T) {
	for _, c := range Categories() {
		if UpdateMessage(c) == "" {
			t.Errorf("no update message for %s", c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
