package dashboard

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAvatar is the avatar attached to simulated announcements.
const DefaultAvatar = "/abstract-geometric-shapes.png"

var announcementAuthors = []string{"Sarah Johnson", "Michael Chen", "Emily Rodriguez"}

var updateMessages = map[Category]string{
	CategoryKPI:             "KPI metrics updated",
	CategoryTeamPerformance: "Team performance updated",
	CategoryTaskCompletion:  "Task completion updated",
	CategoryProjectProgress: "Project progress updated",
	CategoryAnnouncements:   "Announcement added",
}

// UpdateMessage is the human readable confirmation for a simulated update of c.
func UpdateMessage(c Category) string {
	return updateMessages[c]
}

// WriterOption customises a Writer.
type WriterOption func(*Writer)

// WithRand sets the random source used for perturbations.
func WithRand(r *rand.Rand) WriterOption {
	return func(w *Writer) { w.rng = r }
}

// WithClock sets the clock used for LastUpdated and announcement dates.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithIDGenerator sets the generator for new announcement IDs.
func WithIDGenerator(gen func() string) WriterOption {
	return func(w *Writer) { w.newID = gen }
}

// Writer produces simulated metric updates.
//
// Each Simulate call reads the current snapshot, perturbs it and writes it
// back followed by the LastUpdated timestamp. The two writes are not atomic
// and concurrent calls for the same category may lose an update; the last
// write wins.
type Writer struct {
	repo   *Repository
	logger *zap.Logger

	mu    sync.Mutex // guards rng
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// NewWriter creates a Writer over repo.
func NewWriter(repo *Repository, logger *zap.Logger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		repo:   repo,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Simulate applies one random perturbation to category c and stores the
// result. It returns the snapshot that was written.
func (w *Writer) Simulate(ctx context.Context, c Category) (Snapshot, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}

	current, err := w.repo.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}

	now := w.now()
	next := w.perturb(current, now)

	if err := w.repo.SetSnapshot(ctx, next); err != nil {
		return nil, err
	}
	if err := w.repo.SetLastUpdated(ctx, now); err != nil {
		return nil, err
	}

	w.logger.Info("simulated metric update", zap.String("category", c.String()))
	return next, nil
}

func (w *Writer) perturb(s Snapshot, now time.Time) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch v := s.(type) {
	case KPIMetrics:
		return perturbKPI(v, w.rng)
	case TeamPerformance:
		return perturbTeamPerformance(v, w.rng)
	case TaskCompletion:
		return perturbTaskCompletion(v, w.rng)
	case ProjectProgress:
		return perturbProjectProgress(v, w.rng)
	case Announcements:
		return prependAnnouncement(v, w.newAnnouncement(now))
	default:
		return s
	}
}

func (w *Writer) newAnnouncement(now time.Time) Announcement {
	token := strconv.FormatInt(w.rng.Int63(), 36)
	return Announcement{
		ID:      w.newID(),
		Content: "New update: " + token,
		Date:    FormatTimestamp(now),
		Author: Author{
			Name:   announcementAuthors[w.rng.Intn(len(announcementAuthors))],
			Avatar: DefaultAvatar,
		},
	}
}

// uniform returns a float in [-spread, spread).
func uniform(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

// randInt returns an int in [-spread, spread].
func randInt(rng *rand.Rand, spread int) int {
	return rng.Intn(2*spread+1) - spread
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func perturbKPI(m KPIMetrics, rng *rand.Rand) KPIMetrics {
	fields := []*KPIValue{
		&m.TaskCompletionRate,
		&m.AvgResponseTime,
		&m.TeamActivity,
		&m.CommunicationFreq,
	}
	target := fields[rng.Intn(len(fields))]
	target.Value = math.Max(0, target.Value*(1+uniform(rng, 0.05)))
	target.Change += uniform(rng, 1)
	return m
}

func perturbTeamPerformance(rows TeamPerformance, rng *rand.Rand) TeamPerformance {
	out := append(TeamPerformance(nil), rows...)
	last := &out[len(out)-1]
	last.Productivity = clamp(last.Productivity+uniform(rng, 5), 0, 100)
	last.Engagement = clamp(last.Engagement+uniform(rng, 5), 0, 100)
	last.Satisfaction = clamp(last.Satisfaction+uniform(rng, 5), 0, 100)
	return out
}

func perturbTaskCompletion(rows TaskCompletion, rng *rand.Rand) TaskCompletion {
	out := append(TaskCompletion(nil), rows...)
	row := &out[rng.Intn(len(out))]
	row.Completed = max(0, row.Completed+randInt(rng, 3))
	row.Pending = max(0, row.Pending+randInt(rng, 2))
	row.Overdue = max(0, row.Overdue+randInt(rng, 1))
	return out
}

func perturbProjectProgress(rows ProjectProgress, rng *rand.Rand) ProjectProgress {
	out := append(ProjectProgress(nil), rows...)
	row := &out[rng.Intn(len(out))]
	row.Progress = clampInt(row.Progress+randInt(rng, 5), 0, 100)
	return out
}

func prependAnnouncement(list Announcements, a Announcement) Announcements {
	out := make(Announcements, 0, min(len(list)+1, MaxAnnouncements))
	out = append(out, a)
	for _, existing := range list {
		if len(out) == MaxAnnouncements {
			break
		}
		out = append(out, existing)
	}
	return out
}
