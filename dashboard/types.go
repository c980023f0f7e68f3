package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxAnnouncements bounds the announcements list; older entries are dropped.
const MaxAnnouncements = 10

// ErrInvalidSnapshot is returned when a stored value does not have the
// shape its category requires.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the complete current value of one category. Snapshots are
// always replaced wholesale, never patched.
type Snapshot interface {
	Category() Category
}

// KPIValue is one headline number and its change against the previous period.
type KPIValue struct {
	Value  float64 `json:"value" yaml:"value"`
	Change float64 `json:"change" yaml:"change"`
}

// KPIMetrics is the snapshot of the KPI cards.
type KPIMetrics struct {
	TaskCompletionRate KPIValue `json:"taskCompletionRate" yaml:"taskCompletionRate"`
	AvgResponseTime    KPIValue `json:"avgResponseTime" yaml:"avgResponseTime"`
	TeamActivity       KPIValue `json:"teamActivity" yaml:"teamActivity"`
	CommunicationFreq  KPIValue `json:"communicationFreq" yaml:"communicationFreq"`
}

func (KPIMetrics) Category() Category { return CategoryKPI }

// TeamPerformancePoint is one period of the team performance chart.
// Scores are percentages in [0, 100].
type TeamPerformancePoint struct {
	Date         string  `json:"date" yaml:"date"`
	Productivity float64 `json:"productivity" yaml:"productivity"`
	Engagement   float64 `json:"engagement" yaml:"engagement"`
	Satisfaction float64 `json:"satisfaction" yaml:"satisfaction"`
}

// TeamPerformance is ordered oldest period first.
type TeamPerformance []TeamPerformancePoint

func (TeamPerformance) Category() Category { return CategoryTeamPerformance }

// TaskCompletionRow holds one team's task counts.
type TaskCompletionRow struct {
	Name      string `json:"name" yaml:"name"`
	Completed int    `json:"completed" yaml:"completed"`
	Pending   int    `json:"pending" yaml:"pending"`
	Overdue   int    `json:"overdue" yaml:"overdue"`
}

type TaskCompletion []TaskCompletionRow

func (TaskCompletion) Category() Category { return CategoryTaskCompletion }

// ProjectProgressRow holds one project's completion percentage.
type ProjectProgressRow struct {
	Name     string `json:"name" yaml:"name"`
	Progress int    `json:"progress" yaml:"progress"`
}

type ProjectProgress []ProjectProgressRow

func (ProjectProgress) Category() Category { return CategoryProjectProgress }

// Author is who posted an announcement.
type Author struct {
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar" yaml:"avatar"`
}

// Link is an optional call to action attached to an announcement.
type Link struct {
	Text string `json:"text" yaml:"text"`
	URL  string `json:"url" yaml:"url"`
}

// Announcement is one entry of the announcements feed.
type Announcement struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Author  Author `json:"author"`
	Link    *Link  `json:"link,omitempty"`
}

// Announcements is ordered newest first and holds at most MaxAnnouncements.
type Announcements []Announcement

func (Announcements) Category() Category { return CategoryAnnouncements }

// EncodeSnapshot serialises s into the string form kept in the store.
func EncodeSnapshot(s Snapshot) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode %s snapshot: %w", s.Category(), err)
	}
	return string(data), nil
}

// DecodeSnapshot parses a stored value for category c.
//
// A KPI value must contain taskCompletionRate; table values must be
// non-empty arrays. Anything else yields ErrInvalidSnapshot.
func DecodeSnapshot(c Category, raw string) (Snapshot, error) {
	data := []byte(raw)

	switch c {
	case CategoryKPI:
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, c, err)
		}
		if _, ok := probe["taskCompletionRate"]; !ok {
			return nil, fmt.Errorf("%w: %s: missing taskCompletionRate", ErrInvalidSnapshot, c)
		}
		var m KPIMetrics
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, c, err)
		}
		return m, nil
	case CategoryTeamPerformance:
		return decodeTable[TeamPerformance](c, data)
	case CategoryTaskCompletion:
		return decodeTable[TaskCompletion](c, data)
	case CategoryProjectProgress:
		return decodeTable[ProjectProgress](c, data)
	case CategoryAnnouncements:
		return decodeTable[Announcements](c, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
}

func decodeTable[T interface {
	~[]E
	Snapshot
}, E any](c Category, data []byte) (Snapshot, error) {
	var rows T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, c, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s: empty list", ErrInvalidSnapshot, c)
	}
	return rows, nil
}

// CanonicalJSON re-encodes a JSON document with sorted object keys and no
// insignificant whitespace, so two structurally equal documents compare
// equal as strings.
func CanonicalJSON(raw string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
