package dashboard

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimestampLayout is the ISO-8601 form used for LastUpdated and
// announcement dates (millisecond precision, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultAnnouncement struct {
	ID      string        `yaml:"id"`
	Content string        `yaml:"content"`
	Age     time.Duration `yaml:"age"`
	Author  Author        `yaml:"author"`
	Link    *Link         `yaml:"link"`
}

type defaultData struct {
	KPI             KPIMetrics            `yaml:"kpi"`
	TeamPerformance TeamPerformance       `yaml:"teamPerformance"`
	TaskCompletion  TaskCompletion        `yaml:"taskCompletion"`
	ProjectProgress ProjectProgress       `yaml:"projectProgress"`
	Announcements   []defaultAnnouncement `yaml:"announcements"`
}

var defaults = mustParseDefaults(defaultsYAML)

func mustParseDefaults(data []byte) defaultData {
	var d defaultData
	if err := yaml.Unmarshal(data, &d); err != nil {
		panic(fmt.Sprintf("dashboard: parse embedded defaults: %v", err))
	}
	return d
}

// DefaultSnapshot returns the seed snapshot for c. Announcement dates are
// resolved relative to now. The result is a fresh copy on every call.
func DefaultSnapshot(c Category, now time.Time) (Snapshot, error) {
	switch c {
	case CategoryKPI:
		return defaults.KPI, nil
	case CategoryTeamPerformance:
		return append(TeamPerformance(nil), defaults.TeamPerformance...), nil
	case CategoryTaskCompletion:
		return append(TaskCompletion(nil), defaults.TaskCompletion...), nil
	case CategoryProjectProgress:
		return append(ProjectProgress(nil), defaults.ProjectProgress...), nil
	case CategoryAnnouncements:
		out := make(Announcements, 0, len(defaults.Announcements))
		for _, a := range defaults.Announcements {
			ann := Announcement{
				ID:      a.ID,
				Content: a.Content,
				Date:    FormatTimestamp(now.Add(-a.Age)),
				Author:  a.Author,
			}
			if a.Link != nil {
				link := *a.Link
				ann.Link = &link
			}
			out = append(out, ann)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
}
