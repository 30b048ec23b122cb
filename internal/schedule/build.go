package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed spec bound to a location.
type Schedule struct {
	Spec Spec
	loc  *time.Location
	next cron.Schedule
}

// Build parses raw and compiles it. An empty timezone means local time.
func Build(raw, timezone string) (*Schedule, error) {
	spec, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	sc := &Schedule{Spec: spec, loc: loc}
	switch spec.Kind {
	case KindCron:
		cs, err := parser.Parse(spec.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
		}
		sc.next = cs
		if sc.Next(time.Now()).IsZero() {
			return nil, fmt.Errorf("cron %q never fires", spec.Cron)
		}
	default:
		if spec.Every >= time.Second {
			sc.next = cron.Every(spec.Every)
		} else {
			// cron.Every rounds up to one second.
			sc.next = subSecond(spec.Every)
		}
	}
	return sc, nil
}

// Next returns the next activation strictly after t, or the zero time when
// there is none.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.next.Next(t.In(s.loc))
}

func (s *Schedule) String() string {
	if s.Spec.Kind == KindCron {
		return "cron " + s.Spec.Cron
	}
	return "every " + s.Spec.Every.String()
}

// LoadLocation resolves an IANA zone name ("" and "Local" mean time.Local).
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

type subSecond time.Duration

func (d subSecond) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }
