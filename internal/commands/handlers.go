package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bosstimer/internal/engine"
	"bosstimer/internal/services/tracker"
)

// Deps carries what the handlers need. Clock is a getter so hot reload of the
// timezone is picked up without re-registering commands.
type Deps struct {
	Tracker *tracker.Service
	Clock   func() *engine.ZoneClock
}

func Registry(d Deps) []Command {
	return []Command{
		{
			Name:        "addboss",
			Description: "add or replace a boss (interval, or fixed weekly schedule)",
			Usage:       "/addboss <name> <90m|1h30m | fixed monday 11:30 am, ...>",
			Handle:      d.handleAddBoss,
		},
		{
			Name:        "killed",
			Description: "record a kill (interval bosses; optional 24h time today)",
			Usage:       "/killed <name> [HH:MM]",
			Handle:      d.handleKilled,
		},
		{
			Name:        "bosses",
			Description: "list tracked bosses, soonest respawn first",
			Usage:       "/bosses",
			Handle:      d.handleBosses,
		},
		{
			Name:        "alert",
			Description: "set advance warning minutes for a boss",
			Usage:       "/alert <name> <minutes>",
			Handle:      d.handleAlert,
		},
		{
			Name:        "clearbosses",
			Description: "remove every tracked boss",
			Usage:       "/clearbosses confirm",
			Handle:      d.handleClearBosses,
		},
	}
}

func (d Deps) handleAddBoss(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, "Usage: /addboss <name> <interval>  or  /addboss <name> fixed <schedule>")
	}
	name := req.Args[0]
	ruleText := strings.Join(req.Args[1:], " ")
	// "fixed" marks a weekly schedule; the prefix itself is not part of the rule.
	if rest, ok := strings.CutPrefix(strings.ToLower(ruleText), "fixed "); ok {
		ruleText = rest
	}

	rec, err := d.Tracker.AddBoss(ctx, name, ruleText)
	if err != nil {
		return req.Reply(ctx, errorText(err))
	}
	switch rec.Rule.Kind {
	case engine.KindWeekly:
		return req.Reply(ctx, fmt.Sprintf("Fixed boss %s added: %s", rec.Name, rec.Rule))
	default:
		return req.Reply(ctx, fmt.Sprintf("Interval boss %s added: every %s", rec.Name, rec.Rule))
	}
}

var hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// parseKillTime resolves an optional HH:MM (24h) argument to today's wall
// clock in the tracker zone. Empty arg means "now".
func parseKillTime(arg string, clock *engine.ZoneClock) (time.Time, error) {
	now := clock.Local()
	if arg == "" {
		return now, nil
	}
	mm := hhmmRe.FindStringSubmatch(arg)
	if mm == nil {
		return time.Time{}, errors.New("use HH:MM (24h)")
	}
	h, _ := strconv.Atoi(mm[1])
	m, _ := strconv.Atoi(mm[2])
	if h > 23 || m > 59 {
		return time.Time{}, errors.New("use HH:MM (24h)")
	}
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, clock.Location()), nil
}

func (d Deps) handleKilled(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Usage: /killed <name> [HH:MM]")
	}
	arg := ""
	if len(req.Args) > 1 {
		arg = req.Args[1]
	}
	at, err := parseKillTime(arg, d.Clock())
	if err != nil {
		return req.Reply(ctx, errorText(err))
	}
	rec, err := d.Tracker.ReportKill(ctx, req.Args[0], at)
	if err != nil {
		return req.Reply(ctx, errorText(err))
	}
	return req.Reply(ctx, fmt.Sprintf("%s marked killed at %s.", rec.Name, at.Format("15:04")))
}

func (d Deps) handleBosses(ctx context.Context, req *Request) error {
	entries := d.Tracker.List()
	if len(entries) == 0 {
		return req.Reply(ctx, "No bosses added. Use /addboss.")
	}
	return req.Reply(ctx, renderList(entries, d.Clock()))
}

func renderList(entries []tracker.Entry, clock *engine.ZoneClock) string {
	now := clock.Now()
	loc := clock.Location()
	var b strings.Builder
	b.WriteString("Tracked bosses:\n")
	for _, e := range entries {
		b.WriteString(e.Record.Name)
		b.WriteString(" (")
		b.WriteString(e.Record.Rule.String())
		b.WriteString("): ")
		switch {
		case !e.HasNext:
			b.WriteString("no kill recorded yet")
		case !e.Next.After(now):
			b.WriteString("ready now")
		default:
			b.WriteString(e.Next.In(loc).Format("Mon 15:04"))
			b.WriteString(" (in ")
			b.WriteString(formatDelta(e.Next.Sub(now)))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func (d Deps) handleAlert(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, "Usage: /alert <name> <minutes>")
	}
	minutes, err := strconv.Atoi(req.Args[1])
	if err != nil || minutes < 0 {
		return req.Reply(ctx, "Minutes must be a number >= 0.")
	}
	rec, err := d.Tracker.SetAlertLead(ctx, req.Args[0], minutes)
	if err != nil {
		return req.Reply(ctx, errorText(err))
	}
	if minutes == 0 {
		return req.Reply(ctx, fmt.Sprintf("Alerts disabled for %s.", rec.Name))
	}
	return req.Reply(ctx, fmt.Sprintf("Will warn %d minutes before %s respawns.", minutes, rec.Name))
}

func (d Deps) handleClearBosses(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 || !strings.EqualFold(req.Args[0], "confirm") {
		return req.Reply(ctx, "This removes every boss. Run /clearbosses confirm to proceed.")
	}
	n, err := d.Tracker.ClearAll(ctx)
	if err != nil {
		return req.Reply(ctx, errorText(err))
	}
	return req.Reply(ctx, fmt.Sprintf("Removed %d bosses.", n))
}

// FormatAlert renders the one-time advance warning message.
func FormatAlert(a engine.Alert, loc *time.Location) string {
	if a.LeadMinutes <= 0 {
		return fmt.Sprintf("%s respawns now (%s)!", a.Boss, a.At.In(loc).Format("15:04"))
	}
	return fmt.Sprintf("%s respawns in %d minutes (%s)!", a.Boss, a.LeadMinutes, a.At.In(loc).Format("15:04"))
}

func errorText(err error) string {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return "Boss not found."
	case errors.Is(err, tracker.ErrFixedSchedule):
		return "That boss respawns on a fixed schedule; no kill time needed."
	case errors.Is(err, tracker.ErrEmptyName):
		return "Boss name is empty."
	case errors.Is(err, engine.ErrInvalidInterval):
		return "Interval must be a positive duration like 90m or 1h30m."
	case errors.Is(err, engine.ErrInvalidSchedule):
		return "Bad schedule. Use weekday and time, e.g. monday 11:30 am."
	case errors.Is(err, engine.ErrUnrecognizedFormat):
		return "Couldn't read that. Use an interval (90m, 1h30m) or a weekly schedule (monday 11:30 am)."
	default:
		return "Something went wrong: " + err.Error()
	}
}
