package bot

import (
	"fmt"
	"strings"
	"time"

	"timeclock/internal/models"
	"timeclock/internal/service"
	"timeclock/internal/timetrack"
)

var actionVerbs = map[models.EventKind]string{
	models.KindClockIn:     "Clocked in",
	models.KindClockOut:    "Clocked out",
	models.KindStartLunch:  "Lunch started",
	models.KindResumeShift: "Shift resumed",
}

var actionNames = map[models.EventKind]string{
	models.KindClockIn:     "Clock in",
	models.KindClockOut:    "Clock out",
	models.KindStartLunch:  "Start lunch",
	models.KindResumeShift: "Resume shift",
}

func formatAction(r *service.ActionResult, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ %s at %s\n", actionVerbs[r.Event.Kind], r.Event.Timestamp.In(loc).Format("15:04"))
	fmt.Fprintf(&sb, "Worked today: %s", formatMinutes(r.Session.TotalWorkMinutes))
	if r.Session.TotalLunchMinutes > 0 {
		fmt.Fprintf(&sb, " (lunch %s)", formatMinutes(r.Session.TotalLunchMinutes))
	}
	return sb.String()
}

func formatStatus(s *service.Status) string {
	var sb strings.Builder
	if s.Session == nil || s.Projection == nil {
		sb.WriteString("No session today.\n")
	} else {
		fmt.Fprintf(&sb, "📅 %s: %s\n", s.Session.Date, statusLabel(s.Session.Status))
		fmt.Fprintf(&sb, "Worked: %s (%.2f h)\n", formatMinutes(s.Projection.WorkMinutes), s.Projection.WorkHours)
		fmt.Fprintf(&sb, "Lunch: %s\n", formatMinutes(s.Projection.LunchMinutes))
		if s.Projection.LunchOverrun {
			sb.WriteString("⚠️ Lunch is over the allowed length\n")
		}
	}

	for _, kind := range models.Kinds {
		state := s.Gate.For(kind)
		if state.Enabled {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", actionNames[kind], state.Reason)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatViolations(violations []timetrack.Outcome) string {
	var sb strings.Builder
	sb.WriteString("❌ Not recorded:")
	for _, v := range violations {
		sb.WriteString("\n• ")
		sb.WriteString(v.Message)
	}
	return sb.String()
}

func formatSession(s models.WorkSession, loc *time.Location) string {
	span := "—"
	if s.ClockInTime != nil {
		span = s.ClockInTime.In(loc).Format("15:04") + "–"
		if s.ClockOutTime != nil {
			span += s.ClockOutTime.In(loc).Format("15:04")
		} else {
			span += "…"
		}
	}
	return fmt.Sprintf("%s  %s  %s  %s", s.Date, span, formatMinutes(s.TotalWorkMinutes), statusLabel(s.Status))
}

func statusLabel(s models.SessionStatus) string {
	switch s {
	case models.StatusActive:
		return "working"
	case models.StatusOnLunch:
		return "on lunch"
	case models.StatusCompleted:
		return "completed"
	}
	return string(s)
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}
