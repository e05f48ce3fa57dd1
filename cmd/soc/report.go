package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/yatuk/SOC-case-study-project/internal/pipeline"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
)

var (
	primary    = lipgloss.Color("#7C3AED")
	secondary  = lipgloss.Color("#10B981")
	warning    = lipgloss.Color("#F59E0B")
	danger     = lipgloss.Color("#EF4444")
	mutedColor = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(22)
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(secondary)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1)

	severityStyles = map[telemetry.Level]lipgloss.Style{
		telemetry.LevelLow:      lipgloss.NewStyle().Foreground(mutedColor),
		telemetry.LevelMedium:   lipgloss.NewStyle().Foreground(secondary),
		telemetry.LevelHigh:     lipgloss.NewStyle().Foreground(warning).Bold(true),
		telemetry.LevelCritical: lipgloss.NewStyle().Foreground(danger).Bold(true),
	}
)

var levels = []telemetry.Level{
	telemetry.LevelCritical, telemetry.LevelHigh, telemetry.LevelMedium, telemetry.LevelLow,
}

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

func severity(l telemetry.Level) string {
	return severityStyles[l].Render(strings.ToUpper(string(l)))
}

func profileRows(p *ingestion.DatasetProfile) []string {
	rows := []string{
		row("Files", p.TotalFiles),
		row("Events normalized", p.TotalEventsNormalized),
		row("IOCs extracted", p.TotalIOCsExtracted),
		row("Errors", p.TotalErrors),
	}
	names := slices.Sorted(maps.Keys(p.Files))
	for _, name := range names {
		fp := p.Files[name]
		line := fmt.Sprintf("  %s [%s] %d", name, fp.Family, fp.NormalizedCount)
		if fp.Truncated {
			line += " (truncated)"
		}
		if fp.Error != "" {
			line += " error: " + fp.Error
		}
		rows = append(rows, mutedStyle.Render(line))
	}
	return rows
}

func renderNormalize(outputDir string, p *ingestion.DatasetProfile, elapsed time.Duration) string {
	rows := []string{titleStyle.Render("Normalization complete"), ""}
	rows = append(rows, profileRows(p)...)
	rows = append(rows, "", mutedStyle.Render(fmt.Sprintf("Output: %s (%s)", outputDir, elapsed.Round(time.Millisecond))))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderSummary(s *pipeline.Summary) string {
	rows := []string{titleStyle.Render("Pipeline run complete"), ""}
	if s.Profile != nil {
		rows = append(rows, profileRows(s.Profile)...)
	}
	rows = append(rows, row("Events matched IOCs", s.EventsMatched), "")

	rows = append(rows, titleStyle.Render("Correlations"))
	if len(s.Correlations) == 0 {
		rows = append(rows, mutedStyle.Render("  none"))
	}
	for _, pattern := range slices.Sorted(maps.Keys(s.Correlations)) {
		rows = append(rows, row("  "+pattern, s.Correlations[pattern]))
	}

	rows = append(rows, "", titleStyle.Render("Entities by severity"))
	for _, l := range levels {
		if n := s.Entities[l]; n > 0 {
			rows = append(rows, labelStyle.Render("  ")+severity(l)+" "+valueStyle.Render(fmt.Sprint(n)))
		}
	}

	rows = append(rows, "", titleStyle.Render(fmt.Sprintf("Alerts (%d)", len(s.Alerts))))
	for _, a := range s.Alerts {
		rows = append(rows, fmt.Sprintf("  %s %s %s", severity(a.Severity), a.Name, mutedStyle.Render(a.Entity.User)))
	}

	if s.Forwarded > 0 {
		rows = append(rows, row("Forwarded to HEC", s.Forwarded))
	}

	footer := fmt.Sprintf("Output: %s (%s)", s.OutputDir, s.Duration.Round(time.Millisecond))
	if s.Exported {
		footer += ", exported to dashboard"
	}
	rows = append(rows, "", mutedStyle.Render(footer))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
