package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/sigex/internal/engine"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyanStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// renderRunSummary lays out one row per input.
func renderRunSummary(profile string, where []string, results []engine.Result) string {
	header := []string{"", "INPUT", "SIGNALS", "SAMPLES", "UNITS", "TIME", "RECORD"}
	rows := [][]string{header}
	var samples int64
	failed := 0
	for _, r := range results {
		mark := greenStyle.Render("●")
		if r.Err != nil {
			mark = redStyle.Render("●")
			failed++
		}
		samples += r.Stats.Samples
		rows = append(rows, []string{
			mark,
			r.Record.Name,
			fmt.Sprint(r.Stats.Signals),
			fmt.Sprint(r.Stats.Samples),
			fmt.Sprint(r.Stats.Units),
			r.Stats.Duration.Round(time.Millisecond).String(),
			dimStyle.Render(shortID(r.Record.ID)),
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  %s %s  %s %s",
		boldStyle.Render("profile"), cyanStyle.Render(profile),
		boldStyle.Render("→"), dimStyle.Render(strings.Join(where, ", "))))
	lines = append(lines, "")
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cellStyle.Width(widths[j] + 2).Render(cell)
		}
		line := "  " + lipgloss.JoinHorizontal(lipgloss.Top, cells...)
		if i == 0 {
			line = dimStyle.Render(line)
		}
		lines = append(lines, line)
	}
	for _, r := range results {
		if r.Err != nil {
			lines = append(lines, "  "+redStyle.Render("✗ "+r.Err.Error()))
		}
	}
	lines = append(lines, "")
	total := fmt.Sprintf("  %d inputs, %d samples", len(results), samples)
	if failed > 0 {
		total += redStyle.Render(fmt.Sprintf(", %d failed", failed))
	}
	lines = append(lines, total)
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printStartupBanner(w io.Writer, cfg appConfig, profiles []string) {
	check := greenStyle.Render("●")
	dot := dimStyle.Render("●")

	logo := cyanStyle.Bold(true).Render(`
    ╔═╗╦╔═╗╔═╗═╗ ╦
    ╚═╗║║ ╦║╣ ╔╩╦╝
    ╚═╝╩╚═╝╚═╝╩ ╚═`)

	var lines []string
	lines = append(lines, "", logo, "    "+dimStyle.Render("v"+version), "")

	separator := dimStyle.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	status := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyanStyle.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dimStyle.Render("disabled"))
	}

	lines = append(lines, boldStyle.Render("    Gateway"), "")
	lines = append(lines, status(cfg.APIEnabled, "HTTP API", cfg.APIAddr))
	lines = append(lines, status(cfg.TCPEnabled, "TCP Ingest", cfg.TCPAddr+" ("+cfg.TCPProfile+")"))
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Storage", dimStyle.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, status(cfg.JournalEnabled, "Journal", shortenPath(cfg.JournalPath)))
	lines = append(lines, status(cfg.Backup.Enabled, "Snapshots", shortenPath(cfg.Backup.LocalDir)))
	lines = append(lines, status(cfg.Retention > 0, "Retention", cfg.Retention.String()))
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Profiles"), "")
	lines = append(lines, fmt.Sprintf("    %s  %s", check, dimStyle.Render(strings.Join(profiles, ", "))))
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dimStyle.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dimStyle.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dimStyle.Render("Press ")+yellowStyle.Render("Ctrl+C")+dimStyle.Render(" to stop"), "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
