package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/axondata/go-tangelo"
	"github.com/axondata/go-tangelo/internal/settings"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// render writes instances in the requested format
func render(w io.Writer, format string, instances []tangelo.InstanceSnapshot) error {
	switch format {
	case settings.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(instances)
	case settings.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(instances); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderTable(w, instances)
	}
}

func renderTable(w io.Writer, instances []tangelo.InstanceSnapshot) error {
	if len(instances) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("no tangelo instances"))
		return err
	}

	t := table.New().
		Headers("ID", "MODE", "INTERFACE", "CONFIG", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if tty, ok := w.(*os.File); ok && isTerminal(tty) {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(borderStyle)
	} else {
		t = t.Border(lipgloss.HiddenBorder())
	}

	for _, inst := range instances {
		iface := inst.Interface
		if iface == "" {
			iface = inst.Config.Hostname + ":" + strconv.Itoa(inst.Config.Port)
		}
		status := inst.Status
		if inst.LastError != "" {
			status = errStyle.Render(inst.LastError)
		}
		t.Row(inst.ID, inst.Mode.String(), iface, inst.ConfigPath, status)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderInstance prints the outcome of a lifecycle command
func renderInstance(w io.Writer, format string, inst *tangelo.InstanceSnapshot) error {
	if inst == nil {
		return nil
	}
	if format != settings.OutputTable {
		return render(w, format, []tangelo.InstanceSnapshot{*inst})
	}
	if err := renderTable(w, []tangelo.InstanceSnapshot{*inst}); err != nil {
		return err
	}
	if inst.Output != "" {
		_, err := fmt.Fprintln(w, dimStyle.Render(inst.Output))
		return err
	}
	return nil
}

// renderConfig prints one config record; tables fall back to JSON
func renderConfig(w io.Writer, format string, cfg tangelo.Config) error {
	if format == settings.OutputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
