package ux

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
)

// Styles groups the lipgloss styles used by text output.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Danger  lipgloss.Style
	Code    lipgloss.Style
}

// NewStyles returns the palette, or plain styles when color is false.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Danger:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Code:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(2),
	}
}

// Status renders a deployment status in its color.
func (s Styles) Status(status deploy.Status) string {
	switch status {
	case deploy.StatusComplete:
		return s.Success.Render(string(status))
	case deploy.StatusPendingReview, deploy.StatusInProgress:
		return s.Warning.Render(string(status))
	default:
		return s.Danger.Render(string(status))
	}
}
