// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/exemption"
	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/pkg/types"
)

func newExemptionsCommand(app *App, flags *rootFlagValues) *cobra.Command {
	exemptionsCmd := &cobra.Command{
		Use:   "exemptions",
		Short: "Inspect the npm version exemption list",
		Long: `Inspect the list of packages allowed to differ from their npm release.

The list lives at 'exemptions_path' (default: ` + exemption.DefaultFileName + ` next to the
dtcheck executable).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	exemptionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List exempt packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, set, err := loadExemptions(cmd, app, flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, TitleStyle.Render("Exemptions")+" "+SubtitleStyle.Render(cfg.ExemptionsPath))
			if set.Len() == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(none)"))
				return nil
			}
			fmt.Fprintln(app.stdout, exemptionTable(set.Entries()))
			return nil
		},
	})

	exemptionsCmd.AddCommand(&cobra.Command{
		Use:   "check <dir...>",
		Short: "Report whether package directories are exempt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, set, err := loadExemptions(cmd, app, flags)
			if err != nil {
				return err
			}
			for _, arg := range args {
				id := pkgdir.FromPath(arg).ID()
				if set.Contains(id) {
					fmt.Fprintf(app.stdout, "%s %s is exempt\n", WarningStyle.Render(warnIcon), CmdStyle.Render(id))
				} else {
					fmt.Fprintf(app.stdout, "%s %s is not exempt\n", SuccessStyle.Render(passIcon), CmdStyle.Render(id))
				}
			}
			return nil
		},
	})

	return exemptionsCmd
}

func loadExemptions(cmd *cobra.Command, app *App, flags *rootFlagValues) (*config.Config, *exemption.Set, error) {
	cfg, err := configFor(cmd, app, flags)
	if err != nil {
		return nil, nil, err
	}
	set, err := exemption.Load(cfg.ExemptionsPath)
	if err != nil {
		wrapped := issue.NewErrorContext().
			WithOperation("load exemption list").
			WithResource(cfg.ExemptionsPath).
			WithIssue(issue.ExemptionListUnreadableId).
			Wrap(err).
			BuildError()
		return nil, nil, &ExitError{Code: types.ExitUsage, Err: wrapped}
	}
	return cfg, set, nil
}

func exemptionTable(entries []exemption.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{strconv.Itoa(e.Line), e.ID})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LINE", "PACKAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true).Foreground(ColorPrimary)
			}
			if col == 0 {
				return style.Foreground(ColorMuted).Align(lipgloss.Right)
			}
			return style
		}).
		String()
}
