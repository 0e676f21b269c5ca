package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

var (
	themeSite  string
	themeSites []string
)

// themesCmd represents the themes command
var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Manage themes across sites",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var themesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List themes of one site (--site) or of every online site",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listItems(api.KindTheme, themeSite)
	},
}

var themesUpdateCmd = &cobra.Command{
	Use:   "update [slug...]",
	Short: "Update themes on a site; without slugs every pending update runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if themeSite == "" {
			return fmt.Errorf("--site is required")
		}
		return updateItems(api.KindTheme, themeSite, args)
	},
}

var themesInstallCmd = &cobra.Command{
	Use:   "install [slug]",
	Short: "Install a theme from WordPress.org on several sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(themeSites) == 0 {
			return fmt.Errorf("at least one --site is required")
		}
		return installItem(api.KindTheme, args[0], themeSites)
	},
}

var themesSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the WordPress.org theme directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchCatalog(api.KindTheme, strings.Join(args, " "))
	},
}

var themesActivateCmd = &cobra.Command{
	Use:   "activate [slug]",
	Short: "Activate a theme on a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if themeSite == "" {
			return fmt.Errorf("--site is required")
		}
		return itemAction(api.KindTheme, themeSite, args[0], "activate")
	},
}

func init() {
	for _, c := range []*cobra.Command{themesListCmd, themesUpdateCmd, themesActivateCmd} {
		c.Flags().StringVar(&themeSite, "site", "", "Site ID")
	}
	themesInstallCmd.Flags().StringSliceVar(&themeSites, "site", nil, "Target site ID (repeatable)")

	themesCmd.AddCommand(themesListCmd, themesUpdateCmd, themesInstallCmd, themesSearchCmd, themesActivateCmd)
	rootCmd.AddCommand(themesCmd)
}
