package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

var (
	pluginSite  string
	pluginSites []string
)

// pluginsCmd represents the plugins command
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage plugins across sites",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugins of one site (--site) or of every online site",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listItems(api.KindPlugin, pluginSite)
	},
}

var pluginsUpdateCmd = &cobra.Command{
	Use:   "update [slug...]",
	Short: "Update plugins on a site; without slugs every pending update runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pluginSite == "" {
			return fmt.Errorf("--site is required")
		}
		return updateItems(api.KindPlugin, pluginSite, args)
	},
}

var pluginsInstallCmd = &cobra.Command{
	Use:   "install [slug]",
	Short: "Install a plugin from WordPress.org on several sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(pluginSites) == 0 {
			return fmt.Errorf("at least one --site is required")
		}
		return installItem(api.KindPlugin, args[0], pluginSites)
	},
}

var pluginsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the WordPress.org plugin directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchCatalog(api.KindPlugin, strings.Join(args, " "))
	},
}

var pluginsActivateCmd = &cobra.Command{
	Use:   "activate [slug]",
	Short: "Activate a plugin on a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pluginSite == "" {
			return fmt.Errorf("--site is required")
		}
		return itemAction(api.KindPlugin, pluginSite, args[0], "activate")
	},
}

var pluginsDeactivateCmd = &cobra.Command{
	Use:   "deactivate [slug]",
	Short: "Deactivate a plugin on a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pluginSite == "" {
			return fmt.Errorf("--site is required")
		}
		return itemAction(api.KindPlugin, pluginSite, args[0], "deactivate")
	},
}

func init() {
	for _, c := range []*cobra.Command{pluginsListCmd, pluginsUpdateCmd, pluginsActivateCmd, pluginsDeactivateCmd} {
		c.Flags().StringVar(&pluginSite, "site", "", "Site ID")
	}
	pluginsInstallCmd.Flags().StringSliceVar(&pluginSites, "site", nil, "Target site ID (repeatable)")

	pluginsCmd.AddCommand(pluginsListCmd, pluginsUpdateCmd, pluginsInstallCmd, pluginsSearchCmd, pluginsActivateCmd, pluginsDeactivateCmd)
	rootCmd.AddCommand(pluginsCmd)
}
