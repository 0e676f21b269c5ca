package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

// sitesCmd represents the sites command
var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage sites",
	Long:  `Manage WordPress sites (list, add, update, delete, refresh, select).`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Get("/api/v1/sites")
		if err != nil {
			return fmt.Errorf("error fetching sites: %v", err)
		}
		defer resp.Body.Close()

		var sites []api.SiteView
		if _, err := DecodeData(resp, &sites); err != nil {
			return err
		}
		printSites(sites)
		return nil
	},
}

var sitesGetCmd = &cobra.Command{
	Use:   "get [site-id]",
	Short: "Get site details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Get(sitePath(args[0]))
		if err != nil {
			return fmt.Errorf("error getting site: %v", err)
		}
		defer resp.Body.Close()

		var site api.SiteView
		if _, err := DecodeData(resp, &site); err != nil {
			return err
		}
		PrintJSON(site)
		return nil
	},
}

var sitesDeleteCmd = &cobra.Command{
	Use:   "delete [site-id]",
	Short: "Delete a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Delete(sitePath(args[0]))
		if err != nil {
			return fmt.Errorf("error deleting site: %v", err)
		}
		defer resp.Body.Close()

		message, err := DecodeData(resp, nil)
		if err != nil {
			return err
		}
		fmt.Println(message)
		return nil
	},
}

var sitesRefreshCmd = &cobra.Command{
	Use:   "refresh [site-id]",
	Short: "Refresh the status of one site, or of all sites",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		if len(args) == 0 {
			resp, err := client.Post("/api/v1/sites/refresh", nil)
			if err != nil {
				return fmt.Errorf("error refreshing sites: %v", err)
			}
			defer resp.Body.Close()

			var sites []api.SiteView
			if _, err := DecodeData(resp, &sites); err != nil {
				return err
			}
			printSites(sites)
			return nil
		}

		resp, err := client.Post(sitePath(args[0], "refresh"), nil)
		if err != nil {
			return fmt.Errorf("error refreshing site: %v", err)
		}
		defer resp.Body.Close()

		var site api.SiteView
		if _, err := DecodeData(resp, &site); err != nil {
			return err
		}
		printSites([]api.SiteView{site})
		return nil
	},
}

var sitesSelectCmd = &cobra.Command{
	Use:   "select [site-id]",
	Short: "Mark a site as the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Post(sitePath(args[0], "select"), nil)
		if err != nil {
			return fmt.Errorf("error selecting site: %v", err)
		}
		defer resp.Body.Close()

		if _, err := DecodeData(resp, nil); err != nil {
			return err
		}
		fmt.Println("Site selected.")
		return nil
	},
}

func printSites(sites []api.SiteView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tSTATUS\tWP\tPLUGINS\tUPDATES\tLAST SYNC")
	for _, site := range sites {
		wp, plugins, updates := "-", "-", "-"
		if site.Meta != nil {
			wp = site.Meta.WPVersion
			plugins = fmt.Sprint(site.Meta.PluginCount)
			updates = fmt.Sprintf("%d/%d", site.Meta.Updates.Plugins, site.Meta.Updates.Themes)
		}
		lastSync := "never"
		if site.LastSync != nil {
			lastSync = site.LastSync.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", site.ID, site.Name, site.URL, site.Status, wp, plugins, updates, lastSync)
	}
	w.Flush()
}

func init() {
	sitesCmd.AddCommand(sitesListCmd, sitesGetCmd, sitesDeleteCmd, sitesRefreshCmd, sitesSelectCmd)
	rootCmd.AddCommand(sitesCmd)
}
