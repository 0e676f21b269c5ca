package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

var (
	updateName        string
	updateURL         string
	updateAPIKey      string
	updateAPISecret   string
	updateClientName  string
	updateClientEmail string
	updateReports     bool
	updateReportDay   int
)

// sitesUpdateCmd represents the sites update command
var sitesUpdateCmd = &cobra.Command{
	Use:   "update [site-id]",
	Short: "Update a site",
	Long:  `Update site settings. Only provided flags are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates := make(map[string]interface{})

		if cmd.Flags().Changed("name") {
			updates["name"] = updateName
		}
		if cmd.Flags().Changed("site-url") {
			updates["url"] = updateURL
		}
		if cmd.Flags().Changed("key") {
			updates["api_key"] = updateAPIKey
		}
		if cmd.Flags().Changed("secret") {
			updates["api_secret"] = updateAPISecret
		}

		client, changed, err := mergedClient(cmd, args[0])
		if err != nil {
			return err
		}
		if changed {
			updates["client"] = client
		}

		if len(updates) == 0 {
			return fmt.Errorf("no updates provided")
		}

		resp, err := NewClient().Patch(sitePath(args[0]), updates)
		if err != nil {
			return fmt.Errorf("error updating site: %v", err)
		}
		defer resp.Body.Close()

		if _, err := DecodeData(resp, nil); err != nil {
			return err
		}
		fmt.Println("Site updated successfully.")
		return nil
	},
}

// mergedClient applies the changed client flags on top of the site's current
// client record so fields without a flag survive the update.
func mergedClient(cmd *cobra.Command, id string) (api.ClientInfo, bool, error) {
	flags := cmd.Flags()
	if !flags.Changed("client-name") && !flags.Changed("client-email") &&
		!flags.Changed("reports") && !flags.Changed("report-day") {
		return api.ClientInfo{}, false, nil
	}

	resp, err := NewClient().Get(sitePath(id))
	if err != nil {
		return api.ClientInfo{}, false, fmt.Errorf("error fetching site: %v", err)
	}
	defer resp.Body.Close()

	var site api.SiteView
	if _, err := DecodeData(resp, &site); err != nil {
		return api.ClientInfo{}, false, err
	}

	var client api.ClientInfo
	if site.Client != nil {
		client = *site.Client
	}
	if flags.Changed("client-name") {
		client.Name = updateClientName
	}
	if flags.Changed("client-email") {
		client.Email = updateClientEmail
	}
	if flags.Changed("reports") {
		client.SendReports = updateReports
	}
	if flags.Changed("report-day") {
		client.ReportDay = updateReportDay
	}
	return client, true, nil
}

func init() {
	sitesUpdateCmd.Flags().StringVar(&updateName, "name", "", "New name for the site")
	sitesUpdateCmd.Flags().StringVar(&updateURL, "site-url", "", "New base URL")
	sitesUpdateCmd.Flags().StringVar(&updateAPIKey, "key", "", "New connector API key")
	sitesUpdateCmd.Flags().StringVar(&updateAPISecret, "secret", "", "New connector API secret")
	sitesUpdateCmd.Flags().StringVar(&updateClientName, "client-name", "", "Client contact name")
	sitesUpdateCmd.Flags().StringVar(&updateClientEmail, "client-email", "", "Client contact email")
	sitesUpdateCmd.Flags().BoolVar(&updateReports, "reports", false, "Send monthly reports to the client")
	sitesUpdateCmd.Flags().IntVar(&updateReportDay, "report-day", 1, "Day of month (1-28) to send the report")
	sitesCmd.AddCommand(sitesUpdateCmd)
}
