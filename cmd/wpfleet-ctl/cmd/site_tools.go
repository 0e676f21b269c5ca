package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wpfleet/wpfleet/internal/api"
)

var usersCmd = &cobra.Command{
	Use:   "users [site-id]",
	Short: "List WordPress users of a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Get(sitePath(args[0], "users"))
		if err != nil {
			return fmt.Errorf("error fetching users: %v", err)
		}
		defer resp.Body.Close()

		var users []api.SiteUser
		if _, err := DecodeData(resp, &users); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLES\tREGISTERED")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, strings.Join(u.Roles, ","), u.Registered)
		}
		w.Flush()
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [site-id]",
	Short: "Show content and storage counters of a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Get(sitePath(args[0], "stats"))
		if err != nil {
			return fmt.Errorf("error fetching stats: %v", err)
		}
		defer resp.Body.Close()

		var stats api.SiteStats
		if _, err := DecodeData(resp, &stats); err != nil {
			return err
		}
		PrintJSON(stats)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [site-id]",
	Short: "Print a one-time wp-admin login link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := NewClient().Post(sitePath(args[0], "admin-login"), nil)
		if err != nil {
			return fmt.Errorf("error requesting login link: %v", err)
		}
		defer resp.Body.Close()

		var out struct {
			LoginURL string `json:"login_url"`
		}
		message, err := DecodeData(resp, &out)
		if err != nil {
			return err
		}
		fmt.Println(out.LoginURL)
		fmt.Fprintln(os.Stderr, message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd, statsCmd, loginCmd)
}
