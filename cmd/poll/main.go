package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	apiclient "github.com/alexishuch/availability-poll/pkg/api/client"
	"github.com/alexishuch/availability-poll/pkg/config"
)

const requestTimeout = 15 * time.Second

var buildVersion = "dev"

type app struct {
	apiBase string
	out     io.Writer
}

func main() {
	_ = config.LoadDotEnv()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:          "poll",
		Short:        "Find the times where poll participants are available together",
		Version:      strings.TrimSpace(buildVersion),
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.apiBase, "api", os.Getenv("POLL_API_URL"), "API base URL (default http://localhost:4000, env POLL_API_URL)")

	root.AddCommand(a.pollCmd(), a.participantCmd(), a.slotCmd(), a.overlapCmd())
	return root
}

func (a *app) client() (*apiclient.Client, error) {
	return apiclient.New(a.apiBase)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

// newTable returns a borderless, tab-padded table like the rest of our tools print.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
