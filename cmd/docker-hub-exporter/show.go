package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cirocosta/docker-hub-exporter/pkg/collector"
	"github.com/cirocosta/docker-hub-exporter/pkg/hub"
)

type showCommand struct{}

func (c *showCommand) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:          "show",
		Short:        "collect the configured targets once and print the records",
		RunE:         c.RunE,
		SilenceUsage: true,
	}
}

func (c *showCommand) RunE(cmd *cobra.Command, _ []string) error {
	env, err := newEnvironment(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, env.cfg.CollectTimeout)
	defer cancel()

	results := collector.RunCycle(ctx, env.client, env.targets,
		env.cfg.Concurrency, env.log.WithName("cycle"))

	var records []hub.Record
	for _, res := range results {
		records = append(records, res.Records...)
	}

	renderRecords(cmd.OutOrStdout(), records)

	failed := 0
	for _, res := range results {
		if res.Err == nil {
			continue
		}

		failed++
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n",
			res.Kind, res.Target, res.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(results))
	}

	return nil
}

func renderRecords(w io.Writer, records []hub.Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Image", "User", "Pulls", "Stars", "Automated", "Last Updated",
	})

	for _, rec := range records {
		table.Append([]string{
			rec.Name,
			rec.User,
			strconv.FormatUint(rec.PullCount, 10),
			strconv.FormatUint(rec.StarCount, 10),
			strconv.FormatBool(rec.IsAutomated),
			time.Unix(int64(rec.LastUpdated), 0).UTC().Format(time.RFC3339),
		})
	}

	table.Render()
}
