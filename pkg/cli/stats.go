package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/secmon-lab/contrack/pkg/cli/config"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func cmdStats() *cli.Command {
	var tenantsCfg config.Tenants
	var repoCfg config.Repository

	var flags []cli.Flag
	flags = append(flags, tenantsCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "stats",
		Usage: "Show contact statistics per tenant",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			registry, err := tenantsCfg.Configure()
			if err != nil {
				return err
			}
			repo, closeRepo, err := repoCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			ids := registry.IDs()
			stats := make([]*model.Stats, len(ids))

			eg, ctx := errgroup.WithContext(ctx)
			eg.SetLimit(4)
			for i, id := range ids {
				eg.Go(func() error {
					contacts, err := repo.Contact().List(ctx, id)
					if err != nil {
						return err
					}
					stats[i] = model.ComputeStats(id, contacts, time.Now())
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}

			for _, s := range stats {
				printStats(s)
			}
			return nil
		},
	}
}

func printStats(s *model.Stats) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("%s\n", s.TenantID)

	fmt.Printf("  total        %d\n", s.Total)
	fmt.Printf("  with company %d\n", s.WithCompany)
	fmt.Printf("  last 7 days  %d\n", s.Recent7d)
	if s.Unsynced > 0 {
		fmt.Printf("  unsynced     %s\n", color.YellowString("%d", s.Unsynced))
	} else {
		fmt.Printf("  unsynced     %s\n", color.GreenString("0"))
	}
	if s.EnrichmentFailed > 0 {
		fmt.Printf("  failed       %s\n", color.RedString("%d", s.EnrichmentFailed))
	}

	for _, status := range types.AllContactStatuses() {
		if n := s.ByStatus[status]; n > 0 {
			fmt.Printf("  %-18s %d\n", status, n)
		}
	}

	if len(s.ByEvent) > 0 {
		events := make([]string, 0, len(s.ByEvent))
		for e := range s.ByEvent {
			events = append(events, e)
		}
		sort.Strings(events)
		fmt.Println("  events")
		for _, e := range events {
			fmt.Printf("    %-16s %d\n", e, s.ByEvent[e])
		}
	}
}
