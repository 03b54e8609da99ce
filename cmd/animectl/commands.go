package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pokerjest/animerss/internal/app"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/internal/service"
	"github.com/spf13/cobra"
)

// newFeedCommand fetches a feed through a source plugin without writing
// anything, which is handy when a vendor changes its markup.
func newFeedCommand(ctx *commandContext) *cobra.Command {
	var sourceType string
	var enrich bool
	var limit int

	cmd := &cobra.Command{
		Use:   "feed <url>",
		Short: "Fetch a feed and print what the pipeline would see",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				plugin, err := a.Plugins.Get(model.SourceType(sourceType))
				if err != nil {
					return err
				}
				items, err := a.Fetcher.Fetch(cmd.Context(), args[0], plugin.FieldMappings())
				if err != nil {
					return err
				}
				if limit > 0 && len(items) > limit {
					items = items[:limit]
				}

				headers := []string{"Hash", "Title", "Size"}
				if enrich {
					headers = append(headers, "Parsed", "Anilist", "Bangumi")
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					hash, err := plugin.IdentityHash(item)
					if err != nil {
						hash = "-"
					}
					size := item.Field("size")
					if size == "" && item.EnclosureLength > 0 {
						size = humanize.IBytes(uint64(item.EnclosureLength))
					}
					row := []string{truncate(hash, 12), truncate(item.Title, 60), size}
					if enrich {
						rec, err := plugin.Enrich(cmd.Context(), item)
						if err != nil {
							row = append(row, "error: "+err.Error(), "", "")
						} else {
							row = append(row, rec.ParsedTitle, strconv.Itoa(rec.AnilistID), strconv.Itoa(rec.BangumiID))
						}
					}
					rows = append(rows, row)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows))
				fmt.Fprintf(cmd.OutOrStdout(), "%d items\n", len(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sourceType, "type", "t", string(model.SourceNyaa), "Source type (nyaa or mikan)")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Also resolve titles against Anilist and Bangumi")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Only show the first n items")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				subs, err := a.Subscriptions.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(subs))
				for _, s := range subs {
					last := "never"
					if s.RefreshedAt != nil {
						last = humanize.Time(*s.RefreshedAt)
					}
					rows = append(rows, []string{s.Name, string(s.SourceType), s.Cron, string(s.State), last, strconv.Itoa(s.RefreshCount)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Source", "Cron", "State", "Refreshed", "Count"}, rows, 6))
				return nil
			})
		},
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <name>",
		Short: "Run one refresh of a subscription in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Pipeline.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items, %d new, %d linked, %d failed\n",
					args[0], res.Items, res.Created, res.Linked, res.Failed)
				return nil
			})
		},
	}
}

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	var in service.SubscribeInput
	var sourceType string

	cmd := &cobra.Command{
		Use:   "subscribe <name> <url>",
		Short: "Add a subscription and run its first refresh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				in.Name, in.URL = args[0], args[1]
				in.SourceType = model.SourceType(sourceType)
				sub, err := a.Subscriptions.Subscribe(cmd.Context(), in)
				if err != nil {
					return err
				}
				// 等待首次刷新完成
				a.Scheduler.Stop()

				animes, err := a.Subscriptions.Animes(cmd.Context(), sub.Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s (%s), %d releases\n", sub.Name, sub.Cron, len(animes))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sourceType, "type", "t", string(model.SourceNyaa), "Source type (nyaa or mikan)")
	cmd.Flags().StringVar(&in.Cron, "cron", "", "Cron expression (defaults to scheduler.default_cron)")
	return cmd
}

func newUnsubscribeCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unsubscribe <name>",
		Short: "Remove a subscription and the releases only it referenced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				removed, err := a.Subscriptions.Unsubscribe(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s and %d releases\n", args[0], removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete even while a refresh is in progress")
	return cmd
}

func newFixOrphansCommand(ctx *commandContext) *cobra.Command {
	var resetStuck bool
	cmd := &cobra.Command{
		Use:   "fix-orphans",
		Short: "Delete releases no subscription references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Store.DeleteOrphans(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No orphaned releases found.")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphaned releases.\n", n)
				}
				if resetStuck {
					reset, err := a.Store.ResetStuck(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Reset %d subscriptions stuck in refreshing.\n", reset)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&resetStuck, "reset-stuck", false, "Also reset subscriptions left in refreshing state")
	return cmd
}
