package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"audio_relay/internal/domain"
	"audio_relay/internal/service"
	"audio_relay/internal/storage/postgres"
)

func newAdminCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "add <url>[|<url>...]",
			Short: "Subscribe to one or more feeds",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withAdmin(func(admin *service.Admin) error {
					created, err := admin.Add(cmd.Context(), service.ParseURLList(args[0]))
					if err != nil {
						return err
					}
					for _, src := range created {
						fmt.Fprintf(cmd.OutOrStdout(), "added %d %s\n", src.ID, src.URL)
					}
					return nil
				})
			},
		},
		{
			Use:   "remove <id>",
			Short: "Delete a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return ctx.withAdmin(func(admin *service.Admin) error {
					return admin.Remove(cmd.Context(), id)
				})
			},
		},
		{
			Use:   "list",
			Short: "Show every source and its processing record",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withAdmin(func(admin *service.Admin) error {
					sources, err := admin.List(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderSources(sources))
					return nil
				})
			},
		},
		{
			Use:   "tag <id> <label>",
			Short: "Set the hashtag appended to captions of a source",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return ctx.withAdmin(func(admin *service.Admin) error {
					return admin.Tag(cmd.Context(), id, strings.Join(args[1:], " "))
				})
			},
		},
		{
			Use:   "reset_all_states",
			Short: "Force every source back to idle",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withAdmin(func(admin *service.Admin) error {
					n, err := admin.ResetAllStates(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "reset %d sources\n", n)
					return nil
				})
			},
		},
		{
			Use:   "reset_state <id>",
			Short: "Force one source back to idle",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return ctx.withAdmin(func(admin *service.Admin) error {
					return admin.ResetState(cmd.Context(), id)
				})
			},
		},
		{
			Use:   "reset_ids <id>",
			Short: "Forget the handled item history of a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return ctx.withAdmin(func(admin *service.Admin) error {
					return admin.ResetIDs(cmd.Context(), id)
				})
			},
		},
	}
}

// withAdmin runs fn against the store and closes the pool afterwards, whatever fn returns.
func (c *commandContext) withAdmin(fn func(*service.Admin) error) error {
	defer c.close()

	db, err := c.database()
	if err != nil {
		return err
	}
	admin := service.NewAdmin(postgres.NewSourceStore(db), postgres.NewTransactionManager(db), c.logger)
	return fn(admin)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid source id %q", raw)
	}
	return id, nil
}

// renderSources lays out the list output. Numeric columns are right-aligned.
func renderSources(sources []*domain.Source) string {
	if len(sources) == 0 {
		return "No sources"
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "URL", "State", "Cursor", "History", "Tag", "Changed"})
	for _, src := range sources {
		tw.AppendRow(table.Row{
			src.ID,
			src.URL,
			string(src.State),
			src.CursorIndex,
			len(src.History),
			src.Tag,
			src.StateChangedAt.Local().Format(time.DateTime),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight},
		{Name: "Cursor", Align: text.AlignRight},
		{Name: "History", Align: text.AlignRight},
	})
	return tw.Render()
}
