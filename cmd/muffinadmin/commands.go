package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/crud"
	"github.com/cesarabad/muffinmanager/pkg/i18n"
	"github.com/cesarabad/muffinmanager/pkg/live"
	"github.com/cesarabad/muffinmanager/pkg/models"
	"github.com/cesarabad/muffinmanager/pkg/permission"
	"github.com/cesarabad/muffinmanager/pkg/resources"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print the table cells as JSON objects keyed by column label"}
}

func (a *app) headers(res resources.Resource) []string {
	out := make([]string, len(res.Headers))
	for i, h := range res.Headers {
		out[i] = a.t(h, nil)
	}
	return out
}

func argResource(a *app, cmd *cli.Command) (resources.Resource, error) {
	name := cmd.Args().First()
	if name == "" {
		return resources.Resource{}, fmt.Errorf("missing resource, one of: %s", strings.Join(a.registry.Paths(), ", "))
	}
	return a.registry.Lookup(name)
}

func argID(cmd *cli.Command, pos int) (int64, error) {
	raw := cmd.Args().Get(pos)
	if raw == "" {
		return 0, fmt.Errorf("missing id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List the records of a resource",
		ArgsUsage: "<resource>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "obsolete", Usage: "list obsolete versions instead of active ones"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				res, err := argResource(a, cmd)
				if err != nil {
					return err
				}
				rows, err := res.List(ctx, cmd.Bool("obsolete"))
				if err != nil {
					return err
				}
				headers := a.headers(res)
				if cmd.Bool("json") {
					return printJSON(a.out, rowsToRecords(res.Headers, rows))
				}
				printTable(a.out, a.t("table.empty", nil), headers, rows)
				return nil
			})
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one record",
		ArgsUsage: "<resource> <id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				res, err := argResource(a, cmd)
				if err != nil {
					return err
				}
				id, err := argID(cmd, 1)
				if err != nil {
					return err
				}
				row, err := res.Get(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(a.out, rowsToRecords(res.Headers, [][]string{row})[0])
				}
				printKV(a.out, a.headers(res), row)
				return nil
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a record by id, or every version of a reference",
		ArgsUsage: "<resource> <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reference", Usage: "delete every version of this reference"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				res, err := argResource(a, cmd)
				if err != nil {
					return err
				}
				entity := a.t(res.Name, nil)
				if ref := cmd.String("reference"); ref != "" {
					if res.DeleteReference == nil {
						return fmt.Errorf("resource %q is not versioned", res.Path)
					}
					if err := res.DeleteReference(ctx, ref); err != nil {
						return err
					}
				} else {
					id, err := argID(cmd, 1)
					if err != nil {
						return err
					}
					if err := res.Delete(ctx, id); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintln(a.out, a.t("notify.deleted", i18n.Params{"entity": entity}))
				return err
			})
		},
	}
}

func obsoleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "obsolete",
		Usage:     "Mark every version of a reference obsolete, or restore its latest version",
		ArgsUsage: "<resource> <reference>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "restore", Usage: "make the latest version active again"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				res, err := argResource(a, cmd)
				if err != nil {
					return err
				}
				if res.SetObsolete == nil {
					return fmt.Errorf("resource %q is not versioned", res.Path)
				}
				ref := cmd.Args().Get(1)
				if ref == "" {
					return fmt.Errorf("missing reference")
				}
				restore := cmd.Bool("restore")
				if err := res.SetObsolete(ctx, ref, !restore); err != nil {
					return err
				}
				key := "notify.obsolete.marked"
				if restore {
					key = "notify.obsolete.removed"
				}
				_, err = fmt.Fprintln(a.out, a.t(key, i18n.Params{"entity": a.t(res.Name, nil)}))
				return err
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print live change notifications until interrupted",
		ArgsUsage: "[resource...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Usage: "exit after this many notifications"},
			&cli.StringSliceFlag{Name: "topic", Usage: "extra topic to follow"},
			&cli.IntFlag{Name: "user", Usage: "also follow the per-user topic of this user id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				topics := append([]string{}, cmd.StringSlice("topic")...)
				if cmd.IsSet("user") {
					topics = append(topics, constants.UserTopic(cmd.Int("user")))
				}
				for _, name := range cmd.Args().Slice() {
					res, err := a.registry.Lookup(name)
					if err != nil {
						return err
					}
					topics = append(topics, res.Topic)
				}
				if len(topics) == 0 {
					topics = []string{constants.GlobalTopic}
				}
				return a.watch(ctx, topics, int(cmd.Int("count")))
			})
		},
	}
}

func (a *app) watch(ctx context.Context, topics []string, count int) error {
	ch, err := live.New(live.Config{
		URL:           a.cfg.LiveURL,
		Credentials:   a.sessions,
		Logger:        a.log,
		CheckInterval: a.cfg.ReconnectInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		disposeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ch.Dispose(disposeCtx)
	}()
	if err := ch.Connect(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string, 16)
	unsubscribe := ch.Subscribe(func(message, topic string) {
		select {
		case lines <- topic + "\t" + message:
		case <-ctx.Done():
		}
	}, topics...)
	defer unsubscribe()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if _, err := fmt.Fprintln(a.out, line); err != nil {
				return err
			}
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

func effectiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "effective",
		Usage:     "Show the effective permissions of a user and where each comes from",
		ArgsUsage: "<user-id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				id, err := argID(cmd, 0)
				if err != nil {
					return err
				}
				users := crud.New[models.UserDetailed](a.transport, resources.UserResource)
				user, err := users.GetByID(ctx, id)
				if err != nil {
					return err
				}
				rows := permissionSources(user)
				if cmd.Bool("json") {
					return printJSON(a.out, rowsToRecords([]string{"permission", "source"}, rows))
				}
				printTable(a.out, a.t("table.empty", nil), []string{a.t("field.permissions", nil), "source"}, rows)
				return nil
			})
		},
	}
}

// permissionSources lists each effective permission with "direct",
// "group" or "direct+group".
func permissionSources(u models.UserDetailed) [][]string {
	direct := permission.Direct(u)
	inherited := permission.Inherited(u.Groups)
	var rows [][]string
	for _, p := range permission.Effective(u).Sorted() {
		var source string
		switch {
		case direct.Has(p) && inherited.Has(p):
			source = "direct+group"
		case direct.Has(p):
			source = "direct"
		default:
			source = "group"
		}
		rows = append(rows, []string{string(p), source})
	}
	return rows
}

func resourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "resources",
		Usage: "List the known resources",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd, func(a *app) error {
				rows := make([][]string, 0)
				for _, p := range a.registry.Paths() {
					res, _ := a.registry.Lookup(p)
					rows = append(rows, []string{p, a.t(res.Name, nil), strconv.FormatBool(res.Versioned), res.Topic})
				}
				printTable(a.out, "", []string{"resource", "entity", "versioned", "topic"}, rows)
				return nil
			})
		},
	}
}
