package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/munesh14/first-exchange-hub-sub000/cmd/hub/cli"
	"github.com/munesh14/first-exchange-hub-sub000/internal/app"
)

const usage = `usage:
  hub                                   run the HTTP API
  hub jobs trigger -name <task> [-age 168h] [-retention 720h]
  hub jobs stats [-json]
  hub policy route -total <amount> [-currency AED] [-json]`

// runCommand dispatches operator subcommands and returns the exit code.
func runCommand(ctx context.Context, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "jobs trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		name := fs.String("name", "", "task type to enqueue")
		age := fs.Duration("age", cfg.AssetReminderAge, "pending asset reminder age")
		retention := fs.Duration("retention", cfg.IdempotencyRetention, "idempotency key retention")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
		defer jobsCLI.Close()
		return jobsCLI.TriggerCommand(ctx, cli.TriggerOptions{Name: *name, Age: *age, Retention: *retention})
	case "jobs stats":
		fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
		defer jobsCLI.Close()
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return jobsCLI.StatsCommand(ctx, cli.StatsOptions{JSONOutput: *asJSON})
	case "policy route":
		fs := flag.NewFlagSet("policy route", flag.ContinueOnError)
		total := fs.String("total", "", "order total")
		currency := fs.String("currency", "", "order currency")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		policy, err := cfg.LPOPolicy()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return cli.RouteCommand(policy, cli.RouteOptions{Total: *total, Currency: *currency, JSONOutput: *asJSON})
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
