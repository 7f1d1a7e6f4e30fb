package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Hara602/devtree/internal/policy"
	"github.com/Hara602/devtree/internal/store"
)

// openRules parses the flags shared by the rule commands.
func openRules(name, synopsis string, args []string) (*policy.Rules, *store.DB, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "devtree %s\n\nUsage:\n  devtree %s [flags] %s\n\nFlags:\n", name, name, synopsis)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	return policy.NewRules(db), db, fs.Args(), nil
}

func runBlock(ctx context.Context, args []string) error {
	rules, db, rest, err := openRules("block", "<vid> <pid> <serial> [reason...]", args)
	if err != nil {
		return err
	}
	defer db.Close()
	if len(rest) < 3 {
		return fmt.Errorf("vid, pid and serial required")
	}
	reason := strings.Join(rest[3:], " ")
	if err := rules.AddBlockRule(ctx, rest[0], rest[1], rest[2], reason); err != nil {
		return err
	}
	fmt.Printf("blocked %s:%s serial %q\n", rest[0], rest[1], rest[2])
	return nil
}

func runUnblock(ctx context.Context, args []string) error {
	rules, db, rest, err := openRules("unblock", "<vid> <pid> <serial>", args)
	if err != nil {
		return err
	}
	defer db.Close()
	if len(rest) != 3 {
		return fmt.Errorf("vid, pid and serial required")
	}
	removed, err := rules.RemoveBlockRule(ctx, rest[0], rest[1], rest[2])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no rule for %s:%s serial %q", rest[0], rest[1], rest[2])
	}
	return nil
}

func runRules(ctx context.Context, args []string) error {
	rules, db, _, err := openRules("rules", "", args)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := rules.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VID\tPID\tSERIAL\tADDED\tREASON")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.VendorID, r.ProductID, r.Serial,
			r.CreatedAt.Format("2006-01-02 15:04"), r.Reason)
	}
	return tw.Flush()
}
