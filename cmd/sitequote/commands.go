package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/sitequote/sitequote/internal/config"
	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/queue"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func syncMark(synced bool) string {
	if synced {
		return colorize(colorGreen, "synced")
	}
	return colorize(colorYellow, "pending")
}

// --- customer ---

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a customer (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")
		address, _ := cmd.Flags().GetString("address")
		notes, _ := cmd.Flags().GetString("notes")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.customers.Create(entity.Customer{
			Name:    args[0],
			Email:   email,
			Phone:   phone,
			Address: address,
			Notes:   notes,
		})
		if err != nil {
			return err
		}

		printSuccess("Added customer %s (%s)", c.Name, shortID(c.LocalID))
		return nil
	},
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		customers, err := a.customers.List()
		if err != nil {
			return err
		}
		if len(customers) == 0 {
			fmt.Println("No customers yet.")
			return nil
		}

		sort.Slice(customers, func(i, j int) bool {
			return customers[i].UpdatedAt.Before(customers[j].UpdatedAt)
		})
		for _, c := range customers {
			fmt.Printf("%s  %-24s %-24s %s\n",
				colorize(colorCyan, shortID(c.LocalID)), c.Name, c.Email, syncMark(c.Synced))
		}
		return nil
	},
}

var customerRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a customer (takes effect on the server at next sync)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		localID, err := resolveCustomerID(a, args[0])
		if err != nil {
			return err
		}
		if err := a.customers.Delete(localID); err != nil {
			return err
		}
		printSuccess("Deleted customer %s", shortID(localID))
		return nil
	},
}

// resolveCustomerID accepts a full local id or an unambiguous prefix.
func resolveCustomerID(a *app, ref string) (string, error) {
	customers, err := a.customers.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, c := range customers {
		if c.LocalID == ref {
			return ref, nil
		}
		if len(ref) >= 4 && len(c.LocalID) >= len(ref) && c.LocalID[:len(ref)] == ref {
			if match != "" {
				return "", fmt.Errorf("customer id prefix %q is ambiguous", ref)
			}
			match = c.LocalID
		}
	}
	if match == "" {
		return "", fmt.Errorf("customer %q not found", ref)
	}
	return match, nil
}

func init() {
	customerAddCmd.Flags().String("email", "", "customer email")
	customerAddCmd.Flags().String("phone", "", "customer phone")
	customerAddCmd.Flags().String("address", "", "job site or billing address")
	customerAddCmd.Flags().String("notes", "", "free-form notes")
	customerCmd.AddCommand(customerAddCmd)
	customerCmd.AddCommand(customerListCmd)
	customerCmd.AddCommand(customerRmCmd)
}

// --- quote ---

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Manage quotes",
}

var quoteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a quote for a customer (works offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		customerRef, _ := cmd.Flags().GetString("customer")
		trade, _ := cmd.Flags().GetString("trade")
		materials, _ := cmd.Flags().GetString("materials")
		materialsCost, _ := cmd.Flags().GetFloat64("materials-cost")
		laborCost, _ := cmd.Flags().GetFloat64("labor-cost")
		markup, _ := cmd.Flags().GetFloat64("markup")

		if customerRef == "" {
			return fmt.Errorf("--customer is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		customerID, err := resolveCustomerID(a, customerRef)
		if err != nil {
			return err
		}

		q, err := a.quotes.Create(entity.Quote{
			CustomerID:    customerID,
			Trade:         trade,
			Materials:     materials,
			MaterialsCost: materialsCost,
			LaborCost:     laborCost,
			Markup:        markup,
		})
		if err != nil {
			return err
		}

		printSuccess("Created %s quote %s, total $%.2f", q.Trade, shortID(q.LocalID), q.Total)
		return nil
	},
}

var quoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		quotes, err := a.quotes.List()
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Println("No quotes yet.")
			return nil
		}

		sort.Slice(quotes, func(i, j int) bool {
			return quotes[i].UpdatedAt.Before(quotes[j].UpdatedAt)
		})
		for _, q := range quotes {
			fmt.Printf("%s  %-12s %-10s $%10.2f  %s\n",
				colorize(colorCyan, shortID(q.LocalID)), q.Trade, q.Status, q.Total, syncMark(q.Synced))
		}
		return nil
	},
}

var quoteStatusCmd = &cobra.Command{
	Use:   "status <id> <draft|sent|accepted|declined>",
	Short: "Change a quote's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := args[1]
		switch status {
		case entity.QuoteStatusDraft, entity.QuoteStatusSent, entity.QuoteStatusAccepted, entity.QuoteStatusDeclined:
		default:
			return fmt.Errorf("unknown status %q", status)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		q, ok, err := a.quotes.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("quote %q not found", args[0])
		}
		q.Status = status
		if _, err := a.quotes.Update(q); err != nil {
			return err
		}
		printSuccess("Quote %s is now %s", shortID(q.LocalID), status)
		return nil
	},
}

var quoteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a quote (takes effect on the server at next sync)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.quotes.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted quote %s", shortID(args[0]))
		return nil
	},
}

func init() {
	quoteAddCmd.Flags().String("customer", "", "customer local id (or prefix)")
	quoteAddCmd.Flags().String("trade", "", "trade, e.g. plumbing, electrical")
	quoteAddCmd.Flags().String("materials", "", "materials description")
	quoteAddCmd.Flags().Float64("materials-cost", 0, "materials cost")
	quoteAddCmd.Flags().Float64("labor-cost", 0, "labor cost")
	quoteAddCmd.Flags().Float64("markup", 0, "markup fraction, e.g. 0.2 for 20%")
	quoteCmd.AddCommand(quoteAddCmd)
	quoteCmd.AddCommand(quoteListCmd)
	quoteCmd.AddCommand(quoteStatusCmd)
	quoteCmd.AddCommand(quoteRmCmd)
}

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage floor plan attachments",
}

var planAttachCmd = &cobra.Command{
	Use:   "attach <quote-id> <file>",
	Short: "Attach a floor plan document (PDF, PNG, or JPEG) to a quote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		q, ok, err := a.quotes.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("quote %q not found", args[0])
		}

		if name == "" {
			name = filepath.Base(args[1])
		}
		plan, err := a.floorplans.Create(entity.FloorPlan{QuoteID: q.LocalID, Name: name}, data)
		if err != nil {
			return err
		}

		printSuccess("Attached %s (%s, %d bytes) to quote %s",
			plan.Name, plan.ContentType, plan.SizeBytes, shortID(q.LocalID))
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List floor plan attachments",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		plans, err := a.floorplans.List()
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Println("No floor plans yet.")
			return nil
		}

		for _, p := range plans {
			pages := ""
			if p.Pages > 0 {
				pages = fmt.Sprintf("%d pages, ", p.Pages)
			}
			fmt.Printf("%s  %-24s quote=%s  %s%d bytes  %s\n",
				colorize(colorCyan, shortID(p.LocalID)), p.Name, shortID(p.QuoteID),
				pages, p.SizeBytes, syncMark(p.Synced))
		}
		return nil
	},
}

var planRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a floor plan attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.floorplans.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted floor plan %s", shortID(args[0]))
		return nil
	},
}

func init() {
	planAttachCmd.Flags().String("name", "", "display name (defaults to the file name)")
	planCmd.AddCommand(planAttachCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planRmCmd)
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending mutations awaiting sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.queue.List()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, it := range items {
			fmt.Printf("%s  %-7s %-10s %s\n",
				it.CreatedAt.Format(time.RFC3339), it.Action, it.Entity, colorize(colorCyan, shortID(it.ID)))
		}
		return nil
	},
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending mutations and pull server state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.queue.Len()
		if err != nil {
			return err
		}

		var bar *pb.ProgressBar
		if pending > 0 {
			bar = pb.StartNew(pending)
			a.engine.OnItem = func(item queue.Item, err error) {
				bar.Increment()
			}
		}

		res := a.engine.FullSync(cmd.Context())
		if bar != nil {
			bar.Finish()
		}

		for _, e := range res.Errors {
			printWarning("%s", e)
		}
		if res.Failed > 0 {
			printWarning("Synced %d, %d still pending", res.Synced, res.Failed)
			return nil
		}
		printSuccess("Synced %d mutation(s)", res.Synced)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, pending mutations, and cache counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.monitor().IsOnline(cmd.Context()) {
			printStatus("Network", "online (%s)", a.cfg.API.BaseURL)
		} else {
			printStatus("Network", "offline")
		}

		pending, err := a.queue.Len()
		if err != nil {
			return err
		}
		printStatus("Pending", "%d mutation(s)", pending)

		customers, err := a.customers.List()
		if err != nil {
			return err
		}
		quotes, err := a.quotes.List()
		if err != nil {
			return err
		}
		plans, err := a.floorplans.List()
		if err != nil {
			return err
		}
		printStatus("Customers", "%d", len(customers))
		printStatus("Quotes", "%d", len(quotes))
		printStatus("Floor plans", "%d", len(plans))
		printStatus("Data dir", "%s", a.cfg.Storage.DataDir)
		return nil
	},
}

// --- log ---

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the session log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.sessionLog.Entries()
		if err != nil {
			return err
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		for _, e := range entries {
			fmt.Printf("%s  %-18s %s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Details)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().Int("limit", 50, "maximum number of entries to show")
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor connectivity and sync automatically on reconnect",
	Long: `Monitor connectivity and sync automatically.

Polls the server every sync.interval_seconds. Each time the network comes
back after being down, one full sync cycle runs. Stop with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := a.monitor()
		a.engine.BindReconnect(m)

		interval := time.Duration(a.cfg.Sync.IntervalSeconds) * time.Second
		printStep("Watching %s every %s", a.cfg.API.BaseURL, interval)

		// Drain anything already queued before settling into the poll loop.
		res := a.engine.FullSync(ctx)
		if res.Synced > 0 || res.Failed > 0 {
			printStep("Initial sync: %d synced, %d pending", res.Synced, res.Failed)
		}

		m.Run(ctx, interval)
		fmt.Fprintln(os.Stderr, "stopping...")
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
