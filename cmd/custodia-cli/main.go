package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodia-io/custodia/pkg/client"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	actorToken string
	cfgFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custodia-cli",
	Short: "Custodia evidence custody CLI",
	Long: `custodia-cli is the operator command-line interface for Custodia.

It reads and verifies custody chains, records custody actions, and manages
evidence versions against a running Custodia service.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.custodia")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if actorToken == "" {
			actorToken = viper.GetString("actor_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.custodia/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Custodia service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&actorToken, "token", "", "actor session token (or ACTOR_TOKEN env / config)")

	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(versionEvidenceCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if actorToken != "" {
		opts = append(opts, client.WithBearerToken(actorToken))
	}
	return client.MustNew(serverURL, opts...)
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerFormat string

var ledgerCmd = &cobra.Command{
	Use:   "ledger <evidence-id>",
	Short: "Print the custody chain of an evidence item",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedger,
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerFormat, "format", "text", "Output format: text or json")
}

func runLedger(cmd *cobra.Command, args []string) error {
	entries, err := newClient().Ledger(context.Background(), args[0])
	if err != nil {
		return err
	}

	if ledgerFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tACTION\tACTOR\tHASH\tAT")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i, e.Action, e.Actor, short(e.Hash), e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyChainOnly bool

var verifyCmd = &cobra.Command{
	Use:   "verify <evidence-id> [evidence-id] ...",
	Short: "Run an integrity verification against one or more evidence items",
	Long: `Verify recomputes each item's content hash and walks its custody chain.

With --chain-only, only the hash chain is checked; the stored content is not
read. Exits non-zero when any item fails verification.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyChainOnly, "chain-only", false, "Check the hash chain without reading stored content")
}

func runVerify(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := context.Background()
	failed := 0

	for _, id := range args {
		if verifyChainOnly {
			st, err := c.VerifyLedger(ctx, id)
			if err != nil {
				return fmt.Errorf("verify chain %s: %w", id, err)
			}
			if st.Valid {
				fmt.Printf("%s  chain OK\n", id)
			} else {
				failed++
				fmt.Printf("%s  chain BROKEN at entry %d (%s)\n", id, st.Index, st.Fault)
			}
			continue
		}

		res, err := c.RunIntegrityCheck(ctx, id)
		if err != nil {
			return fmt.Errorf("verify %s: %w", id, err)
		}
		switch res.Status {
		case "MATCH":
			fmt.Printf("%s  MATCH\n", id)
		default:
			failed++
			fmt.Printf("%s  %s (%s)\n", id, res.Status, res.Reason)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d item(s) failed verification", failed, len(args))
	}
	return nil
}

// ── record ───────────────────────────────────────────────────────────────────

var recordMeta []string

var recordCmd = &cobra.Command{
	Use:   "record <evidence-id> <action>",
	Short: "Record a custody action on an evidence item",
	Long: `Record appends a custody action (VIEW, TRANSFER, VERIFIED, ...) to the
item's chain. Action metadata is passed as repeated --meta key=value flags:

  custodia-cli record 4f1f... TRANSFER --meta to_actor=7c2a...`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringArrayVar(&recordMeta, "meta", nil, "Action metadata as key=value (repeatable)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	meta := make(map[string]string, len(recordMeta))
	for _, kv := range recordMeta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --meta %q, want key=value", kv)
		}
		meta[k] = v
	}

	entry, err := newClient().RecordAction(context.Background(), args[0], strings.ToUpper(args[1]), meta)
	if err != nil {
		return err
	}

	fmt.Printf("recorded %s\n", entry.Action)
	fmt.Printf("  entry hash: %s\n", entry.Hash)
	fmt.Printf("  prev hash:  %s\n", entry.PrevHash)
	return nil
}

// ── version (evidence content) ───────────────────────────────────────────────

var (
	versionHash    string
	versionLocator string
)

var versionEvidenceCmd = &cobra.Command{
	Use:   "version <evidence-id>",
	Short: "List evidence versions, or add one with --hash and --locator",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersion,
}

func init() {
	versionEvidenceCmd.Flags().StringVar(&versionHash, "hash", "", "Content hash of the new version")
	versionEvidenceCmd.Flags().StringVar(&versionLocator, "locator", "", "Storage locator of the new version")
}

func runVersion(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := context.Background()

	if versionHash != "" || versionLocator != "" {
		if versionHash == "" || versionLocator == "" {
			return fmt.Errorf("adding a version requires both --hash and --locator")
		}
		v, err := c.AddVersion(ctx, args[0], versionHash, versionLocator)
		if err != nil {
			return err
		}
		fmt.Printf("added version %d (%s)\n", v.VersionNumber, short(v.ContentHash))
		return nil
	}

	versions, err := c.Versions(ctx, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tHASH\tLOCATOR\tAT")
	for _, v := range versions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			v.VersionNumber, short(v.ContentHash), v.StorageLocator,
			v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// ── version (tool) ───────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "tool-version",
	Short: "Print the custodia-cli version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("custodia-cli", version)
	},
}

// short abbreviates a hex hash for table output.
func short(h string) string {
	if len(h) > 12 {
		return h[:12] + "…"
	}
	return h
}
