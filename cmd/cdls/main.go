// Command cdls loads data from registered sources into the local warehouse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbazile/cdls/pkg/cdls"
	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/logging"
)

var (
	flagList        bool
	flagAll         bool
	flagNoisy       bool
	flagInstallDB   bool
	flagHaltOnError bool
	flagConfigPath  string
	flagDBPath      string
	flagLogDir      string
)

var rootCmd = &cobra.Command{
	Use:   "cdls [identifier ...]",
	Short: "Cloudy Data Load Subsystem",
	Long: `Loads data from registered sources into the local warehouse as JSON
documents. Sources are declared in the source configuration file and can be
listed, loaded individually by identifier, or loaded all at once.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagList, "list", "l", false, "Gets a list of all registered sources")
	rootCmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Executes a load operation on every registered source")
	rootCmd.Flags().BoolVarP(&flagNoisy, "noisy", "n", false, "Outputs more verbose logging info")
	rootCmd.Flags().BoolVarP(&flagInstallDB, "install-db", "i", false, "Installs the database schema")
	rootCmd.Flags().BoolVar(&flagHaltOnError, "halt-on-error", false, "Fail fast instead of loading the next source")
	rootCmd.Flags().StringVar(&flagConfigPath, "config", config.DefaultSourceConfigPath, "Path to the source configuration file")
	rootCmd.Flags().StringVar(&flagDBPath, "db", config.DefaultDBPath, "Path to the warehouse sqlite database")
	rootCmd.Flags().StringVar(&flagLogDir, "log-dir", config.DefaultLogDir, "Directory for monthly logfiles")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if !flagList && !flagAll && !flagInstallDB && len(args) == 0 {
		cmd.Help() //nolint:errcheck
		os.Exit(1)
	}

	// Only one action may be picked per invocation.
	picked := 0
	for _, on := range []bool{flagList, flagAll, len(args) > 0} {
		if on {
			picked++
		}
	}
	if picked > 1 {
		fmt.Fprintln(os.Stderr, "Error: Invalid argument combination")
		cmd.Help() //nolint:errcheck
		os.Exit(1)
	}

	log := logging.New(flagNoisy, flagLogDir)

	started := time.Now()
	c, err := cdls.Initialize(cdls.Options{
		ConfigPath: flagConfigPath,
		DBPath:     flagDBPath,
		Log:        log,
	})
	if err != nil {
		fatal("CDLS Initialization Failed", err)
	}

	if flagInstallDB {
		fmt.Println("Rebuilding database schema...")
		if err := c.InstallSchema(); err != nil {
			fatal("Fatal Error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case flagList:
		printSources(c.ListRegisteredSources())

	case len(args) > 0:
		for _, identifier := range args {
			if _, err := c.PerformLoad(ctx, identifier); err != nil {
				fatal("Fatal Error", err)
			}
		}

	case flagAll:
		if _, err := c.PerformAllLoads(ctx, flagHaltOnError); err != nil {
			fatal("Fatal Error", err)
		}
	}

	log.Debug().Msgf("Done in %s", time.Since(started))
	return nil
}

func printSources(infos []cdls.SourceInfo) {
	fmt.Println("All Registered Sources:")
	fmt.Println()
	fmt.Println("             Identifier   Description")
	fmt.Println("             ----------   -----------")
	for _, info := range infos {
		fmt.Printf("%23s : (%s) %s\n", info.Identifier, info.Type, info.Description)
	}
	fmt.Println()
}

// fatal prints the error with its type name, adds full details when noisy
// logging is on, and exits nonzero.
func fatal(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s: %s\n", prefix, errorName(err), err)
	if flagNoisy {
		if d, ok := err.(interface{ Details() string }); ok && d.Details() != "" {
			fmt.Fprintln(os.Stderr, d.Details())
		}
	}
	os.Exit(1)
}

func errorName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
