package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/intercept"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain whether a query would be cached",
	Long: `Explain runs a query's text through Stash's eligibility rules
(directives, CacheAllQueries, excluded tables) and reports the decision,
the invalidation tags it would be keyed under, and its resolved TTL,
without ever touching a real store.

Examples:
  stashcli explain -q "SELECT * FROM Products"
  echo "SELECT * FROM Products -- Stash:TTL=60" | stashcli explain`,
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().StringP("query", "q", "", "SQL text to evaluate (reads stdin if omitted)")
	explainCmd.Flags().Bool("cache-all", false, "Evaluate as if CacheAllQueries were enabled")
}

func runExplain(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	cacheAll, _ := cmd.Flags().GetBool("cache-all")

	if query == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read query from stdin: %v", err)
		}
		query = string(data)
	}

	opts := config.Default()
	opts.CacheAllQueries = cacheAll
	st := local.New(0, opts.Now, nil)
	ic := intercept.New(opts, st, telemetry.New(opts, st))

	exp := ic.Explain(driverio.Command{Text: query})

	fmt.Printf("Eligible: %v\n", exp.Eligible)
	if !exp.Eligible {
		return nil
	}

	tags := append([]string(nil), exp.Tags...)
	sort.Strings(tags)
	fmt.Printf("Tags:     %v\n", tags)
	fmt.Printf("Absolute TTL: %s\n", exp.Absolute)
	if exp.Sliding > 0 {
		fmt.Printf("Sliding TTL:  %s\n", exp.Sliding)
	}
	return nil
}
