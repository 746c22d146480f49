package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

var (
	logLevel     string
	logFormat    string
	fetchMode    string
	backend      string
	showUI       bool
	deadline     time.Duration
	proxyURL     string
	noAbsence    bool
	lazyProvider bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "product-scraper",
		Short:   "Extract product cards from marketplace pages",
		Version: version,
		Long: `product-scraper opens a product page, waits until the seller block is
rendered or the page turns out to be missing, and extracts brand, name,
vendor code, prices and provider from the product card.`,
		SilenceUsage: true,
	}

	registerGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newScrapeCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerGlobalFlags(pf *pflag.FlagSet) {
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	pf.StringVar(&logFormat, "log-format", "", "Log format (json, text); overrides LOG_FORMAT")
	pf.StringVarP(&fetchMode, "mode", "m", "", "Fetch mode (rendered, static); overrides FETCH_MODE")
	pf.StringVarP(&backend, "backend", "b", "", "Browser backend (playwright, rod); overrides BROWSER_BACKEND")
	pf.BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	pf.DurationVarP(&deadline, "deadline", "t", 0, "Readiness deadline; overrides READINESS_DEADLINE")
	pf.StringVarP(&proxyURL, "proxy", "p", "", "Browser proxy server; overrides BROWSER_PROXY")
	pf.BoolVar(&noAbsence, "no-absence-check", false, "Do not look for the not-found marker")
	pf.BoolVar(&lazyProvider, "lazy-provider", false, "Look the provider up in the snapshot instead of capturing it while waiting")
}
