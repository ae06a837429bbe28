package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amsterdam/dso-gateway/internal/config"
	"github.com/amsterdam/dso-gateway/internal/logging"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *config.Config
	cpath string
)

func main() {
	Cmd()
}

// Cmd is the entry point for the CLI.
func Cmd() {
	log = logging.New("info", false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "dso-gateway",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	rootCmd.AddCommand(servCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup reads the config file under cpath and rebuilds the logger with
// the configured level/encoder.
func setup(configPath string) {
	cfile := configPath + "/dev.yaml"
	if v := os.Getenv("GO_ENV"); v == "production" || v == "prod" {
		cfile = configPath + "/prod.yaml"
	}

	c, err := config.ReadInConfig(cfile)
	if err != nil {
		log.Fatalf("failed to read config: %s", err)
	}
	conf = c

	lvl := conf.LogLevel
	if lvl == "" {
		lvl = "info"
	}
	log = logging.New(lvl, conf.ShouldUseJSONLogs()).Sugar()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails renders the version string stamped in at build time.
func BuildDetails() string {
	if version == "" {
		return `
DSO API Gateway (unknown version)
For documentation, visit https://api.data.amsterdam.nl/v1/docs

To build with version information please use make
`
	}

	return fmt.Sprintf(`
DSO API Gateway %v
For documentation, visit https://api.data.amsterdam.nl/v1/docs

Commit SHA-1          : %v
Commit timestamp      : %v
`, version, commit, date)
}
