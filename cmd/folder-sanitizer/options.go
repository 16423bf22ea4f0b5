package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"folder-sanitizer/internal/config"
	"folder-sanitizer/internal/report"
)

// options are the flags shared by every sub-command.
type options struct {
	configPath   string
	prefixes     []string
	prefixesFile string
	patterns     []string
	patternsCSV  string
	globs        []string
	names        []string
	dryRun       bool
	save         bool
	noColor      bool
	noEmoji      bool
	verbose      bool

	// watch only
	interval    int
	metricsPort int
	fsEvents    bool

	// settings written by --save: file plus roots and rule flags
	saved config.Config
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	f.StringArrayVarP(&o.prefixes, "prefix", "p", nil, "prefix to strip from names, repeatable (replaces configured prefixes)")
	f.StringVar(&o.prefixesFile, "prefixes-file", "", "file with one prefix per line")
	f.StringArrayVarP(&o.patterns, "pattern", "r", nil, "regular expression of names to delete, repeatable")
	f.StringVar(&o.patternsCSV, "patterns", "", "comma separated regular expressions of names to delete")
	f.StringArrayVarP(&o.globs, "glob", "g", nil, "glob of names to delete, repeatable; '*' matches any run, '?' any one character")
	f.StringArrayVar(&o.names, "name", nil, "exact name to delete, repeatable")
	f.BoolVarP(&o.dryRun, "dry-run", "n", false, "report what would change without touching anything")
	f.BoolVar(&o.save, "save", false, "write the effective settings back to the config file")
	f.BoolVar(&o.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&o.noEmoji, "no-emoji", false, "disable emoji in output")
	f.BoolVar(&o.verbose, "verbose", false, "list every visited file and log debug lines")
}

func (o *options) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies flags and root arguments on
// top of it. An explicit --config must exist; the default location may not.
func (o *options) loadConfig(args []string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath())
	}
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		roots := make([]string, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, fmt.Errorf("root %s: %w", a, err)
			}
			roots = append(roots, abs)
		}
		cfg.Roots = roots
	}

	prefixes := append([]string(nil), o.prefixes...)
	if o.prefixesFile != "" {
		data, err := os.ReadFile(o.prefixesFile)
		if err != nil {
			return nil, fmt.Errorf("read prefixes file: %w", err)
		}
		prefixes = append(prefixes, config.SplitLines(string(data))...)
	}
	if len(prefixes) > 0 {
		cfg.Prefixes = prefixes
	}

	patterns := append(append([]string(nil), o.patterns...), config.SplitComma(o.patternsCSV)...)
	if len(patterns) > 0 {
		cfg.DeletePatterns = patterns
	}
	if len(o.globs) > 0 {
		cfg.DeleteGlobs = o.globs
	}
	if len(o.names) > 0 {
		cfg.ExactDeleteNames = o.names
	}
	o.saved = *cfg

	if o.dryRun {
		cfg.DryRun = true
	}
	if o.verbose {
		cfg.Logging.Debug = true
	}
	if o.interval > 0 {
		cfg.IntervalMinutes = o.interval
	}
	if o.metricsPort >= 0 && o.metricsPort <= 65535 {
		cfg.Prometheus.Port = o.metricsPort
	}
	if o.fsEvents {
		cfg.Watch.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// persist saves the file settings with roots and rules from the command
// line when --save was given. Per-run switches such as --dry-run are not kept.
func (o *options) persist() error {
	if !o.save {
		return nil
	}
	return o.saved.Save(o.path())
}

func (o *options) printer(cmd *cobra.Command, dryRun bool) *report.Printer {
	theme := report.Theme{
		NoColor: o.noColor || color.NoColor,
		NoEmoji: o.noEmoji,
	}
	p := report.NewPrinter(cmd.OutOrStdout(), theme, dryRun)
	p.Verbose = o.verbose
	return p
}
