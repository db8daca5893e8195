// Package cli implements the lfdeque-stress command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aradilov/lfdeque/internal/stress"
)

// Log levels and formats accepted by --log-level and --log-format
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"

	FormatText = "text"
	FormatJSON = "json"
)

// NewRootCommand builds the command with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "lfdeque-stress",
		Short: "Stress the work-stealing deque with one owner and many stealers",
		Long: `lfdeque-stress pushes a value pattern many times from a single owner
while stealer goroutines and the owner drain the deque concurrently, then
checks that every value was drained exactly once.`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	defaults := stress.DefaultConfig()
	f := cmd.Flags()
	f.StringP("config", "c", "", "config file (yaml)")
	f.Int("rounds", defaults.Rounds, "times the pattern is pushed")
	f.IntSlice("pattern", defaults.Pattern, "values pushed per round")
	f.Int("stealers", defaults.Stealers, "stealer goroutines besides the owner")
	f.Int("capacity", defaults.Capacity, "initial ring capacity")
	f.Bool("fixed", defaults.Fixed, "disable ring growth")
	f.Bool("owner-pops", defaults.OwnerPops, "owner pops between pushes")
	f.String("log-level", LevelInfo, "log level (DEBUG, INFO, WARN, ERROR)")
	f.String("log-format", FormatText, "log format (text, json)")

	for key, flag := range map[string]string{
		"config":     "config",
		"rounds":     "rounds",
		"pattern":    "pattern",
		"stealers":   "stealers",
		"capacity":   "capacity",
		"fixed":      "fixed",
		"owner_pops": "owner-pops",
		"log.level":  "log-level",
		"log.format": "log-format",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func initConfig(v *viper.Viper) error {
	v.SetEnvPrefix("LFDEQUE")
	// LFDEQUE_LOG_LEVEL for log.level
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) stress.Config {
	return stress.Config{
		Rounds:    v.GetInt("rounds"),
		Pattern:   v.GetIntSlice("pattern"),
		Stealers:  v.GetInt("stealers"),
		Capacity:  v.GetInt("capacity"),
		Fixed:     v.GetBool("fixed"),
		OwnerPops: v.GetBool("owner_pops"),
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	switch strings.ToLower(format) {
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, v *viper.Viper, out, errOut io.Writer) error {
	logger, err := newLogger(errOut, v.GetString("log.level"), v.GetString("log.format"))
	if err != nil {
		return err
	}

	res, err := stress.Run(ctx, loadConfig(v), logger)
	if err != nil {
		return err
	}
	printResult(out, res)
	return res.Verify()
}

func printResult(w io.Writer, res stress.Result) {
	fmt.Fprintln(w, "thrd\texecs")
	var total int64
	for i, n := range res.Stealers {
		fmt.Fprintf(w, "%d\t%d\n", i, n)
		total += n
	}
	fmt.Fprintf(w, "main\t%d\n", res.Owner)
	total += res.Owner
	fmt.Fprintf(w, "total\t%d\n", total)
	fmt.Fprintf(w, "sum\t%d (expected %d)\n", res.Sum, res.ExpectedSum)
	fmt.Fprintf(w, "grows\t%d\n", res.Stats.Grows)
	fmt.Fprintf(w, "elapsed\t%v\n", res.Elapsed)
}
