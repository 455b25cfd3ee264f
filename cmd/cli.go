package cmd

import (
	"time"

	"soundloc/internal/config"
	"soundloc/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected by ParseArgs.
const (
	CommandLocalize = "localize"
	CommandDoA      = "doa"
	CommandMaxTau   = "maxtau"
)

// localizeOverrides are the flags that take precedence over the session file.
var localizeOverrides = []string{"algorithm", "threshold", "chunk", "workers", "interp", "peak", "refine"}

// Options holds the parsed command line. Localization flags only override
// the session file when they were given explicitly.
type Options struct {
	Command    string
	ConfigPath string

	Algorithm string
	Threshold float64
	Chunk     time.Duration
	Workers   int
	Interp    int
	Peak      string
	Refine    bool

	JSON    bool
	Verbose bool

	TDoA   float64
	MaxTau float64

	changed map[string]bool
}

// ParseArgs parses args (without the program name). The returned Options
// has an empty Command when only help or the version was requested.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{changed: map[string]bool{}}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.VersionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show debug output")

	// Localize command
	localizeCmd := &cobra.Command{
		Use:   "localize",
		Short: "Localize the source in every chunk of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandLocalize
			for _, name := range localizeOverrides {
				options.changed[name] = cmd.Flags().Changed(name)
			}
			return nil
		},
	}
	localizeCmd.Flags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Session file (default ./session.yaml)")
	localizeCmd.Flags().StringVarP(&options.Algorithm, "algorithm", "a", config.DefaultAlgorithm,
		"TDoA algorithm: threshold or gcc_phat")
	localizeCmd.Flags().Float64VarP(&options.Threshold, "threshold", "t", config.DefaultThreshold,
		"Detection threshold on |sample|")
	localizeCmd.Flags().DurationVar(&options.Chunk, "chunk", config.DefaultChunkDuration,
		"Chunk duration, e.g. 500ms; 0 localizes each recording as one chunk")
	localizeCmd.Flags().IntVarP(&options.Workers, "workers", "w", 0,
		"Concurrent chunks (0 uses every CPU)")
	localizeCmd.Flags().IntVar(&options.Interp, "interp", config.DefaultInterpolation,
		"GCC-PHAT interpolation factor")
	localizeCmd.Flags().StringVar(&options.Peak, "peak", config.DefaultPeak,
		"GCC-PHAT peak selection: max or abs")
	localizeCmd.Flags().BoolVar(&options.Refine, "refine", false,
		"Refine positions with Gauss-Newton")
	localizeCmd.Flags().BoolVar(&options.JSON, "json", false,
		"Print one JSON object per chunk")
	rootCmd.AddCommand(localizeCmd)

	// DoA command
	doaCmd := &cobra.Command{
		Use:   "doa",
		Short: "Convert a TDoA to a bearing in degrees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandDoA
			return nil
		},
	}
	doaCmd.Flags().Float64Var(&options.TDoA, "tdoa", 0, "Time difference of arrival in seconds")
	doaCmd.Flags().Float64Var(&options.MaxTau, "max-tau", 0, "Largest possible TDoA of the pair in seconds")
	if err := doaCmd.MarkFlagRequired("max-tau"); err != nil {
		return nil, err
	}
	rootCmd.AddCommand(doaCmd)

	// MaxTau command
	maxTauCmd := &cobra.Command{
		Use:   "maxtau",
		Short: "Print the largest possible TDoA of a session's microphones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandMaxTau
			return nil
		},
	}
	maxTauCmd.Flags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Session file (default ./session.yaml)")
	rootCmd.AddCommand(maxTauCmd)

	// cobra falls back to os.Args for a nil slice.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// Apply copies explicitly set localization flags into cfg.
func (o *Options) Apply(cfg *config.Config) {
	loc := &cfg.Localization
	if o.changed["algorithm"] {
		loc.Algorithm = o.Algorithm
	}
	if o.changed["threshold"] {
		loc.Threshold = o.Threshold
	}
	if o.changed["chunk"] {
		loc.ChunkDuration = o.Chunk
	}
	if o.changed["workers"] {
		loc.Workers = o.Workers
	}
	if o.changed["interp"] {
		loc.Interpolation = o.Interp
	}
	if o.changed["peak"] {
		loc.Peak = o.Peak
	}
	if o.changed["refine"] {
		loc.Refine = o.Refine
	}
	if o.Verbose {
		cfg.Debug = true
	}
}
