package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureguard/prefs"
	"github.com/secureguard/prefs/pkg/file"
)

var (
	schemeFile  string
	once        bool
	metricsAddr string
	evictPrefix string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a setting",
}

var setThemeCmd = &cobra.Command{
	Use:       "theme <light|dark|system>",
	Short:     "Set the theme",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"light", "dark", "system"},
	RunE:      runSetTheme,
}

var setLanguageCmd = &cobra.Command{
	Use:   "language <en|es>",
	Short: "Set the interface language",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetLanguage,
}

var setPrefCmd = &cobra.Command{
	Use:   "pref <name> <value>",
	Short: "Set one preference, e.g. 'pref refreshInterval 60000'",
	Args:  cobra.ExactArgs(2),
	RunE:  runSetPref,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset settings to defaults and remove the stored record",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the stored record against the schema without changing it",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Correct an invalid stored record",
	Args:  cobra.NoArgs,
	RunE:  runRepair,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report storage availability and footprint",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored keys, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runKeys,
}

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove foreign keys and old application keys",
	Args:  cobra.NoArgs,
	RunE:  runEvict,
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Resolve the effective theme against a system preference file",
	Long: `theme watches a file holding the system colour preference ("dark" or
"light") and prints the effective theme each time it changes. With --once
it prints the current effective theme and exits.`,
	Args: cobra.NoArgs,
	RunE: runTheme,
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Print settings each time another process changes them",
	Args:  cobra.NoArgs,
	RunE:  runFollow,
}

func init() {
	evictCmd.Flags().StringVar(&evictPrefix, "prefix", "", "Application prefix (defaults to the configured one)")

	themeCmd.Flags().StringVar(&schemeFile, "scheme-file", "", "File holding the system colour preference")
	themeCmd.Flags().BoolVar(&once, "once", false, "Print the effective theme and exit")
	themeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	_ = themeCmd.MarkFlagRequired("scheme-file")

	followCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func oneShot() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// withSession opens a session for one command and closes it afterwards.
func withSession(load bool, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := oneShot()
	defer cancel()

	s, err := openSession(ctx, load)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			logger.Warn("failed to close backend", zap.Error(err))
		}
	}()
	return fn(ctx, s)
}

func render(cmd *cobra.Command, v any) error {
	codec, ok := prefs.CodecByName(output)
	if !ok {
		return fmt.Errorf("unknown output format %q", output)
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err = fmt.Fprintln(out)
	}
	return err
}

// persisted reports a save that did not reach storage.
func persisted(m *prefs.Manager) error {
	if !m.StorageAvailable() {
		return fmt.Errorf("settings changed in memory only: %w", m.StorageError())
	}
	return nil
}

func runShow(cmd *cobra.Command, _ []string) error {
	return withSession(true, func(_ context.Context, s *session) error {
		return render(cmd, s.manager.Settings())
	})
}

func runSetTheme(cmd *cobra.Command, args []string) error {
	t := prefs.Theme(args[0])
	if !t.Valid() {
		return fmt.Errorf("invalid theme %q: want light, dark or system", args[0])
	}
	return withSession(true, func(ctx context.Context, s *session) error {
		if err := render(cmd, s.manager.UpdateTheme(ctx, t)); err != nil {
			return err
		}
		return persisted(s.manager)
	})
}

func runSetLanguage(cmd *cobra.Command, args []string) error {
	l := prefs.Language(args[0])
	if !l.Valid() {
		codes := make([]string, 0, len(prefs.SupportedLanguages))
		for _, o := range prefs.SupportedLanguages {
			codes = append(codes, string(o.Code))
		}
		return fmt.Errorf("invalid language %q: want one of %s", args[0], strings.Join(codes, ", "))
	}
	return withSession(true, func(ctx context.Context, s *session) error {
		if err := render(cmd, s.manager.UpdateLanguage(ctx, l)); err != nil {
			return err
		}
		return persisted(s.manager)
	})
}

// boolPrefs maps preference names to their patch fields.
var boolPrefs = map[string]func(p *prefs.PreferencesPatch, v bool){
	"notifications":      func(p *prefs.PreferencesPatch, v bool) { p.Notifications = &v },
	"autoRefresh":        func(p *prefs.PreferencesPatch, v bool) { p.AutoRefresh = &v },
	"compactMode":        func(p *prefs.PreferencesPatch, v bool) { p.CompactMode = &v },
	"fraudAlerts":        func(p *prefs.PreferencesPatch, v bool) { p.FraudAlerts = &v },
	"realTimeUpdates":    func(p *prefs.PreferencesPatch, v bool) { p.RealTimeUpdates = &v },
	"autoLogout":         func(p *prefs.PreferencesPatch, v bool) { p.AutoLogout = &v },
	"enhancedEncryption": func(p *prefs.PreferencesPatch, v bool) { p.EnhancedEncryption = &v },
}

func parsePatch(name, value string) (prefs.PreferencesPatch, error) {
	var patch prefs.PreferencesPatch
	if name == "refreshInterval" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return patch, fmt.Errorf("refreshInterval must be an integer number of milliseconds: %w", err)
		}
		if n < prefs.MinRefreshInterval || n > prefs.MaxRefreshInterval {
			return patch, fmt.Errorf("refreshInterval %d out of range [%d, %d]", n, prefs.MinRefreshInterval, prefs.MaxRefreshInterval)
		}
		patch.RefreshInterval = &n
		return patch, nil
	}

	setter, ok := boolPrefs[name]
	if !ok {
		names := []string{"refreshInterval"}
		for n := range boolPrefs {
			names = append(names, n)
		}
		sort.Strings(names)
		return patch, fmt.Errorf("unknown preference %q: want one of %s", name, strings.Join(names, ", "))
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return patch, fmt.Errorf("%s must be true or false: %w", name, err)
	}
	setter(&patch, v)
	return patch, nil
}

func runSetPref(cmd *cobra.Command, args []string) error {
	patch, err := parsePatch(args[0], args[1])
	if err != nil {
		return err
	}
	return withSession(true, func(ctx context.Context, s *session) error {
		if err := render(cmd, s.manager.UpdatePreferences(ctx, patch)); err != nil {
			return err
		}
		return persisted(s.manager)
	})
}

func runReset(cmd *cobra.Command, _ []string) error {
	return withSession(true, func(ctx context.Context, s *session) error {
		return render(cmd, s.manager.ResetToDefaults(ctx))
	})
}

// validateReport is the output of validate and repair.
type validateReport struct {
	Key        string   `json:"key" yaml:"key"`
	Found      bool     `json:"found" yaml:"found"`
	Valid      bool     `json:"valid" yaml:"valid"`
	Violations []string `json:"violations,omitempty" yaml:"violations,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		key := s.manager.SettingsKey()
		report := validateReport{Key: key, Valid: true}

		var raw any
		if s.store.Get(ctx, key, &raw) {
			report.Found = true
			r := prefs.Validate(raw, prefs.SettingsSchema)
			report.Valid = r.Valid
			report.Violations = r.Errors
		}
		if err := render(cmd, report); err != nil {
			return err
		}
		if !report.Valid {
			return fmt.Errorf("stored settings have %d violation(s)", len(report.Violations))
		}
		return nil
	})
}

func runRepair(cmd *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		key := s.manager.SettingsKey()
		report := validateReport{Key: key, Valid: true}

		var raw any
		if s.store.Get(ctx, key, &raw) {
			report.Found = true
			r := prefs.Validate(raw, prefs.SettingsSchema)
			report.Valid = r.Valid
			report.Violations = r.Errors
		}
		// Load corrects and rewrites an invalid record.
		s.manager.Load(ctx)
		if fixed := s.manager.RepairSettings(ctx); len(fixed) > 0 {
			report.Valid = false
			report.Violations = append(report.Violations, fixed...)
		}
		if err := render(cmd, report); err != nil {
			return err
		}
		return persisted(s.manager)
	})
}

func runUsage(cmd *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		return render(cmd, s.manager.StorageUsage(ctx))
	})
}

func runKeys(cmd *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		keys := s.store.Keys(ctx)
		if keys == nil {
			keys = []string{}
		}
		return render(cmd, keys)
	})
}

func runEvict(cmd *cobra.Command, _ []string) error {
	prefix := evictPrefix
	if prefix == "" {
		prefix = cfg.AppPrefix
	}
	return withSession(false, func(ctx context.Context, s *session) error {
		n := s.store.ClearOldEntries(ctx, prefix)
		logger.Info("evicted old entries", zap.Int("count", n), zap.String("prefix", prefix))
		return render(cmd, map[string]int{"evicted": n})
	})
}

// longRunning returns a context cancelled by SIGINT or SIGTERM and starts
// the metrics server when requested.
func longRunning() (context.Context, context.CancelFunc, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if metricsAddr != "" {
		if err := serveMetrics(ctx, metricsAddr); err != nil {
			cancel()
			return nil, nil, err
		}
	}
	return ctx, cancel, nil
}

func runTheme(cmd *cobra.Command, _ []string) error {
	ctx, cancel, err := longRunning()
	if err != nil {
		return err
	}
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close() //nolint:errcheck // best effort on exit

	sig := prefs.NewWatchSignal(file.NewWatcher(schemeFile))
	if err := sig.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", schemeFile, err)
	}

	sink := prefs.NewChannelSink(16)
	markers := prefs.NewMarkers()
	var opts []prefs.ResolverOption
	opts = append(opts, prefs.WithHost(markers))
	if metrics != nil {
		opts = append(opts, prefs.WithResolverMetrics(metrics))
	}
	resolver := prefs.NewThemeResolver(sig, sink, opts...)
	defer resolver.Close(context.Background())
	resolver.Attach(ctx, s.manager)

	if once {
		return render(cmd, prefs.ThemeChange{
			Theme:  prefs.Theme(markers.Get(prefs.MarkerTheme)),
			Source: prefs.Source(markers.Get(prefs.MarkerSource)),
		})
	}
	// Attach published the initial theme, so the sink leads with it.
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig.Done():
			return nil
		case change := <-sink.C():
			if err := render(cmd, change); err != nil {
				return err
			}
		}
	}
}

func runFollow(cmd *cobra.Command, _ []string) error {
	ctx, cancel, err := longRunning()
	if err != nil {
		return err
	}
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close() //nolint:errcheck // best effort on exit

	w, err := s.watch(s.manager.SettingsKey())
	if err != nil {
		return err
	}

	f := prefs.NewFollower(w, s.manager, prefs.WithDebounce(cfg.Debounce))
	if err := f.Start(ctx); err != nil {
		logger.Warn("initial record could not be applied", zap.Error(err))
	}

	changed := make(chan prefs.Settings, 16)
	unsub := s.manager.Subscribe(func(_, curr prefs.Settings) {
		select {
		case changed <- curr:
		default:
			logger.Warn("dropped settings update, output is too slow")
		}
	})
	defer unsub()
	if err := render(cmd, s.manager.Settings()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case curr := <-changed:
			if err := render(cmd, curr); err != nil {
				return err
			}
		}
	}
}
