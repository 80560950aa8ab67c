// Command vakit is the prayer times CLI.
//
// Usage:
//
//	vakit today
//	vakit month --year 2026 --month 10
//	vakit next
//	vakit replan
//	vakit settings show
//	vakit settings set --provider diyanet --location manual --lat 41.01 --lon 28.98 --label Istanbul
//	vakit settings set --prayer Asr --minutes 15 --sound=false
//	vakit mosques --profile walk
//	vakit city
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/vakit/internal/app"
	"github.com/albapepper/vakit/internal/config"
	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/mosque"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

var asJSON bool

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "vakit",
		Short:         "Prayer times, cached per day, with local reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	root.AddCommand(todayCmd())
	root.AddCommand(monthCmd())
	root.AddCommand(nextCmd())
	root.AddCommand(replanCmd())
	root.AddCommand(settingsCmd())
	root.AddCommand(mosquesCmd())
	root.AddCommand(cityCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// timings commands
// --------------------------------------------------------------------------

func todayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's timings, or the last cached day when offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				var fix *location.Fix
				if f, err := location.Resolve(ctx, s, a.Locator); err == nil {
					fix = &f
				}
				rec, err := a.Timings.TodayOrLatest(ctx, fix, s)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(rec)
				}
				fmt.Printf("%s  %s  (source=%s, updated %s)\n",
					rec.Timings.DateKey, rec.Provider, rec.Source, rec.LastUpdated)
				printDays([]prayer.Timings{rec.Timings})
				return nil
			})
		},
	}
}

func monthCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Show every day of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				fix, err := location.Resolve(ctx, s, a.Locator)
				if err != nil {
					return err
				}
				now := time.Now().In(a.Timings.Zone())
				if year == 0 {
					year = now.Year()
				}
				if month == 0 {
					month = int(now.Month())
				}
				if month < 1 || month > 12 {
					return fmt.Errorf("--month must be between 1 and 12")
				}

				start := time.Now()
				days, err := a.Timings.LoadMonth(ctx, year, time.Month(month), fix, s)
				if err != nil && len(days) == 0 {
					return err
				}
				ordered := make([]prayer.Timings, 0, len(days))
				for _, k := range prayer.MonthKeys(year, time.Month(month), a.Timings.Zone()) {
					if t, ok := days[k]; ok {
						ordered = append(ordered, t)
					}
				}
				if asJSON {
					return printJSON(ordered)
				}
				printDays(ordered)
				slog.Info("Month loaded", "days", len(ordered), "duration", time.Since(start).Round(time.Millisecond))
				if err != nil {
					slog.Warn("Some days could not be resolved", "error", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default: current)")
	return cmd
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer and the countdown to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				fix, err := location.Resolve(ctx, s, a.Locator)
				if err != nil {
					return err
				}
				today, tomorrow, err := a.Timings.TodayTomorrow(ctx, fix, s)
				if err != nil {
					return err
				}
				next, ok := prayer.NextPrayer(&today, &tomorrow, time.Now(), a.Timings.Zone())
				if !ok {
					return fmt.Errorf("no upcoming prayer: %w", errs.ErrNotFound)
				}
				if asJSON {
					return printJSON(map[string]interface{}{
						"name":      next.Name,
						"dateKey":   next.DateKey,
						"at":        next.At.Format(time.RFC3339),
						"countdown": prayer.FormatCountdown(next.TimeLeft),
						"tomorrow":  next.Tomorrow,
					})
				}
				fmt.Printf("%s at %s (in %s)\n", next.Name, next.At.Format("15:04"), prayer.FormatCountdown(next.TimeLeft))
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// notifications
// --------------------------------------------------------------------------

func replanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replan",
		Short: "Preview the alerts a replan would schedule",
		Long: "Resolves today and tomorrow and prints the alert plan without arming " +
			"anything. vakitd runs the real replan and keeps the alerts armed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				plan, err := a.Replanner.Preview(ctx, s)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(map[string]interface{}{"alerts": plan.Alerts, "dropped": plan.Dropped})
				}
				fmt.Printf("%d alerts, %d dropped\n", len(plan.Alerts), plan.Dropped)
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tTITLE\tSOUND")
				for _, al := range plan.Alerts {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", al.TriggerAt.Format("2006-01-02 15:04"), al.Title, al.Sound)
				}
				return tw.Flush()
			})
		},
	}
}

// --------------------------------------------------------------------------
// settings
// --------------------------------------------------------------------------

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				return printJSON(s)
			})
		},
	})
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsSetCmd() *cobra.Command {
	var (
		providerID, mode, label, prayerName, tone string
		method, minutes, volume                   int
		lat, lon                                  float64
		enabled, sound, vibration                 bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings and replan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				f := cmd.Flags()
				if f.Changed("provider") {
					p := settings.Provider(providerID)
					if !p.Valid() {
						return fmt.Errorf("unknown provider %q", providerID)
					}
					s.TimingsProvider = p
				}
				if f.Changed("method") {
					s.MethodID = method
					s.MethodName = settings.MethodName(method)
				}
				if f.Changed("location") {
					s.LocationMode = settings.LocationMode(mode)
				}
				if f.Changed("lat") || f.Changed("lon") || f.Changed("label") {
					m := settings.ManualLocation{Lat: lat, Lon: lon, Label: label, Query: label}
					if s.ManualLocation != nil {
						m = *s.ManualLocation
					}
					if f.Changed("lat") {
						m.Lat = lat
					}
					if f.Changed("lon") {
						m.Lon = lon
					}
					if f.Changed("label") {
						m.Label, m.Query = label, label
					}
					s.ManualLocation = &m
				}
				if f.Changed("prayer") {
					n := prayer.Name(prayerName)
					if !n.Valid() {
						return fmt.Errorf("unknown prayer %q", prayerName)
					}
					pref := s.Notification(n)
					if f.Changed("enabled") {
						pref.Enabled = enabled
					}
					if f.Changed("minutes") {
						if !settings.ValidMinutesBefore(minutes) {
							return fmt.Errorf("--minutes must be one of %v", settings.AllowedMinutesBefore)
						}
						pref.MinutesBefore = minutes
					}
					if f.Changed("sound") {
						pref.PlaySound = sound
					}
					if f.Changed("tone") {
						pref.Tone = tone
					}
					if f.Changed("volume") {
						pref.Volume = volume
					}
					if f.Changed("vibration") {
						pref.Vibration = vibration
					}
					s.Notifications[n] = pref
				}

				saved, res, err := a.Runner.ApplySettings(ctx, a.Settings, s)
				if err != nil {
					return err
				}
				slog.Info("Settings saved", "replan", res.Summary())
				return printJSON(saved)
			})
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "Timings provider: aladhan or diyanet")
	cmd.Flags().IntVar(&method, "method", settings.DefaultMethodID, "Calculation method id")
	cmd.Flags().StringVar(&mode, "location", "", "Location mode: gps or manual")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Manual latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Manual longitude")
	cmd.Flags().StringVar(&label, "label", "", "Manual location label")
	cmd.Flags().StringVar(&prayerName, "prayer", "", "Prayer to edit (Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable reminders for --prayer")
	cmd.Flags().IntVar(&minutes, "minutes", settings.DefaultMinutes, "Reminder offset in minutes for --prayer")
	cmd.Flags().BoolVar(&sound, "sound", true, "Play a sound for --prayer")
	cmd.Flags().StringVar(&tone, "tone", settings.DefaultTone, "Tone for --prayer")
	cmd.Flags().IntVar(&volume, "volume", settings.DefaultVolume, "Volume 0-100 for --prayer")
	cmd.Flags().BoolVar(&vibration, "vibration", false, "Vibrate for --prayer")
	return cmd
}

// --------------------------------------------------------------------------
// places
// --------------------------------------------------------------------------

func mosquesCmd() *cobra.Command {
	var profileName string
	var radius int
	cmd := &cobra.Command{
		Use:   "mosques",
		Short: "List nearby mosques reachable before the next prayer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				fix, err := location.Resolve(ctx, s, a.Locator)
				if err != nil {
					return err
				}
				place, err := a.Mosques.Nearby(ctx, fix, radius)
				if err != nil {
					return err
				}
				profile := mosque.ProfileByName(profileName)

				var timeLeft time.Duration
				if today, tomorrow, err := a.Timings.TodayTomorrow(ctx, fix, s); err == nil {
					if next, ok := mosque.TimeLeft(&today, &tomorrow, time.Now(), a.Timings.Zone()); ok {
						timeLeft = next.TimeLeft
						fmt.Printf("Next: %s in %s\n", next.Name, prayer.FormatCountdown(next.TimeLeft))
					}
				} else {
					slog.Warn("Timings unavailable, feasibility not computed", "error", err)
				}
				options := mosque.Rank(fix, place.Mosques, timeLeft, profile)
				if asJSON {
					return printJSON(map[string]interface{}{"qibla": place.Qibla, "mosques": options})
				}
				fmt.Printf("Qibla: %.1f°\n", place.Qibla)
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tKM\tETA\tFEASIBLE")
				for _, o := range options {
					fmt.Fprintf(tw, "%s\t%.2f\t%dm\t%v\n", o.Name, o.DistanceKm, o.ETAMinutes, o.Feasible)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&profileName, "profile", mosque.Walk.Name, "Travel profile: walk or drive")
	cmd.Flags().IntVar(&radius, "radius", mosque.DefaultRadius, "Search radius in meters")
	return cmd
}

func cityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "city",
		Short: "Show the Diyanet city the current location resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App, s settings.Settings) error {
				if a.Diyanet == nil {
					return errors.New("DIYANET_PROXY_URL is not set")
				}
				fix, err := location.Resolve(ctx, s, a.Locator)
				if err != nil {
					return err
				}
				id, err := a.Diyanet.ResolveCity(ctx, fix.Lat, fix.Lon, fix.Label)
				if err != nil {
					return err
				}
				name, _ := a.Diyanet.CityLabel(id)
				fmt.Printf("%s\t%s\n", id, name)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func withApp(fn func(ctx context.Context, a *app.App, s settings.Settings) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Settings.Load(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a, s)
}

func printDays(days []prayer.Timings) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "DATE")
	for _, n := range prayer.Names {
		fmt.Fprintf(tw, "\t%s", n)
	}
	fmt.Fprintln(tw)
	for _, d := range days {
		fmt.Fprint(tw, d.DateKey)
		for _, n := range prayer.Names {
			fmt.Fprintf(tw, "\t%s", d.Times[n])
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
