package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/updatecheck"
	"github.com/git-pkgs/updatecheck/internal/config"
	"github.com/git-pkgs/updatecheck/internal/logging"
)

type rootOptions struct {
	configFile   string
	cwd          string
	force        bool
	json         bool
	noApplyOwner bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "updatecheck [package.json | purl]...",
		Short:         "Check whether a newer version of an npm package is available",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args, stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&opts.cwd, "cwd", "", "directory to search for package.json and .npmrc")
	flags.BoolVar(&opts.force, "force", false, "query the registry even if the cached result is fresh")
	flags.BoolVar(&opts.json, "json", false, "print results as JSON")
	flags.BoolVar(&opts.noApplyOwner, "no-apply-owner", false, "do not propagate directory ownership to cached records")

	flags.String("dist-tag", "latest", "dist-tag to compare against")
	flags.Duration("interval", updatecheck.DefaultCheckInterval, "minimum time between registry queries")
	flags.String("meta-dir", "", "directory for cached results")
	flags.String("registry", "", "registry URL, overriding .npmrc")
	flags.Duration("timeout", updatecheck.DefaultTimeout, "registry request timeout")
	flags.Int("concurrency", 15, "parallel checks when several packages are given")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format (text or json)")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *rootOptions, args []string, stdout io.Writer) error {
	cfg, err := config.Load(config.Options{File: opts.configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	if opts.noApplyOwner {
		cfg.ApplyOwner = false
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	npmConfig, err := updatecheck.LoadNpmConfig(opts.cwd)
	if err != nil {
		logger.WithError(err).Warn("failed to load npm config, using defaults")
	}

	checker := updatecheck.New(
		updatecheck.WithCheckInterval(cfg.CheckInterval),
		updatecheck.WithMetaDir(cfg.MetaDir),
		updatecheck.WithRegistryURL(cfg.Registry),
		updatecheck.WithTimeout(cfg.Timeout),
		updatecheck.WithApplyOwner(cfg.ApplyOwner),
		updatecheck.WithNpmConfig(npmConfig),
		updatecheck.WithLogger(logger),
		updatecheck.WithUserAgent("updatecheck-cli"),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reqs := buildRequests(args, opts, cfg.DistTag)
	if len(reqs) == 1 {
		res, err := checker.Check(ctx, reqs[0])
		if err != nil {
			return err
		}
		return printResults(stdout, opts.json, []*updatecheck.Result{res}, false)
	}

	results, errs := checker.CheckAll(ctx, reqs, cfg.Concurrency)
	for i, err := range errs {
		logger.WithError(err).WithField("package", args[i]).Error("check failed")
	}
	if err := printResults(stdout, opts.json, results, true); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d checks failed", len(errs), len(reqs))
	}
	return nil
}

func buildRequests(args []string, opts *rootOptions, distTag string) []updatecheck.Request {
	if len(args) == 0 {
		return []updatecheck.Request{{Cwd: opts.cwd, DistTag: distTag, Force: opts.force}}
	}
	reqs := make([]updatecheck.Request, 0, len(args))
	for _, arg := range args {
		reqs = append(reqs, updatecheck.Request{
			PackagePath: arg,
			Cwd:         opts.cwd,
			DistTag:     distTag,
			Force:       opts.force,
		})
	}
	return reqs
}

func printResults(w io.Writer, asJSON bool, results []*updatecheck.Result, many bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if many {
			return enc.Encode(results)
		}
		return enc.Encode(results[0])
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintln(w, describe(res))
	}
	return nil
}

func describe(res *updatecheck.Result) string {
	switch {
	case res.UpdateAvailable:
		return fmt.Sprintf("%s@%s: %s is available (%s)", res.Name, res.Current, res.LatestVersion(), res.DistTag)
	case res.Latest == nil:
		return fmt.Sprintf("%s@%s: no %s version found", res.Name, res.Current, res.DistTag)
	default:
		checked := ""
		if t := res.LastCheckTime(); !t.IsZero() {
			checked = fmt.Sprintf(" (checked %s)", t.Format(time.RFC3339))
		}
		return fmt.Sprintf("%s@%s is already the latest version%s", res.Name, res.Current, checked)
	}
}
