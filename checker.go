package updatecheck

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/git-pkgs/updatecheck/client"
	"github.com/git-pkgs/updatecheck/fsutil"
	"github.com/git-pkgs/updatecheck/internal/core"
	"github.com/git-pkgs/updatecheck/internal/npm"
	"github.com/git-pkgs/updatecheck/internal/npmrc"
	"github.com/git-pkgs/updatecheck/internal/pkgjson"
	"github.com/git-pkgs/updatecheck/internal/policy"
	"github.com/git-pkgs/updatecheck/internal/store"
)

const (
	DefaultCheckInterval = policy.DefaultInterval
	DefaultTimeout       = client.DefaultTimeout

	defaultConcurrency = 15
)

// Request describes one check.
type Request struct {
	// Package is the package to check. When nil, PackagePath is loaded.
	Package *Package

	// PackagePath is a path to a package.json or an npm package URL such as
	// "pkg:npm/%40scope/name@1.2.3". When empty, the nearest package.json
	// above Cwd is used.
	PackagePath string

	// Cwd is where the package.json search and project .npmrc lookup start.
	// Defaults to the working directory.
	Cwd string

	// DistTag defaults to "latest".
	DistTag string

	// Force queries the registry even when the cached record is fresh.
	Force bool
}

// Checker runs update checks against an npm registry.
type Checker struct {
	doer        client.Doer
	npmConfig   npm.Config
	fs          afero.Fs
	ownership   fsutil.Ownership
	writeOpts   []fsutil.Option
	metaDir     string
	registryURL string
	interval    time.Duration
	timeout     time.Duration
	userAgent   string
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithCheckInterval sets how long a cached result stays fresh. Zero means
// every check queries the registry.
func WithCheckInterval(d time.Duration) Option {
	return func(c *Checker) {
		c.interval = d
	}
}

// WithMetaDir sets the directory holding cached records.
func WithMetaDir(dir string) Option {
	return func(c *Checker) {
		c.metaDir = dir
	}
}

// WithRegistryURL overrides the registry resolved from .npmrc.
func WithRegistryURL(u string) Option {
	return func(c *Checker) {
		c.registryURL = u
	}
}

// WithDoer sets the HTTP capability used for registry requests.
func WithDoer(d Doer) Option {
	return func(c *Checker) {
		c.doer = d
	}
}

// WithNpmConfig sets the registry and credential configuration. Without it
// the .npmrc files are loaded for each request's Cwd.
func WithNpmConfig(cfg *NpmConfig) Option {
	return func(c *Checker) {
		if cfg != nil {
			c.npmConfig = cfg
		}
	}
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUserAgent sets the User-Agent of the default HTTP client. It has no
// effect together with WithDoer.
func WithUserAgent(ua string) Option {
	return func(c *Checker) {
		c.userAgent = ua
	}
}

// WithTimeout bounds each registry query. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithFs sets the filesystem used for package.json and cached records.
func WithFs(fs afero.Fs) Option {
	return func(c *Checker) {
		c.fs = fs
	}
}

// WithOwnership sets the capability used to detect privilege and change
// file owners.
func WithOwnership(o fsutil.Ownership) Option {
	return func(c *Checker) {
		c.ownership = o
	}
}

// WithApplyOwner toggles owner propagation for cached records. It is on by
// default and only has an effect when running privileged.
func WithApplyOwner(apply bool) Option {
	return func(c *Checker) {
		c.writeOpts = append(c.writeOpts, fsutil.ApplyOwner(apply))
	}
}

// WithOwner sets an explicit owner for cached records.
func WithOwner(uid, gid int) Option {
	return func(c *Checker) {
		c.writeOpts = append(c.writeOpts, fsutil.WithOwner(uid, gid))
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Checker{
		interval: DefaultCheckInterval,
		timeout:  DefaultTimeout,
		log:      discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = client.NewBreakerClient(newDefaultClient(c.userAgent, c.timeout), 0)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.ownership == nil {
		c.ownership = fsutil.SystemOwnership()
	}
	return c
}

// newDefaultClient builds the HTTP client used without WithDoer. Its
// timeout follows the checker's so the query context is the only bound.
func newDefaultClient(userAgent string, timeout time.Duration) *client.Client {
	opts := []client.Option{client.WithTimeout(max(timeout, 0))}
	if userAgent != "" {
		opts = append(opts, client.WithUserAgent(userAgent))
	}
	return client.NewClient(opts...)
}

// Check resolves the package, consults the cached record and, when the
// record is stale, queries the registry for the dist-tag's version.
//
// An unreachable registry or a missing package yields a Result with a nil
// Latest rather than an error.
func (c *Checker) Check(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	distTag := req.DistTag
	if distTag == "" {
		distTag = core.DefaultDistTag
	}

	pkg, err := c.resolvePackage(req)
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{"package": pkg.Name, "dist_tag": distTag})

	st := store.New(c.metaDir, fsutil.NewWriter(c.fs, c.ownership))
	path := st.Path(pkg.Name, distTag)

	rec := st.Load(path)
	if rec.Name != pkg.Name || rec.DistTag != distTag {
		// Distinct packages can share a file name, e.g. "@a/b-c" and "@a-b/c".
		rec = core.Record{}
	}
	rec.Name = pkg.Name
	rec.DistTag = distTag
	rec.Current = pkg.Version

	result := rec
	now := c.now()

	if policy.ShouldCheck(rec, req.Force, c.interval, now) {
		latest, err := c.query(ctx, req, pkg.Name, distTag)
		switch {
		case err == nil:
			rec.SetLatest(latest)
			rec.MarkChecked(now)
			result = rec

		case !core.Recoverable(err):
			return nil, err

		case core.KindOf(err) == core.KindRegistryUnreachable:
			log.WithError(err).Warn("registry unreachable, skipping update check")
			result = rec
			result.Latest = nil
			if ctx.Err() != nil || isTimeout(err) {
				result.Evaluate()
				return &result, nil
			}

		default:
			log.WithError(err).Debug("package not found")
			rec.SetLatest("")
			rec.MarkChecked(now)
			result = rec
		}
	} else {
		log.WithField("last_check", rec.LastCheckTime()).Debug("using cached result")
	}

	rec.Evaluate()
	result.Evaluate()

	if err := st.Save(path, rec, c.writeOpts...); err != nil {
		log.WithError(err).Warn("failed to save update record")
	}

	logVerdict(log, &result)
	return &result, nil
}

// isTimeout reports a cancelled or timed out query, which leaves the
// cached record untouched.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func logVerdict(log logrus.FieldLogger, res *Result) {
	if res.UpdateAvailable {
		log.Infof("%s@%s has newer version %s available", res.Name, res.Current, res.LatestVersion())
		return
	}
	log.Infof("%s@%s is already the latest version", res.Name, res.Current)
}

func (c *Checker) validate(req Request) error {
	if c.interval < 0 {
		return core.InvalidInput("check interval must not be negative, got %s", c.interval)
	}
	if c.timeout < 0 {
		return core.InvalidInput("timeout must not be negative, got %s", c.timeout)
	}
	if req.Package != nil && req.PackagePath != "" {
		return core.InvalidInput("package and package path are mutually exclusive")
	}
	if req.DistTag != "" && !validDistTag(req.DistTag) {
		return core.InvalidInput("invalid dist-tag %q", req.DistTag)
	}
	return nil
}

func validDistTag(tag string) bool {
	for _, r := range tag {
		switch {
		case r == '/', r == '\\', r < 0x20, r == 0x7f:
			return false
		}
	}
	return true
}

func (c *Checker) resolvePackage(req Request) (*core.Package, error) {
	if req.Package != nil {
		pkg := *req.Package
		if err := pkgjson.Validate(&pkg); err != nil {
			return nil, err
		}
		return &pkg, nil
	}
	return pkgjson.Resolve(c.fs, req.PackagePath, req.Cwd)
}

func (c *Checker) query(ctx context.Context, req Request, name, distTag string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := []npm.Option{npm.WithLogger(c.log)}
	if c.registryURL != "" {
		opts = append(opts, npm.WithBaseURL(c.registryURL))
	}
	return npm.New(c.doer, c.npmConfigFor(req.Cwd), opts...).QueryLatest(ctx, name, distTag)
}

func (c *Checker) npmConfigFor(cwd string) npm.Config {
	if c.npmConfig != nil {
		return c.npmConfig
	}
	cfg, err := npmrc.Load(npmrc.Options{Cwd: cwd})
	if err != nil {
		c.log.WithError(err).Warn("failed to load npm config, using defaults")
		return npmrc.FromMap(nil, nil)
	}
	return cfg
}

// Check runs a single check with a new Checker.
func Check(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	return New(opts...).Check(ctx, req)
}

// CheckAll checks several packages in parallel. Results are returned in
// request order; a failed check leaves a nil entry and its error is keyed
// by request index. A concurrency below 1 uses the default of 15.
func (c *Checker) CheckAll(ctx context.Context, reqs []Request, concurrency int) ([]*Result, map[int]error) {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	results := make([]*Result, len(reqs))
	errs := make(map[int]error)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, r Request) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs[i] = ctx.Err()
				mu.Unlock()
				return
			}

			res, err := c.Check(ctx, r)
			mu.Lock()
			if err != nil {
				errs[i] = err
			} else {
				results[i] = res
			}
			mu.Unlock()
		}(i, req)
	}

	wg.Wait()
	return results, errs
}
