// Package intercept implements the command interceptor state machine from
// spec.md §4.H: ShouldCache eligibility, TTL resolution, the Executing ->
// Executed key carry, admission, and replay.
//
// Go has no GC-backed weak map, so the "weak-keyed map from command-object
// to fingerprint" design note in spec.md §9 becomes an explicit
// *ExecutionContext value threaded by the caller from Executing to
// Executed (see SPEC_FULL.md §4.H). A process-wide fallback map keyed by a
// caller-supplied opaque token is also provided, for ORM adapters that
// cannot thread a context value directly between the two callbacks; it has
// read-once semantics via TakePending.
package intercept

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/directive"
	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/key"
	"github.com/cuemby/stash/pkg/reader"
	"github.com/cuemby/stash/pkg/resultset"
	"github.com/cuemby/stash/pkg/store"
	"github.com/cuemby/stash/pkg/tables"
	"github.com/cuemby/stash/pkg/telemetry"
)

// ExecutionContext carries the fingerprint and resolved caching decision
// from Executing to Executed for one command execution. It is the
// non-weak-map substitute described in spec.md §9.
type ExecutionContext struct {
	fingerprint string
	eligible    bool
	cacheHit    bool
	tags        []string
	absolute    time.Duration
	sliding     time.Duration
}

// Interceptor is the central cache state machine.
type Interceptor struct {
	opts      *config.Options
	keygen    key.Generator
	store     store.Store
	telemetry *telemetry.Recorder

	pending *xsync.MapOf[string, string] // opaque token -> fingerprint
}

// New returns an Interceptor over store, using opts for admission limits
// and TTL defaults and rec for telemetry. rec must not be nil.
func New(opts *config.Options, st store.Store, rec *telemetry.Recorder) *Interceptor {
	return &Interceptor{
		opts:      opts,
		keygen:    key.New(opts.KeyPrefix),
		store:     st,
		telemetry: rec,
		pending:   xsync.NewMapOf[string, string](),
	}
}

// shouldCache implements the normative predicate from spec.md §4.H.
func (i *Interceptor) shouldCache(cmd driverio.Command, hasUpstreamResult bool) (bool, directive.Directive, map[string]struct{}) {
	if hasUpstreamResult {
		return false, directive.Directive{}, nil
	}

	d := directive.Parse(cmd.Text)
	if d.IsOptOut {
		return false, d, nil
	}

	if !startsWithSelectOrWith(cmd.Text) {
		return false, d, nil
	}

	if d.IsOptIn {
		return true, d, tables.Extract(cmd.Text)
	}

	if i.opts.CacheAllQueries {
		tagSet := tables.Extract(cmd.Text)
		for t := range tagSet {
			if i.opts.IsExcluded(t) {
				return false, d, tagSet
			}
		}
		return true, d, tagSet
	}

	return false, d, nil
}

// startsWithSelectOrWith reports whether sql's first non-comment token is
// SELECT or WITH, case-insensitively, after skipping leading line comments
// ("--...") and block comments ("/*...*/").
func startsWithSelectOrWith(sql string) bool {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx == -1 {
				return false
			}
			s = strings.TrimSpace(s[idx+1:])
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx == -1 {
				return false
			}
			s = strings.TrimSpace(s[idx+2:])
		default:
			upper := strings.ToUpper(s)
			return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
		}
	}
}

// resolveTTL implements the TTL resolution rule from spec.md §4.H.
func (i *Interceptor) resolveTTL(d directive.Directive) (absolute, sliding time.Duration) {
	if d.ProfileName != "" {
		if p, ok := i.opts.Profiles[d.ProfileName]; ok {
			absolute = i.opts.DefaultAbsoluteExpiration
			if p.Absolute != nil {
				absolute = *p.Absolute
			}
			sliding = i.opts.DefaultSlidingExpiration
			if p.Sliding != nil {
				sliding = *p.Sliding
			}
			return absolute, sliding
		}
	}

	absolute = i.opts.DefaultAbsoluteExpiration
	if d.AbsoluteTTL > 0 {
		absolute = time.Duration(d.AbsoluteTTL) * time.Second
	}
	sliding = i.opts.DefaultSlidingExpiration
	if d.HasSliding {
		sliding = time.Duration(d.SlidingTTL) * time.Second
	}
	return absolute, sliding
}

// Explanation is the dry-run result of Explain: what Interceptor would
// decide about cmd without touching the store.
type Explanation struct {
	Eligible bool
	Tags     []string
	Absolute time.Duration
	Sliding  time.Duration
}

// Explain reports the caching decision Executing would make for cmd,
// without performing a store lookup. Useful for an operator inspecting why
// a given query is or isn't being cached.
func (i *Interceptor) Explain(cmd driverio.Command) Explanation {
	eligible, d, tagSet := i.shouldCache(cmd, false)
	if !eligible {
		return Explanation{Eligible: false}
	}

	absolute, sliding := i.resolveTTL(d)
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	return Explanation{Eligible: true, Tags: tags, Absolute: absolute, Sliding: sliding}
}

// Executing is called before the command reaches the driver. On a cache
// hit it returns a ready-to-use replay reader and hit=true; the caller
// should give that reader to the ORM instead of executing cmd against the
// driver. On a miss (or an ineligible command) it returns an
// *ExecutionContext to thread into Executed.
func (i *Interceptor) Executing(ctx context.Context, cmd driverio.Command, hasUpstreamResult bool) (execCtx *ExecutionContext, cachedReader driverio.RowReader, hit bool, err error) {
	eligible, d, tagSet := i.shouldCache(cmd, hasUpstreamResult)
	if !eligible {
		return &ExecutionContext{eligible: false}, nil, false, nil
	}

	fp := i.keygen.Fingerprint(cmd)

	set, found, getErr := i.store.Get(ctx, fp)
	if getErr != nil {
		if i.opts.FallbackToDatabase {
			i.telemetry.RecordFallback(fp, getErr)
		} else {
			return nil, nil, false, getErr
		}
	} else if found {
		i.telemetry.RecordHit(fp)
		return &ExecutionContext{fingerprint: fp, eligible: true, cacheHit: true}, reader.New(set), true, nil
	}

	if getErr == nil {
		i.telemetry.RecordMiss(fp)
	}

	absolute, sliding := i.resolveTTL(d)
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}

	return &ExecutionContext{
		fingerprint: fp,
		eligible:    true,
		cacheHit:    false,
		tags:        tags,
		absolute:    absolute,
		sliding:     sliding,
	}, nil, false, nil
}

// StorePending associates token (an opaque command identifier supplied by
// an ORM adapter that cannot thread *ExecutionContext directly) with
// execCtx's fingerprint, for retrieval via TakePending from Executed.
func (i *Interceptor) StorePending(token string, execCtx *ExecutionContext) {
	if execCtx == nil || !execCtx.eligible || execCtx.cacheHit {
		return
	}
	i.pending.Store(token, execCtx.fingerprint)
}

// TakePending retrieves and removes the fingerprint associated with token.
// Read-once: a second call for the same token returns ok=false.
func (i *Interceptor) TakePending(token string) (string, bool) {
	return i.pending.LoadAndDelete(token)
}

// Executed is called once the driver has produced live, a raw row reader
// for an eligible miss. It wraps live in an admitting reader: as the
// caller drains rows through the returned driverio.RowReader, Stash
// records them; once the caller Closes it, Stash admits the captured
// result set to the store (if eligible) or discards it (if admission
// limits were exceeded). For a passthrough (execCtx.eligible == false) or
// a cache hit (execCtx.cacheHit == true, meaning Executing already
// returned the cached reader), Executed returns live unchanged.
func (i *Interceptor) Executed(ctx context.Context, execCtx *ExecutionContext, live driverio.RowReader) (driverio.RowReader, error) {
	if execCtx == nil || !execCtx.eligible || execCtx.cacheHit {
		return live, nil
	}

	rec := reader.NewRecorder(live, i.opts.MaxRowsPerQuery)
	return &admittingReader{
		Recorder:   rec,
		interceptor: i,
		execCtx:    execCtx,
		ctx:        ctx,
	}, nil
}

// admittingReader wraps a *reader.Recorder, performing admission on Close.
type admittingReader struct {
	*reader.Recorder
	interceptor *Interceptor
	execCtx     *ExecutionContext
	ctx         context.Context
}

func (a *admittingReader) Close() error {
	closeErr := a.Recorder.Close()

	set := a.Recorder.Drained()
	i, ec := a.interceptor, a.execCtx

	if a.Recorder.OverLimit() {
		i.telemetry.RecordSkipTooManyRows(ec.fingerprint, len(set.Rows))
		return closeErr
	}

	if i.opts.MaxCacheEntrySize > 0 && set.ApproxByteSize > i.opts.MaxCacheEntrySize {
		i.telemetry.RecordSkipTooLarge(ec.fingerprint, set.ApproxByteSize)
		return closeErr
	}

	if err := i.store.Set(a.ctx, ec.fingerprint, set, ec.absolute, ec.sliding, ec.tags); err != nil {
		if i.opts.FallbackToDatabase {
			i.telemetry.RecordFallback(ec.fingerprint, err)
			return closeErr
		}
		return err
	}

	i.telemetry.RecordAdmit(ec.fingerprint, len(set.Rows), set.ApproxByteSize, ec.absolute)
	return closeErr
}
