package shortener

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/MagnunAVF/shorturls/internal/logger"
)

const (
	DefaultCodeLength  = 6
	DefaultValidity    = 30 * time.Minute
	DefaultMaxAttempts = 256
	maxCustomCodeLen   = 32

	// MaxValidityMinutes is the longest validity a time.Duration can hold.
	MaxValidityMinutes = math.MaxInt64 / int64(time.Minute)
)

var customCodeRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Options tunes allocation. Zero fields fall back to the package defaults.
type Options struct {
	CodeLength      int
	DefaultValidity time.Duration
	MaxAttempts     int
}

func (o Options) withDefaults() Options {
	if o.CodeLength <= 0 {
		o.CodeLength = DefaultCodeLength
	}
	if o.DefaultValidity <= 0 {
		o.DefaultValidity = DefaultValidity
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Engine allocates, resolves and reports on short codes. It holds no state of its
// own; everything shared lives in the injected stores.
type Engine struct {
	mappings MappingStore
	clicks   ClickLog
	gen      Generator
	now      Clock
	reporter ErrorReporter
	opts     Options
}

type EngineOption func(*Engine)

func WithGenerator(g Generator) EngineOption { return func(e *Engine) { e.gen = g } }

func WithClock(c Clock) EngineOption { return func(e *Engine) { e.now = c } }

func WithErrorReporter(r ErrorReporter) EngineOption { return func(e *Engine) { e.reporter = r } }

func NewEngine(mappings MappingStore, clicks ClickLog, opts Options, extra ...EngineOption) *Engine {
	e := &Engine{
		mappings: mappings,
		clicks:   clicks,
		gen:      NewRandomGenerator(),
		now:      time.Now,
		reporter: LogReporter{},
		opts:     opts.withDefaults(),
	}
	for _, o := range extra {
		o(e)
	}
	return e
}

// Allocate validates the request and persists a new mapping under either the
// caller's custom code or a freshly generated one.
func (e *Engine) Allocate(ctx context.Context, req AllocateRequest) (*Mapping, error) {
	if !validTargetURL(req.TargetURL) {
		return nil, fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidInput)
	}
	validity := req.Validity
	if validity == 0 {
		validity = e.opts.DefaultValidity
	}
	if validity < 0 {
		return nil, fmt.Errorf("%w: validity must be positive", ErrInvalidInput)
	}

	if req.CustomCode != "" {
		if !validCustomCode(req.CustomCode) {
			return nil, fmt.Errorf("%w: shortcode must be 1-%d alphanumeric characters", ErrInvalidInput, maxCustomCodeLen)
		}
		m := e.newMapping(req.CustomCode, req.TargetURL, validity)
		if err := e.mappings.InsertMapping(ctx, m); err != nil {
			if IsConflict(err) {
				return nil, fmt.Errorf("%w: %s", ErrCodeConflict, req.CustomCode)
			}
			return nil, fmt.Errorf("insert mapping: %w", err)
		}
		return m, nil
	}

	log := logger.FromContext(ctx)
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, err := e.gen.Generate(e.opts.CodeLength)
		if err != nil {
			return nil, err
		}
		m := e.newMapping(code, req.TargetURL, validity)
		err = e.mappings.InsertMapping(ctx, m)
		if err == nil {
			return m, nil
		}
		if !IsConflict(err) {
			return nil, fmt.Errorf("insert mapping: %w", err)
		}
		log.Debug("shortcode collision, retrying", "code", code, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: no free code after %d attempts", ErrAllocationExhausted, e.opts.MaxAttempts)
}

// Resolve returns the target of a live mapping and records the visit. A failed
// click write is reported and does not change the outcome.
func (e *Engine) Resolve(ctx context.Context, code string, visit Visit) (string, error) {
	m, err := e.lookup(ctx, code)
	if err != nil {
		return "", err
	}
	now := e.now().UTC()
	if m.ExpiredAt(now) {
		return "", fmt.Errorf("%w: %s", ErrExpired, code)
	}

	ev := &ClickEvent{
		MappingCode: m.Code,
		Timestamp:   now,
		Referrer:    visit.Referrer,
		ClientIP:    visit.ClientIP,
	}
	// The redirect is already decided; a client hanging up must not drop the click.
	if err := e.clicks.AppendClick(context.WithoutCancel(ctx), ev); err != nil {
		e.reporter.Report(ctx, "append click", err, "code", m.Code)
	}
	return m.TargetURL, nil
}

// Stats returns the mapping and its click history whether or not it has expired.
func (e *Engine) Stats(ctx context.Context, code string) (*Stats, error) {
	m, err := e.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	clicks, err := e.clicks.ListClicks(ctx, m.Code)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}
	if clicks == nil {
		clicks = []ClickEvent{}
	}
	return &Stats{Mapping: *m, TotalClicks: len(clicks), Clicks: clicks}, nil
}

func (e *Engine) lookup(ctx context.Context, code string) (*Mapping, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	m, err := e.mappings.FindMapping(ctx, code)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("find mapping: %w", err)
	}
	return m, nil
}

func (e *Engine) newMapping(code, target string, validity time.Duration) *Mapping {
	// Postgres keeps microseconds; truncate so the returned value matches a re-read.
	created := e.now().UTC().Truncate(time.Microsecond)
	return &Mapping{
		Code:      code,
		TargetURL: target,
		CreatedAt: created,
		ExpiresAt: created.Add(validity),
	}
}

// ValidityFromMinutes converts a minute count into a validity window. Negative
// counts and counts past MaxValidityMinutes are ErrInvalidInput.
func ValidityFromMinutes(n int64) (time.Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: validity must be positive", ErrInvalidInput)
	}
	if n > MaxValidityMinutes {
		return 0, fmt.Errorf("%w: validity must be at most %d minutes", ErrInvalidInput, MaxValidityMinutes)
	}
	return time.Duration(n) * time.Minute, nil
}

func validTargetURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func validCustomCode(c string) bool {
	return len(c) <= maxCustomCodeLen && customCodeRe.MatchString(c)
}

// LogReporter writes reported failures to the request-scoped logger.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, op string, err error, attrs ...any) {
	logger.FromContext(ctx).Error(op+" failed", append(attrs, "err", err)...)
}
