package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/CodeTutor/internal/adapter/otel"
	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/port/cache"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/resilience"
)

// OrchestratorConfig bounds the completion requests made for one task.
type OrchestratorConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	// MaxCalls caps provider requests per task, overview and retries
	// included. Cache hits are free. Zero means no cap.
	MaxCalls    int
	Concurrency int
	Retry       resilience.Policy
}

// OrchestratorConfigFrom maps the loaded configuration.
func OrchestratorConfigFrom(cfg *config.Config) OrchestratorConfig {
	return OrchestratorConfig{
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxCalls:       cfg.Analysis.MaxLLMCalls,
		Concurrency:    cfg.Analysis.Concurrency,
		Retry: resilience.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
	}
}

// Fragments is everything the orchestrator produced for one repository.
type Fragments struct {
	Overview    tutorial.Fragment
	Directories map[string]tutorial.Fragment
	Files       map[string]tutorial.Fragment
}

// Orchestrator turns an analysis into tutorial fragments by prompting a
// TextCompleter. The overview must succeed; any other failed request
// degrades to a placeholder section.
type Orchestrator struct {
	cfg     OrchestratorConfig
	breaker *resilience.Breaker
	cache   cache.Cache
	metrics *cfotel.Metrics
}

// NewOrchestrator creates an Orchestrator. breaker and metrics may be nil.
func NewOrchestrator(cfg OrchestratorConfig, breaker *resilience.Breaker, c cache.Cache, metrics *cfotel.Metrics) *Orchestrator {
	if c == nil {
		c = cache.Nop{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{cfg: cfg, breaker: breaker, cache: c, metrics: metrics}
}

type job struct {
	kind    tutorial.SubjectKind
	subject string
	depth   int
	prompt  func() (string, error)
	fall    func() tutorial.Fragment
}

// Generate produces the overview first, then every directory and file
// fragment. progress receives (done, total) over the non-overview fragments;
// calls are serialized.
func (o *Orchestrator) Generate(ctx context.Context, completer llm.TextCompleter, repo string, overview OverviewInput, a *RepositoryAnalysis, progress func(done, total int)) (*Fragments, error) {
	prompt, err := renderOverviewPrompt(overview)
	if err != nil {
		return nil, err
	}
	budget := newCallBudget(o.cfg.MaxCalls)
	ov, err := o.fragment(ctx, completer, budget, false, tutorial.SubjectRepository, tutorial.RepositorySubject, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.Wrap(domain.KindLLMProviderError, err, "overview generation failed")
	}

	jobs := o.plan(repo, a)
	results := make([]tutorial.Fragment, len(jobs))
	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, len(jobs))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	fallbacks := 0
	// Jobs are walked in priority order: each uncached job reserves its
	// first request here, so a job never loses its slot to a later one.
	for i, j := range jobs {
		p, err := j.prompt()
		if err != nil {
			results[i] = o.failed(ctx, repo, j, err)
			report()
			continue
		}
		if raw, ok := o.cache.Get(ctx, o.cacheKey(p)); ok {
			o.recordCall(ctx, "cached")
			results[i] = buildFragment(j.kind, j.subject, p, raw)
			report()
			continue
		}
		if !budget.take() {
			fallbacks++
			results[i] = j.fall()
			o.degraded(ctx, j.kind, tutorial.FragmentFallback)
			report()
			continue
		}
		g.Go(func() error {
			defer report()
			f, err := o.fragment(gctx, completer, budget, true, j.kind, j.subject, p)
			if err == nil {
				results[i] = f
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = o.failed(ctx, repo, j, err)
			return nil
		})
	}
	if fallbacks > 0 {
		slog.Info("llm call budget reached, using static summaries",
			"repository", repo, "fragments", len(jobs), "fallbacks", fallbacks)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Fragments{
		Overview:    ov,
		Directories: make(map[string]tutorial.Fragment),
		Files:       make(map[string]tutorial.Fragment),
	}
	for _, f := range results {
		if f.Kind == tutorial.SubjectDirectory {
			out.Directories[f.Subject] = f
		} else {
			out.Files[f.Subject] = f
		}
	}
	return out, nil
}

// plan orders the fragments by priority: directories before files,
// shallower before deeper, then by path. Jobs past the call budget get a
// static fallback.
func (o *Orchestrator) plan(repo string, a *RepositoryAnalysis) []job {
	jobs := make([]job, 0, len(a.Directories)+len(a.Files))
	for _, d := range a.Directories {
		jobs = append(jobs, job{
			kind:    tutorial.SubjectDirectory,
			subject: d.Path,
			depth:   depth(d.Path),
			prompt:  func() (string, error) { return renderDirectoryPrompt(repo, d) },
			fall:    func() tutorial.Fragment { return directoryFallback(d) },
		})
	}
	for _, f := range a.Files {
		jobs = append(jobs, job{
			kind:    tutorial.SubjectFile,
			subject: f.Entry.Path,
			depth:   depth(f.Entry.Path),
			prompt:  func() (string, error) { return renderFilePrompt(repo, f) },
			fall:    func() tutorial.Fragment { return fileFallback(f) },
		})
	}
	slices.SortStableFunc(jobs, func(x, y job) int {
		if x.kind != y.kind {
			if x.kind == tutorial.SubjectDirectory {
				return -1
			}
			return 1
		}
		if x.depth != y.depth {
			return x.depth - y.depth
		}
		return strings.Compare(x.subject, y.subject)
	})
	return jobs
}

func depth(p string) int { return strings.Count(p, "/") }

func (o *Orchestrator) failed(ctx context.Context, repo string, j job, err error) tutorial.Fragment {
	slog.Warn("fragment generation failed",
		"repository", repo, "subject", j.subject, "kind", j.kind, "error", err)
	o.degraded(ctx, j.kind, tutorial.FragmentPlaceholder)
	return placeholder(j.kind, j.subject, err)
}

// fragment completes prompt through the cache, retry policy and breaker and
// parses the response. reserved means the first request was already taken
// from budget.
func (o *Orchestrator) fragment(ctx context.Context, completer llm.TextCompleter, budget *callBudget, reserved bool, kind tutorial.SubjectKind, subject, prompt string) (tutorial.Fragment, error) {
	ctx, span := cfotel.StartCompletionSpan(ctx, string(kind), subject)
	raw, err := o.complete(ctx, completer, budget, reserved, prompt)
	cfotel.EndSpan(span, err)
	if err != nil {
		return tutorial.Fragment{}, err
	}
	return buildFragment(kind, subject, prompt, raw), nil
}

func buildFragment(kind tutorial.SubjectKind, subject, prompt, raw string) tutorial.Fragment {
	title, desc, content := parseResponse(raw)
	if title == "" {
		title = defaultTitle(kind, subject)
	}
	return tutorial.Fragment{
		Subject:     subject,
		Kind:        kind,
		Prompt:      prompt,
		Raw:         raw,
		Title:       title,
		Description: desc,
		Content:     content,
		Status:      tutorial.FragmentGenerated,
	}
}

var (
	errEmptyCompletion     = errors.New("empty completion")
	errCallBudgetExhausted = errors.New("llm call budget exhausted")
)

func (o *Orchestrator) complete(ctx context.Context, completer llm.TextCompleter, budget *callBudget, reserved bool, prompt string) (string, error) {
	key := o.cacheKey(prompt)
	if text, ok := o.cache.Get(ctx, key); ok {
		o.recordCall(ctx, "cached")
		return text, nil
	}

	opts := llm.Options{System: systemPrompt, Temperature: o.cfg.Temperature, MaxTokens: o.cfg.MaxTokens}
	policy := o.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		slog.Debug("retrying completion", "attempt", attempt, "wait", wait, "error", err)
	}

	var (
		text    string
		lastErr error
		attempt int
	)
	err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
		attempt++
		if !(reserved && attempt == 1) && !budget.take() {
			if lastErr == nil {
				return resilience.Permanent(errCallBudgetExhausted)
			}
			return resilience.Permanent(fmt.Errorf("%w: %w", errCallBudgetExhausted, lastErr))
		}
		err := o.breaker.Execute(ctx, func() error {
			callCtx := ctx
			if o.cfg.RequestTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
				defer cancel()
			}
			start := time.Now()
			out, err := completer.Complete(callCtx, prompt, opts)
			if err != nil {
				return err
			}
			if strings.TrimSpace(out) == "" {
				return resilience.Transient(errEmptyCompletion)
			}
			if o.metrics != nil {
				o.metrics.LLMLatency.Record(ctx, time.Since(start).Seconds())
			}
			text = out
			return nil
		})
		lastErr = err
		return err
	})
	if err != nil {
		o.recordCall(ctx, "error")
		return "", err
	}
	o.recordCall(ctx, "ok")
	o.cache.Set(ctx, key, text)
	return text, nil
}

// callBudget counts the provider requests left for one task.
type callBudget struct {
	limited bool
	left    atomic.Int64
}

func newCallBudget(limit int) *callBudget {
	b := &callBudget{limited: limit > 0}
	b.left.Store(int64(limit))
	return b
}

// take claims one request, reporting false once the budget is spent.
func (b *callBudget) take() bool {
	if !b.limited {
		return true
	}
	for {
		n := b.left.Load()
		if n <= 0 {
			return false
		}
		if b.left.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (o *Orchestrator) cacheKey(prompt string) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%s\x00%g\x00%d\x00%s\x00", o.cfg.Model, o.cfg.Temperature, o.cfg.MaxTokens, systemPrompt)
	h.Write([]byte(prompt))
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}

func (o *Orchestrator) recordCall(ctx context.Context, outcome string) {
	if o.metrics != nil {
		o.metrics.LLMCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (o *Orchestrator) degraded(ctx context.Context, kind tutorial.SubjectKind, status tutorial.FragmentStatus) {
	if o.metrics != nil {
		o.metrics.FragmentsDegraded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("status", string(status)),
		))
	}
}

type response struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// parseResponse extracts the JSON object a model was asked for. Models
// often wrap it in code fences or prose; anything unparseable becomes the
// content verbatim.
func parseResponse(raw string) (title, description, content string) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		var r response
		if err := json.Unmarshal([]byte(s[start:end+1]), &r); err == nil && r.Content != "" {
			return strings.TrimSpace(r.Title), strings.TrimSpace(r.Description), strings.TrimSpace(r.Content)
		}
	}
	return "", "", strings.TrimSpace(raw)
}

func defaultTitle(kind tutorial.SubjectKind, subject string) string {
	switch kind {
	case tutorial.SubjectDirectory:
		return subject + "/"
	case tutorial.SubjectFile:
		return path.Base(subject)
	default:
		return ""
	}
}

func placeholder(kind tutorial.SubjectKind, subject string, err error) tutorial.Fragment {
	msg := "generation failed"
	if err != nil {
		msg = err.Error()
	}
	return tutorial.Fragment{
		Subject: subject,
		Kind:    kind,
		Title:   defaultTitle(kind, subject),
		Content: "_Content for this section could not be generated._",
		Status:  tutorial.FragmentPlaceholder,
		Error:   msg,
	}
}

func directoryFallback(d DirectoryAnalysis) tutorial.Fragment {
	return tutorial.Fragment{
		Subject:     d.Path,
		Kind:        tutorial.SubjectDirectory,
		Title:       defaultTitle(tutorial.SubjectDirectory, d.Path),
		Description: fmt.Sprintf("The %s directory.", d.Path),
		Content:     "Contents: " + d.Summary(),
		Status:      tutorial.FragmentFallback,
	}
}

func fileFallback(f FileAnalysis) tutorial.Fragment {
	var b strings.Builder
	if f.Entry.Language != "" {
		fmt.Fprintf(&b, "A %s file", f.Entry.Language)
	} else {
		b.WriteString("A file")
	}
	fmt.Fprintf(&b, " of %d bytes.\n\n%s", f.Entry.Size, f.Summary())
	return tutorial.Fragment{
		Subject: f.Entry.Path,
		Kind:    tutorial.SubjectFile,
		Title:   defaultTitle(tutorial.SubjectFile, f.Entry.Path),
		Content: b.String(),
		Status:  tutorial.FragmentFallback,
	}
}
