package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/platform"
)

// Section is one gathered slice of context with its provenance.
type Section struct {
	Platform  string `json:"platform"`
	Scope     string `json:"scope"`
	Summary   string `json:"summary"`
	ItemCount int    `json:"item_count"`
}

// GatherResult is everything a strategy collected for one execution. It is
// persisted verbatim as the version's context digest.
type GatherResult struct {
	Strategy  string    `json:"strategy"`
	Window    string    `json:"window"`
	Sections  []Section `json:"sections"`
	Omissions []string  `json:"omissions,omitempty"`
	Items     int       `json:"items"`
}

// Strategy gathers generation context for one deliverable. Implementations
// tolerate individual source failures; only a fully empty result is fatal to
// the execution.
type Strategy interface {
	Name() string
	Gather(ctx context.Context, d models.Deliverable, sources []models.SourceRef, window time.Duration) (GatherResult, error)
}

// StrategySet maps bindings to strategies. The lookup is the only dispatch;
// no code branches on strategy names.
type StrategySet struct {
	byBinding map[string]Strategy
}

func NewStrategySet(gateway platform.Gateway, cfg config.ExecutionConfig, logger *zap.Logger) *StrategySet {
	base := &sourceFetcher{gateway: gateway, cfg: cfg, logger: logger}
	return &StrategySet{byBinding: map[string]Strategy{
		models.BindingPlatformBound: &platformBoundStrategy{fetcher: base},
		models.BindingCrossPlatform: &crossPlatformStrategy{fetcher: base},
		models.BindingResearch:      &researchStrategy{},
		models.BindingHybrid:        &hybridStrategy{fetcher: base},
	}}
}

// ForBinding returns the strategy for a binding, or false for an unknown one.
func (s *StrategySet) ForBinding(binding string) (Strategy, bool) {
	st, ok := s.byBinding[binding]
	return st, ok
}

// sourceFetcher is the shared platform-read helper behind the platform-backed
// strategies.
type sourceFetcher struct {
	gateway platform.Gateway
	cfg     config.ExecutionConfig
	logger  *zap.Logger
}

func (f *sourceFetcher) fetch(ctx context.Context, userID string, source models.SourceRef, window time.Duration) (Section, error) {
	timeout := f.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := f.gateway.FetchRecent(ctx, platform.Scope{
		UserID:   userID,
		Platform: source.Platform,
		Scope:    source.Scope,
	}, window)
	if err != nil {
		return Section{}, err
	}
	return Section{
		Platform:  content.Platform,
		Scope:     content.Scope,
		Summary:   content.Summary,
		ItemCount: len(content.Items),
	}, nil
}

func (f *sourceFetcher) warn(d models.Deliverable, source models.SourceRef, err error) {
	if f.logger == nil {
		return
	}
	f.logger.Warn("context fetch skipped",
		zap.String("deliverable_id", d.ID),
		zap.String("platform", source.Platform),
		zap.String("scope", source.Scope),
		zap.Error(err),
	)
}

// platformBoundStrategy reads the deliverable's sources sequentially. All
// sources live on one platform so there is nothing to parallelize.
type platformBoundStrategy struct {
	fetcher *sourceFetcher
}

func (s *platformBoundStrategy) Name() string { return "platform_bound" }

func (s *platformBoundStrategy) Gather(ctx context.Context, d models.Deliverable, sources []models.SourceRef, window time.Duration) (GatherResult, error) {
	result := GatherResult{Strategy: s.Name(), Window: window.String()}
	for _, source := range sources {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		section, err := s.fetcher.fetch(ctx, d.UserID, source, window)
		if err != nil {
			s.fetcher.warn(d, source, err)
			result.Omissions = append(result.Omissions, source.Platform+"/"+source.Scope)
			continue
		}
		result.Sections = append(result.Sections, section)
		result.Items += section.ItemCount
	}
	return result, nil
}

// crossPlatformStrategy fans out across platforms with bounded concurrency
// and merges whatever came back.
type crossPlatformStrategy struct {
	fetcher *sourceFetcher
}

func (s *crossPlatformStrategy) Name() string { return "cross_platform" }

func (s *crossPlatformStrategy) Gather(ctx context.Context, d models.Deliverable, sources []models.SourceRef, window time.Duration) (GatherResult, error) {
	result := GatherResult{Strategy: s.Name(), Window: window.String()}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, source := range sources {
		source := source
		g.Go(func() error {
			section, err := s.fetcher.fetch(gctx, d.UserID, source, window)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.fetcher.warn(d, source, err)
				result.Omissions = append(result.Omissions, source.Platform+"/"+source.Scope)
				return nil
			}
			result.Sections = append(result.Sections, section)
			result.Items += section.ItemCount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// researchStrategy gathers no platform content. Sources act as research
// directives; the generation call leans on the model plus the directive list.
type researchStrategy struct{}

func (s *researchStrategy) Name() string { return "research" }

func (s *researchStrategy) Gather(ctx context.Context, d models.Deliverable, sources []models.SourceRef, window time.Duration) (GatherResult, error) {
	result := GatherResult{Strategy: s.Name(), Window: window.String()}
	for _, source := range sources {
		result.Sections = append(result.Sections, Section{
			Platform:  source.Platform,
			Scope:     source.Scope,
			Summary:   fmt.Sprintf("research directive: %s on %s", source.Scope, source.Platform),
			ItemCount: 1,
		})
		result.Items++
	}
	return result, nil
}

// hybridStrategy merges the cross-platform fan-out with research directives
// so a partially fetchable deliverable still carries its topical framing.
type hybridStrategy struct {
	fetcher *sourceFetcher
}

func (s *hybridStrategy) Name() string { return "hybrid" }

func (s *hybridStrategy) Gather(ctx context.Context, d models.Deliverable, sources []models.SourceRef, window time.Duration) (GatherResult, error) {
	cross := crossPlatformStrategy{fetcher: s.fetcher}
	result, err := cross.Gather(ctx, d, sources, window)
	if err != nil {
		return result, err
	}
	result.Strategy = s.Name()
	result.Sections = append(result.Sections, Section{
		Platform:  "research",
		Scope:     d.Title,
		Summary:   "research directive: " + d.Title,
		ItemCount: 1,
	})
	result.Items++
	return result, nil
}
