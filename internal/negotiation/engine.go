package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"magabot/internal/config"
	"magabot/internal/models"
)

// ErrExhausted is returned when no strategy run produced a usable offer
var ErrExhausted = errors.New("negotiation exhausted")

// MinScore is the score assigned to failed and timed-out runs
const MinScore = -math.MaxFloat64

// Weights scale the components of a run's score
type Weights struct {
	Offer  float64
	Rounds float64
	Risk   float64
}

// Settings control one negotiation
type Settings struct {
	Count         int
	PerRunTimeout time.Duration
	MaxRounds     int
	MaxParallel   int
	Weights       Weights
}

// RunObserver receives one call per finished strategy run
type RunObserver interface {
	ObserveRun(strategyID, result string)
}

// StrategyStats aggregates how a strategy performed across negotiations
type StrategyStats struct {
	Runs     int     `json:"runs"`
	Failures int     `json:"failures"`
	Wins     int     `json:"wins"`
	AvgWin   float64 `json:"avg_winning_offer"`
}

// Engine runs several strategies concurrently against one counter-party and
// keeps the best result. It never touches the case: callers commit the outcome.
type Engine struct {
	mu       sync.RWMutex
	catalog  []Strategy
	settings Settings
	stats    map[string]*StrategyStats

	observer RunObserver
	run      runFunc
	now      func() time.Time
}

// NewEngine creates an engine from the negotiation config section
func NewEngine(cfg config.NegotiationConfig, observer RunObserver) *Engine {
	e := &Engine{
		stats:    make(map[string]*StrategyStats),
		observer: observer,
		run:      concessionLadder,
		now:      time.Now,
	}
	e.Reconfigure(cfg)
	return e
}

// Reconfigure swaps the catalog and settings. In-flight negotiations keep the old values.
func (e *Engine) Reconfigure(cfg config.NegotiationConfig) {
	catalog := CatalogFromConfig(cfg.Strategies)
	if len(catalog) == 0 {
		catalog = CatalogFromConfig(config.DefaultStrategies())
	}
	settings := Settings{
		Count:         cfg.Count,
		PerRunTimeout: cfg.PerRunTimeout,
		MaxRounds:     cfg.MaxRounds,
		MaxParallel:   cfg.MaxParallel,
		Weights:       Weights(cfg.Weights),
	}
	if settings.Count <= 0 {
		settings.Count = 3
	}
	if settings.PerRunTimeout <= 0 {
		settings.PerRunTimeout = time.Minute
	}
	if settings.MaxRounds <= 0 {
		settings.MaxRounds = 5
	}
	if settings.Weights == (Weights{}) {
		settings.Weights = Weights{Offer: 1}
	}

	e.mu.Lock()
	e.catalog = catalog
	e.settings = settings
	e.mu.Unlock()
}

// Settings returns the active settings
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Catalog returns a copy of the strategy catalog
func (e *Engine) Catalog() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Strategy(nil), e.catalog...)
}

// Negotiate runs the selected strategies concurrently and returns the winning outcome.
// A failing run never cancels its siblings.
func (e *Engine) Negotiate(ctx context.Context, req Request, cp CounterParty) (*models.NegotiationOutcome, error) {
	if req.Target <= 0 {
		return nil, fmt.Errorf("negotiation target must be positive, got %d", req.Target)
	}

	e.mu.RLock()
	settings := e.settings
	strategies := Select(e.catalog, settings.Count)
	e.mu.RUnlock()

	log.Printf("🎲 [NEGOTIATION] Starting %d strategy runs for %s (target %d %s)", len(strategies), req.Company, req.Target, req.Currency)

	runs := make([]models.StrategyRun, len(strategies))
	var completed atomic.Int32
	var g errgroup.Group
	if settings.MaxParallel > 0 {
		g.SetLimit(settings.MaxParallel)
	}
	for i, s := range strategies {
		g.Go(func() error {
			// a failed run is recorded in runs[i] and must not stop its siblings
			runs[i] = e.runOne(ctx, s, req, cp, settings, &completed)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	winner, err := Reduce(runs)
	if err != nil {
		e.recordStats(runs, nil)
		log.Printf("❌ [NEGOTIATION] All %d runs failed for %s", len(runs), req.Company)
		return nil, err
	}
	e.recordStats(runs, &winner)

	outcome := &models.NegotiationOutcome{
		Company:    req.Company,
		Target:     req.Target,
		Currency:   req.Currency,
		Winner:     winner,
		Runs:       runs,
		Confidence: Confidence(winner, req.Target),
		DecidedAt:  e.now(),
	}
	outcome.Recommendation = Recommendation(winner, runs, req.Target, req.Currency)

	log.Printf("✅ [NEGOTIATION] Winner %s with %d %s after %d rounds (confidence %.0f%%)",
		winner.StrategyID, winner.FinalOffer, req.Currency, winner.Rounds, outcome.Confidence*100)
	return outcome, nil
}

func (e *Engine) runOne(ctx context.Context, s Strategy, req Request, cp CounterParty, settings Settings, completed *atomic.Int32) models.StrategyRun {
	runCtx, cancel := context.WithTimeout(ctx, settings.PerRunTimeout)
	defer cancel()

	type outcome struct {
		res ladderResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.run(runCtx, s, req, cp, settings.MaxRounds)
		done <- outcome{res, err}
	}()

	var res ladderResult
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
	case <-runCtx.Done():
		err = runCtx.Err()
	}

	run := models.StrategyRun{
		StrategyID:  s.ID,
		Personality: s.Personality,
		Risk:        s.Risk,
		Order:       int(completed.Add(1)),
		CompletedAt: e.now(),
	}
	result := "success"
	if err != nil {
		run.Score = MinScore
		run.Error = err.Error()
		result = "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		log.Printf("⚠️ [NEGOTIATION] Strategy %s %s: %v", s.ID, result, err)
	} else {
		run.Succeeded = true
		run.FinalOffer = res.FinalOffer
		run.Rounds = res.Rounds
		run.Score = score(settings.Weights, res, s)
	}
	if e.observer != nil {
		e.observer.ObserveRun(s.ID, result)
	}
	return run
}

func score(w Weights, res ladderResult, s Strategy) float64 {
	return w.Offer*float64(res.FinalOffer) + w.Rounds*float64(res.Rounds) + w.Risk*s.RiskValue()
}

// Reduce picks the winning run: highest score first, earliest completion on ties.
// Failed runs are never selected.
func Reduce(runs []models.StrategyRun) (models.StrategyRun, error) {
	candidates := make([]models.StrategyRun, 0, len(runs))
	for _, r := range runs {
		if r.Succeeded {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return models.StrategyRun{}, ErrExhausted
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Order < candidates[j].Order
	})
	return candidates[0], nil
}

func (e *Engine) recordStats(runs []models.StrategyRun, winner *models.StrategyRun) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range runs {
		st := e.stats[r.StrategyID]
		if st == nil {
			st = &StrategyStats{}
			e.stats[r.StrategyID] = st
		}
		st.Runs++
		if !r.Succeeded {
			st.Failures++
		}
	}
	if winner != nil {
		st := e.stats[winner.StrategyID]
		st.AvgWin = (st.AvgWin*float64(st.Wins) + float64(winner.FinalOffer)) / float64(st.Wins+1)
		st.Wins++
	}
}

// Stats returns a snapshot of per-strategy statistics
func (e *Engine) Stats() map[string]StrategyStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]StrategyStats, len(e.stats))
	for id, st := range e.stats {
		out[id] = *st
	}
	return out
}
