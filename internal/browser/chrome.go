package browser

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// optionalStepTimeout bounds steps whose selectors may be absent
const optionalStepTimeout = 5 * time.Second

// Plan is one apply flow to execute
type Plan struct {
	URL         string
	Site        Site
	CoverLetter string
}

// Runner executes apply plans
type Runner interface {
	Run(ctx context.Context, plan Plan) error
}

// Chrome runs plans in tabs of one shared headless browser
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	startOnce   sync.Once
	startErr    error
}

// NewChrome starts the allocator. execPath may be empty to use the PATH lookup.
func NewChrome(headless bool, execPath string) *Chrome {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	return &Chrome{allocCtx: allocCtx, allocCancel: allocCancel, browserCtx: browserCtx, cancel: cancel}
}

// Run opens a new tab, clicks apply, fills the cover letter if the form has one and submits
func (c *Chrome) Run(ctx context.Context, plan Plan) error {
	// tabs share the browser only once it is running
	c.startOnce.Do(func() { c.startErr = chromedp.Run(c.browserCtx) })
	if c.startErr != nil {
		return fmt.Errorf("failed to start browser: %w", c.startErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	log.Printf("🌐 [BROWSER] Applying via %s: %s", plan.Site.Name, plan.URL)

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(plan.URL),
		chromedp.WaitVisible(plan.Site.ApplyButton, chromedp.ByQuery),
		chromedp.Click(plan.Site.ApplyButton, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("apply button: %w", err)
	}

	if plan.CoverLetter != "" && plan.Site.CoverLetter != "" {
		stepCtx, cancel := context.WithTimeout(tabCtx, optionalStepTimeout)
		err := chromedp.Run(stepCtx,
			chromedp.WaitVisible(plan.Site.CoverLetter, chromedp.ByQuery),
			chromedp.SendKeys(plan.Site.CoverLetter, plan.CoverLetter, chromedp.ByQuery),
		)
		cancel()
		if err != nil {
			log.Printf("⚠️ [BROWSER] Could not fill cover letter on %s: %v", plan.Site.Name, err)
		}
	}

	if err := chromedp.Run(tabCtx,
		chromedp.WaitVisible(plan.Site.Submit, chromedp.ByQuery),
		chromedp.Click(plan.Site.Submit, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if plan.Site.Confirm != "" {
		stepCtx, cancel := context.WithTimeout(tabCtx, optionalStepTimeout)
		defer cancel()
		if err := chromedp.Run(stepCtx, chromedp.WaitVisible(plan.Site.Confirm, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("no confirmation after submit: %w", err)
		}
	}

	log.Printf("✅ [BROWSER] Applied via %s: %s", plan.Site.Name, plan.URL)
	return nil
}

// Close shuts the browser down
func (c *Chrome) Close() {
	c.cancel()
	c.allocCancel()
}
