package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pagelens/pagelens/internal/logging"
)

// waitNetworkIdle returns a channel that fires once the page has had no
// in-flight network requests for idleAfter. Screenshotting before lazy-loaded
// assets settle produces half-rendered captures.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() {
					close(idleChan)
				})
			}
		})
	}

	chromedp.ListenTarget(ctx,
		func(ev any) {
			switch ev.(type) {
			case *network.EventRequestWillBeSent:
				atomic.AddInt32(&activeReqs, 1)
			case *network.EventLoadingFinished, *network.EventLoadingFailed:
				if atomic.AddInt32(&activeReqs, -1) == 0 {
					startTimer()
				}
			}
		})

	startTimer()
	return idleChan
}

// ChromedpClient renders pages in a local headless Chrome and screenshots the
// full page. Useful for development without a capture API key.
type ChromedpClient struct {
	timeout   time.Duration
	allocOpts []chromedp.ExecAllocatorOption
	logger    logging.Logger
}

func NewChromedpClient(cfg Config, logger logging.Logger, opts ...chromedp.ExecAllocatorOption) (*ChromedpClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, opts...)

	componentLogger := logger.With(logging.Field{Key: "component", Value: "capture.chromedp"})
	componentLogger.Info("created chromedp capture client", logging.Field{Key: "timeout", Value: timeout.String()})

	return &ChromedpClient{
		timeout:   timeout,
		allocOpts: allocOpts,
		logger:    componentLogger,
	}, nil
}

// Capture navigates to url and returns a full-page PNG. Each call gets its own
// browser context so concurrent runs never share tab state.
func (c *ChromedpClient) Capture(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	c.logger.Debug("navigating", logging.Field{Key: "url", Value: url})

	waitIdle := waitNetworkIdle(browserCtx, 2*time.Second)

	if err := chromedp.Run(browserCtx, chromedp.Navigate(url)); err != nil {
		c.logger.Warn("chromedp navigation failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, &Error{URL: url, Reason: "headless navigation", Err: err}
	}

	select {
	case <-waitIdle:
	case <-browserCtx.Done():
		return nil, &Error{URL: url, Reason: "headless capture timed out", Err: browserCtx.Err()}
	}

	var buf []byte
	err := chromedp.Run(browserCtx,
		// quality 100 selects lossless PNG output
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		c.logger.Warn("chromedp capture failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, &Error{URL: url, Reason: "headless capture", Err: err}
	}
	if len(buf) == 0 {
		return nil, &Error{URL: url, Reason: "empty screenshot"}
	}

	c.logger.Info("captured screenshot",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "bytes", Value: len(buf)})
	return buf, nil
}

func (c *ChromedpClient) Close() error {
	c.logger.Info("closing chromedp capture client")
	return nil
}
