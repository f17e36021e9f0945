package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swiss-ai-center/text2audio/service"
)

// Announcer registers the service with every configured engine at startup.
// Each engine gets its own goroutine with a bounded retry budget and a
// cancellable wait between attempts, so an unreachable engine never holds
// up serving.
type Announcer struct {
	client  *Client
	info    service.Info
	engines []string
	retries int
	delay   time.Duration

	mu        sync.Mutex
	announced []string
	wg        sync.WaitGroup
}

func NewAnnouncer(client *Client, info service.Info, engines []string, retries int, delay time.Duration) *Announcer {
	if retries < 1 {
		retries = 1
	}
	return &Announcer{
		client:  client,
		info:    info,
		engines: engines,
		retries: retries,
		delay:   delay,
	}
}

// Run starts one announce loop per engine and returns immediately.
func (a *Announcer) Run(ctx context.Context) {
	for _, engineURL := range a.engines {
		a.wg.Add(1)
		go a.announce(ctx, engineURL)
	}
}

// Wait blocks until every announce loop has ended.
func (a *Announcer) Wait() {
	a.wg.Wait()
}

func (a *Announcer) announce(ctx context.Context, engineURL string) {
	defer a.wg.Done()
	for attempt := 1; attempt <= a.retries; attempt++ {
		err := a.client.Announce(ctx, engineURL, a.info)
		if err == nil {
			log.Infof("service announced to %s", engineURL)
			a.mu.Lock()
			a.announced = append(a.announced, engineURL)
			a.mu.Unlock()
			return
		}
		log.Debugf("announcing to %s failed (attempt %d/%d): %v", engineURL, attempt, a.retries, err)
		if attempt == a.retries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.delay):
		}
	}
	log.Warnf("Aborting service announcement after %d retries", a.retries)
}

// Announced lists the engines that accepted the announcement so far.
func (a *Announcer) Announced() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.announced...)
}

// Withdraw tells every engine that accepted the announcement that the
// service is going away.
func (a *Announcer) Withdraw(ctx context.Context) {
	for _, engineURL := range a.Announced() {
		if err := a.client.Withdraw(ctx, engineURL, a.info.Slug); err != nil {
			log.Warnf("error withdrawing from %s: %v", engineURL, err)
			continue
		}
		log.Infof("service withdrawn from %s", engineURL)
	}
}
