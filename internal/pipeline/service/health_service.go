package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
)

// HealthService reports the pipeline's own liveness and polls the configured
// downstream dependencies with a bounded fan-out.
type HealthService interface {
	Health() dto.HealthResponse
	CheckServices(ctx context.Context) []dto.ServiceHealth
}

// NewHealthService creates a new health aggregator.
func NewHealthService(cfg *config.Config, log *logger.Logger) HealthService {
	timeout, err := time.ParseDuration(cfg.Health.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxConcurrent := cfg.Health.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &healthService{
		cfg:           cfg,
		logger:        log,
		httpClient:    &http.Client{Timeout: timeout},
		timeout:       timeout,
		maxConcurrent: maxConcurrent,
	}
}

type healthService struct {
	cfg           *config.Config
	logger        *logger.Logger
	httpClient    *http.Client
	timeout       time.Duration
	maxConcurrent int
}

// Health reports this service's own status.
func (s *healthService) Health() dto.HealthResponse {
	return dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   s.cfg.App.Name,
		Version:   s.cfg.App.Version,
	}
}

// CheckServices polls every configured dependency concurrently, at most
// maxConcurrent in flight. A slow or failing dependency is reported, never
// propagated as an aggregator error.
func (s *healthService) CheckServices(ctx context.Context) []dto.ServiceHealth {
	results := make([]dto.ServiceHealth, 0, len(s.cfg.Health.Services))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)

	for name, url := range s.cfg.Health.Services {
		name, url := name, url
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			check := s.checkOne(ctx, name, url)

			mu.Lock()
			results = append(results, check)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (s *healthService) checkOne(ctx context.Context, name, url string) dto.ServiceHealth {
	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	check := dto.ServiceHealth{Name: name, URL: url, CheckedAt: start}

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		check.Error = err.Error()
		return check
	}

	resp, err := s.httpClient.Do(req)
	check.Latency = time.Since(start)
	if err != nil {
		check.Error = err.Error()
		s.logger.Warn("Dependency health check failed",
			logger.StringField("service", name), logger.ErrorField(err))
		return check
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		check.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return check
	}
	check.Healthy = true
	return check
}
