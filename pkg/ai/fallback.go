package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"mailagent-backend/pkg/gemini"
)

// FallbackService routes requests to Gemini first and falls back to Ollama.
// Gemini calls go through the circuit breaker of the API key in use, so a
// quota outage does not cost one failed request per message.
type FallbackService struct {
	gemini  AgentService
	ollama  AgentService
	breaker *gobreaker.CircuitBreaker
}

// NewFallbackService creates a new fallback service with both providers.
// breaker may be nil, in which case Gemini is always attempted.
func NewFallbackService(gemini AgentService, ollama AgentService, breaker *gobreaker.CircuitBreaker) *FallbackService {
	return &FallbackService{
		gemini:  gemini,
		ollama:  ollama,
		breaker: breaker,
	}
}

// NewProviderBreaker builds the breaker guarding a remote provider
func NewProviderBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3 || isQuotaCount(counts)
		},
		IsSuccessful: func(err error) bool {
			return !isOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// isOutage reports whether an error means the provider is unavailable.
// Answers the provider gave on purpose (bad key, bad request, unparsable
// output) do not count.
func isOutage(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// BreakerSet holds one breaker per API key. Failures on one key never open
// the breaker of another.
type BreakerSet struct {
	name string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerSet(name string) *BreakerSet {
	return &BreakerSet{
		name:     name,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// For returns the breaker of an API key, creating it on first use.
// A nil set returns a nil breaker, which disables breaking.
func (s *BreakerSet) For(apiKey string) *gobreaker.CircuitBreaker {
	if s == nil {
		return nil
	}
	sum := sha256.Sum256([]byte(apiKey))
	id := hex.EncodeToString(sum[:4])

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[id]
	if !ok {
		b = NewProviderBreaker(s.name + ":" + id)
		s.breakers[id] = b
	}
	return b
}

func isQuotaCount(counts gobreaker.Counts) bool {
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func (f *FallbackService) callGemini(fn func() (interface{}, error)) (interface{}, error) {
	if f.breaker == nil {
		return fn()
	}
	return f.breaker.Execute(fn)
}

func (f *FallbackService) logGeminiFailure(op string, err error) {
	next := ", no fallback configured"
	if f.ollama != nil {
		next = ", falling back to Ollama"
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Printf("[AI] Gemini circuit open for %s%s", op, next)
	case isQuotaError(err):
		log.Printf("[AI] Gemini quota exhausted for %s: %v%s", op, err, next)
	default:
		log.Printf("[AI] Gemini error for %s: %v%s", op, err, next)
	}
}

// ClassifyEmail tries Gemini first (better quality), falls back to Ollama
func (f *FallbackService) ClassifyEmail(ctx context.Context, emailText string) (*ClassificationResult, error) {
	var geminiErr error
	if f.gemini != nil {
		res, err := f.callGemini(func() (interface{}, error) {
			return f.gemini.ClassifyEmail(ctx, emailText)
		})
		if err == nil {
			return res.(*ClassificationResult), nil
		}
		geminiErr = err
		f.logGeminiFailure("classification", err)
	}

	if f.ollama != nil {
		result, err := f.ollama.ClassifyEmail(ctx, emailText)
		if err == nil {
			return result, nil
		}
		if isConnectionError(err) {
			log.Printf("[AI] Ollama connection failed for classification: %v", err)
		}
		if geminiErr != nil {
			return nil, fmt.Errorf("classification failed: gemini: %v; ollama: %w", geminiErr, err)
		}
		return nil, fmt.Errorf("ollama classification failed: %w", err)
	}

	if geminiErr != nil {
		return nil, fmt.Errorf("gemini classification failed: %w", geminiErr)
	}
	return nil, ErrNoProvider
}

// DraftReply tries Gemini first, falls back to Ollama
func (f *FallbackService) DraftReply(ctx context.Context, req ReplyRequest) (string, error) {
	var geminiErr error
	if f.gemini != nil {
		res, err := f.callGemini(func() (interface{}, error) {
			return f.gemini.DraftReply(ctx, req)
		})
		if err == nil {
			return res.(string), nil
		}
		geminiErr = err
		f.logGeminiFailure("reply drafting", err)
	}

	if f.ollama != nil {
		result, err := f.ollama.DraftReply(ctx, req)
		if err == nil {
			return result, nil
		}
		if isConnectionError(err) {
			log.Printf("[AI] Ollama connection failed for reply drafting: %v", err)
		}
		if geminiErr != nil {
			return "", fmt.Errorf("reply drafting failed: gemini: %v; ollama: %w", geminiErr, err)
		}
		return "", fmt.Errorf("ollama reply drafting failed: %w", err)
	}

	if geminiErr != nil {
		return "", fmt.Errorf("gemini reply drafting failed: %w", geminiErr)
	}
	return "", ErrNoProvider
}
