package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PipelineCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_cycles_total",
		Help: "Количество циклов обхода лент",
	})
	PipelineCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_cycle_seconds",
		Help:    "Длительность цикла обхода лент",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})
	PipelineURLs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_urls_total",
		Help: "Обработанные ссылки по итогу",
	}, []string{"outcome"})
	FeedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_errors_total",
		Help: "Ошибки чтения лент",
	}, []string{"feed"})
	ModerationResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_results_total",
		Help: "Результаты проверки безопасности",
	}, []string{"result"})
	GenerationParseSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_parse_step_total",
		Help: "Ступень разбора, на которой ответ модели стал JSON",
	}, []string{"step"})
	MaterialsUploaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "materials_uploaded_total",
		Help: "Сохранённые материалы",
	}, []string{"featured"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 120, 300, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PipelineCycles,
		PipelineCycleSeconds,
		PipelineURLs,
		FeedErrors,
		ModerationResults,
		GenerationParseSteps,
		MaterialsUploaded,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveURL учитывает итог обработки одной ссылки.
func ObserveURL(outcome string) {
	PipelineURLs.WithLabelValues(outcome).Inc()
}

// ObserveModeration учитывает ответ классификатора.
func ObserveModeration(safe bool) {
	result := "unsafe"
	if safe {
		result = "safe"
	}
	ModerationResults.WithLabelValues(result).Inc()
}

// ObserveParseStep учитывает ступень разбора ответа модели.
func ObserveParseStep(step string) {
	GenerationParseSteps.WithLabelValues(step).Inc()
}

// ObserveUpload учитывает сохранённый материал.
func ObserveUpload(featured bool) {
	MaterialsUploaded.WithLabelValues(strconv.FormatBool(featured)).Inc()
}
