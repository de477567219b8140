package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squat_job_processing_duration_seconds",
		Help:    "Duration of the analysis job pipeline",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_analyses_total",
		Help: "Total number of video analyses, by outcome",
	}, []string{"outcome"})

	FramesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_frames_analyzed_total",
		Help: "Total number of frames analyzed, by pose detection result",
	}, []string{"pose"})

	FeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_feedback_total",
		Help: "Total number of frames classified, by feedback category",
	}, []string{"category"})

	FrameStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squat_frame_stage_duration_seconds",
		Help:    "Per-frame duration of each pipeline stage",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"stage"})

	ActiveAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squat_active_analyses",
		Help: "Number of analyses currently running",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_queue_deliveries_total",
		Help: "Analysis requests taken off the queue by outcome",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squat_http_requests_total",
		Help: "Total number of HTTP requests, by route and status code",
	}, []string{"route", "code"})
)
