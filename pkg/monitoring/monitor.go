package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// outcome: passed, failed, rejected
	ExamSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Exam submissions by outcome",
		},
		[]string{"outcome"},
	)

	ReviewExamsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_exams_generated_total",
			Help: "Review exams built from wrong answers",
		},
	)

	ReviewAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_attempts_total",
			Help: "Graded review exam attempts",
		},
	)

	FanoutEntriesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_progress_entries_created_total",
			Help: "Progress entries created by new-exam fan-out jobs",
		},
	)

	FanoutJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_jobs_total",
			Help: "Finished fan-out jobs by result",
		},
		[]string{"result"},
	)

	NotificationsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacher_notifications_total",
			Help: "Teacher notifications by event and result",
		},
		[]string{"event", "result"},
	)

	TeacherSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "teacher_ws_sessions",
			Help: "Open teacher websocket sessions on this instance",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ExamSubmissions)
	prometheus.MustRegister(ReviewExamsGenerated)
	prometheus.MustRegister(ReviewAttempts)
	prometheus.MustRegister(FanoutEntriesCreated)
	prometheus.MustRegister(FanoutJobs)
	prometheus.MustRegister(NotificationsPublished)
	prometheus.MustRegister(TeacherSessions)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
