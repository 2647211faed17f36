package middleware

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route labels for requests that matched no registered route. Raw paths of 404s
// would otherwise grow the series set without bound.
const (
	routeUnmatched = "unmatched"
	areaOther      = "other"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labels",
			Name:      "http_requests_total",
			Help:      "HTTP requests by functional area, route template and status",
		},
		[]string{"area", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labels",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"area", "method", "route"},
	)

	// Rendered label images are the largest responses the service produces
	labelImageBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labels",
			Name:      "label_image_bytes",
			Help:      "Size of rendered label images",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		},
		[]string{"symbology"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labels",
			Name:      "http_inflight_requests",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)

// Metrics records request counts and latencies labelled by the matched route template,
// so lot and receipt numbers never become label values.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		route := routeUnmatched
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		area := RouteArea(route)
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		httpRequestsTotal.WithLabelValues(area, c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(area, c.Method(), route).Observe(time.Since(start).Seconds())

		if err == nil && status == fiber.StatusOK && strings.HasSuffix(route, "/label.png") {
			labelImageBytes.WithLabelValues(symbologyLabel(c.Query("symbology"))).Observe(float64(len(c.Response().Body())))
		}
		return err
	}
}

// RouteArea groups a route template into the functional area it serves. Label routes
// under /lots/:lot_number/ are split out from plain lot reads.
func RouteArea(route string) string {
	if route == routeUnmatched {
		return areaOther
	}
	trimmed := strings.TrimPrefix(route, "/api/v1")
	segments := strings.Split(strings.Trim(trimmed, "/"), "/")
	switch segments[0] {
	case "lots":
		if len(segments) > 2 && segments[1] == ":lot_number" {
			switch {
			case strings.HasPrefix(segments[2], "label"):
				return "labels"
			case segments[2] == "verify-pick":
				return "picking"
			case segments[2] == "print":
				return "printing"
			}
		}
		return "lots"
	case "gtin", "products":
		return "gtin"
	case "receipts", "sequences", "admin":
		return segments[0]
	case "health", "metrics":
		return "system"
	}
	return areaOther
}

// symbologyLabel maps the query value onto a fixed label set. The query string lives in
// the request buffer and must not be retained as a label value.
func symbologyLabel(q string) string {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "", "gs1-128":
		return "gs1-128"
	case "qr":
		return "qr"
	case "datamatrix":
		return "datamatrix"
	}
	return areaOther
}
