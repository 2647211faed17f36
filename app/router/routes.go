// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/handlers"
	"github.com/covxx/pelattahub-sub002/app/middleware"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown() error
	GetApp() *fiber.App
}

// Handlers groups the endpoint handlers mounted by the router
type Handlers struct {
	GTIN    handlers.GTINHandlerInterface
	Lot     handlers.LotHandlerInterface
	Receipt handlers.ReceiptHandlerInterface
	Admin   handlers.AdminHandlerInterface
}

// Options carries the server settings the router needs from configuration
type Options struct {
	AppName      string
	Version      string
	Environment  string
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	TrustedProxies    []string
	ProxyHeader       string
	EnableCompression bool
	EnableAccessLog   bool

	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	CORSMaxAge       int

	RateLimit      int
	AdminRateLimit int
	RateWindow     time.Duration

	ContentSecurityPolicy string
	XFrameOptions         string
	ReferrerPolicy        string
	HSTSMaxAge            int

	MetricsEnabled bool
	MetricsPath    string
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	handlers Handlers
	auth     *middleware.AuthMiddleware
	options  Options
	logger   logrus.FieldLogger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(h Handlers, auth *middleware.AuthMiddleware, options Options, log logrus.FieldLogger) Router {
	if log == nil {
		log = utils.NewDiscardLogger()
	}
	if options.BodyLimit <= 0 {
		options.BodyLimit = 16 * 1024 * 1024
	}
	if options.RateWindow <= 0 {
		options.RateWindow = time.Minute
	}
	if options.MetricsPath == "" {
		options.MetricsPath = "/metrics"
	}
	if options.CORSMaxAge <= 0 {
		options.CORSMaxAge = utils.CORSMaxAge
	}

	r := &FiberRouter{
		handlers: h,
		auth:     auth,
		options:  options,
		logger:   log,
	}
	r.app = fiber.New(fiber.Config{
		AppName:      options.AppName,
		ServerHeader: options.AppName,
		ErrorHandler: r.errorHandler,
		Immutable:    true,
		BodyLimit:    options.BodyLimit,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
		IdleTimeout:  options.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ProxyHeader:  options.ProxyHeader,
		TrustProxy:   len(options.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: options.TrustedProxies,
		},
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.options.MetricsEnabled {
		r.app.Get(r.options.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	if r.options.RateLimit > 0 {
		api.Use(r.rateLimiter(r.options.RateLimit))
	}

	operator := r.auth.Authenticate()
	admin := r.auth.RequireAdmin()

	gtin := api.Group("/gtin", operator)
	gtin.Post("/validate", r.handlers.GTIN.Validate)
	gtin.Post("/preview", r.handlers.GTIN.Preview)

	products := api.Group("/products", operator)
	products.Post("/:id/gtin", r.handlers.GTIN.AssignToProduct)

	lots := api.Group("/lots", operator)
	lots.Post("/", r.handlers.Lot.Receive)
	lots.Get("/export", r.handlers.Lot.Export)
	lots.Get("/:lot_number", r.handlers.Lot.Get)
	lots.Get("/:lot_number/label", r.handlers.Lot.Label)
	lots.Get("/:lot_number/label.png", r.handlers.Lot.LabelPNG)
	lots.Post("/:lot_number/verify-pick", r.handlers.Lot.VerifyPick)
	lots.Post("/:lot_number/print", r.handlers.Lot.Print)

	receipts := api.Group("/receipts", operator)
	receipts.Post("/", r.handlers.Receipt.Create)
	receipts.Get("/:number", r.handlers.Receipt.Get)

	sequences := api.Group("/sequences", admin)
	sequences.Get("/:key", r.handlers.Admin.PeekSequence)
	sequences.Post("/:key/next", r.handlers.Admin.NextSequence)

	adminGroup := api.Group("/admin", admin)
	if r.options.AdminRateLimit > 0 {
		adminGroup.Use(r.rateLimiter(r.options.AdminRateLimit))
	}
	adminGroup.Get("/settings/company-prefix", r.handlers.Admin.GetCompanyPrefix)
	adminGroup.Put("/settings/company-prefix", r.handlers.Admin.SetCompanyPrefix)
	adminGroup.Post("/gtin/repair", r.handlers.GTIN.RepairAll)
	adminGroup.Post("/gtin/import", r.handlers.GTIN.Import)

	r.app.Use(r.notFoundHandler)

	r.logger.WithField("metrics", r.options.MetricsEnabled).Info("routes configured")
}

func (r *FiberRouter) rateLimiter(limit int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: r.options.RateWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	})
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.WithFields(logrus.Fields{
				"request_id": requestid.FromContext(c),
				"path":       c.Path(),
				"method":     c.Method(),
				"ip":         c.IP(),
				"panic":      e,
			}).Error("panic while serving request")
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             r.options.XFrameOptions,
		HSTSMaxAge:                r.options.HSTSMaxAge,
		ContentSecurityPolicy:     r.options.ContentSecurityPolicy,
		ReferrerPolicy:            r.options.ReferrerPolicy,
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	if len(r.options.AllowOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins:     r.options.AllowOrigins,
			AllowMethods:     r.options.AllowMethods,
			AllowHeaders:     r.options.AllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: r.options.AllowCredentials,
			MaxAge:           r.options.CORSMaxAge,
		}))
	}

	if r.options.EnableCompression {
		// Rendered symbols and workbooks are already compressed
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				return strings.HasSuffix(c.Path(), ".png") || strings.HasSuffix(c.Path(), "/export")
			},
		}))
	}

	if !r.options.EnableAccessLog {
		return
	}
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath || c.Path() == r.options.MetricsPath
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.WithField("address", address).Info("starting HTTP server")
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown() error {
	return r.app.Shutdown()
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":      "ok",
			"timestamp":   utils.UTCNow().Unix(),
			"version":     r.options.Version,
			"environment": r.options.Environment,
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	if code >= fiber.StatusInternalServerError {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"status":     code,
			"path":       c.Path(),
			"request_id": requestid.FromContext(c),
		}).Error("unhandled request error")
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}
