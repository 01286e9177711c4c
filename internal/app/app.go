package app

import (
	"context"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/controller"
	"exam_platform_backend/internal/i18n"
	"exam_platform_backend/internal/middleware"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/configwatcher"
	"exam_platform_backend/pkg/database"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/security"
	"exam_platform_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services        *services
	rateLimiter     *security.RateLimiter
	tracerProvider  *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	background      sync.WaitGroup
	cfgMu           sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	exam     *repository.ExamRepository
	progress *repository.ProgressRepository
	review   *repository.ReviewExamRepository
	fanout   *repository.FanoutJobRepository
}

type services struct {
	auth        *service.AuthService
	storage     *service.StorageService
	exam        *service.ExamService
	submission  *service.SubmissionService
	review      *service.ReviewExamService
	progression *service.ProgressionUnlocker
	student     *service.StudentService
	fanout      *service.FanoutWorker
	hub         *service.NotificationHub
}

type controllers struct {
	auth         *controller.AuthController
	exam         *controller.ExamController
	review       *controller.ReviewExamController
	student      *controller.StudentController
	upload       *controller.UploadController
	notification *controller.NotificationController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.cfgMu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		exam:     repository.NewExamRepository(db),
		progress: repository.NewProgressRepository(db),
		review:   repository.NewReviewExamRepository(db),
		fanout:   repository.NewFanoutJobRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.hub = service.NewNotificationHub(rdb)
	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.fanout = service.NewFanoutWorker(repos.fanout, repos.user, repos.exam, repos.progress, cfg.Fanout)
	s.review = service.NewReviewExamService(db, repos.review, cfg.Exam)
	s.progression = service.NewProgressionUnlocker(repos.exam, repos.progress)
	s.exam = service.NewExamService(db, repos.exam, repos.progress, s.fanout, s.hub)
	s.submission = service.NewSubmissionService(
		db,
		repos.exam,
		repos.progress,
		repos.user,
		repos.review,
		s.review,
		s.progression,
		s.hub,
		cfg.Exam,
	)
	s.student = service.NewStudentService(db, repos.user, repos.exam, repos.progress, repos.review, s.hub)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		exam:         controller.NewExamController(s.exam, s.submission),
		review:       controller.NewReviewExamController(s.review),
		student:      controller.NewStudentController(s.student),
		upload:       controller.NewUploadController(s.storage),
		notification: controller.NewNotificationController(s.hub),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.rateLimiter.Middleware())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
	router.Use(middleware.LocaleMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	a.background.Add(2)
	go func() {
		defer a.background.Done()
		s.hub.Run(a.ctx)
	}()
	go func() {
		defer a.background.Done()
		s.fanout.Run(a.ctx)
	}()
}

// newApp wires everything on top of an open database. Redis may be nil.
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		ctx:    ctx,
		cancel: cancel,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	app.rateLimiter = security.NewRateLimiter(ctx, cfg.RateLimit.MaxRequests, window)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(func(c *config.Config) {
		logger.SetLevel(c)
		logger.Log.Info("Log level applied", zap.String("level", logger.Level().String()))
	})
	app.RegisterConfigCallback(func(c *config.Config) {
		app.rateLimiter.Update(c.RateLimit.MaxRequests, time.Duration(c.RateLimit.WindowMinutes)*time.Minute)
	})

	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	gin.SetMode(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	if err := i18n.Init(cfg.I18n.DefaultLanguage); err != nil {
		logger.Log.Fatal("Failed to load translations", zap.Error(err))
	}
	if err := util.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	migrate := cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	monitoring.Init()

	app := newApp(cfg, db, rdb)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-platform", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	if err := app.services.auth.EnsureBootstrapTeacher(app.ctx); err != nil {
		logger.Log.Error("Failed to create bootstrap teacher", zap.Error(err))
	}

	app.startBackgroundTasks(app.services)

	go func() {
		if err := configwatcher.WatchConfig(app.ctx, "configs", app.applyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close()
	logger.Log.Info("Server exiting")
}

// Close stops the background workers and flushes tracing.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.background.Wait()

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
