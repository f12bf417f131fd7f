package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/open-alumni/portal-api/api/swagger"
	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/internal/handler"
	"github.com/open-alumni/portal-api/internal/middleware"
	"github.com/open-alumni/portal-api/internal/models"
	"github.com/open-alumni/portal-api/internal/repository"
	"github.com/open-alumni/portal-api/internal/service"
	"github.com/open-alumni/portal-api/pkg/cache"
	"github.com/open-alumni/portal-api/pkg/config"
	"github.com/open-alumni/portal-api/pkg/database"
	"github.com/open-alumni/portal-api/pkg/logger"
	corsmiddleware "github.com/open-alumni/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/open-alumni/portal-api/pkg/middleware/requestid"
	"github.com/open-alumni/portal-api/pkg/storage"
)

// @title Alumni Portal API
// @version 1.0.0
// @description Member lifecycle, bookings and paid request workflows for the alumni association
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	documentStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
	}
	urlSigner := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	eventRepo := repository.NewEventRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// External gateways.
	registryGateway := gateway.NewHTTPRegistryGateway(cfg.Registry, logr)
	mailer := gateway.NewHTTPMailer(cfg.Mailer, logr)
	paymentGateway := gateway.NewHTTPPaymentGateway(cfg.Payments, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc := service.NewNotificationService(mailer, cfg.Notify, logr)
	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, memberRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "alumni-portal",
	})
	onboardingSvc := service.NewOnboardingService(memberRepo, registryGateway, userRepo, notificationSvc, cfg.Onboarding.PasswordLength, validate, logr)
	memberSvc := service.NewMemberService(memberRepo, userRepo, validate, logr)

	eventSvc := service.NewEventService(eventRepo, memberRepo, nil, cfg.Availability.CacheTTL, notificationSvc, validate, logr)
	advisingSvc := service.NewAdvisingService(slotRepo, memberRepo, nil, cfg.Availability.CacheTTL, notificationSvc, validate, logr)
	if cfg.Availability.CacheEnabled {
		eventSvc = service.NewEventService(eventRepo, memberRepo, cacheRepo, cfg.Availability.CacheTTL, notificationSvc, validate, logr)
		advisingSvc = service.NewAdvisingService(slotRepo, memberRepo, cacheRepo, cfg.Availability.CacheTTL, notificationSvc, validate, logr)
	}

	membershipSvc := service.NewMembershipService(membershipRepo, memberRepo, historyRepo, paymentRepo, paymentGateway, cfg.Payments.Currency, validate, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, memberRepo, historyRepo, paymentRepo, paymentGateway, documentStore, urlSigner, cfg.Payments.Currency, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, membershipRepo, certificateRepo, memberRepo, historyRepo, cfg.Payments.PendingTTL, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	onboardingHandler := handler.NewOnboardingHandler(onboardingSvc)
	memberHandler := handler.NewMemberHandler(memberSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	advisingHandler := handler.NewAdvisingHandler(advisingSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authHandler, onboardingHandler, memberHandler, eventHandler,
		advisingHandler, membershipHandler, certificateHandler, paymentHandler, authSvc, userRepo)

	// Fail out gateway charges that never got a callback.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Payments.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		paymentSvc.SweepStale(ctx)
	}); err != nil {
		logr.Sugar().Fatalw("invalid sweep schedule", "schedule", cfg.Payments.SweepSchedule, "error", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	onboardingHandler *handler.OnboardingHandler,
	memberHandler *handler.MemberHandler,
	eventHandler *handler.EventHandler,
	advisingHandler *handler.AdvisingHandler,
	membershipHandler *handler.MembershipHandler,
	certificateHandler *handler.CertificateHandler,
	paymentHandler *handler.PaymentHandler,
	authSvc *service.AuthService,
	userRepo *repository.UserRepository,
) {
	adminRole := string(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/payments/callback", paymentHandler.Callback)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	admin := authed.Group("")
	admin.Use(middleware.RBAC(adminRole))

	// Registry onboarding is an operator workflow.
	onboarding := admin.Group("/onboarding")
	onboarding.POST("/import", middleware.Audit(userRepo, "ONBOARDING_IMPORT", "member"), onboardingHandler.Import)
	onboarding.GET("/graduates", onboardingHandler.SearchGraduates)
	onboarding.GET("/calendar", onboardingHandler.Calendar)

	// Caller-scoped views live under /me so they never collide with the
	// :id routes below.
	me := authed.Group("/me")
	me.GET("", memberHandler.Me)
	me.GET("/registrations", eventHandler.MyRegistrations)
	me.GET("/sessions", advisingHandler.MySessions)
	me.GET("/subscriptions", advisingHandler.MySubscriptions)
	me.GET("/applications", membershipHandler.MyApplications)
	me.GET("/certificate-requests", certificateHandler.MyRequests)

	// Member records: admins see everything, members see themselves.
	admin.GET("/members", memberHandler.List)
	admin.GET("/reports/members", memberHandler.Export)

	selfOrAdmin := authed.Group("/members/:id")
	selfOrAdmin.Use(middleware.RBAC(adminRole, "SELF"))
	selfOrAdmin.GET("", memberHandler.Get)
	selfOrAdmin.PUT("", memberHandler.UpdateProfile)
	selfOrAdmin.POST("/emails", memberHandler.AddEmail)
	selfOrAdmin.PUT("/emails/:emailId/primary", memberHandler.SetPrimaryEmail)
	selfOrAdmin.DELETE("/emails/:emailId", memberHandler.RemoveEmail)
	selfOrAdmin.POST("/mobiles", memberHandler.AddMobile)
	selfOrAdmin.PUT("/mobiles/:mobileId/primary", memberHandler.SetPrimaryMobile)
	selfOrAdmin.DELETE("/mobiles/:mobileId", memberHandler.RemoveMobile)
	selfOrAdmin.POST("/phones", memberHandler.AddPhone)
	selfOrAdmin.POST("/educations", memberHandler.AddEducation)
	selfOrAdmin.POST("/experiences", memberHandler.AddExperience)
	selfOrAdmin.DELETE("/experiences/:entryId", memberHandler.RemoveExperience)
	selfOrAdmin.GET("/wallet", memberHandler.WalletBalance)

	admin.POST("/members/:id/wallet/credit", middleware.Audit(userRepo, "WALLET_CREDIT", "member"), memberHandler.CreditWallet)
	admin.POST("/members/:id/approve", memberHandler.Approve)
	admin.POST("/members/:id/reject", memberHandler.Reject)
	admin.POST("/members/:id/ban", memberHandler.Ban)
	admin.PUT("/members/:id/notable", memberHandler.SetNotable)
	admin.DELETE("/members/:id", memberHandler.Delete)

	// Events.
	authed.GET("/events", eventHandler.List)
	authed.GET("/events/:id", eventHandler.Get)
	authed.GET("/events/:id/availability", eventHandler.Availability)
	authed.POST("/events/:id/register", eventHandler.Register)
	authed.DELETE("/events/:id/register", eventHandler.CancelRegistration)
	admin.POST("/events", eventHandler.Create)
	admin.GET("/events/:id/registrations", eventHandler.Registrations)
	admin.GET("/events/:id/registrations/export", eventHandler.ExportRegistrations)

	// Advising slots.
	authed.GET("/advising/slots", advisingHandler.ListSlots)
	authed.GET("/advising/slots/:id/availability", advisingHandler.SlotAvailability)
	authed.POST("/advising/slots/:id/book", advisingHandler.Book)
	authed.DELETE("/advising/slots/:id/book", advisingHandler.CancelSession)
	admin.POST("/advising/slots", advisingHandler.CreateSlot)

	// Career services timeslots.
	authed.GET("/career/timeslots", advisingHandler.ListTimeslots)
	authed.GET("/career/timeslots/:id/availability", advisingHandler.TimeslotAvailability)
	authed.POST("/career/timeslots/:id/subscribe", advisingHandler.Subscribe)
	authed.DELETE("/career/timeslots/:id/subscribe", advisingHandler.Unsubscribe)
	admin.POST("/career/timeslots", advisingHandler.CreateTimeslot)

	// Membership applications.
	authed.GET("/memberships/plans", membershipHandler.Plans)
	authed.POST("/memberships/applications", membershipHandler.Apply)
	authed.GET("/memberships/applications/:id", membershipHandler.Get)
	authed.POST("/memberships/applications/:id/cancel", membershipHandler.Cancel)
	admin.GET("/memberships/review-queue", membershipHandler.ReviewQueue)
	admin.POST("/memberships/applications/:id/approve", membershipHandler.Approve)
	admin.POST("/memberships/applications/:id/reject", membershipHandler.Reject)
	admin.POST("/memberships/applications/:id/fulfil", membershipHandler.Fulfil)

	// Certificate requests.
	authed.GET("/certificates/types", certificateHandler.Types)
	authed.POST("/certificates/requests", certificateHandler.Submit)
	authed.GET("/certificates/requests/:id", certificateHandler.Get)
	authed.POST("/certificates/requests/:id/cancel", certificateHandler.Cancel)
	authed.GET("/certificates/requests/:id/download", certificateHandler.Download)
	admin.GET("/certificates/review-queue", certificateHandler.ReviewQueue)
	admin.POST("/certificates/requests/:id/approve", certificateHandler.Approve)
	admin.POST("/certificates/requests/:id/reject", certificateHandler.Reject)
	admin.POST("/certificates/requests/:id/fulfil", certificateHandler.Fulfil)
}
