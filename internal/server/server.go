package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/config"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/internal/middleware"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"github.com/vargamihaly/bottlebuddy/pkg/ratelimiter"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
	"gorm.io/gorm"

	activityHttp "github.com/vargamihaly/bottlebuddy/internal/modules/activity/delivery/http"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	activityService "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"

	listingHttp "github.com/vargamihaly/bottlebuddy/internal/modules/listing/delivery/http"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	listingService "github.com/vargamihaly/bottlebuddy/internal/modules/listing/service"

	messageHttp "github.com/vargamihaly/bottlebuddy/internal/modules/message/delivery/http"
	messageRepo "github.com/vargamihaly/bottlebuddy/internal/modules/message/repository"
	messageService "github.com/vargamihaly/bottlebuddy/internal/modules/message/service"

	pickupHttp "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/delivery/http"
	pickupRepo "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/repository"
	pickupService "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/service"

	profileHttp "github.com/vargamihaly/bottlebuddy/internal/modules/profile/delivery/http"
	profileService "github.com/vargamihaly/bottlebuddy/internal/modules/profile/service"

	pushHttp "github.com/vargamihaly/bottlebuddy/internal/modules/push/delivery/http"
	pushRepo "github.com/vargamihaly/bottlebuddy/internal/modules/push/repository"
	pushService "github.com/vargamihaly/bottlebuddy/internal/modules/push/service"

	ratingHttp "github.com/vargamihaly/bottlebuddy/internal/modules/rating/delivery/http"
	ratingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/rating/repository"
	ratingService "github.com/vargamihaly/bottlebuddy/internal/modules/rating/service"

	searchService "github.com/vargamihaly/bottlebuddy/internal/modules/search/service"

	transactionHttp "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/delivery/http"
	transactionRepo "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/repository"
	transactionService "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/service"

	userHttp "github.com/vargamihaly/bottlebuddy/internal/modules/user/delivery/http"
	userRepo "github.com/vargamihaly/bottlebuddy/internal/modules/user/repository"
	userService "github.com/vargamihaly/bottlebuddy/internal/modules/user/service"
)

type Server struct {
	engine   *gin.Engine
	listings listingService.Service
}

// NewServer wires every module and registers the post-commit subscribers on
// dispatcher. Call dispatcher.Start afterwards.
func NewServer(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	imageStorage storage.ImageStorage,
	dispatcher *events.Dispatcher,
) *Server {
	tx := database.NewTransactor(db)
	limiter := ratelimiter.New(redisClient)
	meiliSvc := searchService.NewMeiliSearchService(cfg.MeiliSearchHost, cfg.MeiliMasterKey)

	usersRepo := userRepo.NewRepository(db)
	authSvc := userService.NewAuthService(usersRepo, cfg.JWTSecret, cfg.JWTTTL)
	authHandler := userHttp.NewAuthHandler(authSvc)

	profileSvc := profileService.NewProfileService(usersRepo, imageStorage, cfg.UploadFolder)
	profileHandler := profileHttp.NewProfileHandler(profileSvc)

	activitiesRepo := activityRepo.NewRepository(db)
	activitySvc := activityService.NewService(activitiesRepo)
	activityHandler := activityHttp.NewActivityHandler(activitySvc, redisClient, checkOrigin(cfg.AllowedOrigins))

	listingsRepo := listingRepo.NewRepository(db)
	requestsRepo := pickupRepo.NewRepository(db)
	listingSvc := listingService.NewService(listingsRepo, requestsRepo, activitySvc, tx, dispatcher, meiliSvc)
	listingHandler := listingHttp.NewListingHandler(listingSvc)

	transactionsRepo := transactionRepo.NewRepository(db)
	transactionSvc := transactionService.NewService(transactionsRepo)
	transactionHandler := transactionHttp.NewTransactionHandler(transactionSvc)

	pickupSvc := pickupService.NewService(
		requestsRepo, listingsRepo, listingSvc, transactionSvc, activitySvc, tx, dispatcher, limiter,
		pickupService.Config{RateLimitWindow: cfg.RateLimitPickupRequest},
	)
	pickupHandler := pickupHttp.NewPickupHandler(pickupSvc)

	ratingSvc := ratingService.NewService(
		ratingRepo.NewRepository(db), transactionsRepo, usersRepo, activitySvc, tx, dispatcher, cfg.RatingUpdateRetries,
	)
	ratingHandler := ratingHttp.NewRatingHandler(ratingSvc)

	messageSvc := messageService.NewService(
		messageRepo.NewRepository(db), pickupSvc, messageService.NewRedisNotifier(redisClient), imageStorage, limiter,
		messageService.Config{UploadFolder: cfg.UploadFolder, RateLimitWindow: cfg.RateLimitMessage},
	)
	messageHandler := messageHttp.NewMessageHandler(messageSvc, redisClient, checkOrigin(cfg.AllowedOrigins))

	tokensRepo := pushRepo.NewRepository(db)
	pushHandler := pushHttp.NewPushHandler(pushService.NewService(tokensRepo))

	dispatcher.Subscribe(events.KindActivity, "activity_realtime", activityService.RealtimeHandler(redisClient))
	dispatcher.Subscribe(events.KindListingChanged, "search_index", searchService.ListingHandler(meiliSvc))
	dispatcher.Subscribe(events.KindListingDeleted, "search_index", searchService.ListingHandler(meiliSvc))
	dispatcher.Subscribe(events.KindActivity, "apns", pushService.Handler(tokensRepo, newPushSender(cfg)))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	api := router.Group("/api")

	// Public routes (no auth required)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Profile routes
		protected.GET("/profile/me", profileHandler.GetCurrentProfile)
		protected.GET("/profile/:username", profileHandler.GetProfileByUsername)
		protected.PUT("/profile", profileHandler.UpdateProfile)

		// Listing routes
		protected.POST("/listings", listingHandler.CreateListing)
		protected.GET("/listings", listingHandler.ListListings)
		protected.GET("/listings/me", listingHandler.ListMyListings)
		protected.GET("/listings/search", listingHandler.SearchListings)
		protected.GET("/listings/:id", listingHandler.GetListing)
		protected.PATCH("/listings/:id", listingHandler.UpdateListing)
		protected.POST("/listings/:id/cancel", listingHandler.CancelListing)
		protected.DELETE("/listings/:id", listingHandler.DeleteListing)
		protected.POST("/listings/:id/pickup-requests", pickupHandler.CreatePickupRequest)
		protected.GET("/listings/:id/pickup-requests", pickupHandler.ListByListing)

		// Pickup request routes
		protected.GET("/pickup-requests/mine", pickupHandler.ListMine)
		protected.GET("/pickup-requests/:id", pickupHandler.GetRequest)
		protected.POST("/pickup-requests/:id/accept", pickupHandler.AcceptRequest)
		protected.POST("/pickup-requests/:id/reject", pickupHandler.RejectRequest)
		protected.POST("/pickup-requests/:id/cancel", pickupHandler.CancelRequest)
		protected.POST("/pickup-requests/:id/complete", pickupHandler.CompleteRequest)

		// Conversation routes
		protected.GET("/pickup-requests/:id/messages", messageHandler.ListMessages)
		protected.POST("/pickup-requests/:id/messages", messageHandler.SendMessage)
		protected.POST("/pickup-requests/:id/messages/read", messageHandler.MarkConversationRead)
		protected.GET("/pickup-requests/:id/messages/unread-count", messageHandler.UnreadCount)
		protected.POST("/pickup-requests/:id/typing", messageHandler.Typing)
		protected.GET("/pickup-requests/:id/ws", messageHandler.HandleWebSocket)

		// Transaction and rating routes
		protected.GET("/transactions", transactionHandler.ListMyTransactions)
		protected.GET("/transactions/:id", transactionHandler.GetTransaction)
		protected.POST("/transactions/:id/ratings", ratingHandler.CreateRating)
		protected.GET("/users/:id/ratings", ratingHandler.ListRatingsForUser)

		// Activity routes
		protected.GET("/activities", activityHandler.GetActivities)
		protected.GET("/activities/unread-count", activityHandler.UnreadCount)
		protected.PUT("/activities/:id/read", activityHandler.MarkAsRead)
		protected.PUT("/activities/read-all", activityHandler.MarkAllAsRead)
		protected.GET("/activities/ws", activityHandler.HandleWebSocket)

		// Device routes
		protected.POST("/devices", pushHandler.RegisterDeviceToken)
		protected.DELETE("/devices/:token", pushHandler.UnregisterDeviceToken)
	}

	return &Server{
		engine:   router,
		listings: listingSvc,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Listings exposes the listing service to background jobs.
func (s *Server) Listings() listingService.Service {
	return s.listings
}

func newPushSender(cfg *config.Config) pushService.Sender {
	apnsCfg := pushService.APNSConfig{
		KeyPath:    cfg.APNSKeyPath,
		KeyID:      cfg.APNSKeyID,
		TeamID:     cfg.APNSTeamID,
		Topic:      cfg.APNSTopic,
		Production: cfg.APNSProduction,
	}
	if !apnsCfg.Enabled() {
		log.Warn().Msg("APNs is not configured, push notifications are disabled")
		return nil
	}

	sender, err := pushService.NewAPNSSender(apnsCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize APNs, push notifications are disabled")
		return nil
	}
	return sender
}

func splitOrigins(allowedOrigins string) []string {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

// checkOrigin accepts websocket upgrades from the CORS origins and from
// native clients, which send no Origin header.
func checkOrigin(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]struct{})
	for _, o := range splitOrigins(allowedOrigins) {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(allowedOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
