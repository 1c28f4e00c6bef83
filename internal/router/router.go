package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saffron-pos/api/internal/auth"
	"github.com/saffron-pos/api/internal/config"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/handler"
	"github.com/saffron-pos/api/internal/logger"
	mw "github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/saffron-pos/api/internal/register"
	"github.com/saffron-pos/api/internal/service"
	"github.com/saffron-pos/api/internal/ws"
	"go.uber.org/zap"
)

// Deps are the long-lived collaborators shared by every handler.
type Deps struct {
	Queries   *database.Queries
	Pool      *pgxpool.Pool
	Hub       *ws.Hub
	Publisher events.Publisher
	Registers register.Store
	Sessions  auth.SessionStore
	Log       *zap.Logger
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, restaurant scoping, and role-based middleware as needed.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.IdempotencyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	pub := d.Publisher
	if pub == nil {
		pub = d.Hub
	}

	resolver := promo.NewResolver(promo.DefaultPromos)

	orderService := service.NewOrderService(d.Pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, cfg.TaxRate, resolver, pub)
	settlementService := service.NewSettlementService(d.Pool, func(db database.DBTX) service.SettlementStore {
		return database.New(db)
	}, orderService, pub)
	deliveryService := service.NewDeliveryService(d.Pool, func(db database.DBTX) service.DeliveryStore {
		return database.New(db)
	}, pub)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	authHandler := handler.NewAuthHandler(d.Queries, d.Sessions, cfg.JWTSecret, d.Log)
	authHandler.RegisterRoutes(r)

	// Customer ordering page (no staff login)
	publicHandler := handler.NewPublicHandler(d.Queries, orderService, d.Log)
	r.Route("/public/restaurants/{rid}", publicHandler.RegisterRoutes)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/restaurants/{rid}/changes", ws.NewHandler(d.Hub, cfg.JWTSecret, d.Sessions, d.Log).ServeHTTP)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret, d.Sessions))

		authHandler.RegisterSessionRoutes(r)

		r.Route("/restaurants/{rid}", func(r chi.Router) {
			r.Use(mw.RequireRestaurant)

			menuHandler := handler.NewMenuItemHandler(d.Queries, pub, d.Log)
			tableHandler := handler.NewTableHandler(d.Queries, pub, cfg.OrderingBaseURL, d.Log)
			riderHandler := handler.NewRiderHandler(d.Queries, pub, d.Log)
			orderHandler := handler.NewOrderHandler(orderService, settlementService, d.Queries, d.Log)
			paymentHandler := handler.NewPaymentHandler(settlementService, d.Queries, d.Log)
			deliveryHandler := handler.NewDeliveryHandler(deliveryService, d.Queries, cfg.LateThreshold, d.Log)
			promoHandler := handler.NewPromoHandler(resolver, d.Log)
			registerHandler := handler.NewRegisterHandler(d.Registers, d.Queries, resolver, cfg.TaxRate,
				orderService, settlementService, d.Log)

			manage := mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager)

			r.Route("/menu-items", func(r chi.Router) {
				menuHandler.RegisterRoutes(r)
				r.With(manage).Group(menuHandler.RegisterManageRoutes)
			})
			r.Route("/tables", func(r chi.Router) {
				tableHandler.RegisterRoutes(r)
				r.With(manage).Group(tableHandler.RegisterManageRoutes)
			})
			r.Route("/riders", func(r chi.Router) {
				riderHandler.RegisterRoutes(r)
				r.With(manage).Group(riderHandler.RegisterManageRoutes)
			})
			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)
				// Payments and splits hang off /orders/{id}
				paymentHandler.RegisterRoutes(r)
			})
			r.Route("/deliveries", deliveryHandler.RegisterRoutes)
			r.Route("/promos", promoHandler.RegisterRoutes)
			r.Route("/register", registerHandler.RegisterRoutes)

			// Owner and manager only
			r.Group(func(r chi.Router) {
				r.Use(manage)

				staffHandler := handler.NewStaffHandler(d.Queries, d.Log)
				r.Route("/staff", staffHandler.RegisterRoutes)

				reportsHandler := handler.NewReportsHandler(d.Queries, d.Log)
				r.Route("/reports", reportsHandler.RegisterRoutes)
			})
		})
	})

	d.Log.Info("router initialized")
	return r
}
