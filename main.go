package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"libris-backend/internal/catalog"
	"libris-backend/internal/lending"
	"libris-backend/internal/membership"
	"libris-backend/internal/platform/auth"
	"libris-backend/internal/platform/clockwork"
	"libris-backend/internal/platform/db"
	"libris-backend/internal/reservation"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	log.Printf("[INFO] mode:%s\n", cfg.Mode)
	if cfg.Mode != "dev" && cfg.Mode != "release" {
		log.Fatal("config: mode must be dev or release")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS is only needed while the frontend runs on its own port.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	clock := clockwork.Real{}
	authSvc := auth.NewService(auth.NewStore(conn), auth.JWTSecret())
	catalogSvc := catalog.NewService(catalog.NewStore(conn))
	memberSvc := membership.NewService(membership.NewStore(conn), clock)
	lendingSvc := lending.NewService(lending.NewStore(conn), clock,
		cfg.Lending.MaxActiveLoans, cfg.Lending.DefaultLoanDays)
	reservationSvc := reservation.NewService(reservation.NewStore(conn), clock,
		cfg.Reservations.DefaultDaysValid)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": cfg.Version})
	})

	api := r.Group("/api")
	api.Use(auth.Identify(authSvc))
	auth.RegisterRoutes(api, authSvc)
	catalog.RegisterRoutes(api, catalogSvc)
	membership.RegisterRoutes(api, memberSvc)
	lending.RegisterRoutes(api, lendingSvc)
	reservation.RegisterRoutes(api, reservationSvc)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
	log.Println("[INFO] server stopped")
}
