package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/dmdorta1111/AirTable-sub000/internal/application/services"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/internal/infrastructure/memstore"
	"github.com/dmdorta1111/AirTable-sub000/internal/infrastructure/sqlstore"
	"github.com/dmdorta1111/AirTable-sub000/internal/interfaces/middleware"
	"github.com/dmdorta1111/AirTable-sub000/internal/interfaces/rest"
)

func main() {
	// Load .env if present; real env vars win
	if err := godotenv.Load(); err == nil {
		log.Println("📦 Loaded configuration from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	// Pick the storage backend: MySQL when DATABASE_URL is set, otherwise
	// everything lives in memory.
	var catalog ports.FieldCatalog
	var store ports.RecordStore
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		sqlStore, err := sqlstore.Open(dsn)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer sqlStore.Close()
		if err := sqlStore.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		catalog, store = sqlStore, sqlStore
	} else {
		log.Println("💾 DATABASE_URL not set, using in-memory storage")
		mem := memstore.New()
		catalog, store = mem, mem
	}

	cfg := services.Config{
		Recompute: services.RecomputeOptions{
			MaxSteps:    envInt("EVAL_BUDGET", 0),
			EvalTimeout: time.Duration(envInt("EVAL_TIMEOUT_MS", 0)) * time.Millisecond,
			Workers:     envInt("RECOMPUTE_WORKERS", 0),
		},
		RefreshCron: os.Getenv("VOLATILE_REFRESH_CRON"),
	}
	svcMgr, err := services.NewServiceManager(catalog, store, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	log.Println("🔧 Service manager initialized")

	// Create Gin router
	router := gin.Default()
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Initialize handlers
	tableHandler := rest.NewTableHandler(catalog, svcMgr.Fields)
	recordHandler := rest.NewRecordHandler(svcMgr.Records)
	formulaHandler := rest.NewFormulaHandler(svcMgr.Fields)

	// API routes
	api := router.Group("/api")
	{
		api.GET("/fieldtypes", tableHandler.ListFieldTypes)

		tables := api.Group("/tables")
		{
			tables.GET("", tableHandler.ListTables)
			tables.POST("", tableHandler.CreateTable)
			tables.GET("/:tableId", tableHandler.GetTable)
			tables.POST("/:tableId/fields", tableHandler.CreateField)
			tables.PUT("/:tableId/fields/:fieldId", tableHandler.UpdateField)
			tables.DELETE("/:tableId/fields/:fieldId", tableHandler.DeleteField)

			tables.GET("/:tableId/records", recordHandler.ListRecords)
			tables.POST("/:tableId/records", recordHandler.CreateRecord)
			tables.GET("/:tableId/records/:recordId", recordHandler.GetRecord)
			tables.PATCH("/:tableId/records/:recordId", recordHandler.UpdateRecord)
		}

		formula := api.Group("/formula")
		{
			formula.POST("/validate", formulaHandler.ValidateFormula)
			formula.GET("/functions", formulaHandler.ListFunctions)
		}
	}

	// Start background workers
	svcMgr.Start()

	log.Printf("🚀 Server listening on http://localhost:%s", port)
	log.Printf("📐 Formula API:  http://localhost:%s/api/formula", port)
	log.Printf("📊 Tables API:   http://localhost:%s/api/tables", port)
	log.Printf("💚 Health check: http://localhost:%s/health", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
		log.Printf("⚠️ Ignoring invalid %s=%q", key, raw)
	}
	return fallback
}
