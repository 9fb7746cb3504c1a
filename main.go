package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"engagement-api/handlers"
	"engagement-api/models"
	"engagement-api/services"
	"engagement-api/utils"
	"engagement-api/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 6 * 1024 * 1024, // avatar uploads cap at 5MB
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type",
		AllowCredentials: true, // the session rides on a cookie
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Mission{},
		&models.UserMission{},
		&models.Referral{},
		&models.Bonus{},
		&models.Session{},
		&models.AppMeta{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	events := services.NewEventPublisher()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyticsWorker := workers.NewAnalyticsWorker(events)
	analyticsWorker.Start(ctx)

	authCore := services.NewAuthCoreClient(
		os.Getenv("AUTHCORE_API_URL"),
		os.Getenv("AUTHCORE_SERVICE_TOKEN"),
	)
	magic := services.NewMagicClient(
		os.Getenv("MAGIC_API_URL"),
		os.Getenv("MAGIC_SECRET_KEY"),
	)
	verifier := services.NewWalletServiceVerifier(os.Getenv("WALLET_SERVICE_URL"))
	mailer := services.NewMailer()

	missionService := services.NewMissionService(db, events)
	userService := services.NewUserService(db, events, mailer, authCore, magic, verifier)

	userService.StartSessionCleanup()

	handlers.SetupMissionRoutes(app, missionService)
	handlers.SetupUserRoutes(app, userService)
	handlers.SetupAppRoutes(app, userService)

	go func() {
		if err := app.Listen(":5200"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5200")
	log.Println("✅ Analytics Worker running")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := events.Close(); err != nil {
		log.Printf("event queue close: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
