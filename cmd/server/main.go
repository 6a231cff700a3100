package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LaveshwarPS/canvascode/internal/api"
	"github.com/LaveshwarPS/canvascode/internal/room"
	"github.com/LaveshwarPS/canvascode/internal/ws"
)

func main() {
	port := getEnv("PORT", "8080")

	grace := room.DefaultGrace
	if v := os.Getenv("CANVASCODE_ROOM_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid CANVASCODE_ROOM_GRACE %q: %v", v, err)
		}
		grace = d
	}

	registry := room.NewRegistry(grace)
	router := ws.NewRouter(registry)
	apiHandler := api.New(registry, router)

	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", apiHandler.Health)
	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWS(router, c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	apiHandler.RegisterRoutes(apiGroup)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		os.Exit(0)
	}()

	log.Printf("🎨 canvascode server starting on :%s", port)
	log.Printf("⏳ Empty-room grace period: %v", grace)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET /api/rooms")
	log.Println("  - Room:      GET /api/rooms/{id}")

	if err := r.Run(":" + port); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
