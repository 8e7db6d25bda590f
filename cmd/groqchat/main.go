package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lfarias/groqchat/internal/api"
	"github.com/lfarias/groqchat/internal/chat"
	"github.com/lfarias/groqchat/internal/config"
	"github.com/lfarias/groqchat/internal/groq"
	"github.com/lfarias/groqchat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var st store.Store
	switch cfg.StorageBackend {
	case "bolt":
		log.Println("groqchat: using bolt storage")
		st, err = store.NewBoltStore(cfg.DataDir + "/groqchat.bolt")
	default:
		log.Println("groqchat: using sqlite storage")
		st, err = store.NewSQLiteStore(cfg.DataDir + "/groqchat.db")
	}
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	completer := groq.NewClient(cfg.GroqAPIKey, cfg.GroqChatURL, cfg.GroqTimeout)
	svc := chat.NewService(st, completer, groq.DefaultModel)

	// Periodic cleanup of stale per-session locks to prevent memory leaks
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			svc.CleanupLocks(1 * time.Hour)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(svc),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("groqchat: listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("groqchat: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("groqchat: stopped")
}
