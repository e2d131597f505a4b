package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"github.com/dukerupert/choregame/internal/config"
	"github.com/dukerupert/choregame/internal/database"
	"github.com/dukerupert/choregame/internal/email"
	"github.com/dukerupert/choregame/internal/game"
	"github.com/dukerupert/choregame/internal/logging"
	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/push"
	"github.com/dukerupert/choregame/internal/server"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gen-vapid" {
		if err := genVAPID(); err != nil {
			fmt.Fprintln(os.Stderr, "generate vapid keys:", err)
			os.Exit(1)
		}
		return
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mailer game.Mailer
	if cfg.EmailEnabled() {
		mailer = email.NewClient(cfg.PostmarkServerToken, cfg.PostmarkFromEmail, cfg.BaseURL)
	} else {
		logger.Warn("postmark not configured, email notifications disabled")
	}

	router := &push.Router{}
	if cfg.WebPushEnabled() {
		router.Web = push.NewWebPush(push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
		})
	}
	if cfg.FCMEnabled() {
		fcm, err := push.NewFCM(ctx, push.FCMConfig{
			CredentialsJSON: []byte(cfg.FCMCredentialsJSON),
			CredentialsFile: cfg.FCMCredentialsFile,
		})
		if err != nil {
			logger.Error("firebase messaging unavailable", "error", err)
		} else {
			router.Mobile = fcm
		}
	}
	var pusher push.Sender
	if router.Web != nil || router.Mobile != nil {
		pusher = router
	} else {
		logger.Warn("no push transport configured, device notifications disabled")
	}

	srv := server.New(db, server.Options{
		Mailer:         mailer,
		Pusher:         pusher,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		Game: game.Config{
			FanOutLimit:       cfg.FanOutConcurrency,
			BackgroundTimeout: cfg.BackgroundTimeout,
		},
		Metrics:        metrics.New(),
		MetricsUser:    cfg.MetricsUser,
		MetricsPass:    cfg.MetricsPass,
		WriteRateLimit: cfg.WriteRateLimit,
		WriteBurst:     cfg.WriteBurst,
	}, logger)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup(3 * time.Minute)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("choregame listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}

	// Let in-flight notification and ledger work finish before closing the db.
	srv.Game().Wait()
}

// genVAPID prints a fresh VAPID key pair in .env form.
func genVAPID() error {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("CHOREGAME_VAPID_PUBLIC_KEY=%s\nCHOREGAME_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}
