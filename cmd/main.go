package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"

	"decormart/messaging-service/internal/auth"
	"decormart/messaging-service/internal/gateway"
	"decormart/messaging-service/internal/httpapi"
	"decormart/messaging-service/internal/notify"
	"decormart/messaging-service/internal/presence"
	"decormart/messaging-service/internal/repository"
	"decormart/messaging-service/internal/service"

	"github.com/sirupsen/logrus"
)

func main() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Failed to read config file: %v", err)
	}

	logger := logrus.New()
	logLevel := viper.GetString("logging.level")
	logFormat := viper.GetString("logging.format")

	switch logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	dbHost := viper.GetString("database.host")
	dbPort := viper.GetInt("database.port")
	dbUser := viper.GetString("database.user")
	dbPassword := viper.GetString("database.password")
	dbName := viper.GetString("database.dbname")
	sslmode := viper.GetString("database.sslmode")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 5432
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "decormart"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	logger.Info("Connected to PostgreSQL database")

	repo := repository.NewConversationRepository(db)
	if err := repo.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize database tables: %v", err)
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}
	sessions := auth.NewSessions(jwtSecret, viper.GetDuration("auth.token_ttl"))

	var notifier notify.Notifier = notify.Noop{}
	if natsURL := viper.GetString("nats.url"); natsURL != "" {
		subject := viper.GetString("nats.subject")
		if subject == "" {
			subject = "notifications.messages"
		}
		natsNotifier, err := notify.NewNATSNotifier(natsURL, subject, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
		logger.WithField("subject", subject).Info("Notification publishing enabled")
	}

	registry := presence.NewRegistry()
	router := service.NewEventRouter(repo, registry, notifier, logger)
	messaging := service.NewMessaging(repo, registry, notifier, logger)

	gatewayCfg := gateway.Config{
		SendBuffer:   viper.GetInt("gateway.send_buffer"),
		ReadLimit:    viper.GetInt64("gateway.read_limit"),
		WriteTimeout: viper.GetDuration("gateway.write_timeout"),
		PongTimeout:  viper.GetDuration("gateway.pong_timeout"),
	}
	gw := gateway.NewGateway(sessions, registry, router, gatewayCfg, logger)

	apiServer := httpapi.NewServer(messaging, sessions, gw, repo, logger)

	port := viper.GetString("server.port")
	if port == "" {
		port = "8085"
	}
	host := viper.GetString("server.host")
	if host == "" {
		host = "0.0.0.0"
	}

	address := net.JoinHostPort(host, port)
	srv := &http.Server{
		Addr:    address,
		Handler: apiServer.Routes(),
	}

	go func() {
		logger.Infof("Starting messaging server on %s", address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownTimeout := viper.GetDuration("server.shutdown_timeout")
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Infof("Server shutdown timeout: %v", err)
	} else {
		logger.Info("Server exited gracefully")
	}
}
