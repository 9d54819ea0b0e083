package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/cinema-booking-backend/internal/config"
    "github.com/iliyamo/cinema-booking-backend/internal/database"
    "github.com/iliyamo/cinema-booking-backend/internal/gateway"
    "github.com/iliyamo/cinema-booking-backend/internal/handler"
    "github.com/iliyamo/cinema-booking-backend/internal/queue"
    "github.com/iliyamo/cinema-booking-backend/internal/repository"
    "github.com/iliyamo/cinema-booking-backend/internal/router"
    "github.com/iliyamo/cinema-booking-backend/internal/service"
)

func main() {
    _ = godotenv.Load()

    log := logrus.New()
    log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

    cfg, err := config.Load()
    if err != nil {
        log.WithError(err).Error("configuration failed")
        os.Exit(1)
    }

    db, err := database.Open(cfg.DatabaseURL)
    if err != nil {
        log.WithError(err).Error("storage unreachable")
        os.Exit(2)
    }
    defer db.Close()

    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Warn("redis unavailable, rate limiting and response cache disabled")
    }

    // Repositories and seat store.
    seatStore := repository.NewShowtimeSeatStore(db)
    showtimes := repository.NewShowtimeRepo(db)
    bookings := repository.NewBookingRepo(db, seatStore)
    payments := repository.NewPaymentRepo(db)
    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)

    // Services.
    events := queue.NewPublisher(log)
    engine := service.NewBookingEngine(seatStore, bookings, showtimes, users, events, cfg.HoldTTL, log)
    coordinator := service.NewPaymentCoordinator(gateway.LoadFromEnv(), payments, bookings, engine, log)

    sweeper := service.NewSweeper(engine, seatStore, events, cfg.BookingExpiry, cfg.SweepInterval, cfg.HoldSweepInterval, log)
    sweeper.Start()
    defer sweeper.Stop()

    go queue.StartBookingConsumer(log, service.NewMailerFromEnv(log))

    // HTTP surface.
    e := echo.New()
    e.HideBanner = true
    e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)
    e.Use(echomw.Recover())

    router.Register(e, cfg, router.Handlers{
        Auth:     handler.NewAuthHandler(cfg, users, tokens),
        Seats:    handler.NewSeatHandler(showtimes, seatStore),
        Bookings: handler.NewBookingHandler(engine, coordinator),
        Payments: handler.NewPaymentHandler(coordinator, cfg.FrontendURL),
    }, rdb)

    go func() {
        addr := ":" + cfg.Port
        log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.WithError(err).Error("server stopped")
            os.Exit(2)
        }
    }()

    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit

    log.Info("shutting down")
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := e.Shutdown(ctx); err != nil {
        log.WithError(err).Warn("shutdown incomplete")
    }
}
