package config // package config loads application configuration from environment variables

import (
    "fmt"
    "os"
    "strconv"
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in the
// application: strings for identifiers and secrets, durations for the hold
// and sweep windows.  All values are loaded once at startup and never
// mutated under traffic.
type Config struct {
    Env               string        // application environment (e.g. "dev", "prod")
    Port              string        // HTTP port to listen on
    DatabaseURL       string        // MySQL DSN for the backing store
    JWTSecret         string        // secret used to sign access tokens
    JWTRefreshSecret  string        // secret used to sign refresh tokens
    AccessTTLMin      int           // access token time-to-live in minutes
    RefreshTTLDays    int           // refresh token time-to-live in days
    BcryptCost        int           // bcrypt cost for password hashing
    HoldTTL           time.Duration // seat-hold lifetime
    BookingExpiry     time.Duration // auto-cancel age for PENDING bookings
    SweepInterval     time.Duration // cadence of the booking-expiry sweep
    HoldSweepInterval time.Duration // cadence of the hold garbage collection
    FrontendURL       string        // base URL for post-callback browser redirects
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required values and violated invariants are reported as
// an error; main translates that into exit status 1.
func Load() (Config, error) {
    cfg := Config{
        Env:               getenv("APP_ENV", "dev"),
        Port:              getenv("PORT", "8080"),
        DatabaseURL:       os.Getenv("DATABASE_URL"),
        JWTSecret:         os.Getenv("JWT_SECRET"),
        JWTRefreshSecret:  os.Getenv("JWT_REFRESH_SECRET"),
        AccessTTLMin:      atoiDefault("ACCESS_TOKEN_TTL_MIN", 15),
        RefreshTTLDays:    atoiDefault("REFRESH_TOKEN_TTL_DAYS", 30),
        BcryptCost:        atoiDefault("BCRYPT_COST", 10),
        HoldTTL:           secondsEnv("HOLD_TTL_SECONDS", 600),
        BookingExpiry:     secondsEnv("BOOKING_EXPIRY_SECONDS", 900),
        SweepInterval:     secondsEnv("SWEEP_INTERVAL_SECONDS", 300),
        HoldSweepInterval: secondsEnv("HOLD_SWEEP_INTERVAL_SECONDS", 600),
        FrontendURL:       getenv("FRONTEND_URL", "http://localhost:3000"),
    }
    if err := cfg.validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// validate enforces the invariants the rest of the system assumes: the
// required secrets are present and a hold never outlives its booking.
func (c Config) validate() error {
    if c.DatabaseURL == "" {
        return fmt.Errorf("missing required env var: DATABASE_URL")
    }
    if c.JWTSecret == "" {
        return fmt.Errorf("missing required env var: JWT_SECRET")
    }
    if c.JWTRefreshSecret == "" {
        return fmt.Errorf("missing required env var: JWT_REFRESH_SECRET")
    }
    if c.HoldTTL <= 0 || c.BookingExpiry <= 0 {
        return fmt.Errorf("HOLD_TTL_SECONDS and BOOKING_EXPIRY_SECONDS must be positive")
    }
    if c.BookingExpiry < c.HoldTTL {
        return fmt.Errorf("BOOKING_EXPIRY_SECONDS (%s) must be >= HOLD_TTL_SECONDS (%s)", c.BookingExpiry, c.HoldTTL)
    }
    return nil
}

func atoiDefault(key string, def int) int {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return n
}

func secondsEnv(key string, def int) time.Duration {
    return time.Duration(atoiDefault(key, def)) * time.Second
}
