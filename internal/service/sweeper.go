package service

import (
    "context"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
)

// expiryBatchSize bounds how many stale bookings one sweep pass cancels.
const expiryBatchSize = 100

// Sweeper runs the two background reclamation loops: stale PENDING
// bookings are cancelled after the booking expiry window, and expired seat
// holds are purged independently so abandoned seats free up even when the
// owning booking is still within its window.
type Sweeper struct {
    engine        *BookingEngine
    seats         SeatStore
    events        EventPublisher
    bookingExpiry time.Duration
    sweepEvery    time.Duration
    holdSweep     time.Duration
    log           *logrus.Logger

    done chan struct{}
    wg   sync.WaitGroup
    once sync.Once
}

// NewSweeper wires the sweeper. events may be nil.
func NewSweeper(engine *BookingEngine, seats SeatStore, events EventPublisher, bookingExpiry, sweepEvery, holdSweep time.Duration, log *logrus.Logger) *Sweeper {
    return &Sweeper{
        engine:        engine,
        seats:         seats,
        events:        events,
        bookingExpiry: bookingExpiry,
        sweepEvery:    sweepEvery,
        holdSweep:     holdSweep,
        done:          make(chan struct{}),
        log:           log,
    }
}

// Start launches both loops. Each tick runs to completion before the next
// is considered; a failing pass is logged and retried on the next tick.
func (s *Sweeper) Start() {
    s.wg.Add(2)
    go s.loop(s.sweepEvery, s.SweepBookings)
    go s.loop(s.holdSweep, s.SweepHolds)
    s.log.WithFields(logrus.Fields{
        "booking_interval": s.sweepEvery.String(),
        "hold_interval":    s.holdSweep.String(),
    }).Info("sweeper: started")
}

// Stop terminates both loops and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
    s.once.Do(func() { close(s.done) })
    s.wg.Wait()
}

func (s *Sweeper) loop(every time.Duration, pass func(context.Context) error) {
    defer s.wg.Done()
    ticker := time.NewTicker(every)
    defer ticker.Stop()
    for {
        select {
        case <-s.done:
            return
        case <-ticker.C:
            ctx, cancel := context.WithTimeout(context.Background(), every)
            if err := pass(ctx); err != nil {
                s.log.WithError(err).Warn("sweeper: pass failed")
            }
            cancel()
        }
    }
}

// SweepBookings cancels one batch of PENDING bookings older than the
// booking expiry window.
func (s *Sweeper) SweepBookings(ctx context.Context) error {
    cutoff := time.Now().UTC().Add(-s.bookingExpiry)
    cancelled, err := s.engine.ExpireStale(ctx, cutoff, expiryBatchSize)
    if err != nil {
        return err
    }
    if cancelled > 0 {
        s.log.WithField("cancelled", cancelled).Info("sweeper: expired stale bookings")
    }
    return nil
}

// SweepHolds purges every expired seat hold across all showtimes and
// publishes a seat-state event per affected showtime.
func (s *Sweeper) SweepHolds(ctx context.Context) error {
    released, affected, err := s.seats.SweepExpired(ctx, 0, time.Now().UTC())
    if err != nil {
        return err
    }
    if released == 0 {
        return nil
    }
    s.log.WithFields(logrus.Fields{
        "released":  released,
        "showtimes": len(affected),
    }).Info("sweeper: released expired holds")
    if s.events != nil {
        for _, showtimeID := range affected {
            _ = s.events.SeatStateChanged(ctx, showtimeID, "sweep")
        }
    }
    return nil
}
