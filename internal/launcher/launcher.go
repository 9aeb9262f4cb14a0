// Package launcher starts a quorum of generals as separate processes and
// drives the administrative flows against whichever general is primary:
//
//	Start(n)   → spawn G1..Gn, wait for /health, primary pushes membership
//	Add(k)     → primary allocates ids, spawn them, primary merges them in
//	Kill(id)   → primary drops id (handover first if id is primary), stop process
//	Shutdown() → stop every process
package launcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/quorum"
)

// Client is what the launcher needs to reach a general.
type Client interface {
	domain.AdminClient
	Health(ctx context.Context, addr string) error
}

// Config configures a Launcher.
type Config struct {
	Book         domain.AddressBook
	Spawner      Spawner
	Client       Client
	StartTimeout time.Duration
	Logger       zerolog.Logger

	// Progress, if set, receives one line per spawned general.
	Progress func(msg string)
}

// Launcher owns the general processes of one run.
type Launcher struct {
	book         domain.AddressBook
	spawner      Spawner
	client       Client
	startTimeout time.Duration
	log          zerolog.Logger
	progress     func(string)

	mu      sync.Mutex
	procs   map[int]Process
	primary int
}

// New creates a launcher with no generals.
func New(cfg Config) *Launcher {
	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Launcher{
		book:         cfg.Book,
		spawner:      cfg.Spawner,
		client:       cfg.Client,
		startTimeout: timeout,
		log:          cfg.Logger.With().Str("component", "launcher").Logger(),
		progress:     cfg.Progress,
		procs:        make(map[int]Process),
	}
}

// Primary returns the id the launcher addresses commands to.
func (l *Launcher) Primary() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.primary
}

// IDs returns the ids of the running generals, ascending.
func (l *Launcher) IDs() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idsLocked()
}

func (l *Launcher) idsLocked() []int {
	ids := make([]int, 0, len(l.procs))
	for id := range l.procs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (l *Launcher) primaryAddr() string {
	return l.book.Address(l.Primary())
}

// Start spawns generals 1..n with 1 as primary and has the primary
// broadcast the initial membership.
func (l *Launcher) Start(ctx context.Context, n int) error {
	if n < 1 {
		return domain.Reject(domain.ErrInvalidCount, "Could not start %d generals...", n)
	}
	ids := make([]int, 0, n)
	for id := 1; id <= n; id++ {
		ids = append(ids, id)
	}

	l.mu.Lock()
	l.primary = ids[0]
	l.mu.Unlock()

	if err := l.spawnAll(ctx, ids, ids[0]); err != nil {
		l.Shutdown()
		return err
	}
	err := l.client.SetNeighbours(ctx, l.book.Address(ids[0]), domain.Membership{Members: l.book.Members(ids)})
	if err != nil {
		l.Shutdown()
		return fmt.Errorf("initial membership: %w", err)
	}
	l.log.Info().Int("generals", n).Int("primary", ids[0]).Msg("quorum started")
	return nil
}

// ActualOrder proposes order to the primary and returns the round report.
func (l *Launcher) ActualOrder(ctx context.Context, order domain.Order) (string, error) {
	return l.client.ExecuteOrder(ctx, l.primaryAddr(), order)
}

// SetState sets the fault state of general id through the primary.
func (l *Launcher) SetState(ctx context.Context, id int, state domain.FaultState) (string, error) {
	return l.client.SetState(ctx, l.primaryAddr(), id, state)
}

// State returns the primary's view of the whole quorum.
func (l *Launcher) State(ctx context.Context) (string, error) {
	return l.client.GetState(ctx, l.primaryAddr())
}

// Kill removes general id from the quorum and stops its process. Killing
// the primary first hands the role to the smallest remaining id, which
// then retires its predecessor.
func (l *Launcher) Kill(ctx context.Context, id int) (string, error) {
	l.mu.Lock()
	proc, ok := l.procs[id]
	primary := l.primary
	ids := l.idsLocked()
	l.mu.Unlock()

	if !ok {
		return "", domain.Reject(domain.ErrUnknownPeer, "Could not kill general %d...", id)
	}

	var report string
	if id == primary {
		next, err := quorum.NextPrimary(ids, id)
		if err != nil {
			return "", err
		}
		if _, err := l.client.SetPrimary(ctx, l.book.Address(next), next); err != nil {
			return "", err
		}
		l.mu.Lock()
		l.primary = next
		l.mu.Unlock()
		l.log.Info().Int("old", id).Int("new", next).Msg("primary handed over")

		report, err = l.client.RemoveNeighbour(ctx, l.book.Address(next), id)
		if err != nil {
			return "", err
		}
	} else {
		var err error
		report, err = l.client.RemoveNeighbour(ctx, l.book.Address(primary), id)
		if err != nil {
			return "", err
		}
	}

	l.mu.Lock()
	delete(l.procs, id)
	l.mu.Unlock()
	if err := proc.Stop(); err != nil {
		l.log.Warn().Err(err).Int("general", id).Msg("stop general")
	}
	l.log.Info().Int("general", id).Msg("general killed")
	return report, nil
}

// Add starts k new generals with the smallest free ids and merges them
// into the quorum.
func (l *Launcher) Add(ctx context.Context, k int) (string, error) {
	if k < 1 {
		return "", domain.Reject(domain.ErrInvalidCount, "Could not add %d new generals...", k)
	}
	primary := l.Primary()
	ids, err := l.client.GetFreeNeighbourIDs(ctx, l.book.Address(primary), k)
	if err != nil {
		return "", err
	}
	if len(ids) != k {
		return "", domain.Reject(domain.ErrWrongRole, "Could not add %d new generals...", k)
	}
	if err := l.spawnAll(ctx, ids, primary); err != nil {
		l.stop(ids)
		return "", err
	}
	report, err := l.client.AddNeighbours(ctx, l.book.Address(primary), ids)
	if err != nil {
		l.stop(ids)
		return "", err
	}
	l.log.Info().Ints("generals", ids).Msg("generals added")
	return report, nil
}

// Shutdown stops every general.
func (l *Launcher) Shutdown() {
	l.stop(l.IDs())
}

func (l *Launcher) stop(ids []int) {
	var wg sync.WaitGroup
	for _, id := range ids {
		l.mu.Lock()
		proc, ok := l.procs[id]
		delete(l.procs, id)
		l.mu.Unlock()
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := proc.Stop(); err != nil {
				l.log.Warn().Err(err).Int("general", id).Msg("stop general")
			}
		}()
	}
	wg.Wait()
}

// spawnAll starts every id and waits until each answers its readiness
// probe.
func (l *Launcher) spawnAll(ctx context.Context, ids []int, primary int) error {
	for _, id := range ids {
		proc, err := l.spawner.Spawn(ctx, id, primary)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.procs[id] = proc
		l.mu.Unlock()
	}
	for _, id := range ids {
		l.mu.Lock()
		proc := l.procs[id]
		l.mu.Unlock()
		if err := l.waitReady(ctx, proc); err != nil {
			return err
		}
		if l.progress != nil {
			l.progress(fmt.Sprintf("G%d ready on %s", id, l.book.Address(id)))
		}
	}
	return nil
}

// waitReady polls /health until the general answers, exits or times out.
func (l *Launcher) waitReady(ctx context.Context, proc Process) error {
	addr := l.book.Address(proc.ID())
	ctx, cancel := context.WithTimeout(ctx, l.startTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := l.client.Health(ctx, addr); err == nil {
			return nil
		}
		select {
		case <-proc.Exited():
			if err := proc.Err(); err != nil {
				return err
			}
			return fmt.Errorf("general %d exited before becoming ready", proc.ID())
		case <-ctx.Done():
			return fmt.Errorf("general %d at %s did not become ready within %v", proc.ID(), addr, l.startTimeout)
		case <-ticker.C:
		}
	}
}
