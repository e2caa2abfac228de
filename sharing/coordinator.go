package sharing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Station-Manager/serialshare/com0com"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// closeTimeout bounds the driver calls made by Close.
const closeTimeout = 30 * time.Second

// Driver is the subset of *com0com.Manager the coordinator needs.
type Driver interface {
	ListPairs(ctx context.Context) ([]com0com.PortPair, error)
	FindPair(ctx context.Context, id uint32) (com0com.PortPair, error)
	CreatePair(ctx context.Context, nameA, nameB string) (com0com.PortPair, error)
	RenamePair(ctx context.Context, id uint32, nameA, nameB string) error
	RemovePair(ctx context.Context, id uint32) error
	FindAvailableCOMNumbers(count int) []int
}

// SharingStatus is the state presented to the shell. Enabled implies Pair,
// ExternalPort and AppPort are set.
//
// ExternalPort is the B side of the pair, the end the bridge holds open.
// Applications open AppPort, the A side.
type SharingStatus struct {
	Enabled      bool              `json:"enabled"`
	Pair         *com0com.PortPair `json:"pair,omitempty"`
	ExternalPort string            `json:"external_port,omitempty"`
	AppPort      string            `json:"app_port,omitempty"`
	PhysicalPort string            `json:"physical_port,omitempty"`

	// OwnsPair is false for a pair chosen by the user. Disabling leaves
	// such a pair installed.
	OwnsPair bool `json:"owns_pair"`
}

// Coordinator allocates a virtual pair for sharing a physical port and tears
// it down again. It serializes its own pair changes; separate coordinators
// working on the same driver are not supported.
//
// Callers must Close a coordinator so that the pair it created is removed.
type Coordinator struct {
	logger zerolog.Logger
	driver Driver
	hubs   *HubRegistry

	mu       sync.Mutex
	status   SharingStatus
	bridging atomic.Bool
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger.With().Str("component", "sharing").Logger() }
}

// WithHubRegistry enables EnableHubSharing.
func WithHubRegistry(r *HubRegistry) Option {
	return func(c *Coordinator) { c.hubs = r }
}

// NewCoordinator returns a coordinator for driver, which is nil when com0com
// is not installed.
func NewCoordinator(driver Driver, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger: zerolog.Nop(),
		driver: driver,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) IsDriverInstalled() bool {
	return c.driver != nil
}

// Status returns a copy of the current state.
func (c *Coordinator) Status() SharingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if st.Pair != nil {
		p := *st.Pair
		st.Pair = &p
	}
	return st
}

// IsBridging reports whether the coordinator considers a bridge attached.
func (c *Coordinator) IsBridging() bool {
	return c.bridging.Load()
}

// EnableSharing creates a pair on the first two free COM numbers and returns
// the name of its B side, which the session attaches its bridge to.
// Applications use the A side.
func (c *Coordinator) EnableSharing(ctx context.Context, physical string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.createLocked(ctx, physical)
	if err != nil {
		return "", err
	}
	c.bridging.Store(true)
	return pair.PortB, nil
}

// EnableSharingWithPair shares physical over the existing pair id instead of
// creating one. The pair is not removed when sharing is disabled.
func (c *Coordinator) EnableSharingWithPair(ctx context.Context, physical string, id uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.adoptLocked(ctx, physical, id)
	if err != nil {
		return "", err
	}
	c.bridging.Store(true)
	return pair.PortB, nil
}

// EnableHubSharing is EnableSharing with hub4com doing the bridging instead
// of a session. If hub4com fails to start the new pair is removed again.
func (c *Coordinator) EnableHubSharing(ctx context.Context, physical string, baud int) (string, error) {
	if c.hubs == nil {
		return "", ErrHubNotInstalled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.createLocked(ctx, physical)
	if err != nil {
		return "", err
	}
	return c.startHubLocked(ctx, physical, pair, baud)
}

// EnableHubSharingWithPair runs hub4com over the existing pair id.
func (c *Coordinator) EnableHubSharingWithPair(ctx context.Context, physical string, id uint32, baud int) (string, error) {
	if c.hubs == nil {
		return "", ErrHubNotInstalled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.adoptLocked(ctx, physical, id)
	if err != nil {
		return "", err
	}
	return c.startHubLocked(ctx, physical, pair, baud)
}

func (c *Coordinator) startHubLocked(ctx context.Context, physical string, pair com0com.PortPair, baud int) (string, error) {
	if err := c.hubs.Start(physical, []string{pair.PortB}, baud); err != nil {
		c.teardownLocked(ctx)
		return "", fmt.Errorf("sharing %s through hub4com: %w", physical, err)
	}
	c.bridging.Store(true)
	return pair.PortB, nil
}

func (c *Coordinator) checkLocked() error {
	if c.status.Enabled {
		return ErrAlreadyEnabled
	}
	if c.driver == nil {
		return com0com.ErrDriverNotInstalled
	}
	return nil
}

func (c *Coordinator) createLocked(ctx context.Context, physical string) (com0com.PortPair, error) {
	if err := c.checkLocked(); err != nil {
		return com0com.PortPair{}, err
	}

	nums := c.driver.FindAvailableCOMNumbers(2)
	if len(nums) < 2 {
		return com0com.PortPair{}, ErrNoAvailablePorts
	}
	pair, err := c.driver.CreatePair(ctx, "COM"+strconv.Itoa(nums[0]), "COM"+strconv.Itoa(nums[1]))
	if err != nil {
		return com0com.PortPair{}, fmt.Errorf("enabling sharing for %s: %w", physical, err)
	}
	c.recordLocked(physical, pair, true)
	return pair, nil
}

func (c *Coordinator) adoptLocked(ctx context.Context, physical string, id uint32) (com0com.PortPair, error) {
	if err := c.checkLocked(); err != nil {
		return com0com.PortPair{}, err
	}

	pair, err := c.driver.FindPair(ctx, id)
	if err != nil {
		return com0com.PortPair{}, fmt.Errorf("enabling sharing for %s: %w", physical, err)
	}
	c.recordLocked(physical, pair, false)
	return pair, nil
}

func (c *Coordinator) recordLocked(physical string, pair com0com.PortPair, owned bool) {
	c.status = SharingStatus{
		Enabled:      true,
		Pair:         &pair,
		ExternalPort: pair.PortB,
		AppPort:      pair.PortA,
		PhysicalPort: physical,
		OwnsPair:     owned,
	}
	c.logger.Info().
		Str("physical", physical).
		Uint32("pair", pair.PairID).
		Str("port_a", pair.PortA).
		Str("port_b", pair.PortB).
		Bool("owned", owned).
		Msg("sharing enabled")
}

// DisableSharing stops any hub, removes the pair if the coordinator created
// it and resets the status. It is a no-op when sharing is off. A failed
// removal is logged, not returned.
func (c *Coordinator) DisableSharing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.Enabled {
		return nil
	}
	c.teardownLocked(ctx)
	return nil
}

func (c *Coordinator) teardownLocked(ctx context.Context) {
	st := c.status
	c.bridging.Store(false)

	if c.hubs != nil && c.hubs.IsRunning(st.PhysicalPort) {
		if err := c.hubs.Stop(st.PhysicalPort); err != nil {
			c.logger.Warn().Err(err).Str("physical", st.PhysicalPort).Msg("stopping hub4com failed")
		}
	}
	if st.Pair != nil && st.OwnsPair && c.driver != nil {
		if err := c.driver.RemovePair(ctx, st.Pair.PairID); err != nil {
			c.logger.Warn().Err(err).Uint32("pair", st.Pair.PairID).Msg("removing virtual pair failed, remove it manually")
		}
	}

	c.status = SharingStatus{}
	c.logger.Info().Str("physical", st.PhysicalPort).Msg("sharing disabled")
}

// Close disables sharing and stops every hub. It is safe to call more than once.
func (c *Coordinator) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := c.DisableSharing(ctx)
	if c.hubs != nil {
		err = errors.Join(err, c.hubs.StopAll())
	}
	return err
}

func (c *Coordinator) ListPairs(ctx context.Context) ([]com0com.PortPair, error) {
	if c.driver == nil {
		return nil, com0com.ErrDriverNotInstalled
	}
	return c.driver.ListPairs(ctx)
}

func (c *Coordinator) CreatePair(ctx context.Context, nameA, nameB string) (com0com.PortPair, error) {
	if c.driver == nil {
		return com0com.PortPair{}, com0com.ErrDriverNotInstalled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver.CreatePair(ctx, nameA, nameB)
}

func (c *Coordinator) RenamePair(ctx context.Context, id uint32, nameA, nameB string) error {
	if c.driver == nil {
		return com0com.ErrDriverNotInstalled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver.RenamePair(ctx, id, nameA, nameB)
}

func (c *Coordinator) RemovePair(ctx context.Context, id uint32) error {
	if c.driver == nil {
		return com0com.ErrDriverNotInstalled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver.RemovePair(ctx, id)
}

// HubShares lists the running hub4com bridges.
func (c *Coordinator) HubShares() []HubShare {
	if c.hubs == nil {
		return nil
	}
	return c.hubs.Shares()
}
