package sharing

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultHubSettle is how long a freshly started hub4com must survive
	// before it counts as running. Bad arguments and busy ports make it exit
	// straight away.
	DefaultHubSettle = 300 * time.Millisecond

	hubWaitDelay = time.Second
	devicePrefix = `\\.\`
)

var hubSearchPaths = []string{
	`C:\Program Files (x86)\com0com\hub4com.exe`,
	`C:\Program Files\com0com\hub4com.exe`,
	`C:\Program Files (x86)\com0com\x64\hub4com.exe`,
	`C:\Program Files\com0com\x64\hub4com.exe`,
	`C:\Program Files (x86)\com0com\hub4com\hub4com.exe`,
	`C:\Program Files\com0com\hub4com\hub4com.exe`,
}

// LocateHub returns the path of hub4com.exe, probing extra first, then the
// com0com install locations, then PATH.
func LocateHub(extra ...string) (string, error) {
	for _, p := range append(append([]string{}, extra...), hubSearchPaths...) {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	if p, err := exec.LookPath("hub4com.exe"); err == nil {
		return p, nil
	}
	return "", ErrHubNotInstalled
}

// HubArgs builds the hub4com command line: virtual ports first, then the
// optional baud rate and the physical port, then routes in both directions
// between the physical port and every virtual one.
func HubArgs(physical string, virtual []string, baud int) []string {
	args := make([]string, 0, len(virtual)*3+2)
	for _, v := range virtual {
		args = append(args, withDevicePrefix(v))
	}
	if baud > 0 {
		args = append(args, "--baud="+strconv.Itoa(baud))
	}
	args = append(args, withDevicePrefix(physical))

	p := len(virtual)
	for i := 0; i < p; i++ {
		args = append(args, fmt.Sprintf("--route=%d:%d", i, p))
	}
	for i := 0; i < p; i++ {
		args = append(args, fmt.Sprintf("--route=%d:%d", p, i))
	}
	return args
}

func withDevicePrefix(name string) string {
	if strings.HasPrefix(name, devicePrefix) {
		return name
	}
	return devicePrefix + name
}

type hubInstance struct {
	cmd      *exec.Cmd
	physical string
	virtual  []string
	stderr   bytes.Buffer
	exited   chan struct{}
}

// HubRegistry tracks the hub4com processes started by a coordinator, keyed
// by physical port.
type HubRegistry struct {
	logger zerolog.Logger
	path   string
	settle time.Duration

	mu        sync.Mutex
	instances map[string]*hubInstance
}

func NewHubRegistry(path string, logger zerolog.Logger) *HubRegistry {
	return &HubRegistry{
		logger:    logger.With().Str("component", "hub4com").Logger(),
		path:      path,
		settle:    DefaultHubSettle,
		instances: make(map[string]*hubInstance),
	}
}

// Start runs hub4com between physical and the virtual ports. It returns an
// error if the process exits within the settle window.
func (r *HubRegistry) Start(physical string, virtual []string, baud int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[physical]; ok {
		return fmt.Errorf("%s: %w", physical, ErrHubRunning)
	}

	inst := &hubInstance{
		physical: physical,
		virtual:  append([]string(nil), virtual...),
		exited:   make(chan struct{}),
	}
	args := HubArgs(physical, virtual, baud)
	inst.cmd = exec.Command(r.path, args...)
	inst.cmd.Stderr = &inst.stderr
	inst.cmd.WaitDelay = hubWaitDelay
	hideConsole(inst.cmd)

	if err := inst.cmd.Start(); err != nil {
		return fmt.Errorf("starting hub4com: %w", err)
	}
	go func() {
		// the exit status is read from ProcessState
		_ = inst.cmd.Wait()
		close(inst.exited)
	}()

	select {
	case <-inst.exited:
		code := inst.cmd.ProcessState.ExitCode()
		return fmt.Errorf("hub4com exited with code %d: %s", code, strings.TrimSpace(inst.stderr.String()))
	case <-time.After(r.settle):
	}

	r.instances[physical] = inst
	r.logger.Info().Str("physical", physical).Strs("virtual", virtual).Strs("args", args).Msg("hub4com started")
	return nil
}

// Stop kills the hub4com process sharing physical and waits for it.
func (r *HubRegistry) Stop(physical string) error {
	r.mu.Lock()
	inst, ok := r.instances[physical]
	delete(r.instances, physical)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", physical, ErrHubNotRunning)
	}
	return r.kill(inst)
}

func (r *HubRegistry) kill(inst *hubInstance) error {
	var err error
	select {
	case <-inst.exited:
		// already gone
	default:
		if kerr := inst.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("stopping hub4com for %s: %w", inst.physical, kerr)
		}
		<-inst.exited
	}
	r.logger.Info().Str("physical", inst.physical).Msg("hub4com stopped")
	return err
}

// StopAll stops every running hub.
func (r *HubRegistry) StopAll() error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*hubInstance)
	r.mu.Unlock()

	var errs []error
	for _, inst := range instances {
		errs = append(errs, r.kill(inst))
	}
	return errors.Join(errs...)
}

func (r *HubRegistry) IsRunning(physical string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[physical]
	return ok
}

// HubShare describes one running hub.
type HubShare struct {
	PhysicalPort string   `json:"physical_port"`
	VirtualPorts []string `json:"virtual_ports"`
}

// Shares lists the running hubs ordered by physical port.
func (r *HubRegistry) Shares() []HubShare {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HubShare, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, HubShare{
			PhysicalPort: inst.physical,
			VirtualPorts: append([]string(nil), inst.virtual...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhysicalPort < out[j].PhysicalPort })
	return out
}
