package power

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Governor sets the CPU operating frequency.
type Governor interface {
	SetFrequency(mhz int) error
}

var ErrNoCPUFreq = errors.New("no cpufreq policies found")

// SysfsGovernor caps every cpufreq policy through scaling_max_freq. The
// kernel governor then runs at or below the cap.
type SysfsGovernor struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewSysfsGovernor uses root (normally /sys/devices/system/cpu/cpufreq) on fs.
func NewSysfsGovernor(fs afero.Fs, root string, logger *zap.Logger) *SysfsGovernor {
	return &SysfsGovernor{fs: fs, root: root, logger: logger}
}

func (g *SysfsGovernor) policies() ([]string, error) {
	dirs, err := afero.Glob(g.fs, path.Join(g.root, "policy*"))
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoCPUFreq, g.root)
	}
	return dirs, nil
}

func (g *SysfsGovernor) readKHz(file string) (int, bool) {
	data, err := afero.ReadFile(g.fs, file)
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetFrequency writes mhz to every policy, clamped to the hardware limits
// when cpuinfo_min_freq/cpuinfo_max_freq are readable.
func (g *SysfsGovernor) SetFrequency(mhz int) error {
	dirs, err := g.policies()
	if err != nil {
		return err
	}

	var errs []error
	for _, dir := range dirs {
		khz := mhz * 1000
		if lo, ok := g.readKHz(path.Join(dir, "cpuinfo_min_freq")); ok && khz < lo {
			khz = lo
		}
		if hi, ok := g.readKHz(path.Join(dir, "cpuinfo_max_freq")); ok && khz > hi {
			khz = hi
		}

		target := path.Join(dir, "scaling_max_freq")
		if err := afero.WriteFile(g.fs, target, []byte(strconv.Itoa(khz)+"\n"), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", target, err))
			continue
		}
		g.logger.Debug("CPU frequency cap set", zap.String("policy", path.Base(dir)), zap.Int("khz", khz))
	}
	return errors.Join(errs...)
}

// Frequency returns the cap of the first policy in MHz.
func (g *SysfsGovernor) Frequency() (int, error) {
	dirs, err := g.policies()
	if err != nil {
		return 0, err
	}
	khz, ok := g.readKHz(path.Join(dirs[0], "scaling_max_freq"))
	if !ok {
		return 0, fmt.Errorf("unreadable scaling_max_freq in %s", dirs[0])
	}
	return khz / 1000, nil
}

// StaticGovernor only records the requested frequency. Used on development
// hosts where the CPU must not be throttled.
type StaticGovernor struct {
	mu  sync.Mutex
	mhz int
}

func (g *StaticGovernor) SetFrequency(mhz int) error {
	g.mu.Lock()
	g.mhz = mhz
	g.mu.Unlock()
	return nil
}

func (g *StaticGovernor) Frequency() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mhz, nil
}
