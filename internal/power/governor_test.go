package power

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const cpufreqRoot = "/sys/devices/system/cpu/cpufreq"

func fakeSysfs(t *testing.T, policies map[string][2]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, limits := range policies {
		dir := cpufreqRoot + "/" + name
		require.NoError(t, fs.MkdirAll(dir, 0o755))
		require.NoError(t, afero.WriteFile(fs, dir+"/cpuinfo_min_freq", []byte(limits[0]+"\n"), 0o444))
		require.NoError(t, afero.WriteFile(fs, dir+"/cpuinfo_max_freq", []byte(limits[1]+"\n"), 0o444))
		require.NoError(t, afero.WriteFile(fs, dir+"/scaling_max_freq", []byte(limits[1]+"\n"), 0o644))
	}
	return fs
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func TestSysfsGovernor_WritesEveryPolicy(t *testing.T) {
	fs := fakeSysfs(t, map[string][2]string{
		"policy0": {"40000", "240000"},
		"policy1": {"40000", "240000"},
	})
	g := NewSysfsGovernor(fs, cpufreqRoot, zap.NewNop())

	require.NoError(t, g.SetFrequency(80))
	assert.Equal(t, "80000\n", readFile(t, fs, cpufreqRoot+"/policy0/scaling_max_freq"))
	assert.Equal(t, "80000\n", readFile(t, fs, cpufreqRoot+"/policy1/scaling_max_freq"))

	mhz, err := g.Frequency()
	require.NoError(t, err)
	assert.Equal(t, 80, mhz)
}

func TestSysfsGovernor_ClampsToHardwareLimits(t *testing.T) {
	fs := fakeSysfs(t, map[string][2]string{"policy0": {"100000", "1800000"}})
	g := NewSysfsGovernor(fs, cpufreqRoot, zap.NewNop())

	require.NoError(t, g.SetFrequency(80))
	assert.Equal(t, "100000\n", readFile(t, fs, cpufreqRoot+"/policy0/scaling_max_freq"))

	require.NoError(t, g.SetFrequency(2400))
	assert.Equal(t, "1800000\n", readFile(t, fs, cpufreqRoot+"/policy0/scaling_max_freq"))
}

func TestSysfsGovernor_NoPolicies(t *testing.T) {
	g := NewSysfsGovernor(afero.NewMemMapFs(), cpufreqRoot, zap.NewNop())
	assert.ErrorIs(t, g.SetFrequency(240), ErrNoCPUFreq)
	_, err := g.Frequency()
	assert.ErrorIs(t, err, ErrNoCPUFreq)
}

func TestSysfsGovernor_ReadOnlyFs(t *testing.T) {
	fs := fakeSysfs(t, map[string][2]string{"policy0": {"40000", "240000"}})
	g := NewSysfsGovernor(afero.NewReadOnlyFs(fs), cpufreqRoot, zap.NewNop())
	err := g.SetFrequency(80)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestStaticGovernor(t *testing.T) {
	g := &StaticGovernor{}
	require.NoError(t, g.SetFrequency(240))
	mhz, err := g.Frequency()
	require.NoError(t, err)
	assert.Equal(t, 240, mhz)
}

func TestNewRestarter(t *testing.T) {
	for _, mode := range []string{"exec", "reboot", "exit"} {
		r, err := NewRestarter(mode, zap.NewNop())
		require.NoError(t, err, mode)
		assert.NotNil(t, r)
	}
	_, err := NewRestarter("halt", zap.NewNop())
	assert.Error(t, err)
}

func TestExitRestarter(t *testing.T) {
	var code int
	r := &ExitRestarter{Code: 3, logger: zap.NewNop(), exit: func(c int) { code = c }}
	require.NoError(t, r.Restart("engine stopped"))
	assert.Equal(t, 3, code)
}
