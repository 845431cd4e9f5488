package main

import (
	"context"
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/install"
)

var (
	enterKey = tea.KeyPressMsg{Code: tea.KeyEnter}
	ctrlCKey = tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl}
)

func letterKey(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load(config.NewViper())
	require.NoError(t, err)
	return cfg
}

func testDevices() ([]deviceChoice, error) {
	return []deviceChoice{
		{Path: "/dev/sda", Label: "/dev/sda (Samsung SSD, 500 GB)"},
		{Path: "/dev/sdb", Label: "/dev/sdb (16 GB)"},
	}, nil
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	updated, ok := next.(model)
	require.True(t, ok)
	return updated, cmd
}

// toDevices dismisses the intro dialog and loads the device list.
func toDevices(t *testing.T, m model) model {
	t.Helper()

	m, cmd := update(t, m, enterKey)
	require.Equal(t, stateDevices, m.state)
	require.NotNil(t, cmd)

	m, _ = update(t, m, cmd())
	return m
}

func TestTUIPlainInstall(t *testing.T) {
	cfg := defaultConfig(t)

	var got *config.Config
	runInstall := func(_ context.Context, cfg *config.Config, onPhase func(install.Phase)) error {
		got = cfg
		onPhase(install.Phase{Number: 1, Total: 2, Name: "Preflight checks"})
		return nil
	}

	m := initialModel(cfg, testDevices, runInstall)
	assert.Equal(t, stateIntro, m.state)
	assert.NotEmpty(t, m.info)

	m = toDevices(t, m)
	assert.Empty(t, m.info)
	require.Len(t, m.devices.Items(), 2)

	m, _ = update(t, m, enterKey)
	assert.Equal(t, stateEncrypt, m.state)
	assert.Equal(t, "/dev/sda", cfg.Disk)

	m, _ = update(t, m, letterKey('n'))
	require.Empty(t, m.error)
	assert.Equal(t, stateConfirm, m.state)
	assert.False(t, cfg.Encrypt)

	m, cmd := update(t, m, enterKey)
	require.NotNil(t, cmd)
	require.NotNil(t, m.run)
	assert.Equal(t, stateInstalling, m.state)

	done := m.installCmd()()
	m, _ = update(t, m, waitForPhase(m.run)())
	assert.Equal(t, "Phase 1/2: Preflight checks", m.phase)
	assert.Nil(t, waitForPhase(m.run)())

	m, _ = update(t, m, done)
	assert.Equal(t, stateDone, m.state)
	assert.Contains(t, m.info, "/dev/sda")
	assert.Same(t, cfg, got)

	_, cmd = update(t, m, enterKey)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIEncryption(t *testing.T) {
	cfg := defaultConfig(t)
	m := toDevices(t, initialModel(cfg, testDevices, nil))

	m, _ = update(t, m, enterKey)
	m, _ = update(t, m, letterKey('y'))
	require.Equal(t, statePassphrase, m.state)
	assert.True(t, cfg.Encrypt)
	assert.True(t, m.passphrase.Focused())

	m.passphrase.SetValue("correct horse")
	m, _ = update(t, m, enterKey)
	assert.True(t, m.repeat.Focused())

	m.repeat.SetValue("battery staple")
	m, _ = update(t, m, enterKey)
	assert.Equal(t, statePassphrase, m.state)
	assert.Equal(t, "The passphrases do not match.", m.warning)
	assert.Empty(t, m.passphrase.Value())
	assert.True(t, m.passphrase.Focused())

	m, _ = update(t, m, enterKey)
	assert.Empty(t, m.warning)

	m.passphrase.SetValue("correct horse")
	m, _ = update(t, m, enterKey)
	m.repeat.SetValue("correct horse")
	m, _ = update(t, m, enterKey)
	require.Empty(t, m.error)
	assert.Equal(t, stateConfirm, m.state)
	assert.Equal(t, "correct horse", cfg.Passphrase)
	assert.Empty(t, m.passphrase.Value())
	assert.Empty(t, m.repeat.Value())
}

func TestTUIInvalidConfiguration(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Hostname = "-invalid-"

	m := toDevices(t, initialModel(cfg, testDevices, nil))
	m, _ = update(t, m, enterKey)
	m, _ = update(t, m, letterKey('n'))

	assert.Equal(t, stateDevices, m.state)
	assert.Contains(t, m.error, "invalid hostname")
}

func TestTUIDeviceErrors(t *testing.T) {
	failing := func() ([]deviceChoice, error) { return nil, errors.New("no sysfs") }
	m := toDevices(t, initialModel(defaultConfig(t), failing, nil))
	assert.Contains(t, m.error, "connected drives: no sysfs")

	none := func() ([]deviceChoice, error) { return nil, nil }
	m = toDevices(t, initialModel(defaultConfig(t), none, nil))
	assert.Contains(t, m.warning, "Failed to find any disks")

	// rescan once the warning is dismissed
	m, _ = update(t, m, enterKey)
	assert.Empty(t, m.warning)
	_, cmd := update(t, m, letterKey('r'))
	require.NotNil(t, cmd)
	assert.IsType(t, devicesMsg{}, cmd())
}

func TestTUIInstallFailure(t *testing.T) {
	cfg := defaultConfig(t)
	runInstall := func(ctx context.Context, _ *config.Config, _ func(install.Phase)) error {
		<-ctx.Done()
		return errors.New("pacstrap failed: context canceled")
	}

	m := toDevices(t, initialModel(cfg, testDevices, runInstall))
	m, _ = update(t, m, enterKey)
	m, _ = update(t, m, letterKey('n'))
	m, _ = update(t, m, enterKey)
	require.Equal(t, stateInstalling, m.state)

	// ctrl+c cancels the installation instead of quitting
	m, cmd := update(t, m, ctrlCKey)
	assert.Nil(t, cmd)
	assert.Equal(t, "Cancelling, cleaning up...", m.phase)

	m, _ = update(t, m, m.installCmd()())
	<-m.run.done
	require.Error(t, m.run.err)
	assert.Equal(t, stateDone, m.state)
	assert.Contains(t, m.error, "failed: pacstrap failed: context canceled")
}

func TestTUIQuit(t *testing.T) {
	m := initialModel(defaultConfig(t), testDevices, nil)

	_, cmd := update(t, m, letterKey('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m = toDevices(t, m)
	_, cmd = update(t, m, ctrlCKey)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIView(t *testing.T) {
	m, _ := update(t, initialModel(defaultConfig(t), testDevices, nil), tea.WindowSizeMsg{Width: 100, Height: 40})

	v := m.View()
	assert.True(t, v.AltScreen)
}
