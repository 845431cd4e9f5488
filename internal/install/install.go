// Package install runs the installation pipeline.
package install

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	vfs "github.com/twpayne/go-vfs"
	mountutils "k8s.io/mount-utils"

	"github.com/retrixe/glassarch/internal/cleanup"
	"github.com/retrixe/glassarch/internal/cmd"
	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/disk"
	"github.com/retrixe/glassarch/internal/mirror"
	"github.com/retrixe/glassarch/internal/mount"
	"github.com/retrixe/glassarch/internal/sysconf"
)

// Phase identifies the step of the pipeline currently running.
type Phase struct {
	Number int
	Total  int
	Name   string
}

func (p Phase) String() string {
	return fmt.Sprintf("Phase %d/%d: %s", p.Number, p.Total, p.Name)
}

// Partitioner writes the partition layout to the target disk.
type Partitioner interface {
	Partition(ctx context.Context, device string, espSize, minRootSize int64) (*disk.Layout, error)
}

// MirrorFetcher downloads a mirrorlist.
type MirrorFetcher interface {
	Fetch(ctx context.Context, country, dest string) (int, error)
}

// Installer installs Arch Linux according to Config.
type Installer struct {
	Config *config.Config
	Log    logrus.FieldLogger

	Runner      cmd.Runner
	Mounter     mountutils.Interface
	Partitioner Partitioner
	Mirror      MirrorFetcher
	// TargetFS returns the filesystem of the system mounted at root.
	TargetFS  func(root string) vfs.FS
	Preflight Preflight
	// CPUVendor is consulted for microcode=auto.
	CPUVendor func() string

	// OnPhase is called when a phase starts.
	OnPhase func(Phase)

	cleanup *cleanup.Stack
	mounts  *mount.Stack
	device  string // target disk with symlinks resolved
	layout  *disk.Layout
	esp     string
	root    string
}

// New returns an Installer running commands on the host, or only logging
// them when cfg.DryRun is set.
func New(cfg *config.Config, log logrus.FieldLogger) *Installer {
	var (
		runner  cmd.Runner
		mounter mountutils.Interface
	)

	if cfg.DryRun {
		runner = &cmd.Recorder{Log: log}
		mounter = mountutils.NewFakeMounter(nil)
	} else {
		runner = cmd.NewExec(log)
		mounter = mountutils.New("")
	}

	return &Installer{
		Config:      cfg,
		Log:         log,
		Runner:      runner,
		Mounter:     mounter,
		Partitioner: &disk.Partitioner{Runner: runner, Log: log, DryRun: cfg.DryRun},
		Mirror:      &mirror.Fetcher{FS: vfs.OSFS, Log: log},
		TargetFS: func(root string) vfs.FS {
			return sysconf.NewTargetFS(root)
		},
		Preflight: DefaultPreflight(),
		CPUVendor: config.CPUVendor,
	}
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// Phases returns the names of the phases Run will go through.
func (i *Installer) Phases() []string {
	phases := i.phases()
	names := make([]string, len(phases))
	for n, p := range phases {
		names[n] = p.name
	}
	return names
}

func (i *Installer) phases() []phase {
	cfg := i.Config

	phases := []phase{{"Running preflight checks", i.preflight}}
	if cfg.MirrorCountry != "" {
		phases = append(phases, phase{"Downloading mirrorlist", i.fetchMirrorlist})
	}
	phases = append(phases, phase{"Partitioning destination disk", i.partition})
	if cfg.Encrypt {
		phases = append(phases, phase{"Encrypting root partition", i.encrypt})
	}
	phases = append(phases,
		phase{"Creating filesystems", i.makeFilesystems},
		phase{"Mounting filesystems", i.mount},
		phase{"Installing base system", i.pacstrap},
		phase{"Writing system configuration", i.configure},
		phase{"Configuring installed system", i.configureChroot},
	)

	return phases
}

// Run installs the system. Cleanup (unmounting filesystems and closing the
// encrypted volume) happens whether the installation succeeded or not, and
// is reported as the last phase.
func (i *Installer) Run(ctx context.Context) error {
	i.cleanup = cleanup.NewStack()
	i.mounts = &mount.Stack{Mounter: i.Mounter, Log: i.Log, DryRun: i.Config.DryRun}

	phases := i.phases()
	total := len(phases) + 1

	var err error
	for n, p := range phases {
		if err = ctx.Err(); err != nil {
			err = fmt.Errorf("installation cancelled before %s: %w", strings.ToLower(p.name), err)
			break
		}

		i.startPhase(Phase{Number: n + 1, Total: total, Name: p.name})

		if err = p.run(ctx); err != nil {
			err = fmt.Errorf("%s failed: %w", p.name, err)
			break
		}
	}

	i.startPhase(Phase{Number: total, Total: total, Name: "Cleaning up"})

	return i.cleanup.Cleanup(err)
}

func (i *Installer) startPhase(p Phase) {
	if i.Log != nil {
		i.Log.WithField("phase", p.Number).Info(p.String())
	}
	if i.OnPhase != nil {
		i.OnPhase(p)
	}
}

func (i *Installer) logger() logrus.FieldLogger {
	if i.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return i.Log
}
