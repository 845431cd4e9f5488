package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/diskfs/go-diskfs"
	"github.com/siderolabs/go-retry/retry"
	"github.com/sirupsen/logrus"

	"github.com/retrixe/glassarch/internal/cmd"
)

// PartitionWait is how long Partition waits for partition nodes to show up.
var PartitionWait = 10 * time.Second

// Partitioner writes the installation layout to a disk.
type Partitioner struct {
	Runner cmd.Runner
	Log    logrus.FieldLogger
	// DryRun computes the layout without touching the disk.
	DryRun bool
}

// Partition computes the installation layout for device, wipes existing
// signatures, writes a fresh GPT and waits for the kernel to create the
// partition device nodes. Nothing is written when the layout does not fit.
func (p *Partitioner) Partition(ctx context.Context, device string, espSize, minRootSize int64) (*Layout, error) {
	layout, err := p.layout(device, espSize, minRootSize)
	if err != nil {
		return nil, err
	}

	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{
			"device": device,
			"esp":    PartitionPath(device, layout.ESP.Number),
			"root":   PartitionPath(device, layout.Root.Number),
		}).Debugf("partition layout: esp sectors %d-%d, root sectors %d-%d",
			layout.ESP.Start, layout.ESP.End, layout.Root.Start, layout.Root.End)
	}

	if _, err := p.Runner.Run(ctx, "wipefs", "--all", device); err != nil {
		return nil, fmt.Errorf("failed to wipe signatures: %w", err)
	}

	if p.DryRun {
		return layout, nil
	}

	d, err := diskfs.Open(device, diskfs.WithOpenMode(diskfs.ReadWriteExclusive))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk: %w", err)
	}
	defer d.Close() //nolint:errcheck

	if err := d.Partition(layout.Table()); err != nil {
		return nil, fmt.Errorf("failed to create partition table: %w", err)
	}

	if !IsBlockDevice(device) {
		return layout, nil
	}

	if _, err := p.Runner.Run(ctx, "partprobe", device); err != nil {
		return nil, fmt.Errorf("failed to re-read partition table: %w", err)
	}

	if err := WaitForPartitions(ctx, PartitionWait,
		PartitionPath(device, layout.ESP.Number),
		PartitionPath(device, layout.Root.Number),
	); err != nil {
		return nil, err
	}

	return layout, nil
}

// layout reads the geometry of device. The disk is closed again so wipefs
// can open it exclusively.
func (p *Partitioner) layout(device string, espSize, minRootSize int64) (*Layout, error) {
	d, err := diskfs.Open(device, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk: %w", err)
	}
	defer d.Close() //nolint:errcheck

	return NewLayout(d.Size, d.LogicalBlocksize, espSize, minRootSize)
}

// WaitForPartitions waits until every path exists.
func WaitForPartitions(ctx context.Context, timeout time.Duration, paths ...string) error {
	err := retry.Constant(timeout, retry.WithUnits(100*time.Millisecond)).Retry(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return retry.ExpectedError(err)
				}
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("partitions did not appear: %w", err)
	}

	return nil
}
