// Package disk validates, inspects and partitions the installation target.
package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/retrixe/imprint/imaging"
)

// ErrNotBlockDevice is returned when the specified device is not a block device.
var ErrNotBlockDevice = errors.New("specified device is not a block device")

// ErrPartition is returned when a partition is given instead of a whole disk.
var ErrPartition = errors.New("device is a partition")

// ErrTooSmall is returned when the device cannot hold the partition layout.
var ErrTooSmall = errors.New("device is too small")

// AllowRegularFileEnv permits regular files (disk images) as installation target.
const AllowRegularFileEnv = "__GLASSARCH_DEBUG_ALLOW_REGULAR_DEST"

// Info describes a whole disk.
type Info struct {
	Path      string
	Name      string
	Size      int64
	Model     string
	Removable bool
	// Image is set when the target is a regular file.
	Image bool
}

// Inventory returns the whole disks known to the kernel. It is a variable so
// tests can replace the ghw lookup.
var Inventory = func() ([]*ghw.Disk, error) {
	info, err := ghw.Block()
	if err != nil {
		return nil, err
	}
	return info.Disks, nil
}

// PartitionPath returns the device path of partition n on blockDevice.
func PartitionPath(blockDevice string, n int) string {
	partition := blockDevice
	if last := blockDevice[len(blockDevice)-1]; last >= '0' && last <= '9' {
		partition += "p"
	}
	return partition + strconv.Itoa(n)
}

func allowRegularFile() bool {
	v, ok := os.LookupEnv(AllowRegularFileEnv)
	return ok && (v == "true" || v == "1")
}

// Validate checks that path is a whole disk that can hold the partition
// layout, given the minimum size in bytes.
func Validate(path string, minSize int64) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get info about destination: %w", err)
	}

	// later steps derive partition paths from the device node, not from
	// /dev/disk/by-* links
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info := &Info{Path: resolved, Name: filepath.Base(resolved)}

	switch {
	case stat.Mode().Type()&fs.ModeDevice != 0:
		if err := lookupInventory(info); err != nil {
			return nil, err
		}
	case stat.Mode().IsRegular() && allowRegularFile():
		info.Image = true
		info.Size = stat.Size()
	default:
		return nil, fmt.Errorf("destination %s is not a valid block device: %w", path, ErrNotBlockDevice)
	}

	if info.Size == 0 {
		if info.Size, err = Size(path); err != nil {
			return nil, fmt.Errorf("failed to get size of destination: %w", err)
		}
	}

	if info.Size < minSize {
		return nil, fmt.Errorf("%s has %s, at least %s required: %w",
			path, imaging.BytesToString(int(info.Size), true), imaging.BytesToString(int(minSize), true), ErrTooSmall)
	}

	return info, nil
}

func lookupInventory(info *Info) error {
	disks, err := Inventory()
	if err != nil {
		return fmt.Errorf("failed to list block devices: %w", err)
	}

	for _, d := range disks {
		if d.Name == info.Name {
			info.Size = int64(d.SizeBytes)
			info.Model = strings.TrimSpace(d.Model)
			info.Removable = d.IsRemovable
			return nil
		}

		for _, p := range d.Partitions {
			if p.Name == info.Name {
				return fmt.Errorf("%s is a partition of /dev/%s, select the whole disk instead: %w", info.Path, d.Name, ErrPartition)
			}
		}
	}

	return fmt.Errorf("%s is not a disk known to the kernel", info.Path)
}

// List returns the whole disks available for installation.
func List() ([]Info, error) {
	disks, err := Inventory()
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	infos := make([]Info, 0, len(disks))
	for _, d := range disks {
		// zram and loop devices have no partitions worth installing to
		if strings.HasPrefix(d.Name, "zram") || strings.HasPrefix(d.Name, "loop") {
			continue
		}

		infos = append(infos, Info{
			Path:      "/dev/" + d.Name,
			Name:      d.Name,
			Size:      int64(d.SizeBytes),
			Model:     strings.TrimSpace(d.Model),
			Removable: d.IsRemovable,
		})
	}

	return infos, nil
}
