package disk

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/mount-utils"
)

// UnmountAll unmounts the disk and all of its partitions before the disk is
// repartitioned. Nested mounts are unmounted first.
func UnmountAll(mounter mount.Interface, device string) ([]string, error) {
	mounts, err := mounter.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts: %w", err)
	}

	var targets []string
	for _, mp := range mounts {
		if BelongsTo(mp.Device, device) {
			targets = append(targets, mp.Path)
		}
	}

	// deepest mount points first
	sort.Slice(targets, func(i, j int) bool {
		return strings.Count(targets[i], "/") > strings.Count(targets[j], "/")
	})

	for _, target := range targets {
		if err := mounter.Unmount(target); err != nil {
			return nil, fmt.Errorf("failed to unmount %s: %w", target, err)
		}
	}

	return targets, nil
}

// BelongsTo reports whether dev is device itself or one of its partitions.
func BelongsTo(dev, device string) bool {
	if dev == device {
		return true
	}

	rest, ok := strings.CutPrefix(dev, device)
	if !ok || rest == "" {
		return false
	}

	last := device[len(device)-1]
	if last >= '0' && last <= '9' {
		if rest[0] != 'p' {
			return false
		}
		rest = rest[1:]
	}

	if rest == "" {
		return false
	}

	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
