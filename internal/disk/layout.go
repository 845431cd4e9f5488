package disk

import (
	"fmt"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/google/uuid"
)

const alignment = 1024 * 1024 // 1 MiB

// Part is one partition of a Layout. Start and End are inclusive sector numbers.
type Part struct {
	Number int
	Name   string
	Type   gpt.Type
	GUID   string
	Start  uint64
	End    uint64
}

// Size returns the size of the partition in bytes.
func (p Part) Size(sectorSize int64) int64 {
	return int64(p.End-p.Start+1) * sectorSize
}

// AlignedSize rounds size up to whole MiB, the granularity partitions are
// laid out in.
func AlignedSize(size int64) int64 {
	return (size + alignment - 1) / alignment * alignment
}

// MinSize is the smallest disk a layout with the given partition sizes fits
// on, including the 1 MiB left free at each end.
func MinSize(espSize, minRootSize int64) int64 {
	return AlignedSize(espSize) + minRootSize + 2*alignment
}

// Layout is the partition table written to the target: an EFI system
// partition followed by a root partition spanning the rest of the disk.
type Layout struct {
	SectorSize int64
	ESP        Part
	Root       Part
}

// NewLayout computes the layout for a disk of size bytes. Like fdisk, 1 MiB
// is left free at both ends of the disk.
func NewLayout(size, sectorSize, espSize int64, minRootSize int64) (*Layout, error) {
	if sectorSize <= 0 || alignment%sectorSize != 0 {
		return nil, fmt.Errorf("unsupported sector size %d", sectorSize)
	}

	align := alignment / sectorSize
	totalSectors := size / sectorSize

	espSectors := AlignedSize(espSize) / sectorSize

	espStart := align
	espEnd := espStart + espSectors - 1
	rootStart := espEnd + 1
	rootEnd := totalSectors - align - 1

	if rootEnd < rootStart || (rootEnd-rootStart+1)*sectorSize < minRootSize {
		return nil, fmt.Errorf("cannot fit a %d byte EFI system partition and a %d byte root partition: %w",
			espSize, minRootSize, ErrTooSmall)
	}

	return &Layout{
		SectorSize: sectorSize,
		ESP: Part{
			Number: 1,
			Name:   "EFI system partition",
			Type:   gpt.EFISystemPartition,
			GUID:   uuid.NewString(),
			Start:  uint64(espStart),
			End:    uint64(espEnd),
		},
		Root: Part{
			Number: 2,
			Name:   "Linux root",
			Type:   gpt.LinuxFilesystem,
			GUID:   uuid.NewString(),
			Start:  uint64(rootStart),
			End:    uint64(rootEnd),
		},
	}, nil
}

// Table returns the GPT partition table for the layout.
func (l *Layout) Table() *gpt.Table {
	parts := make([]*gpt.Partition, 0, 2)
	for _, p := range []Part{l.ESP, l.Root} {
		parts = append(parts, &gpt.Partition{
			Start: p.Start,
			End:   p.End,
			Type:  p.Type,
			Name:  p.Name,
			GUID:  p.GUID,
		})
	}

	return &gpt.Table{
		LogicalSectorSize:  int(l.SectorSize),
		PhysicalSectorSize: int(l.SectorSize),
		ProtectiveMBR:      true,
		Partitions:         parts,
	}
}
