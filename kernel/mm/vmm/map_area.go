package vmm

import (
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
)

// MapType selects how an area's pages are backed.
type MapType uint8

const (
	// MapIdentical maps every page onto the frame with the same number.
	MapIdentical MapType = iota

	// MapFramed backs every page with a freshly allocated frame owned by
	// the area.
	MapFramed
)

// MapPermission is the subset of PTE flags an area may request. The bit
// positions match mm.PTEFlags.
type MapPermission uint8

// Area permissions.
const (
	PermR MapPermission = MapPermission(mm.PTERead)
	PermW MapPermission = MapPermission(mm.PTEWrite)
	PermX MapPermission = MapPermission(mm.PTEExec)
	PermU MapPermission = MapPermission(mm.PTEUser)
)

// MapArea is a contiguous range of virtual pages sharing a mapping type and
// permission.
type MapArea struct {
	vpnRange   mm.VPNRange
	dataFrames map[mm.VirtPageNum]*pmm.FrameTracker
	mapType    MapType
	perm       MapPermission
}

// NewMapArea returns an unmapped area covering [start.Floor(), end.Ceil()).
func NewMapArea(start, end mm.VirtAddr, mapType MapType, perm MapPermission) *MapArea {
	return &MapArea{
		vpnRange:   mm.NewVPNRange(start.Floor(), end.Ceil()),
		dataFrames: make(map[mm.VirtPageNum]*pmm.FrameTracker),
		mapType:    mapType,
		perm:       perm,
	}
}

// cloneLayout returns an unmapped area with the same range, type and
// permission.
func (a *MapArea) cloneLayout() *MapArea {
	return &MapArea{
		vpnRange:   a.vpnRange,
		dataFrames: make(map[mm.VirtPageNum]*pmm.FrameTracker),
		mapType:    a.mapType,
		perm:       a.perm,
	}
}

// Range returns the pages covered by the area.
func (a *MapArea) Range() mm.VPNRange { return a.vpnRange }

// Permission returns the area's access permission.
func (a *MapArea) Permission() MapPermission { return a.perm }

func (a *MapArea) mapOne(pt *PageTable, vpn mm.VirtPageNum) {
	var ppn mm.PhysPageNum
	switch a.mapType {
	case MapIdentical:
		ppn = mm.PhysPageNum(vpn)
	case MapFramed:
		frame := pt.alloc.MustAlloc()
		ppn = frame.PPN
		a.dataFrames[vpn] = frame
	}
	pt.Map(vpn, ppn, mm.PTEFlags(a.perm))
}

func (a *MapArea) unmapOne(pt *PageTable, vpn mm.VirtPageNum) {
	if a.mapType == MapFramed {
		if frame, ok := a.dataFrames[vpn]; ok {
			frame.Release()
			delete(a.dataFrames, vpn)
		}
	}
	pt.Unmap(vpn)
}

func (a *MapArea) mapAll(pt *PageTable) {
	for vpn := a.vpnRange.Start; vpn < a.vpnRange.End; vpn++ {
		a.mapOne(pt, vpn)
	}
}

func (a *MapArea) unmapAll(pt *PageTable) {
	for vpn := a.vpnRange.Start; vpn < a.vpnRange.End; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

func (a *MapArea) shrinkTo(pt *PageTable, newEnd mm.VirtPageNum) {
	for vpn := newEnd; vpn < a.vpnRange.End; vpn++ {
		a.unmapOne(pt, vpn)
	}
	a.vpnRange.End = newEnd
}

func (a *MapArea) appendTo(pt *PageTable, newEnd mm.VirtPageNum) {
	for vpn := a.vpnRange.End; vpn < newEnd; vpn++ {
		a.mapOne(pt, vpn)
	}
	a.vpnRange.End = newEnd
}

// copyData writes data into the mapped area starting offset bytes into its
// first page. The area must be framed and already mapped.
func (a *MapArea) copyData(pt *PageTable, data []byte, offset uint64) {
	vpn := a.vpnRange.Start
	for len(data) != 0 {
		pte, _ := pt.Translate(vpn)
		n := copy(pt.mem.Page(pte.PPN())[offset:], data)
		data = data[n:]
		offset = 0
		vpn++
	}
}
