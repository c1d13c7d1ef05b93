package device

import (
	"sort"
	"testing"
)

func TestDriverInfoListSorting(t *testing.T) {
	origlist := DriverInfoList{
		{Order: DetectOrderNormal},
		{Order: DetectOrderLast},
		{Order: DetectOrderNormal + 1},
		{Order: DetectOrderEarly},
	}

	sorted := append(DriverInfoList(nil), origlist...)
	sort.Stable(sorted)

	expOrder := []int{3, 0, 2, 1}
	for i, exp := range expOrder {
		if sorted[i] != origlist[exp] {
			t.Errorf("expected sorted entry %d to be %v; got %v", i, origlist[exp], sorted[i])
		}
	}
}
