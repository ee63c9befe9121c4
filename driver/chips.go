package driver

import (
	"github.com/dolthub/swiss"
)

// ChipFamily groups chips that share an engine generation
type ChipFamily int

const (
	FamilyUnknown ChipFamily = iota
	FamilyR100
	FamilyRV100
	FamilyRS100
	FamilyRV200
	FamilyRS200
	FamilyR200
	FamilyRV250
	FamilyRS300
	FamilyRV280
	FamilyR300
	FamilyR350
	FamilyRV350
	FamilyRV380
	FamilyR420
	FamilyRV410
	FamilyRS400
	FamilyRS480
	FamilyRS600
	FamilyRS690
	FamilyRS740
	FamilyRV515
	FamilyR520
	FamilyRV530
	FamilyRV560
	FamilyRV570
	FamilyR580
	FamilyR600
	FamilyRV610
	FamilyRV630
	FamilyRV670
	FamilyRS780
	FamilyRV770
)

var chipFamilyMapping = make(map[ChipFamily]string)

func init() {
	chipFamilyMapping[FamilyUnknown] = "Unknown"
	chipFamilyMapping[FamilyR100] = "R100"
	chipFamilyMapping[FamilyRV100] = "RV100"
	chipFamilyMapping[FamilyRS100] = "RS100"
	chipFamilyMapping[FamilyRV200] = "RV200"
	chipFamilyMapping[FamilyRS200] = "RS200"
	chipFamilyMapping[FamilyR200] = "R200"
	chipFamilyMapping[FamilyRV250] = "RV250"
	chipFamilyMapping[FamilyRS300] = "RS300"
	chipFamilyMapping[FamilyRV280] = "RV280"
	chipFamilyMapping[FamilyR300] = "R300"
	chipFamilyMapping[FamilyR350] = "R350"
	chipFamilyMapping[FamilyRV350] = "RV350"
	chipFamilyMapping[FamilyRV380] = "RV380"
	chipFamilyMapping[FamilyR420] = "R420"
	chipFamilyMapping[FamilyRV410] = "RV410"
	chipFamilyMapping[FamilyRS400] = "RS400"
	chipFamilyMapping[FamilyRS480] = "RS480"
	chipFamilyMapping[FamilyRS600] = "RS600"
	chipFamilyMapping[FamilyRS690] = "RS690"
	chipFamilyMapping[FamilyRS740] = "RS740"
	chipFamilyMapping[FamilyRV515] = "RV515"
	chipFamilyMapping[FamilyR520] = "R520"
	chipFamilyMapping[FamilyRV530] = "RV530"
	chipFamilyMapping[FamilyRV560] = "RV560"
	chipFamilyMapping[FamilyRV570] = "RV570"
	chipFamilyMapping[FamilyR580] = "R580"
	chipFamilyMapping[FamilyR600] = "R600"
	chipFamilyMapping[FamilyRV610] = "RV610"
	chipFamilyMapping[FamilyRV630] = "RV630"
	chipFamilyMapping[FamilyRV670] = "RV670"
	chipFamilyMapping[FamilyRS780] = "RS780"
	chipFamilyMapping[FamilyRV770] = "RV770"
}

func (f ChipFamily) String() string {
	if name, ok := chipFamilyMapping[f]; ok {
		return name
	}
	return "Unknown"
}

// HasTCL reports whether the family has a hardware transform and lighting unit. The
// integrated parts before R600 do not.
func (f ChipFamily) HasTCL() bool {
	switch f {
	case FamilyRS100, FamilyRS200, FamilyRS300, FamilyRS400, FamilyRS480, FamilyRS600, FamilyRS690, FamilyRS740:
		return false
	}
	return true
}

// ChipInfo describes one PCI device id
type ChipInfo struct {
	DeviceID uint16
	Name     string
	Family   ChipFamily
	Mobility bool
	IGP      bool
}

// ChipTable resolves PCI device ids. Enumeration of the PCI bus is the host's job.
type ChipTable interface {
	Lookup(deviceID uint16) (ChipInfo, bool)
}

// MapChipTable is a ChipTable held in memory
type MapChipTable struct {
	chips *swiss.Map[uint16, ChipInfo]
}

// NewChipTable creates a table holding chips. Later entries replace earlier ones with
// the same device id.
func NewChipTable(chips ...ChipInfo) *MapChipTable {
	table := &MapChipTable{chips: swiss.NewMap[uint16, ChipInfo](uint32(len(chips)))}
	for _, chip := range chips {
		table.chips.Put(chip.DeviceID, chip)
	}
	return table
}

func (t *MapChipTable) Lookup(deviceID uint16) (ChipInfo, bool) {
	return t.chips.Get(deviceID)
}

func (t *MapChipTable) Len() int {
	return t.chips.Count()
}

// KnownChips is a sample of the device ids the radeon kernel driver binds to
var KnownChips = []ChipInfo{
	{DeviceID: 0x5144, Name: "ATI Radeon QD (AGP)", Family: FamilyR100},
	{DeviceID: 0x5159, Name: "ATI Radeon VE/7000 QY (AGP/PCI)", Family: FamilyRV100},
	{DeviceID: 0x4C59, Name: "ATI Radeon Mobility M6 LY (AGP)", Family: FamilyRV100, Mobility: true},
	{DeviceID: 0x4136, Name: "ATI Radeon IGP320 (A3) 4136", Family: FamilyRS100, IGP: true},
	{DeviceID: 0x5157, Name: "ATI Radeon 7500 QW (AGP/PCI)", Family: FamilyRV200},
	{DeviceID: 0x514C, Name: "ATI Radeon 8500 QL (AGP)", Family: FamilyR200},
	{DeviceID: 0x4966, Name: "ATI Radeon 9000/PRO If (AGP/PCI)", Family: FamilyRV250},
	{DeviceID: 0x5960, Name: "ATI Radeon 9250 5960 (AGP)", Family: FamilyRV280},
	{DeviceID: 0x4E44, Name: "ATI Radeon 9700 Pro ND (AGP)", Family: FamilyR300},
	{DeviceID: 0x4E48, Name: "ATI Radeon 9800 Pro NH (AGP)", Family: FamilyR350},
	{DeviceID: 0x4150, Name: "ATI Radeon 9600 AP (AGP)", Family: FamilyRV350},
	{DeviceID: 0x5B60, Name: "ATI Radeon X300 (RV370) 5B60 (PCIE)", Family: FamilyRV380},
	{DeviceID: 0x4A49, Name: "ATI Radeon X800PRO (R420) JI (AGP)", Family: FamilyR420},
	{DeviceID: 0x5A41, Name: "ATI Radeon XPRESS 200 5A41 (PCIE)", Family: FamilyRS400, IGP: true},
	{DeviceID: 0x7146, Name: "ATI Radeon X1300/X1550", Family: FamilyRV515},
	{DeviceID: 0x7100, Name: "ATI Radeon X1800", Family: FamilyR520},
	{DeviceID: 0x71C5, Name: "ATI Mobility Radeon X1600", Family: FamilyRV530, Mobility: true},
	{DeviceID: 0x7249, Name: "ATI Radeon X1900", Family: FamilyR580},
	{DeviceID: 0x791E, Name: "ATI Radeon X1200", Family: FamilyRS690, IGP: true},
	{DeviceID: 0x9400, Name: "ATI Radeon HD 2900 XT", Family: FamilyR600},
	{DeviceID: 0x94C3, Name: "ATI Radeon HD 2400 PRO", Family: FamilyRV610},
	{DeviceID: 0x9589, Name: "ATI Radeon HD 3600 Series", Family: FamilyRV630},
	{DeviceID: 0x9501, Name: "ATI Radeon HD 3870", Family: FamilyRV670},
	{DeviceID: 0x9610, Name: "ATI Radeon HD 3200 Graphics", Family: FamilyRS780, IGP: true},
	{DeviceID: 0x9440, Name: "ATI Radeon 4800 Series", Family: FamilyRV770},
}
