// Package device inspects host hardware and derives an engine/model
// recommendation. Detection is cheap (one syscall, no I/O) and never fails;
// unknown facts degrade to conservative defaults.
package device

import (
	"strconv"
	"strings"

	"edgellm/internal/catalog"
	"edgellm/pkg/types"
)

// Minimum device memory for the embedded engine to be worth offering.
const embeddedMinMemoryMB = 2048

// Memory thresholds for tier classification, applied only when at least one
// catalog model fits the device.
const (
	tierStandardMB = 4000
	tierAdvancedMB = 8000
)

// OS release from which the accelerator universally ships; older releases
// fall back to the chip-family allow-list.
const acceleratorOSFloor = 13

// chipAllowList names chip families known to carry the accelerator on OS
// releases older than acceleratorOSFloor.
var chipAllowList = []string{
	"apple-m",
	"snapdragon-8",
	"tensor-g",
	"dimensity-9",
}

// Probes supply the raw hardware facts. Zero-value fields are replaced with
// platform defaults, so tests and platform bindings can override any subset.
type Probes struct {
	// Memory returns total and available memory in MB; (0, 0) means unknown.
	Memory func() (totalMB, availableMB int64)
	// OSVersion returns the host OS release string, e.g. "14.2".
	OSVersion func() string
	// ChipFamily returns a normalized chip family string, possibly empty.
	ChipFamily func() string
	// SystemRuntime reports availability of the OS-managed model runtime.
	SystemRuntime func(osVersion string) types.RuntimeAvailability
}

// Detector computes DeviceCapability snapshots against a catalog.
type Detector struct {
	cat    *catalog.Catalog
	probes Probes
}

// New builds a detector; zero fields of probes get platform defaults.
func New(cat *catalog.Catalog, probes Probes) *Detector {
	if probes.Memory == nil {
		probes.Memory = platformMemory
	}
	if probes.OSVersion == nil {
		probes.OSVersion = platformOSVersion
	}
	if probes.ChipFamily == nil {
		probes.ChipFamily = platformChipFamily
	}
	if probes.SystemRuntime == nil {
		probes.SystemRuntime = defaultSystemRuntime
	}
	return &Detector{cat: cat, probes: probes}
}

// Detect computes a capability snapshot. Safe to call frequently.
func (d *Detector) Detect() types.DeviceCapability {
	totalMB, availMB := d.probes.Memory()
	if totalMB <= 0 {
		// Unknown hardware: assume a small device rather than a large one.
		totalMB = embeddedMinMemoryMB
	}
	if availMB <= 0 || availMB > totalMB {
		availMB = totalMB / 2
	}
	osVersion := d.probes.OSVersion()
	chip := d.probes.ChipFamily()

	cap := types.DeviceCapability{
		TotalMemoryMB:     totalMB,
		AvailableMemoryMB: availMB,
		OSVersion:         osVersion,
		ChipFamily:        chip,
		HasAccelerator:    hasAccelerator(osVersion, chip),
		SystemRuntime:     d.probes.SystemRuntime(osVersion),
	}

	cap.RecommendedEngine = recommendEngine(cap)
	if m, ok := d.cat.Recommended(availMB); ok {
		cap.RecommendedModelID = m.ID
	}
	cap.Tier = d.Tier(availMB)
	return cap
}

// Tier classifies the device by memory headroom against the catalog. A
// device no catalog model fits is unsupported regardless of raw memory.
func (d *Detector) Tier(availableMB int64) types.DeviceTier {
	if _, ok := d.cat.Recommended(availableMB); !ok {
		return types.TierUnsupported
	}
	switch {
	case availableMB >= tierAdvancedMB:
		return types.TierAdvanced
	case availableMB >= tierStandardMB:
		return types.TierStandard
	default:
		return types.TierBasic
	}
}

// recommendEngine orders backends: the OS-managed runtime wins only when
// actually ready (eligible-but-not-installed is a different answer), then
// the embedded engine when memory and accelerator allow, else none.
func recommendEngine(cap types.DeviceCapability) types.EngineType {
	if cap.SystemRuntime == types.RuntimeReady {
		return types.EngineSystem
	}
	if cap.HasAccelerator && cap.AvailableMemoryMB >= embeddedMinMemoryMB {
		return types.EngineEmbedded
	}
	return types.EngineNone
}

func hasAccelerator(osVersion, chip string) bool {
	if majorVersion(osVersion) >= acceleratorOSFloor {
		return true
	}
	chip = strings.ToLower(chip)
	for _, allowed := range chipAllowList {
		if strings.HasPrefix(chip, allowed) {
			return true
		}
	}
	return false
}

// defaultSystemRuntime knows only the OS version, so it can distinguish
// eligible from unsupported but never claims ready. Platform bindings that
// can ask the OS for the component's install state override this probe.
func defaultSystemRuntime(osVersion string) types.RuntimeAvailability {
	if majorVersion(osVersion) >= acceleratorOSFloor {
		return types.RuntimeEligible
	}
	return types.RuntimeUnsupported
}

// majorVersion parses the leading integer of a release string; 0 if absent.
func majorVersion(v string) int {
	v = strings.TrimSpace(v)
	if i := strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
