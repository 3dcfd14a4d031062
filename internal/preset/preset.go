// Package preset maps a target size to Ghostscript-style compression parameters.
//
// DESIGN: Pure functions, no I/O:
//   - Select:    target KB → initial Params (tier thresholds 100/150/180/400)
//   - Escalate:  Params → strictly more aggressive Params (floor-clamped)
//   - MaxPasses: target KB → pass budget for the convergence loop
//
// Range checks (50..5000 KB) live in ResolveTarget, which callers run before
// Select. Select itself is total over all ints.
package preset

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// TARGET CLASSES
// =============================================================================

// Class is a caller-selected target size class.
type Class string

const (
	Class100    Class = "100"
	Class150    Class = "150"
	Class180    Class = "180"
	Class400    Class = "400"
	ClassCustom Class = "custom"
)

// Target size bounds for custom targets, in KB.
const (
	MinTargetKB = 50
	MaxTargetKB = 5000

	// DefaultTargetKB matches the form default of the upload page.
	DefaultTargetKB = 150
)

// classTargets maps fixed tiers to their KB budget.
var classTargets = map[Class]int{
	Class100: 100,
	Class150: 150,
	Class180: 180,
	Class400: 400,
}

// ParseClass parses a class name. Numeric strings matching a fixed tier map to
// that tier, any other number is treated as a custom target.
func ParseClass(s string) (Class, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Class150, nil
	}
	c := Class(s)
	if c == ClassCustom {
		return c, nil
	}
	if _, ok := classTargets[c]; ok {
		return c, nil
	}
	if _, err := strconv.Atoi(s); err == nil {
		return ClassCustom, nil
	}
	return "", fmt.Errorf("unknown target class %q", s)
}

// ParseTarget reads a class name and an optional custom size in KB. A set
// custom size with an empty class means custom, and a numeric class that is
// not a fixed tier is itself the custom size. Range checks are left to
// ResolveTarget.
func ParseTarget(class, custom string) (Class, int, error) {
	class = strings.TrimSpace(class)
	custom = strings.TrimSpace(custom)
	if class == "" && custom != "" {
		class = string(ClassCustom)
	}
	c, err := ParseClass(class)
	if err != nil {
		return "", 0, err
	}
	if c != ClassCustom {
		return c, 0, nil
	}

	v := custom
	if v == "" {
		v = class
	}
	kb, err := strconv.Atoi(v)
	if err != nil {
		return "", 0, fmt.Errorf("custom size %q is not a number", v)
	}
	return c, kb, nil
}

// ResolveTarget returns the KB budget for a class. customKB is only consulted
// for ClassCustom and must lie in [MinTargetKB, MaxTargetKB].
func ResolveTarget(class Class, customKB int) (int, error) {
	if kb, ok := classTargets[class]; ok {
		return kb, nil
	}
	if class != ClassCustom {
		return 0, fmt.Errorf("unknown target class %q", class)
	}
	if err := ValidateTarget(customKB); err != nil {
		return 0, err
	}
	return customKB, nil
}

// ValidateTarget checks a custom KB target against the supported range.
func ValidateTarget(kb int) error {
	if kb < MinTargetKB || kb > MaxTargetKB {
		return fmt.Errorf("target size %dKB out of range [%d, %d]", kb, MinTargetKB, MaxTargetKB)
	}
	return nil
}

// =============================================================================
// PARAMETER SETS
// =============================================================================

// Tier names the preset row a Params value was derived from.
type Tier string

const (
	TierExtreme    Tier = "extreme"    // ≤100KB
	TierAggressive Tier = "aggressive" // ≤150KB
	TierModerate   Tier = "moderate"   // ≤180KB
	TierMild       Tier = "mild"       // ≤400KB
	TierDefault    Tier = "default"    // >400KB
)

// QualityPreset is a Ghostscript -dPDFSETTINGS value.
type QualityPreset string

const (
	QualityScreen  QualityPreset = "screen"
	QualityEbook   QualityPreset = "ebook"
	QualityPrinter QualityPreset = "printer"
	QualityDefault QualityPreset = "default"
)

// ColorStrategy controls color conversion of embedded images.
type ColorStrategy string

const (
	ColorKeep ColorStrategy = "color"
	ColorGray ColorStrategy = "gray"
)

// Hard floors and escalation steps.
const (
	MinDPI          = 24
	MinImageQuality = 5
	DPIStep         = 16
	QualityStep     = 10

	// extremeDPI and extremeQuality switch a parameter set into extreme mode.
	extremeDPI     = 72
	extremeQuality = 20
)

// Params is one immutable compression parameter set.
type Params struct {
	Tier          Tier          `json:"tier"`
	QualityPreset QualityPreset `json:"quality_preset"`
	ImageDPI      int           `json:"image_dpi"`
	ImageQuality  int           `json:"image_quality"`
	Color         ColorStrategy `json:"color"`
	Aggressive    bool          `json:"aggressive"`
	Extreme       bool          `json:"extreme"`
}

// String renders the parameter set for logs.
func (p Params) String() string {
	return fmt.Sprintf("%s/%s dpi=%d q=%d color=%s", p.Tier, p.QualityPreset, p.ImageDPI, p.ImageQuality, p.Color)
}

// Select returns the initial parameter set for a target size.
func Select(targetKB int) Params {
	switch {
	case targetKB <= 100:
		return Params{Tier: TierExtreme, QualityPreset: QualityScreen, ImageDPI: 72, ImageQuality: 30, Color: ColorGray, Aggressive: true, Extreme: true}
	case targetKB <= 150:
		return Params{Tier: TierAggressive, QualityPreset: QualityScreen, ImageDPI: 96, ImageQuality: 40, Color: ColorKeep, Aggressive: true}
	case targetKB <= 180:
		return Params{Tier: TierModerate, QualityPreset: QualityEbook, ImageDPI: 150, ImageQuality: 50, Color: ColorKeep}
	case targetKB <= 400:
		return Params{Tier: TierMild, QualityPreset: QualityPrinter, ImageDPI: 200, ImageQuality: 60, Color: ColorKeep}
	default:
		return Params{Tier: TierDefault, QualityPreset: QualityDefault, ImageDPI: 300, ImageQuality: 70, Color: ColorKeep}
	}
}

// Escalate derives the parameter set for the next pass. DPI and quality drop by
// fixed steps and never go below MinDPI / MinImageQuality.
func Escalate(p Params) Params {
	next := p
	next.ImageDPI = max(p.ImageDPI-DPIStep, MinDPI)
	next.ImageQuality = max(p.ImageQuality-QualityStep, MinImageQuality)
	next.QualityPreset = stepDown(p.QualityPreset)
	next.Aggressive = true
	if next.ImageDPI <= extremeDPI || next.ImageQuality <= extremeQuality {
		next.Extreme = true
	}
	if next.Extreme {
		next.Color = ColorGray
	}
	return next
}

// AtFloor reports whether Escalate can no longer lower DPI or quality.
func (p Params) AtFloor() bool {
	return p.ImageDPI <= MinDPI && p.ImageQuality <= MinImageQuality
}

func stepDown(q QualityPreset) QualityPreset {
	switch q {
	case QualityDefault:
		return QualityPrinter
	case QualityPrinter:
		return QualityEbook
	default:
		return QualityScreen
	}
}

// MaxPasses is the pass budget for a target. Small targets are harder to hit
// and get more attempts.
func MaxPasses(targetKB int) int {
	switch {
	case targetKB <= 50:
		return 8
	case targetKB <= 150:
		return 6
	case targetKB <= 400:
		return 2
	default:
		return 1
	}
}

// =============================================================================
// BACKEND-SPECIFIC LEVELS
// =============================================================================

// ConvertAPIPreset maps Params to a ConvertAPI compression preset.
func (p Params) ConvertAPIPreset() string {
	switch p.QualityPreset {
	case QualityScreen:
		return "Web"
	case QualityEbook:
		return "Ebook"
	default:
		return "Printer"
	}
}

// Level maps Params to a coarse three-step level: high, medium or low.
func (p Params) Level() string {
	switch {
	case p.Aggressive:
		return "high"
	case p.QualityPreset == QualityEbook || p.QualityPreset == QualityPrinter:
		return "medium"
	default:
		return "low"
	}
}

// AdobeLevel maps Params to an Adobe PDF Services compressionLevel.
func (p Params) AdobeLevel() string {
	return strings.ToUpper(p.Level())
}

// SmallPDFLevel maps Params to a SmallPDF compression name.
func (p Params) SmallPDFLevel() string {
	switch p.Level() {
	case "high":
		return "extreme"
	case "medium":
		return "recommended"
	default:
		return "less"
	}
}
