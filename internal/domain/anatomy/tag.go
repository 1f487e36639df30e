// Package anatomy infers anatomical sites for catalog entries from keyword
// tables and code ranges.  Everything here is pure and safe for concurrent
// use once constructed.
package anatomy

import "sort"

// Tag is a canonical body-site label.
type Tag string

const (
	TagSkull         Tag = "skull"
	TagMandible      Tag = "mandible"
	TagMaxilla       Tag = "maxilla"
	TagCervicalSpine Tag = "cervical_spine"
	TagThoracicSpine Tag = "thoracic_spine"
	TagLumbarSpine   Tag = "lumbar_spine"
	TagSacrum        Tag = "sacrum"
	TagPelvis        Tag = "pelvis"
	TagRib           Tag = "rib"
	TagSternum       Tag = "sternum"
	TagClavicle      Tag = "clavicle"
	TagScapula       Tag = "scapula"
	TagShoulder      Tag = "shoulder"
	TagHumerus       Tag = "humerus"
	TagElbow         Tag = "elbow"
	TagRadius        Tag = "radius"
	TagUlna          Tag = "ulna"
	TagForearm       Tag = "forearm"
	TagWrist         Tag = "wrist"
	TagHand          Tag = "hand"
	TagFinger        Tag = "finger"
	TagHip           Tag = "hip"
	TagFemur         Tag = "femur"
	TagKnee          Tag = "knee"
	TagPatella       Tag = "patella"
	TagTibia         Tag = "tibia"
	TagFibula        Tag = "fibula"
	TagAnkle         Tag = "ankle"
	TagFoot          Tag = "foot"
	TagToe           Tag = "toe"
	TagHeart         Tag = "heart"
	TagLung          Tag = "lung"
	TagBrain         Tag = "brain"
	TagLiver         Tag = "liver"
	TagKidney        Tag = "kidney"
	TagEye           Tag = "eye"
)

// Region groups tags into coarse body areas.
type Region string

const (
	RegionHead           Region = "head"
	RegionSpine          Region = "spine"
	RegionThorax         Region = "thorax"
	RegionUpperExtremity Region = "upper_extremity"
	RegionLowerExtremity Region = "lower_extremity"
	RegionPelvis         Region = "pelvis"
	RegionCardiac        Region = "cardiac"
	RegionPulmonary      Region = "pulmonary"
	RegionNeurological   Region = "neurological"
	RegionAbdominal      Region = "abdominal"
	RegionOcular         Region = "ocular"
	RegionUnknown        Region = ""
)

var tagRegions = map[Tag]Region{
	TagSkull:         RegionHead,
	TagMandible:      RegionHead,
	TagMaxilla:       RegionHead,
	TagCervicalSpine: RegionSpine,
	TagThoracicSpine: RegionSpine,
	TagLumbarSpine:   RegionSpine,
	TagSacrum:        RegionSpine,
	TagPelvis:        RegionPelvis,
	TagRib:           RegionThorax,
	TagSternum:       RegionThorax,
	TagClavicle:      RegionUpperExtremity,
	TagScapula:       RegionUpperExtremity,
	TagShoulder:      RegionUpperExtremity,
	TagHumerus:       RegionUpperExtremity,
	TagElbow:         RegionUpperExtremity,
	TagRadius:        RegionUpperExtremity,
	TagUlna:          RegionUpperExtremity,
	TagForearm:       RegionUpperExtremity,
	TagWrist:         RegionUpperExtremity,
	TagHand:          RegionUpperExtremity,
	TagFinger:        RegionUpperExtremity,
	TagHip:           RegionLowerExtremity,
	TagFemur:         RegionLowerExtremity,
	TagKnee:          RegionLowerExtremity,
	TagPatella:       RegionLowerExtremity,
	TagTibia:         RegionLowerExtremity,
	TagFibula:        RegionLowerExtremity,
	TagAnkle:         RegionLowerExtremity,
	TagFoot:          RegionLowerExtremity,
	TagToe:           RegionLowerExtremity,
	TagHeart:         RegionCardiac,
	TagLung:          RegionPulmonary,
	TagBrain:         RegionNeurological,
	TagLiver:         RegionAbdominal,
	TagKidney:        RegionAbdominal,
	TagEye:           RegionOcular,
}

// Region returns the body area of t, or RegionUnknown for foreign tags.
func (t Tag) Region() Region { return tagRegions[t] }

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	_, ok := tagRegions[t]
	return ok
}

// AllTags lists every known tag in lexical order.
func AllTags() []Tag {
	out := make([]Tag, 0, len(tagRegions))
	for t := range tagRegions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tags is a sorted, duplicate-free tag set.  The empty set means the site is
// unknown.
type Tags []Tag

// NewTags builds a normalized set from ts.
func NewTags(ts ...Tag) Tags {
	if len(ts) == 0 {
		return nil
	}
	seen := make(map[Tag]struct{}, len(ts))
	out := make(Tags, 0, len(ts))
	for _, t := range ts {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Unknown reports whether no site was inferred.
func (ts Tags) Unknown() bool { return len(ts) == 0 }

// Has reports whether t is in the set.
func (ts Tags) Has(t Tag) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// Overlaps reports whether the sets share a tag.
func (ts Tags) Overlaps(other Tags) bool {
	for _, t := range ts {
		if other.Has(t) {
			return true
		}
	}
	return false
}

// HasRegion reports whether any tag falls in r.
func (ts Tags) HasRegion(r Region) bool {
	for _, t := range ts {
		if t.Region() == r {
			return true
		}
	}
	return false
}

// Regions returns the distinct regions covered, in tag order.
func (ts Tags) Regions() []Region {
	var out []Region
	seen := make(map[Region]struct{})
	for _, t := range ts {
		r := t.Region()
		if _, ok := seen[r]; ok || r == RegionUnknown {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Strings returns the tag names.
func (ts Tags) Strings() []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
