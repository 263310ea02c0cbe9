package quality

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Level is the three-point user-facing quality setting.
type Level int

const (
	// LevelUnset means the caller did not choose; lookups use Medium.
	LevelUnset Level = iota
	Low
	Medium
	High
)

// ErrUnknownLevel is returned by ParseLevel for unrecognized names.
var ErrUnknownLevel = errors.New("unknown quality level")

// ErrNoQualityTable is returned when a codec has no entry in the table.
var ErrNoQualityTable = errors.New("no quality table for codec")

var levelNames = map[string]Level{
	"low":    Low,
	"medium": Medium,
	"high":   High,
	"낮음":     Low,
	"보통":     Medium,
	"높음":     High,
}

// ParseLevel accepts low/medium/high and the Korean labels 낮음/보통/높음.
// An empty string is LevelUnset.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelUnset, nil
	}
	if l, ok := levelNames[s]; ok {
		return l, nil
	}
	return LevelUnset, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// OrDefault resolves LevelUnset to Medium.
func (l Level) OrDefault() Level {
	if l == LevelUnset {
		return Medium
	}
	return l
}

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unset"
	}
}

// Kind names the encoder parameter a quality level is mapped onto.
type Kind int

const (
	// KindCRF is a constant rate factor (-crf).
	KindCRF Kind = iota
	// KindQScale is a fixed quantizer (-q:v / -q:a).
	KindQScale
	// KindBitrate is a target bitrate (-b:a).
	KindBitrate
	// KindQualityFactor is an encoder quality percentage (-quality).
	KindQualityFactor
	// KindPalette is a GIF palette size.
	KindPalette
)

// Direction is the ordering under which a parameter value means better output.
type Direction int

const (
	LowerIsBetter Direction = iota
	HigherIsBetter
)

// Setting is one resolved quality parameter.
type Setting struct {
	Codec     string
	Level     Level
	Kind      Kind
	Flag      string
	Value     int
	Unit      string
	Direction Direction
}

// Token is the flag value as the engine expects it, e.g. "23" or "128k".
func (s Setting) Token() string {
	return strconv.Itoa(s.Value) + s.Unit
}

// Args returns the flag and value pair.
func (s Setting) Args() []string {
	return []string{s.Flag, s.Token()}
}

// BetterThan reports whether s yields higher fidelity than o under the
// codec's own ordering.
func (s Setting) BetterThan(o Setting) bool {
	if s.Direction == HigherIsBetter {
		return s.Value > o.Value
	}
	return s.Value < o.Value
}

type entry struct {
	kind   Kind
	flag   string
	unit   string
	dir    Direction
	values [3]int // low, medium, high
}

type tableKey struct {
	container string
	codec     string
}

// anyContainer matches every container that has no specific row.
const anyContainer = "*"

// Canonical quality table keyed by (container, codec).
var table = map[tableKey]entry{
	{anyContainer, "libx264"}:    {kind: KindCRF, flag: "-crf", dir: LowerIsBetter, values: [3]int{28, 23, 18}},
	{anyContainer, "libvpx-vp9"}: {kind: KindCRF, flag: "-crf", dir: LowerIsBetter, values: [3]int{40, 30, 20}},
	{anyContainer, "libvpx"}:     {kind: KindCRF, flag: "-crf", dir: LowerIsBetter, values: [3]int{36, 24, 10}},
	{anyContainer, "wmv2"}:       {kind: KindQScale, flag: "-q:v", dir: LowerIsBetter, values: [3]int{5, 3, 1}},

	{anyContainer, "libmp3lame"}: {kind: KindQScale, flag: "-q:a", dir: LowerIsBetter, values: [3]int{5, 3, 0}},
	{anyContainer, "libvorbis"}:  {kind: KindQScale, flag: "-q:a", dir: HigherIsBetter, values: [3]int{3, 5, 7}},
	{anyContainer, "libopus"}:    {kind: KindBitrate, flag: "-b:a", unit: "k", dir: HigherIsBetter, values: [3]int{32, 64, 128}},
	{anyContainer, "aac"}:        {kind: KindBitrate, flag: "-b:a", unit: "k", dir: HigherIsBetter, values: [3]int{64, 128, 256}},
	{anyContainer, "wmav2"}:      {kind: KindBitrate, flag: "-b:a", unit: "k", dir: HigherIsBetter, values: [3]int{64, 128, 192}},

	// mjpeg quantizer: 2 is best, 31 worst.
	{"jpg", "mjpeg"}:    {kind: KindQScale, flag: "-q:v", dir: LowerIsBetter, values: [3]int{10, 5, 2}},
	{"jpeg", "mjpeg"}:   {kind: KindQScale, flag: "-q:v", dir: LowerIsBetter, values: [3]int{10, 5, 2}},
	{"webp", "libwebp"}: {kind: KindQualityFactor, flag: "-quality", dir: HigherIsBetter, values: [3]int{60, 80, 95}},
	{"gif", "gif"}:      {kind: KindPalette, flag: "max_colors", dir: HigherIsBetter, values: [3]int{32, 64, 128}},
}

// Codecs whose output is lossless; quality does not apply to them.
var lossless = map[string]bool{
	"pcm_s16le": true,
	"flac":      true,
	"png":       true,
	"bmp":       true,
	"tiff":      true,
}

// IsLossless reports whether quality levels are meaningless for codec.
func IsLossless(codec string) bool {
	return lossless[codec]
}

// Lookup resolves the parameter for (container, codec, level). A
// container-specific row wins over the wildcard row. An unset level resolves
// to the codec's medium value.
func Lookup(container, codec string, level Level) (Setting, error) {
	e, ok := table[tableKey{container, codec}]
	if !ok {
		e, ok = table[tableKey{anyContainer, codec}]
	}
	if !ok {
		return Setting{}, fmt.Errorf("%w %q (container %q)", ErrNoQualityTable, codec, container)
	}
	level = level.OrDefault()
	return Setting{
		Codec:     codec,
		Level:     level,
		Kind:      e.kind,
		Flag:      e.flag,
		Value:     e.values[level-Low],
		Unit:      e.unit,
		Direction: e.dir,
	}, nil
}

// MapQuality resolves the parameter for codec in any container.
func MapQuality(level Level, codec string) (Setting, error) {
	return Lookup(anyContainer, codec, level)
}

// VideoFallback is the explicit medium default applied to video codecs with
// no table row. Callers log when they use it.
func VideoFallback(codec string) Setting {
	return Setting{
		Codec:     codec,
		Level:     Medium,
		Kind:      KindCRF,
		Flag:      "-crf",
		Value:     23,
		Direction: LowerIsBetter,
	}
}

// MapPreset returns the x264 speed/size preset for a level. An unset level
// is medium, matching the CRF it is paired with.
func MapPreset(level Level) string {
	switch level.OrDefault() {
	case Low:
		return "veryfast"
	case High:
		return "slow"
	default:
		return "medium"
	}
}

// MapCPUUsed returns the libvpx -cpu-used speed for a level.
func MapCPUUsed(level Level) int {
	switch level {
	case Low:
		return 8
	case High:
		return 2
	default:
		return 4
	}
}

// PaletteColors returns the GIF palette size for a level.
func PaletteColors(level Level) int {
	s, err := Lookup("gif", "gif", level)
	if err != nil {
		return 64
	}
	return s.Value
}

// DitherMode returns the paletteuse dither option for a level. Low and high
// use nearest-color; medium uses ordered Bayer dithering.
func DitherMode(level Level) string {
	switch level.OrDefault() {
	case Medium:
		return "bayer:bayer_scale=3"
	default:
		return "none"
	}
}

// OptimizeLevel returns the gifsicle --optimize level for a level.
func OptimizeLevel(level Level) int {
	switch level {
	case Low:
		return 1
	case High:
		return 3
	default:
		return 2
	}
}

// ParseBitrate parses a bitrate token such as "2000k", "2M" or "128000"
// into bits per second.
func ParseBitrate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty bitrate")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1000
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1000 * 1000
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	return n * mult, nil
}

// FormatBitrate renders bits per second as an engine token, preferring "k".
func FormatBitrate(bps int64) string {
	if bps%1000 == 0 {
		return strconv.FormatInt(bps/1000, 10) + "k"
	}
	return strconv.FormatInt(bps, 10)
}
