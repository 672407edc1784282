package panchaanga

import (
	"time"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// Interval is a half-open window [Start, End). Instants are represented
// with Start == End.
type Interval struct {
	Start julian.Day `json:"start"`
	End   julian.Day `json:"end"`
}

// Duration returns the interval's length in days.
func (i Interval) Duration() float64 { return i.End.Sub(i.Start) }

// IsInstant reports whether the interval has zero length.
func (i Interval) IsInstant() bool { return i.Start == i.End }

// part returns the num-th of den equal parts of i, counting from zero.
func (i Interval) part(num, den int) Interval {
	step := i.Duration() / float64(den)
	return Interval{
		Start: i.Start.Add(step * float64(num)),
		End:   i.Start.Add(step * float64(num+1)),
	}
}

// Kaala names usable as a rule's reference instant or window.
const (
	KaalaSunrise   = "sunrise"
	KaalaSunset    = "sunset"
	KaalaMoonrise  = "moonrise"
	KaalaMoonset   = "moonset"
	KaalaArunodaya = "arunodaya"
	KaalaBraahma   = "braahma"

	KaalaPraatahSandhyaa = "praatah_sandhyaa"
	KaalaPraatah         = "praatah"
	KaalaSaangava        = "saangava"
	KaalaMadhyaahna      = "madhyaahna"
	KaalaMaadhyaahnika   = "maadhyaahnika_sandhyaa"
	KaalaAparaahna       = "aparaahna"
	KaalaSaayaahna       = "saayaahna"
	KaalaSaayamSandhyaa  = "saayam_sandhyaa"

	KaalaPradosha     = "pradosha"
	KaalaNishiitha    = "nishiitha"
	KaalaRaatriYaama1 = "raatri_yaama_1"
	KaalaShayana      = "shayana"
	KaalaDinaanta     = "dinaanta"

	KaalaRahu   = "rahu"
	KaalaYama   = "yama"
	KaalaGulika = "gulika"
)

type base int

const (
	prevNight base = iota
	daytime
	night
)

type fraction struct {
	base     base
	num, den int
}

// kaalaTable divides the previous night, the day and the following night
// into named parts.
var kaalaTable = map[string]fraction{
	KaalaBraahma:      {prevNight, 13, 15},
	KaalaArunodaya:    {prevNight, 14, 15},
	KaalaPraatah:      {daytime, 0, 5},
	KaalaSaangava:     {daytime, 1, 5},
	KaalaMadhyaahna:   {daytime, 2, 5},
	KaalaAparaahna:    {daytime, 3, 5},
	KaalaSaayaahna:    {daytime, 4, 5},
	KaalaPradosha:     {night, 0, 5},
	KaalaNishiitha:    {night, 7, 15},
	KaalaRaatriYaama1: {night, 1, 4},
	KaalaShayana:      {night, 3, 8},
	KaalaDinaanta:     {night, 5, 8},
}

// sandhyaaTable spans each sandhyaa from the start of one part to the
// start of another, crossing sunrise and sunset for the morning and
// evening ones.
var sandhyaaTable = map[string][2]fraction{
	KaalaPraatahSandhyaa: {{prevNight, 14, 15}, {daytime, 4, 15}},
	KaalaMaadhyaahnika:   {{daytime, 5, 15}, {daytime, 13, 15}},
	KaalaSaayamSandhyaa:  {{daytime, 14, 15}, {night, 1, 15}},
}

// Octets of the day occupied by rahu, yama and gulika kaala, by weekday
// starting from Sunday.
var (
	rahuOctet   = [7]int{7, 1, 6, 4, 5, 3, 2}
	yamaOctet   = [7]int{4, 3, 2, 1, 0, 6, 5}
	gulikaOctet = [7]int{6, 5, 4, 3, 2, 1, 0}
)

// IsKaala reports whether name is a known kaala.
func IsKaala(name string) bool {
	switch name {
	case KaalaSunrise, KaalaSunset, KaalaMoonrise, KaalaMoonset,
		KaalaRahu, KaalaYama, KaalaGulika:
		return true
	}
	if _, ok := sandhyaaTable[name]; ok {
		return true
	}
	_, ok := kaalaTable[name]
	return ok
}

// KaalaNames lists every known kaala.
func KaalaNames() []string {
	names := []string{KaalaSunrise, KaalaSunset, KaalaMoonrise, KaalaMoonset, KaalaRahu, KaalaYama, KaalaGulika}
	for name := range kaalaTable {
		names = append(names, name)
	}
	for name := range sandhyaaTable {
		names = append(names, name)
	}
	return names
}

func computeKaalas(weekday time.Weekday, prev, day, next Interval) map[string]Interval {
	of := func(f fraction) Interval {
		var in Interval
		switch f.base {
		case prevNight:
			in = prev
		case daytime:
			in = day
		default:
			in = next
		}
		return in.part(f.num, f.den)
	}

	out := make(map[string]Interval, len(kaalaTable)+len(sandhyaaTable)+3)
	for name, f := range kaalaTable {
		out[name] = of(f)
	}
	for name, span := range sandhyaaTable {
		out[name] = Interval{Start: of(span[0]).Start, End: of(span[1]).Start}
	}
	out[KaalaRahu] = day.part(rahuOctet[weekday], 8)
	out[KaalaYama] = day.part(yamaOctet[weekday], 8)
	out[KaalaGulika] = day.part(gulikaOctet[weekday], 8)
	return out
}
