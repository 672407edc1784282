package anga

import "fmt"

var tithiNames = []string{
	"prathamaa", "dvitiiyaa", "tritiiyaa", "chaturthii", "panchamii",
	"shashthii", "saptamii", "ashtamii", "navamii", "dashamii",
	"ekaadashii", "dvaadashii", "trayodashii", "chaturdashii",
}

var nakshatraNames = []string{
	"ashvinii", "bharanii", "krittikaa", "rohinii", "mrigashiraa", "aardraa",
	"punarvasu", "pushya", "aashleshaa", "maghaa", "puurvaphalgunii",
	"uttaraphalgunii", "hasta", "chitraa", "svaatii", "vishaakhaa",
	"anuraadhaa", "jyeshthaa", "muula", "puurvaashaadhaa", "uttaraashaadhaa",
	"shravana", "dhanishthaa", "shatabhishaj", "puurvabhaadrapadaa",
	"uttarabhaadrapadaa", "revatii",
}

var yogaNames = []string{
	"vishkambha", "priiti", "aayushmaan", "saubhaagya", "shobhana",
	"atiganda", "sukarman", "dhriti", "shuula", "ganda", "vriddhi", "dhruva",
	"vyaaghaata", "harshana", "vajra", "siddhi", "vyatiipaata", "variiyaan",
	"parigha", "shiva", "siddha", "saadhya", "shubha", "shukla", "brahman",
	"indra", "vaidhriti",
}

var movableKaranas = []string{
	"bava", "baalava", "kaulava", "taitila", "garaja", "vanija", "vishti",
}

var rashiNames = []string{
	"mesha", "vrishabha", "mithuna", "karkata", "simha", "kanyaa",
	"tulaa", "vrishchika", "dhanus", "makara", "kumbha", "miina",
}

var lunarMonthNames = []string{
	"chaitra", "vaishaakha", "jyeshtha", "aashaadha", "shraavana",
	"bhaadrapada", "aashvayuja", "kaarttika", "maargashiirsha", "pausha",
	"maagha", "phaalguna",
}

// Name returns the name of index within kind, or a numeric fallback for an
// invalid index.
func Name(kind Kind, index int) string {
	if index < 1 || index > kind.Cycle() {
		return fmt.Sprintf("%s#%d", kind, index)
	}
	switch kind {
	case Tithi:
		switch index {
		case 15:
			return "paurnamaasii"
		case 30:
			return "amaavaasyaa"
		}
		return tithiNames[(index-1)%15]
	case Nakshatra:
		return nakshatraNames[index-1]
	case Yoga:
		return yogaNames[index-1]
	case Karana:
		switch {
		case index == 1:
			return "kimstughna"
		case index >= 58:
			return []string{"shakuni", "chatushpaada", "naaga"}[index-58]
		}
		return movableKaranas[(index-2)%7]
	default:
		return rashiNames[index-1]
	}
}

// Paksha returns "shukla" for the waxing half of the lunar month and
// "krishna" for the waning half.
func Paksha(tithi int) string {
	if tithi <= 15 {
		return "shukla"
	}
	return "krishna"
}
