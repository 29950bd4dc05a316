package woff2

// knownTags is the fixed 63-entry known-tags table from the WOFF2
// specification. A flag byte's low 6 bits index into this list; index 63
// (0x3F) means "explicit tag follows as a u32" (see readTableDirectory).
var knownTags = [63]string{
	"cmap", "head", "hhea", "hmtx",
	"maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca",
	"prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern",
	"LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS",
	"GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL",
	"SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar",
	"fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar",
	"mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat",
	"Gloc", "Feat", "Sill",
}

// knownTagSlot returns the low-6-bits flag value for tag if it appears in
// knownTags, the inverse of the lookup readTableDirectory performs.
func knownTagSlot(tag string) (int, bool) {
	for i, t := range knownTags {
		if t == tag {
			return i, true
		}
	}
	return 0, false
}
