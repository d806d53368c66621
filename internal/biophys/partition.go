package biophys

// WaterClass is the water class of the partition dictionary. Products are
// forced to zero there.
const WaterClass = 18

// Classes is the land-cover dictionary partitions are expressed in
// (NALCMS 2010 legend). 0 is no data.
var Classes = map[int]string{
	1:  "temperate or sub-polar needleleaf forest",
	2:  "sub-polar taiga needleleaf forest",
	3:  "tropical or sub-tropical broadleaf evergreen forest",
	4:  "tropical or sub-tropical broadleaf deciduous forest",
	5:  "temperate or sub-polar broadleaf deciduous forest",
	6:  "mixed forest",
	7:  "tropical or sub-tropical shrubland",
	8:  "temperate or sub-polar shrubland",
	9:  "tropical or sub-tropical grassland",
	10: "temperate or sub-polar grassland",
	11: "sub-polar or polar shrubland-lichen-moss",
	12: "sub-polar or polar grassland-lichen-moss",
	13: "sub-polar or polar barren-lichen-moss",
	14: "wetland",
	15: "cropland",
	16: "barren land",
	17: "urban",
	18: "water",
	19: "snow and ice",
}

// cglsRemap folds the 23 discrete classes of the Copernicus global land
// cover (CGLS-LC100) onto the dictionary above.
var cglsRemap = map[int]int{
	0:   0,
	20:  8,  // shrubs
	30:  10, // herbaceous vegetation
	40:  15, // cultivated
	50:  17, // urban
	60:  16, // bare
	70:  19, // snow and ice
	80:  18, // permanent water
	90:  14, // herbaceous wetland
	100: 13, // moss and lichen
	111: 1,  // closed evergreen needleleaf
	112: 3,  // closed evergreen broadleaf
	113: 1,  // closed deciduous needleleaf
	114: 5,  // closed deciduous broadleaf
	115: 6,  // closed mixed
	116: 6,  // closed unknown
	121: 1,  // open evergreen needleleaf
	122: 3,  // open evergreen broadleaf
	123: 1,  // open deciduous needleleaf
	124: 5,  // open deciduous broadleaf
	125: 6,  // open mixed
	126: 6,  // open unknown
	200: 18, // open sea
}

// RemapCGLS converts a CGLS-LC100 discrete classification to the partition
// dictionary. Unknown codes become 0.
func RemapCGLS(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(cglsRemap[int(v)])
	}
	return out
}
