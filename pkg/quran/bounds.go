// Package quran holds the static surah/ayah layout used to validate reading positions.
package quran

import "fmt"

// SurahCount is the number of surahs in the mushaf.
const SurahCount = 114

// ayahCounts[i] is the number of ayahs in surah i+1.
var ayahCounts = [SurahCount]int{
	7, 286, 200, 176, 120, 165, 206, 75, 129, 109,
	123, 111, 43, 52, 99, 128, 111, 110, 98, 135,
	112, 78, 118, 64, 77, 227, 93, 88, 69, 60,
	34, 30, 73, 54, 45, 83, 182, 88, 75, 85,
	54, 53, 89, 59, 37, 35, 38, 29, 18, 45,
	60, 49, 62, 55, 78, 96, 29, 22, 24, 13,
	14, 11, 11, 18, 12, 12, 30, 52, 52, 44,
	28, 28, 20, 56, 40, 31, 50, 40, 46, 42,
	29, 19, 36, 25, 22, 17, 19, 26, 30, 20,
	15, 21, 11, 8, 8, 19, 5, 8, 8, 11,
	11, 8, 3, 9, 5, 4, 7, 3, 6, 3,
	5, 4, 5, 6,
}

// AyahCount returns the number of ayahs in surah, or 0 when surah is out of range.
func AyahCount(surah int) int {
	if surah < 1 || surah > SurahCount {
		return 0
	}
	return ayahCounts[surah-1]
}

// Validate reports whether (surah, ayah) addresses a real verse.
func Validate(surah, ayah int) error {
	count := AyahCount(surah)
	if count == 0 {
		return fmt.Errorf("surah %d out of range 1-%d", surah, SurahCount)
	}
	if ayah < 1 || ayah > count {
		return fmt.Errorf("ayah %d out of range 1-%d for surah %d", ayah, count, surah)
	}
	return nil
}
