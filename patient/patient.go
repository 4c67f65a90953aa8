package patient

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"tompei-viewer/constants"
	"tompei-viewer/utils"
)

// Index maps a patient id to its annotation files.
type Index map[string][]string

// IDFromFilename returns the patient id prefix of an annotation file name.
func IDFromFilename(path string) string {
	base := filepath.Base(path)
	if len(base) < constants.PatientIDLength {
		return base
	}
	return base[:constants.PatientIDLength]
}

// BuildIndex scans root recursively for annotation files, skipping hidden
// and non-JSON files, and groups them by patient id.
func BuildIndex(root string) (Index, error) {
	files, err := utils.WalkFiles(root, constants.AnnotationExt)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	index := make(Index)
	for _, path := range files {
		id := IDFromFilename(path)
		index[id] = append(index[id], path)
	}
	return index, nil
}

// PatientIDs returns the known patient ids in lexical order.
func (index Index) PatientIDs() []string {
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Files returns the annotation files whose id prefix matches patientID.
func (index Index) Files(patientID string) []string {
	files := make([]string, 0)
	for _, path := range index[patientID] {
		if IDFromFilename(path) == patientID {
			files = append(files, path)
		}
	}
	return files
}

// MatchAnnotation picks the annotation file for an image of the given
// laterality ("L" or "R"). A file naming that laterality wins; otherwise the
// first file is used. It returns "" when files is empty.
func MatchAnnotation(files []string, laterality string) string {
	if len(files) == 0 {
		return ""
	}
	if laterality != "" {
		for _, path := range files {
			if fileLaterality(path) == laterality {
				return path
			}
		}
	}
	return files[0]
}

// fileLaterality reads an L or R token after the patient id, e.g.
// "D1-0001_L_MLO.json" or "D1-0001-R.json".
func fileLaterality(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(base) <= constants.PatientIDLength {
		return ""
	}
	rest := strings.ToUpper(base[constants.PatientIDLength:])
	tokens := strings.FieldsFunc(rest, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	for _, token := range tokens {
		switch token {
		case "L", "LEFT":
			return "L"
		case "R", "RIGHT":
			return "R"
		}
	}
	return ""
}
