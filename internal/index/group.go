package index

import (
	"github.com/starford/todotrail/internal/models"
)

// Unassigned is the group key for records without an author.
const Unassigned = "unassigned"

// Group is a run of records sharing a key.
type Group struct {
	Key         string              `json:"key"`
	Annotations []models.Annotation `json:"annotations"`
}

// GroupByFile groups sorted records by owning file. Groups appear in the
// order of their first record.
func GroupByFile(anns []models.Annotation) []Group {
	return groupBy(anns, func(a models.Annotation) string { return a.File })
}

// GroupByAuthor groups sorted records by author. Records without an author
// share the Unassigned group.
func GroupByAuthor(anns []models.Annotation) []Group {
	return groupBy(anns, func(a models.Annotation) string {
		if a.Author == "" {
			return Unassigned
		}
		return a.Author
	})
}

// GroupBy dispatches on a view mode.
func GroupBy(mode models.ViewMode, anns []models.Annotation) []Group {
	if mode == models.ViewByAuthor {
		return GroupByAuthor(anns)
	}
	return GroupByFile(anns)
}

func groupBy(anns []models.Annotation, key func(models.Annotation) string) []Group {
	var out []Group
	pos := make(map[string]int)
	for _, a := range anns {
		k := key(a)
		i, ok := pos[k]
		if !ok {
			i = len(out)
			pos[k] = i
			out = append(out, Group{Key: k})
		}
		out[i].Annotations = append(out[i].Annotations, a)
	}
	return out
}
