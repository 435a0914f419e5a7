package articlesync

import "github.com/SergeyParamoshkin/blog/internal/model"

// Apply returns list with ev applied. Inserts are prepended without
// re-sorting, updates replace the entry with the same id in place and
// deletes remove it. Updates and deletes that match nothing leave list as
// is. Events carrying no row are ignored.
func Apply(list []model.Article, ev model.ChangeEvent) []model.Article {
	switch ev.Type {
	case model.EventInsert:
		if ev.New == nil {
			return list
		}
		out := make([]model.Article, 0, len(list)+1)
		out = append(out, *ev.New)
		return append(out, list...)

	case model.EventUpdate:
		if ev.New == nil {
			return list
		}
		for i := range list {
			if list[i].ID == ev.New.ID {
				out := append([]model.Article(nil), list...)
				out[i] = *ev.New
				return out
			}
		}
		return list

	case model.EventDelete:
		if ev.Old == nil {
			return list
		}
		out := make([]model.Article, 0, len(list))
		for _, a := range list {
			if a.ID != ev.Old.ID {
				out = append(out, a)
			}
		}
		return out
	}

	return list
}
