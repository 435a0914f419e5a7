package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

const dateLayout = "Jan 2, 2006, 3:04 PM"

// formatDate renders the article's timestamp, marking edited articles.
func formatDate(a model.Article, loc *time.Location) string {
	if a.Edited() {
		return a.UpdatedAt.In(loc).Format(dateLayout) + " (edited)"
	}

	return a.CreatedAt.In(loc).Format(dateLayout)
}

func printArticles(w io.Writer, articles []model.Article, loc *time.Location) {
	if len(articles) == 0 {
		fmt.Fprintln(w, "No articles yet.")
		return
	}

	for i, a := range articles {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "#%d  %s\n", a.ID, a.Title)
		fmt.Fprintf(w, "    %s, %s\n", author(a), formatDate(a, loc))
		for _, line := range strings.Split(strings.TrimRight(a.Description, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func author(a model.Article) string {
	if a.UserName != "" {
		return a.UserName
	}

	return a.UserID
}
