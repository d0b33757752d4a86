package conversation

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/sheetfit/trackerbot/internal/model"
)

// dateLayouts are tried in order before falling back to fuzzy parsing.
var dateLayouts = []string{
	"Jan 2",
	"Jan 2 2006",
	"2 Jan",
	"2006-01-02",
	"02.01.2006",
}

// parseTargetDate interprets the user's date message relative to now.
// Layouts without a year get now's year. Anything unparseable is a
// validation error so the caller can re-prompt.
func parseTargetDate(now time.Time, text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}

	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, text, now.Location())
		if err != nil {
			continue
		}
		if d.Year() == 0 {
			d = time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
		}
		return d, nil
	}

	d, err := dateparse.ParseIn(text, now.Location())
	if err != nil {
		return time.Time{}, model.NewValidationError("date", "could not understand that date")
	}
	if d.Year() == 0 {
		d = time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
	}
	return d, nil
}
