// Package locale renders timestamps the way the user's locale writes a
// date followed by a time.
package locale

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	golocale "github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
)

const logPrefix = "locale:locale"

// Fallback is used when the system locale cannot be read or parsed.
var Fallback = language.AmericanEnglish

type layout struct {
	date string
	time string
}

var supported = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.Japanese,
	language.Chinese,
	language.German,
	language.French,
	language.Korean,
}

// layouts is indexed like supported.
var layouts = []layout{
	{date: "1/2/2006", time: "3:04:05 PM"},
	{date: "02/01/2006", time: "15:04:05"},
	{date: "2006/1/2", time: "15:04:05"},
	{date: "2006/1/2", time: "15:04:05"},
	{date: "2.1.2006", time: "15:04:05"},
	{date: "02/01/2006", time: "15:04:05"},
	{date: "2006. 1. 2.", time: "PM 3:04:05"},
}

var matcher = language.NewMatcher(supported)

var (
	detectOnce sync.Once
	detected   language.Tag
)

// Detect returns the system locale, read once per process.
func Detect() language.Tag {
	detectOnce.Do(func() {
		detected = Fallback
		name, err := golocale.GetLocale()
		if err != nil || name == "" {
			slog.Debug(fmt.Sprintf("%s - system locale unavailable, using %s", logPrefix, Fallback))
			return
		}
		tag, err := Parse(name)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - cannot parse locale %q: %v", logPrefix, name, err))
			return
		}
		detected = tag
	})
	return detected
}

// Parse reads POSIX ("ja_JP.UTF-8") and BCP 47 ("ja-JP") locale names.
func Parse(name string) (language.Tag, error) {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, ".@"); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "_", "-")
	if name == "" || name == "C" || name == "POSIX" {
		return Fallback, nil
	}
	return language.Parse(name)
}

func layoutFor(tag language.Tag) layout {
	_, idx, _ := matcher.Match(tag)
	if idx < 0 || idx >= len(layouts) {
		return layouts[0]
	}
	return layouts[idx]
}

// FormatDate renders the date part of t for tag.
func FormatDate(t time.Time, tag language.Tag) string {
	return t.Format(layoutFor(tag).date)
}

// FormatTime renders the time-of-day part of t for tag.
func FormatTime(t time.Time, tag language.Tag) string {
	return t.Format(layoutFor(tag).time)
}

// FormatDateTime renders "<date> <time>" for tag.
func FormatDateTime(t time.Time, tag language.Tag) string {
	l := layoutFor(tag)
	return t.Format(l.date) + " " + t.Format(l.time)
}
