// Package calendar converts Gregorian dates to the French Republican
// calendar and answers the date command.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geekingfrog/golem/bot"
)

// monthNames, index 12 being the five or six complementary days closing the
// year.
var monthNames = [...]string{
	"Vendémiaire", "Brumaire", "Frimaire",
	"Nivôse", "Pluviôse", "Ventôse",
	"Germinal", "Floréal", "Prairial",
	"Messidor", "Thermidor", "Fructidor",
	"Sans-Culottides",
}

var dayNames = [...]string{
	"Décadi", "Primedi", "Duodi", "Tridi", "Quartidi",
	"Quintidi", "Sextidi", "Septidi", "Octidi", "Nonidi",
}

// eraEnd is the official abolition of the calendar; conversion extends it
// proleptically from there.
var eraEnd = time.Date(1811, time.September, 23, 0, 0, 0, 0, time.UTC)

var ErrBeforeEra = errors.New("date predates the end of the republican era")

// Date is a date in the republican calendar.
type Date struct {
	Year  int
	Month int // 0 based, indexes monthNames
	Day   int // 1 based
}

// DayName is the name of the day within the ten day week.
func (d Date) DayName() string {
	return dayNames[d.Day%10]
}

func (d Date) String() string {
	return fmt.Sprintf("%d %s %d, %s", d.Day, monthNames[d.Month], d.Year, d.DayName())
}

// Convert maps a Gregorian date to the republican calendar. The republican
// year is recovered by projecting onto a padded Gregorian year so leap years
// line up, then reading year and day-of-year back off the projection.
func Convert(t time.Time) (Date, error) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(eraEnd).Hours() / 24)
	if days < 0 {
		return Date{}, ErrBeforeEra
	}

	const padding = 2000
	fake := time.Date(20+padding, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	dayOfYear := fake.YearDay() - 1
	month := dayOfYear / 30
	return Date{
		Year:  fake.Year() - padding,
		Month: month,
		Day:   dayOfYear - month*30 + 1,
	}, nil
}

// TimeString renders a CTCP TIME reply: clock time plus the republican date.
func TimeString(now time.Time) string {
	now = now.UTC()
	rd, err := Convert(now)
	if err != nil {
		return fmt.Sprintf("TIME %s UTC", now.Format("15:04:05"))
	}
	return fmt.Sprintf("TIME %s UTC - %s", now.Format("15:04:05"), rd)
}

// Plugin answers the date command with today's republican date, or converts
// a given YYYY-MM-DD argument.
type Plugin struct {
	Now func() time.Time
}

func New() *Plugin {
	return &Plugin{Now: time.Now}
}

func (p *Plugin) Name() string { return "calendar" }

func (p *Plugin) Run(ctx context.Context, out bot.Sender) error { return nil }

func (p *Plugin) HandleMessage(ctx context.Context, in bot.Inbound) (*bot.Message, error) {
	cmd, ok := bot.ParseCommand(in.Text)
	if !ok || cmd.Name != "date" {
		return nil, nil
	}

	day := p.Now()
	if len(cmd.Args) > 0 {
		parsed, err := time.Parse("2006-01-02", cmd.Args[0])
		if err != nil {
			return &bot.Message{
				Target: in.Target,
				Text:   bot.WithTarget(fmt.Sprintf("cannot parse date %q, expected YYYY-MM-DD", cmd.Args[0]), cmd.Target),
			}, nil
		}
		day = parsed
	}

	rd, err := Convert(day)
	if err != nil {
		return &bot.Message{
			Target: in.Target,
			Text:   bot.WithTarget("that date predates the republican calendar", cmd.Target),
		}, nil
	}
	return &bot.Message{Target: in.Target, Text: bot.WithTarget(rd.String(), cmd.Target)}, nil
}
