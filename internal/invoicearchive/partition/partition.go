// Package partition holds the naming and calendar rules for quarterly invoice partitions.
package partition

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
)

const (
	ParentTable   = "invoices"
	archivePrefix = "invoices_archive"

	MinYear = 2000
	MaxYear = 2999
)

var (
	liveNamePattern   = regexp.MustCompile(`^invoices_([0-9]{4})_q([1-4])$`)
	identifierPattern = regexp.MustCompile(`^invoices(_archive)?(_[0-9]{4}_q[1-4](_[a-z]+(_[a-z]+)*_idx)?)?$`)
)

// Name returns the live partition name for a quarter, e.g. invoices_2024_q1.
func Name(year, quarter int) string {
	return fmt.Sprintf("%s_%d_q%d", ParentTable, year, quarter)
}

// ArchiveName returns the archive twin name, e.g. invoices_archive_2024_q1.
func ArchiveName(year, quarter int) string {
	return fmt.Sprintf("%s_%d_q%d", archivePrefix, year, quarter)
}

// Key returns the partition key, e.g. 2024_q1.
func Key(year, quarter int) string {
	return fmt.Sprintf("%d_q%d", year, quarter)
}

// Parse extracts year and quarter from a live partition name.
func Parse(name string) (year, quarter int, ok bool) {
	m := liveNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	quarter, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return year, quarter, true
}

// ValidateIdentifier rejects any identifier that is not a generated partition,
// archive or index name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidIdentifier, name)
	}
	return nil
}

func ValidYear(year int) bool {
	return year >= MinYear && year <= MaxYear
}

// QuarterOf returns the 1-based quarter that contains t.
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// QuarterStart returns midnight UTC on the first day of the quarter.
func QuarterStart(year, quarter int) time.Time {
	return time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
}

// Range returns the reported inclusive range [start, end] where end is the
// quarter's last second, and the exclusive upper bound used for DDL.
func Range(year, quarter int) (start, end, upper time.Time) {
	start = QuarterStart(year, quarter)
	upper = start.AddDate(0, 3, 0)
	end = upper.Add(-time.Second)
	return start, end, upper
}

// Spec builds the creation spec for a quarter, including its lookup indexes.
func Spec(year, quarter int) domain.PartitionSpec {
	name := Name(year, quarter)
	start, _, upper := Range(year, quarter)
	return domain.PartitionSpec{
		Name:       name,
		Parent:     ParentTable,
		RangeStart: start,
		RangeEnd:   upper,
		Indexes: []domain.IndexSpec{
			{Name: name + "_student_status_idx", Columns: []string{"student_id", "status"}},
			{Name: name + "_type_status_idx", Columns: []string{"type", "status"}},
			{Name: name + "_due_date_status_idx", Columns: []string{"due_date", "status"}},
		},
	}
}

// AgeInMonths counts whole calendar months from end to now; future ends are age 0.
func AgeInMonths(end, now time.Time) int {
	end = end.UTC()
	now = now.UTC()
	months := (now.Year()-end.Year())*12 + int(now.Month()) - int(end.Month())
	if months > 0 && addMonthsClamped(end, months).After(now) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// addMonthsClamped adds months without rolling over: Mar 31 + 3 months is Jun 30.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func AgeInYears(end, now time.Time) int {
	return AgeInMonths(end, now) / 12
}

// Status derives the lifecycle status from age alone.
func Status(policy domain.Policy, end, now time.Time) domain.PartitionStatus {
	age := AgeInMonths(end, now)
	switch {
	case age > policy.CompressAfterMonths:
		return domain.PartitionStatusCompressed
	case age > policy.ArchiveAfterMonths:
		return domain.PartitionStatusArchived
	default:
		return domain.PartitionStatusActive
	}
}
