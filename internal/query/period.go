package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

var (
	yearRe  = regexp.MustCompile(`^\d{4}$`)
	rangeRe = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
	mrvRe   = regexp.MustCompile(`^mrv:(\d+)$`)
	circaRe = regexp.MustCompile(`^circa:(\d{4})$`)
)

// ParsePeriod turns a command-line period expression into a PeriodSpec.
// Accepted forms: "2020", "2019-2021", "latest", "mrv:3", "circa:2018".
func ParsePeriod(s string) (domain.PeriodSpec, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	switch {
	case s == "" || s == "latest":
		return domain.PeriodSpec{Mode: domain.PeriodLatest}, nil

	case yearRe.MatchString(s):
		year, _ := strconv.Atoi(s)
		return domain.PeriodSpec{Mode: domain.PeriodYear, Year: year}, nil

	case rangeRe.MatchString(s):
		m := rangeRe.FindStringSubmatch(s)
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if start > end {
			return domain.PeriodSpec{}, apperrors.NewValidationError(
				fmt.Sprintf("period range start %d is after end %d", start, end), nil)
		}
		return domain.PeriodSpec{Mode: domain.PeriodRange, Start: start, End: end}, nil

	case mrvRe.MatchString(s):
		m := mrvRe.FindStringSubmatch(s)
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return domain.PeriodSpec{}, apperrors.NewValidationError("mrv count must be at least 1", nil)
		}
		return domain.PeriodSpec{Mode: domain.PeriodMostRecent, N: n}, nil

	case circaRe.MatchString(s):
		m := circaRe.FindStringSubmatch(s)
		year, _ := strconv.Atoi(m[1])
		return domain.PeriodSpec{Mode: domain.PeriodCirca, Year: year}, nil
	}

	return domain.PeriodSpec{}, apperrors.NewMalformedPeriodError(s)
}
