package health

import (
	"strings"

	"github.com/pkg/errors"
)

// MultiChecker is healthy only when every registered checker is.
type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{checkers: checkers}
}

func (c *MultiChecker) Add(checker Checker) {
	c.checkers = append(c.checkers, checker)
}

func (c *MultiChecker) Check() error {
	var failures []string
	for _, checker := range c.checkers {
		if err := checker.Check(); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}
