package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one evaluation run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one conversational test.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure represents a failed goal or constraint verdict.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError represents an unexpected error during evaluation.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit converts a batch of test results into one JUnit suite.
func ConvertToJUnit(suiteName string, timestamp time.Time, results []*models.GoalTestResult) *JUnitTestSuites {
	suite := JUnitTestSuite{
		Name:      suiteName,
		Tests:     len(results),
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}

	var totalMs int64
	for _, r := range results {
		totalMs += r.DurationMs
		tc := convertResult(suiteName, r)
		switch r.Status {
		case models.StatusFailed:
			suite.Failures++
		case models.StatusError:
			suite.Errors++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Time = float64(totalMs) / 1000.0

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       suite.Time,
		TestSuites: []JUnitTestSuite{suite},
	}
}

func convertResult(suiteName string, r *models.GoalTestResult) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      r.TestName,
		Classname: suiteName,
		Time:      float64(r.DurationMs) / 1000.0,
	}

	switch r.Status {
	case models.StatusFailed:
		tc.Failure = &JUnitFailure{
			Message: failureMessage(r),
			Type:    "GoalFailure",
			Body:    failureBody(r),
		}
	case models.StatusError:
		tc.Error = &JUnitError{
			Message: r.Summary,
			Type:    "EvaluationError",
		}
	}
	return tc
}

func failureMessage(r *models.GoalTestResult) string {
	failed := r.FailedGoals()
	ids := make([]string, 0, len(failed))
	for _, g := range failed {
		ids = append(ids, g.GoalID)
	}
	if len(ids) == 0 {
		return fmt.Sprintf("%s: constraint violations", r.TestName)
	}
	return fmt.Sprintf("%s: failed goals: %s", r.TestName, strings.Join(ids, ", "))
}

func failureBody(r *models.GoalTestResult) string {
	var b strings.Builder
	for _, g := range r.FailedGoals() {
		fmt.Fprintf(&b, "[GOAL] %s (%s): %s\n", g.GoalID, g.Kind, g.Message)
	}
	for _, v := range r.ConstraintViolations {
		fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(string(v.Severity)), v.Kind, v.Message)
	}
	return b.String()
}

// WriteJUnitXML writes JUnit XML for a batch of results to the given path.
func WriteJUnitXML(suiteName string, timestamp time.Time, results []*models.GoalTestResult, path string) error {
	suites := ConvertToJUnit(suiteName, timestamp, results)

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}

	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0644)
}
