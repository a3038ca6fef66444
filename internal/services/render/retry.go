package render

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"time"
)

// Class says whether a failed encoder run is worth retrying.
type Class int

const (
	// ClassTransient covers resource pressure and interrupted runs; the
	// same invocation may succeed on a quieter machine.
	ClassTransient Class = iota
	// ClassFatal covers everything deterministic: a bad filter program or
	// unreadable input will fail identically every time.
	ClassFatal
)

func (c Class) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "transient"
}

// fatalPatterns match stderr lines that indicate a deterministic failure.
// Checked first: a definite fatal match always wins.
var fatalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no such file or directory`),
	regexp.MustCompile(`(?i)invalid data found when processing input`),
	regexp.MustCompile(`(?i)no such filter`),
	regexp.MustCompile(`(?i)error initializing filter`),
	regexp.MustCompile(`(?i)error reinitializing filters`),
	regexp.MustCompile(`(?i)invalid argument`),
	regexp.MustCompile(`(?i)unable to parse option value`),
	regexp.MustCompile(`(?i)option .+ not found`),
	regexp.MustCompile(`(?i)unknown encoder`),
	regexp.MustCompile(`(?i)permission denied`),
}

// transientPatterns match stderr lines pointing at a machine-state problem.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)resource temporarily unavailable`),
	regexp.MustCompile(`(?i)cannot allocate memory`),
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)input/output error`),
	regexp.MustCompile(`(?i)device or resource busy`),
	regexp.MustCompile(`(?i)too many open files`),
}

// Classify decides whether a failed run may be retried, from the process
// error and captured stderr. Unrecognised failures count as transient so a
// flaky box gets its bounded retries; the attempt cap keeps that honest.
func Classify(err error, stderr string) Class {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	if errors.Is(err, exec.ErrNotFound) {
		return ClassFatal
	}
	for _, p := range fatalPatterns {
		if p.MatchString(stderr) {
			return ClassFatal
		}
	}
	for _, p := range transientPatterns {
		if p.MatchString(stderr) {
			return ClassTransient
		}
	}
	return ClassTransient
}

// Backoff returns the delay before retry number attempt (0-based),
// doubling from base and capped at one minute.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if max := time.Minute; d > max || d <= 0 {
		return time.Minute
	}
	return d
}
