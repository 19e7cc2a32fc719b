// Package logger is the process-wide leveled logger. Debug and Info are
// printed only in verbose mode; Warn and Error always print.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr

	debugTag = color.New(color.FgHiBlack).SprintFunc()
	infoTag  = color.New(color.FgCyan).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func Debug(format string, args ...any) {
	logf(true, debugTag("[DEBUG]"), format, args...)
}

func Info(format string, args ...any) {
	logf(true, infoTag("[INFO]"), format, args...)
}

func Warn(format string, args ...any) {
	logf(false, warnTag("[WARN]"), format, args...)
}

func Error(format string, args ...any) {
	logf(false, errorTag("[ERROR]"), format, args...)
}

// Section prints a header in verbose mode.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

func logf(verboseOnly bool, tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verboseOnly && !verbose {
		return
	}
	fmt.Fprintf(output, "%s %s "+format+"\n", append([]any{time.Now().Format("15:04:05"), tag}, args...)...)
}
