// exec.go ties the agent to a single externally-spawned process: run
// it, tell every interested plugin there is a new process worth
// measuring, and propagate its exit status — grounded on
// original_source/app-agent/src/exec_process.rs.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/eventbus"
)

// runExternalCommand spawns command with args, publishes a
// StartConsumerMeasurement event once it has a pid, waits for it to
// exit, and returns the exit code to propagate: the child's own code on
// a normal exit, or 64 for every other failure mode (matching the
// original's catch-all convention for operational errors distinct from
// the monitored program's own exit status).
func runExternalCommand(bus *eventbus.Bus, logger *zap.Logger, command string, args []string) int {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "executable file not found") {
			hintNotFound(logger, command, args)
		} else if errors.Is(err, os.ErrPermission) {
			hintPermissionDenied(logger, command)
		} else {
			logger.Error("failed to start child process", zap.String("command", command), zap.Error(err))
		}
		return 64
	}

	pid := cmd.Process.Pid
	logger.Info("child process spawned", zap.String("command", command), zap.Int("pid", pid))
	bus.Publish(eventbus.StartConsumerMeasurement{
		Consumers: []eventbus.ResourceConsumerRef{{PID: pid}},
	})

	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	logger.Error("failed to wait for child process", zap.Error(err))
	return 64
}

func hintPermissionDenied(logger *zap.Logger, command string) {
	info, err := os.Stat(command)
	if err != nil {
		logger.Error("command is not executable and its metadata could not be read", zap.String("command", command), zap.Error(err))
		return
	}
	logger.Error("command exists but is not executable", zap.String("command", command), zap.String("mode", info.Mode().String()))
	logger.Info(fmt.Sprintf("hint: try 'chmod +x %s'", command))
}

func hintNotFound(logger *zap.Logger, command string, args []string) {
	logger.Error("command not found", zap.String("command", command))

	entries, err := os.ReadDir(".")
	if err != nil {
		return
	}

	stripped := strings.TrimPrefix(command, "./")
	best, bestDist := "", -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d := damerauLevenshtein(stripped, e.Name())
		if bestDist == -1 || d < bestDist {
			best, bestDist = e.Name(), d
		}
	}
	if bestDist < 0 || bestDist >= 3 {
		logger.Info("hint: no similarly-named file exists in the current directory; prepend ./ to execute a local file")
		return
	}
	if bestDist == 0 {
		logger.Info(fmt.Sprintf("hint: a file named %q exists in the current directory; prepend ./ to execute it", best))
		logger.Info(fmt.Sprintf("example: %s exec ./%s %s", resolveAgentPath(), best, strings.Join(args, " ")))
		return
	}
	logger.Info(fmt.Sprintf("hint: did you mean ./%s %s", best, strings.Join(args, " ")))
}

// damerauLevenshtein is the classic edit distance with adjacent
// transpositions counted as a single edit, matching the original's
// "distance_with_adjacent_transposition" typo detector.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min3(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min2(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[la][lb]
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func min3(a, b, c int) int { return min2(min2(a, b), c) }

// resolveAgentPath is used only for log hints, never for behavior.
func resolveAgentPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "path/to/agent"
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe
	}
	return resolved
}
