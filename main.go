package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var version = "1.2.1"
var logger *Logger

// Args holds the parsed CLI surface.
type Args struct {
	File          string
	Shell         string
	Verbose       bool
	Version       bool
	Help          bool
	Timeout       int
	TimeoutSet    bool
	RetryInterval int
	OutputTimeout int
}

func main() {
	cli := parseArgs(os.Args[1:])

	bootstrapSeverity := SeverityWarn
	if cli.Verbose {
		bootstrapSeverity = SeverityInfo
	}
	logger = newLogger(bootstrapSeverity)

	fmt.Print(purple("\n--------------\n"))
	fmt.Printf("%s\n", purple(fmt.Sprintf("shrun v%s", version)))
	fmt.Print(purple("--------------\n\n"))

	if cli.Version {
		os.Exit(0)
	}

	if cli.Help || cli.File == "" {
		printHelp()
		if cli.File == "" && !cli.Help {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if !fileExists(cli.File) {
		logger.log(SeverityError, OpError, "file not found: %s", cli.File)
		os.Exit(1)
	}

	doc, err := LoadDocument(cli.File)
	if err != nil {
		logger.log(SeverityError, OpError, "failed to load %s: %v", cli.File, err)
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "shrun-")
	if err != nil {
		logger.log(SeverityError, OpError, "failed to create temp dir: %v", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	rc := &RunController{
		Shell:         cli.Shell,
		RetryInterval: time.Duration(cli.RetryInterval) * time.Second,
		OutputTimeout: time.Duration(cli.OutputTimeout) * time.Second,
		TmpDir:        tmpDir,
		Logger:        logger,
	}
	if cli.TimeoutSet {
		rc.Timeout = time.Duration(cli.Timeout) * time.Second
	}

	results := rc.Run(doc)
	rc.PrintSummary(results)

	if !results.Passed() {
		os.Exit(1)
	}
}

// handleArgFlag parses flags with arguments.
func (c *Args) handleArgFlag(flagName, attachedValue string, args []string, currentIndex int) int {
	var value string
	newIndex := currentIndex
	if attachedValue != "" {
		value = attachedValue
	} else {
		value, newIndex = parseValueFlag(args, currentIndex)
	}
	switch flagName {
	case "shell":
		c.Shell = value
	case "timeout":
		if n, err := strconv.Atoi(value); err == nil {
			c.Timeout = n
			c.TimeoutSet = true
		}
	case "retry_interval":
		if n, err := strconv.Atoi(value); err == nil {
			c.RetryInterval = n
		}
	case "output-timeout":
		if n, err := strconv.Atoi(value); err == nil {
			c.OutputTimeout = n
		}
	}
	return newIndex
}

// handleBoolFlag parses boolean flags.
func (c *Args) handleBoolFlag(flagName string) {
	switch flagName {
	case "help":
		c.Help = true
	case "version":
		c.Version = true
	case "verbose":
		c.Verbose = true
	}
}

// parseArgs parses command line arguments into Args, applying the spec's
// defaults before any flags are read.
func parseArgs(args []string) *Args {
	c := &Args{
		Shell:         "/bin/bash",
		Verbose:       true,
		RetryInterval: 1,
		OutputTimeout: 300,
	}

	knownFlagsWithArg := map[string]bool{
		"shell": true, "timeout": true, "retry_interval": true, "output-timeout": true,
	}
	knownBoolFlags := map[string]bool{
		"help": true, "version": true, "verbose": true,
	}
	shortFlags := map[string]string{
		"h": "help", "v": "verbose",
	}

	i := 0
	for i < len(args) {
		arg := args[i]
		isKnownFlag, flagName, attachedValue := identifyFlag(arg, knownFlagsWithArg, knownBoolFlags, shortFlags)

		if isKnownFlag {
			if knownFlagsWithArg[flagName] {
				i = c.handleArgFlag(flagName, attachedValue, args, i)
			} else if knownBoolFlags[flagName] {
				c.handleBoolFlag(flagName)
			}
		} else if c.File == "" {
			c.File = arg
		}
		i++
	}
	return c
}

// identifyFlag checks if an argument is a known flag.
func identifyFlag(arg string, knownFlagsWithArg, knownBoolFlags map[string]bool, shortFlags map[string]string) (bool, string, string) {
	name := ""
	value := ""
	var found bool
	if name, found = strings.CutPrefix(arg, "--"); found {
	} else if name, found = strings.CutPrefix(arg, "-"); found {
	} else {
		return false, "", ""
	}

	if before, after, found := strings.Cut(name, "="); found {
		name = before
		value = after
	}

	if knownFlagsWithArg[name] || knownBoolFlags[name] {
		return true, name, value
	}

	if longName, ok := shortFlags[name]; ok {
		return true, longName, value
	}

	return false, "", ""
}

// parseValueFlag extracts the value for a flag.
func parseValueFlag(args []string, currentIndex int) (string, int) {
	if currentIndex+1 < len(args) && !strings.HasPrefix(args[currentIndex+1], "-") {
		return args[currentIndex+1], currentIndex + 1
	}
	return "", currentIndex
}

// printHelp prints usage help info.
func printHelp() {
	fmt.Println(
		yellow("Usage:"),
		white("shrun"),
		cyan("[flags]"),
		cyan("<file>"),
	)

	fmt.Println()
	fmt.Println("Runs the commands declared in a YAML document, in dependency order.")

	fmt.Println()
	fmt.Println(yellow("Flags:"))

	fmt.Println(
		"  ",
		cyan("--shell"),
		"<path>",
		"Shell used to run each command (default: /bin/bash)",
	)

	fmt.Println(
		"  ",
		cyan("--timeout"),
		"<seconds>",
		"Global deadline for the whole run",
	)

	fmt.Println(
		"  ",
		cyan("--retry_interval"),
		"<seconds>",
		"Delay between retries (default: 1)",
	)

	fmt.Println(
		"  ",
		cyan("--output-timeout"),
		"<seconds>",
		"Output-idle timeout per command (default: 300)",
	)

	fmt.Println(
		"  ",
		cyan("-v, --verbose"),
		"Verbose logging (default: true)",
	)

	fmt.Println(
		"  ",
		cyan("--version"),
		"Print the version and exit",
	)

	fmt.Println(
		"  ",
		cyan("-h, --help"),
		"Show this help message",
	)
}
