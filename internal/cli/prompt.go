package cli

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prompt collects run options interactively, used when no --url flag is
// given. Defaults mirror the flag defaults passed in.
func Prompt(defaults Options) (Options, error) {
	opts := defaults
	in := bufio.NewScanner(os.Stdin)

	url := ask(in, "Download URL: ")
	if url == "" {
		return opts, fmt.Errorf("a download URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return opts, fmt.Errorf("URL must start with http:// or https://")
	}
	opts.URL = url

	fmt.Println("\nConnection mode:")
	fmt.Println("  1. DNS resolution (default)")
	fmt.Println("  2. Pin a specific IP address")
	if ask(in, "Choose (1/2, Enter for 1): ") == "2" {
		ip := ask(in, "Target IP address: ")
		if ip != "" && net.ParseIP(ip) == nil {
			fmt.Println("Invalid IP literal, falling back to DNS resolution")
			ip = ""
		}
		opts.IP = ip
	}

	fmt.Println("\nTest mode:")
	fmt.Println("  1. Single download (one worker)")
	fmt.Println("  2. Fixed-concurrency test")
	fmt.Println("  3. Max-concurrency probe")
	fmt.Println("  4. Worker-count comparison (1/8/16/32/64)")

	switch ask(in, "Choose (1-4, Enter for 2): ") {
	case "1":
		opts.Workers = 1
		opts.Duration = askDuration(in, "Time budget in seconds", opts.Duration)
	case "3":
		opts.Probe = true
		opts.ProbeMax = askInt(in, "Max workers to try", opts.ProbeMax)
		opts.ProbeStep = askInt(in, "Worker step per level", opts.ProbeStep)
		opts.Duration = askDuration(in, "Time budget per level in seconds", opts.Duration)
	case "4":
		opts.Compare = true
		if levels, err := ParseLevels(ask(in, "Worker ladder (default 1,8,16,32,64): ")); err != nil {
			fmt.Println("Invalid ladder, using default")
		} else {
			opts.CompareLevels = levels
		}
		opts.Duration = askDuration(in, "Time budget per run in seconds", opts.Duration)
	default:
		opts.Workers = askInt(in, "Number of workers", opts.Workers)
		opts.Duration = askDuration(in, "Time budget in seconds", opts.Duration)
	}

	return opts, nil
}

func ask(in *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}

func askInt(in *bufio.Scanner, label string, def int) int {
	v := ask(in, fmt.Sprintf("%s (default %d): ", label, def))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		fmt.Println("Invalid value, using default")
		return def
	}
	return n
}

func askDuration(in *bufio.Scanner, label string, def time.Duration) time.Duration {
	v := ask(in, fmt.Sprintf("%s (default %.0f): ", label, def.Seconds()))
	if v == "" {
		return def
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil || sec <= 0 {
		fmt.Println("Invalid value, using default")
		return def
	}
	return time.Duration(sec * float64(time.Second))
}
