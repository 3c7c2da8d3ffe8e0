// progminer: ProgPoW GPU mining rig
// Copyright (C) 2026  The progminer authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"progminer/internal/client"
	"progminer/internal/cli/ui"
)

func main() {
	var (
		target   = flag.String("addr", "localhost:8390", "daemon address (host:port or URL)")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
	)
	flag.Parse()

	baseURL, err := parseTarget(*target)
	if err != nil {
		log.Fatalf("monitor: %v", err)
	}

	api := client.NewAPIClientURL(baseURL)
	model := ui.NewModel(api, *interval)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("monitor: %v", err)
	}
}

// parseTarget accepts "host:port", ":port", a bare port number, or a
// full URL, and normalizes it to a base URL.
func parseTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty address")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", target, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return strings.TrimRight(u.String(), "/"), nil
	}

	if port, err := strconv.Atoi(target); err == nil {
		if port < 1 || port > 65535 {
			return "", fmt.Errorf("port %d out of range", port)
		}
		return fmt.Sprintf("http://localhost:%d", port), nil
	}

	if strings.HasPrefix(target, ":") {
		return parseTarget(target[1:])
	}

	host, portStr, ok := strings.Cut(target, ":")
	if !ok || host == "" {
		return "", fmt.Errorf("invalid address %q (want host:port)", target)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port in %q", target)
	}
	return fmt.Sprintf("http://%s:%d", host, port), nil
}
