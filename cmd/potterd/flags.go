package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	StateDir   string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	Replace  bool
	Listen   string
	NoServer bool
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	JSON bool
}

// StopFlags holds flags for the stop command.
type StopFlags struct {
	Grace time.Duration
	Force time.Duration
}

// ClearFlags holds flags for the clear command.
type ClearFlags struct {
	Force bool
}

// HistoryFlags holds flags for the history command.
type HistoryFlags struct {
	Limit int
	JSON  bool
}
