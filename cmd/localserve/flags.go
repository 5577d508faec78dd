package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	JSON bool
}

type LogsFlags struct {
	Filter   string
	Follow   bool
	Color    bool
	Interval time.Duration
}

type ServeFlags struct {
	Listen   string
	BasePath string
}

// ConfigSetFlags mirrors console.SettingsPatch; only flags the user changed are applied.
type ConfigSetFlags struct {
	Port      int
	RootDir   string
	AutoStart bool
	ShowLogs  bool
}
