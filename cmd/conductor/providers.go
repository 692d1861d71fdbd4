package main

// Notifier blank imports register their factories with the notifier registry.

import (
	_ "github.com/Strob0t/Conductor/internal/adapter/discord"
	_ "github.com/Strob0t/Conductor/internal/adapter/slack"
)
