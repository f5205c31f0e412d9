package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/invoker:main_test"

func TestUsage_NonEmpty(t *testing.T) {
	if len(usage) == 0 {
		t.Fatalf("%s - usage string is empty", mainTestPrefix)
	}
}

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "migrate up", "migrate down", "migrate status", "clear", "seed", "DATABASE_URL", "METADATA_FILE"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestUsage_DescribesAutoConfirmDefault(t *testing.T) {
	for _, word := range []string{"AUTO_CONFIRM=true", "(false) precondition warnings are declined", "critical operations are not executed"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}
