package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// parseCleanArgs extracts the --root flag clean requires.
func parseCleanArgs(args []string) (root string, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--root":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--root requires a value")
			}
			i++
			root = args[i]
		default:
			return "", fmt.Errorf("unknown flag %s", args[i])
		}
	}
	if root == "" {
		return "", fmt.Errorf("--root is required")
	}
	return root, nil
}

func runClean(args []string) int {
	root, err := parseCleanArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clean: %v\n", err)
		return 1
	}

	cacheDir := filepath.Join(root, ".vitest-affected")
	if err := os.RemoveAll(cacheDir); err != nil {
		fmt.Fprintf(os.Stderr, "clean: failed to remove %s: %v\n", cacheDir, err)
		return 1
	}
	fmt.Println("removed", cacheDir)
	return 0
}
